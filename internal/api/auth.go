package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

const (
	cleanupSubject = "cleanup"
	subClaim       = "sub"
	expClaim       = "exp"

	DefaultCleanupTokenTTL = 5 * time.Minute
)

// NewCleanupToken signs a short-lived token that authorizes a cleanup run.
func NewCleanupToken(signingKey []byte, exp time.Duration) (string, error) {
	if len(signingKey) == 0 {
		return "", errors.New("missing signing key")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		subClaim: cleanupSubject,
		expClaim: time.Now().Add(exp).Unix(),
	})

	return token.SignedString(signingKey)
}

func verifyCleanupToken(tokenString string, signingKey []byte) error {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return signingKey, nil
	})
	if err != nil {
		return fmt.Errorf("parse token: %w", err)
	}

	if !token.Valid {
		return fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return fmt.Errorf("invalid token claims")
	}

	if sub, _ := claims[subClaim].(string); sub != cleanupSubject {
		return fmt.Errorf("invalid subject claim")
	}

	if _, ok := claims[expClaim]; !ok {
		return fmt.Errorf("missing exp claim")
	}

	return nil
}
