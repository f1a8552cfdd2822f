package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// MemoryDSN selects the in-process repository instead of Postgres.
const MemoryDSN = "memory://"

type Config struct {
	DatabaseDSN     string
	ServerAddr      string
	SigningKey      []byte
	AllowedOrigins  []string
	CleanupInterval time.Duration
	RateLimit       float64
	RateBurst       int
}

type Options struct {
	ServerAddr      string
	DatabaseDSN     string
	SigningKey      string
	AllowedOrigins  []string
	CleanupInterval time.Duration
	RateLimit       float64
	RateBurst       int
}

// DecodeSigningKey decodes a base64 HMAC key.
func DecodeSigningKey(base64Secret string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(base64Secret)
	if err != nil {
		return nil, err
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("signing secret is empty")
	}
	return key, nil
}

// NewConfig validates opts. An empty signing key leaves the cleanup
// endpoint unauthenticated and a zero cleanup interval disables the
// in-process sweeper.
func NewConfig(opts Options) (*Config, error) {
	if opts.ServerAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if opts.DatabaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if opts.CleanupInterval < 0 {
		return nil, fmt.Errorf("cleanup interval cannot be negative")
	}
	if opts.RateLimit <= 0 {
		return nil, fmt.Errorf("rate limit must be positive")
	}
	if opts.RateBurst <= 0 {
		return nil, fmt.Errorf("rate burst must be positive")
	}

	var signingKey []byte
	if opts.SigningKey != "" {
		key, err := DecodeSigningKey(opts.SigningKey)
		if err != nil {
			return nil, fmt.Errorf("decode signing secret: %w", err)
		}
		signingKey = key
	}

	return &Config{
		DatabaseDSN:     opts.DatabaseDSN,
		ServerAddr:      opts.ServerAddr,
		SigningKey:      signingKey,
		AllowedOrigins:  opts.AllowedOrigins,
		CleanupInterval: opts.CleanupInterval,
		RateLimit:       opts.RateLimit,
		RateBurst:       opts.RateBurst,
	}, nil
}

func (c *Config) UseMemoryStore() bool {
	return c.DatabaseDSN == MemoryDSN
}

// LoadEnv reads a .env file from the working directory when one exists.
// Variables already set in the environment win.
func LoadEnv() error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func Getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func GetenvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func GetenvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
