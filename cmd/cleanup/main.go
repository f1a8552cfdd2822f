// Command cleanup triggers one cleanup sweep on a running echo server. It is
// meant to be run from cron when the server's own sweeper is disabled.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"github.com/npezzotti/go-echo/internal/api"
	"github.com/npezzotti/go-echo/internal/config"
	"github.com/npezzotti/go-echo/pkg/client"
)

func main() {
	logger := log.New(os.Stderr, "[echo-cleanup] ", log.LstdFlags)

	if err := config.LoadEnv(); err != nil {
		logger.Fatal("load .env:", err)
	}

	var (
		serverURL  string
		signingKey string
		timeout    time.Duration
	)
	flag.StringVar(&serverURL, "server", config.Getenv("ECHO_SERVER_URL", "http://localhost:8000"), "echo server base URL")
	flag.StringVar(&signingKey, "signing-key", config.Getenv("ECHO_SIGNING_KEY", ""), "base64 encoded key shared with the server")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "request timeout")
	flag.Parse()

	var token string
	if signingKey != "" {
		key, err := config.DecodeSigningKey(signingKey)
		if err != nil {
			logger.Fatal("decode signing key:", err)
		}
		token, err = api.NewCleanupToken(key, api.DefaultCleanupTokenTTL)
		if err != nil {
			logger.Fatal("mint token:", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	result, err := client.New(serverURL, token).Cleanup(ctx)
	if err != nil {
		logger.Fatal(err)
	}

	for _, e := range result.Errors {
		logger.Println("sweep step failed:", e)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		logger.Fatal("encode result:", err)
	}

	if len(result.Errors) > 0 {
		os.Exit(1)
	}
}
