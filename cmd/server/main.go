package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	ossignal "os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/npezzotti/go-echo/internal/api"
	"github.com/npezzotti/go-echo/internal/chat"
	"github.com/npezzotti/go-echo/internal/config"
	"github.com/npezzotti/go-echo/internal/database"
	"github.com/npezzotti/go-echo/internal/signal"
	"github.com/npezzotti/go-echo/internal/stats"
	"github.com/npezzotti/go-echo/internal/sweeper"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr            string
	dsn             string
	signingKey      string
	allowedOrigins  stringSliceFlag
	cleanupInterval time.Duration
	rateLimit       float64
	rateBurst       int
)

func main() {
	logger := log.New(os.Stderr, "[echo] ", log.LstdFlags)

	if err := config.LoadEnv(); err != nil {
		logger.Fatal("load .env:", err)
	}

	burst, err := strconv.Atoi(config.Getenv("ECHO_RATE_BURST", "20"))
	if err != nil {
		logger.Fatal("ECHO_RATE_BURST:", err)
	}

	flag.StringVar(&addr, "addr", config.Getenv("ECHO_ADDR", "localhost:8000"), "server address")
	flag.StringVar(&dsn, "dsn", config.Getenv("ECHO_DSN", config.MemoryDSN), "database connection string, memory:// for the in-process store")
	flag.StringVar(&signingKey, "signing-key", config.Getenv("ECHO_SIGNING_KEY", ""), "base64 encoded key for cleanup tokens, empty leaves cleanup open")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.DurationVar(&cleanupInterval, "cleanup-interval", config.GetenvDuration("ECHO_CLEANUP_INTERVAL", 5*time.Minute), "interval between cleanup sweeps, 0 disables the sweeper")
	flag.Float64Var(&rateLimit, "rate-limit", config.GetenvFloat("ECHO_RATE_LIMIT", 10), "write requests per second per client and route")
	flag.IntVar(&rateBurst, "rate-burst", burst, "write request burst per client and route")
	flag.Parse()

	if len(allowedOrigins) == 0 {
		if v := config.Getenv("ECHO_ALLOWED_ORIGINS", ""); v != "" {
			allowedOrigins.Set(v) //nolint:errcheck
		}
	}

	cfg, err := config.NewConfig(config.Options{
		ServerAddr:      addr,
		DatabaseDSN:     dsn,
		SigningKey:      signingKey,
		AllowedOrigins:  allowedOrigins,
		CleanupInterval: cleanupInterval,
		RateLimit:       rateLimit,
		RateBurst:       rateBurst,
	})
	if err != nil {
		logger.Fatal("config:", err)
	}

	repo, err := openRepository(cfg, logger)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Println("db close:", err)
		}
	}()

	if cfg.SigningKey == nil {
		logger.Println("no signing key configured, cleanup endpoint is unauthenticated")
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)
	statsUpdater.RegisterDefaults()
	statsUpdater.Run()
	defer statsUpdater.Stop()

	svc := chat.NewService(repo, logger, statsUpdater)
	sw := sweeper.New(repo, logger, statsUpdater)
	hub := signal.NewHub(logger, statsUpdater)

	srv := api.NewEchoApp(mux, logger, svc, sw, hub, statsUpdater, cfg)

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	sweepDone := make(chan struct{})
	if cfg.CleanupInterval > 0 {
		go func() {
			defer close(sweepDone)
			sw.Run(sweepCtx, cfg.CleanupInterval)
		}()
	} else {
		close(sweepDone)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	ossignal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Println("HTTP server shutdown:", err)
	}

	logger.Println("closing signaling peers...")
	hub.Shutdown()

	stopSweeper()
	<-sweepDone

	logger.Println("shutdown complete")
}

func openRepository(cfg *config.Config, logger *log.Logger) (database.Repository, error) {
	if cfg.UseMemoryStore() {
		logger.Println("using in-memory store, data is lost on restart")
		return database.NewMemoryRepository(), nil
	}

	if err := database.Migrate(cfg.DatabaseDSN); err != nil {
		return nil, err
	}

	return database.NewPgRepository(cfg.DatabaseDSN)
}
