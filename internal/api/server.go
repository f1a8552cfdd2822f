package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/go-echo/internal/chat"
	"github.com/npezzotti/go-echo/internal/config"
	"github.com/npezzotti/go-echo/internal/signal"
	"github.com/npezzotti/go-echo/internal/stats"
	"github.com/npezzotti/go-echo/internal/sweeper"
	"golang.org/x/time/rate"
)

type EchoApp struct {
	log            *log.Logger
	svc            *chat.Service
	sweeper        *sweeper.Sweeper
	hub            *signal.Hub
	stats          stats.StatsProvider
	limiter        *RateLimiter
	mux            *http.Server
	signingKey     []byte
	allowedOrigins []string
}

func NewEchoApp(mux *http.ServeMux, logger *log.Logger, svc *chat.Service, sw *sweeper.Sweeper, hub *signal.Hub, st stats.StatsProvider, cfg *config.Config) *EchoApp {
	s := &EchoApp{
		log:            logger,
		svc:            svc,
		sweeper:        sw,
		hub:            hub,
		stats:          st,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	if cfg.RateLimit > 0 && cfg.RateBurst > 0 {
		s.limiter = NewRateLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst, 2*time.Minute)
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.Handle("POST /api/rooms", s.rateLimit(s.createRoom))
	mux.HandleFunc("GET /api/rooms", s.getRoom)
	mux.Handle("POST /api/join", s.rateLimit(s.joinRoom))
	mux.Handle("POST /api/leave", s.rateLimit(s.leaveRoom))
	mux.HandleFunc("GET /api/poll", s.poll)
	mux.HandleFunc("GET /api/messages", s.getMessages)
	mux.Handle("POST /api/messages", s.rateLimit(s.sendMessage))
	mux.Handle("PATCH /api/messages", s.rateLimit(s.editMessage))
	mux.Handle("DELETE /api/messages/delete", s.rateLimit(s.deleteMessage))
	mux.Handle("POST /api/typing", s.rateLimit(s.setTyping))
	mux.Handle("POST /api/reactions", s.rateLimit(s.toggleReaction))
	mux.HandleFunc("GET /api/reactions", s.getReactions)
	mux.Handle("POST /api/dm", s.rateLimit(s.sendDirectMessage))
	mux.HandleFunc("GET /api/dm", s.getDirectMessages)
	mux.Handle("POST /api/clips", s.rateLimit(s.clipMessage))
	mux.HandleFunc("GET /api/clips", s.getClips)
	mux.Handle("POST /api/cleanup", s.cleanupAuth(s.cleanup))
	mux.Handle("GET /api/cleanup", s.cleanupAuth(s.cleanup))
	mux.HandleFunc("GET /api/signal", s.serveSignal)
	mux.HandleFunc("GET /api/signal/peers", s.signalPeers)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = handlers.ProxyHeaders(h)
	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *EchoApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *EchoApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if s.limiter != nil {
		s.limiter.Stop()
	}

	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}

// Handler returns the fully wrapped handler, for serving from a test server
// or another listener.
func (s *EchoApp) Handler() http.Handler {
	return s.mux.Handler
}
