// Package server provides the HTTP API: job management, the stub-ingest
// webhook for out-of-process scrapers, and the ranked match feed.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/angus/lotscout/internal/config"
	"github.com/angus/lotscout/internal/db"
	"github.com/angus/lotscout/internal/ingest"
	"github.com/angus/lotscout/internal/matching"
	"github.com/angus/lotscout/internal/server/middleware"
	"github.com/angus/lotscout/internal/server/ratelimit"
)

// Store is the persistence surface the handlers need. *db.DB satisfies it.
type Store interface {
	EnqueueJob(ctx context.Context, source, externalRunID string) (*db.Job, error)
	GetJob(ctx context.Context, id uuid.UUID) (*db.Job, error)
	ListJobs(ctx context.Context, filters db.JobFilters) ([]db.Job, error)
	UpsertListingBatch(ctx context.Context, listings []*db.NormalizedListing) (db.BatchResult, error)
	ListRankedMatches(ctx context.Context, limit int) ([]db.RankedMatch, error)
}

// MatchRunner triggers a matching pass. *matching.Engine satisfies it.
type MatchRunner interface {
	Run(ctx context.Context) (*matching.RunResult, error)
}

// Server is the HTTP API server.
type Server struct {
	httpServer   *http.Server
	store        Store
	matcher      MatchRunner
	webhookToken string
	enrich       ingest.Enricher
	rateLimiter  *ratelimit.Limiter
	jwtService   *JWTService
	log          zerolog.Logger
}

// New wires the server. The JWT service guards the dealer-facing routes;
// the webhook token guards the scraper ingest route.
func New(cfg config.Config, store Store, matcher MatchRunner, jwtService *JWTService, log zerolog.Logger) *Server {
	s := &Server{
		store:        store,
		matcher:      matcher,
		webhookToken: cfg.WebhookToken,
		rateLimiter:  ratelimit.NewLimiter(ratelimit.LoadConfig()),
		jwtService:   jwtService,
		log:          log.With().Str("component", "server").Logger(),
	}

	authed := middleware.Auth(jwtService.AsTokenValidator())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /ingest/{source}/webhook", s.handleIngestWebhook)

	mux.Handle("POST /jobs", authed(http.HandlerFunc(s.handleEnqueueJob)))
	mux.Handle("GET /jobs", authed(http.HandlerFunc(s.handleListJobs)))
	mux.Handle("GET /jobs/{id}", authed(http.HandlerFunc(s.handleGetJob)))
	mux.Handle("GET /matches", authed(http.HandlerFunc(s.handleListMatches)))
	mux.Handle("POST /matching/run", authed(http.HandlerFunc(s.handleRunMatching)))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.withRateLimit(s.withLogging(mux)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler exposes the configured handler chain for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens until SIGINT/SIGTERM, then shuts down gracefully.
func (s *Server) Start() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		s.log.Info().Str("addr", s.httpServer.Addr).Msg("server starting")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-stop
	s.log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.rateLimiter.Stop()
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := s.clientID(r)
		allowed, info := s.rateLimiter.Allow(clientID, r.URL.Path, r.Method)
		s.setRateLimitHeaders(w, info)
		if !allowed {
			if info.RetryAfter > 0 {
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(info.RetryAfter.Seconds())))
			}
			s.errorResponse(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) clientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetTime.Unix()))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}
