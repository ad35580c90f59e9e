// Package server provides the HTTP control API for the video curator.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/video-curator/internal/curator"
	"github.com/jonathan/video-curator/internal/db"
	"github.com/jonathan/video-curator/internal/server/ratelimit"
)

// CurationService is the orchestrator surface the API exposes.
type CurationService interface {
	Begin(ctx context.Context, kind, triggeredBy string) (*db.CurationRun, *curator.StartRejection, error)
	ExecuteRun(ctx context.Context, run *db.CurationRun)
	Status(ctx context.Context) (*curator.Status, error)
}

// Toggle is the enabled-flag control surface.
type Toggle interface {
	Enabled() bool
	Set(ctx context.Context, enabled bool) error
}

// AnalysisService drains the post-admission analysis queue on demand.
type AnalysisService interface {
	ProcessPending(ctx context.Context, limit int) (processed, failed int, err error)
}

// QuotaReader exposes today's ledger for reporting.
type QuotaReader interface {
	Usage(ctx context.Context) (*db.QuotaLedger, error)
}

// Store is the persistence surface the read endpoints need.
type Store interface {
	GetRun(ctx context.Context, runID uuid.UUID) (*db.CurationRun, error)
	ListRecentRuns(ctx context.Context, limit int) ([]db.CurationRun, error)
	ListSources(ctx context.Context) ([]db.SourceState, error)
	UpsertSource(ctx context.Context, channelID, title string, verified bool) (*db.SourceState, error)
}

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	store       Store
	curation    CurationService
	toggle      Toggle
	analysis    AnalysisService
	quota       QuotaReader
	rateLimiter *ratelimit.Limiter
}

// Config holds server configuration
type Config struct {
	Addr string
}

// New creates a new server instance wired to the given services.
func New(cfg Config, store Store, curation CurationService, toggle Toggle, analysis AnalysisService, quota QuotaReader) *Server {
	s := &Server{
		store:       store,
		curation:    curation,
		toggle:      toggle,
		analysis:    analysis,
		quota:       quota,
		rateLimiter: ratelimit.NewLimiter(ratelimit.LoadConfig()),
	}

	addr := cfg.Addr
	if addr == "" {
		addr = ":8080"
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.withRateLimit(s.withLogging(s.withCORS(s.routes()))),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// routes builds the API router.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	// Curation control
	mux.HandleFunc("POST /curation/run", s.handleTriggerRun)
	mux.HandleFunc("GET /curation/status", s.handleStatus)
	mux.HandleFunc("GET /curation/enabled", s.handleGetEnabled)
	mux.HandleFunc("POST /curation/enabled", s.handleSetEnabled)

	// Run history
	mux.HandleFunc("GET /runs", s.handleListRuns)
	mux.HandleFunc("GET /runs/{id}", s.handleGetRun)

	// Quota ledger
	mux.HandleFunc("GET /quota", s.handleQuota)

	// Source pool
	mux.HandleFunc("GET /sources", s.handleListSources)
	mux.HandleFunc("POST /sources", s.handleAddSource)

	// Analysis queue
	mux.HandleFunc("POST /analysis/run", s.handleRunAnalysis)

	return mux
}

// Start begins listening for requests and blocks until shutdown.
func (s *Server) Start() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Server starting on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-stop
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	log.Println("Server stopped")
	return nil
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log.Printf("[%s] %s %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
		log.Printf("[%s] %s completed in %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := s.extractClientID(r)

		allowed, info := s.rateLimiter.Allow(clientID, r.URL.Path, r.Method)
		s.setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// extractClientID extracts the client identifier from the request. For now
// this is the IP from RemoteAddr; X-Forwarded-For would only be safe behind
// a trusted proxy.
func (s *Server) extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetTime.Unix()))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response.
func (s *Server) rateLimitResponse(w http.ResponseWriter, info ratelimit.Info) {
	response := map[string]interface{}{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
		"reset_at":  info.ResetTime.Format(time.RFC3339),
	}
	if info.RetryAfter > 0 {
		response["retry_after"] = int(info.RetryAfter.Seconds())
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(info.RetryAfter.Seconds())))
	}

	log.Printf("[rate-limit] Rate limit exceeded: Limit=%d Remaining=%d Reset=%s",
		info.Limit, info.Remaining, info.ResetTime.Format(time.RFC3339))

	s.jsonResponse(w, http.StatusTooManyRequests, response)
}
