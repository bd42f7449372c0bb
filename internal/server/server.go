package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonathan/newsroom/internal/db"
	"github.com/jonathan/newsroom/internal/ingestion"
	"github.com/jonathan/newsroom/internal/server/middleware"
	"github.com/jonathan/newsroom/internal/server/ratelimit"
	"github.com/jonathan/newsroom/internal/session"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

// SourceStore looks up news sources registered by an actor. *db.DB satisfies it.
type SourceStore interface {
	GetNewsSource(ctx context.Context, userID uuid.UUID, id string) (*db.NewsSource, error)
}

var _ SourceStore = (*db.DB)(nil)

// Pinger reports whether a backing service is reachable. *db.DB satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	handler     http.Handler
	sessions    *session.Manager
	jwtService  *JWTService
	drafts      session.DraftStore
	sources     map[string]ingestion.NewsSource
	sourceStore SourceStore
	health      Pinger
	rateLimiter *ratelimit.Limiter
	upgrader    websocket.Upgrader
	logger      *slog.Logger
}

// Config holds server configuration
type Config struct {
	Port     int
	Sessions *session.Manager
	JWT      *JWTService
	// Drafts serves GET /drafts/{id}. Nil disables the route.
	Drafts session.DraftStore
	// Sources are the news sources known from configuration.
	Sources []ingestion.NewsSource
	// SourceStore resolves sources that are not configured. Optional.
	SourceStore SourceStore
	// Health is checked by GET /health when set.
	Health    Pinger
	RateLimit *ratelimit.Config
	Logger    *slog.Logger
}

// New creates a new server instance
func New(cfg Config) (*Server, error) {
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if cfg.JWT == nil {
		return nil, fmt.Errorf("JWT service is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rateCfg := cfg.RateLimit
	if rateCfg == nil {
		rateCfg = ratelimit.LoadConfig()
	}

	s := &Server{
		sessions:    cfg.Sessions,
		jwtService:  cfg.JWT,
		drafts:      cfg.Drafts,
		sources:     make(map[string]ingestion.NewsSource, len(cfg.Sources)),
		sourceStore: cfg.SourceStore,
		health:      cfg.Health,
		rateLimiter: ratelimit.NewLimiter(rateCfg),
		upgrader:    newUpgrader(),
		logger:      logger.With("component", "server"),
	}
	for _, src := range cfg.Sources {
		s.sources[src.ID] = src
	}

	requireAuth := middleware.AuthMiddleware(cfg.JWT.AsTokenValidator())
	optionalAuth := middleware.OptionalAuth(cfg.JWT.AsTokenValidator())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	// Session lifecycle
	mux.Handle("POST /sessions", optionalAuth(http.HandlerFunc(s.handleCreateSession)))
	mux.HandleFunc("GET /sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleDeleteSession)

	// Draft editing
	mux.HandleFunc("PATCH /sessions/{id}/draft", s.handleUpdateDraft)
	mux.HandleFunc("POST /sessions/{id}/files", s.handleAddFiles)
	mux.HandleFunc("DELETE /sessions/{id}/files/{file_id}", s.handleRemoveFile)
	mux.HandleFunc("POST /sessions/{id}/titles/select", s.handleSelectTitle)

	// Workflow navigation
	mux.HandleFunc("POST /sessions/{id}/advance", s.handleAdvance)
	mux.HandleFunc("POST /sessions/{id}/retreat", s.handleRetreat)
	mux.HandleFunc("POST /sessions/{id}/jump", s.handleJump)

	// Processing
	mux.HandleFunc("POST /sessions/{id}/processing", s.handleProcessingUpdate)
	mux.HandleFunc("DELETE /sessions/{id}/processing", s.handleCancelProcessing)

	// Authentication and gated commands
	mux.Handle("POST /sessions/{id}/auth", requireAuth(http.HandlerFunc(s.handleAuthenticate)))
	mux.HandleFunc("POST /sessions/{id}/logout", s.handleLogout)
	mux.HandleFunc("POST /sessions/{id}/publish", s.handlePublish)
	mux.HandleFunc("POST /sessions/{id}/ingest", s.handleIngest)
	mux.HandleFunc("DELETE /sessions/{id}/pending", s.handleDismissPrompt)

	// Event streams
	mux.HandleFunc("GET /sessions/{id}/events", s.handleSessionEvents)
	mux.HandleFunc("GET /sessions/{id}/ws", s.handleSessionWebSocket)

	// Persisted drafts
	mux.Handle("GET /drafts/{id}", requireAuth(http.HandlerFunc(s.handleGetDraft)))
	mux.HandleFunc("POST /sessions/{id}/resume/{draft_id}", s.handleResumeDraft)

	s.handler = s.withRateLimit(s.withLogging(s.withCORS(mux)))
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Event streams clear their own write deadline.
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves requests and sweeps idle sessions until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("server starting", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return s.sessions.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	err := g.Wait()
	s.rateLimiter.Stop()
	s.logger.Info("server stopped")
	return err
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := s.extractClientID(r)
		allowed, info := s.rateLimiter.Allow(clientID, r.URL.Path, r.Method)

		s.setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, r, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		level := slog.LevelInfo
		if rec.status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		s.logger.Log(r.Context(), level, "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
			"remote", r.RemoteAddr,
		)
	})
}

// statusRecorder captures the response status for logging.
// It keeps Flush and Hijack available for event streams.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("hijacking not supported")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			s.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
			return
		}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"status": "ok", "sessions": s.sessions.Len()})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", "error", err)
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// writeError maps err to a status code and writes it. Server errors are logged and hidden.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable && status != http.StatusBadGateway {
		s.logger.Error("request failed", "error", err)
		s.errorResponse(w, status, "internal server error")
		return
	}
	s.errorResponse(w, status, err.Error())
}

// extractClientID extracts the client identifier from the request.
// This uses the IP address from RemoteAddr.
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

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, r *http.Request, info ratelimit.Info) {
	response := map[string]any{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
		"reset_at":  info.ResetTime.Format(time.RFC3339),
	}

	if info.RetryAfter > 0 {
		seconds := int(info.RetryAfter.Seconds())
		if seconds < 1 {
			seconds = 1
		}
		response["retry_after"] = seconds
		w.Header().Set("Retry-After", fmt.Sprintf("%d", seconds))
	}

	s.logger.Warn("rate limit exceeded",
		"path", r.URL.Path,
		"method", r.Method,
		"limit", info.Limit,
		"reset", info.ResetTime.Format(time.RFC3339),
	)

	s.jsonResponse(w, http.StatusTooManyRequests, response)
}
