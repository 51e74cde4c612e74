package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/dj-pearson/gym-unity-edge/internal/config"
	"github.com/dj-pearson/gym-unity-edge/internal/log"
	"github.com/dj-pearson/gym-unity-edge/internal/monitor"
	"github.com/dj-pearson/gym-unity-edge/internal/ratelimit"
	"github.com/dj-pearson/gym-unity-edge/internal/validate"
)

// Server is the edge HTTP surface: webhook ingress, rate-limit decisions,
// and health reporting.
type Server struct {
	cfg     config.ServerConfig
	limiter *ratelimit.Limiter
	monitor *monitor.Monitor
	logger  *slog.Logger
	server  *http.Server

	// endpoints maps URL paths to their webhook configurations.
	endpoints map[string]*endpoint
}

// Schemas maps schema names referenced from webhook config to their field
// declarations.
type Schemas map[string]validate.Schema

// New creates a Server. Webhook secrets are resolved at construction so a
// missing secret fails startup instead of the first request.
func New(cfg config.ServerConfig, hooks []config.WebhookConfig, secrets *config.Secrets, schemas Schemas, limiter *ratelimit.Limiter, mon *monitor.Monitor) (*Server, error) {
	s := &Server{
		cfg:       cfg,
		limiter:   limiter,
		monitor:   mon,
		logger:    log.WithComponent("server"),
		endpoints: make(map[string]*endpoint, len(hooks)),
	}

	for i := range hooks {
		ep, err := s.buildEndpoint(&hooks[i], secrets, schemas)
		if err != nil {
			return nil, fmt.Errorf("webhook %s: %w", hooks[i].Path, err)
		}
		s.endpoints[ep.path] = ep
	}

	return s, nil
}

// Start starts the HTTP server (blocking until ctx is cancelled).
func (s *Server) Start(ctx context.Context) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:         s.cfg.Listen,
		Handler:      router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("server starting", "listen", s.cfg.Listen, "endpoints", len(s.endpoints))

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// setupRoutes configures the HTTP router.
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	if len(s.cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowOriginFunc:  s.originAllowed,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	for path := range s.endpoints {
		r.Post(path, s.handleWebhook)
	}
	r.Post("/v1/ratelimit", s.handleRateLimit)
	r.Get("/healthz", s.handleHealth)

	return r
}

// originAllowed matches exact origins and single-level wildcard subdomains
// ("https://*.example.com" matches "https://app.example.com").
func (s *Server) originAllowed(r *http.Request, origin string) bool {
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == origin {
			return true
		}
		scheme, host, ok := strings.Cut(allowed, "://")
		if !ok || !strings.HasPrefix(host, "*.") {
			continue
		}
		suffix := strings.TrimPrefix(host, "*")
		if strings.HasPrefix(origin, scheme+"://") && strings.HasSuffix(origin, suffix) {
			rest := strings.TrimSuffix(strings.TrimPrefix(origin, scheme+"://"), suffix)
			if rest != "" && !strings.Contains(rest, ".") {
				return true
			}
		}
	}
	return false
}

// loggingMiddleware logs HTTP requests (excludes sensitive payloads).
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// respondJSON sends a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends a JSON error response.
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, errorResponse{Error: message})
}

type errorResponse struct {
	Error string `json:"error"`
}
