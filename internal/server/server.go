// Package server exposes the memory core over REST/JSON.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/causalmem/causalmem/internal/config"
	"github.com/causalmem/causalmem/internal/types"
)

// Memory is the slice of the engine the HTTP layer needs. The concrete
// implementation is *engine.Engine; tests substitute fakes.
type Memory interface {
	AddEvent(ctx context.Context, effectText string) (int64, error)
	Query(ctx context.Context, queryText string) (string, error)
	Stats(ctx context.Context) (*types.Stats, error)
	Ping(ctx context.Context) error
}

// Server is the REST front end. Construct with New, run with Start, stop with
// Shutdown.
type Server struct {
	memory Memory
	cfg    *config.Config
	log    *zap.Logger
	http   *http.Server
}

// New builds the server and its router.
func New(memory Memory, cfg *config.Config, log *zap.Logger) *Server {
	s := &Server{memory: memory, cfg: cfg, log: log}
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Routes assembles the chi router. Exposed for httptest.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(s.recoverer)
	r.Use(s.logRequests)
	// Browsers refuse Allow-Credentials combined with a wildcard origin, so
	// credentials are only offered for explicit origin lists.
	allowCredentials := len(s.cfg.CORSOrigins) > 0
	for _, o := range s.cfg.CORSOrigins {
		if o == "*" {
			allowCredentials = false
		}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: allowCredentials,
	}))

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/stats", s.handleStats)

	// Mutating and query endpoints carry auth and per-IP rate limits.
	eventsLimiter := newIPLimiter(s.cfg.RateLimitEventsPerMin)
	queryLimiter := newIPLimiter(s.cfg.RateLimitQueryPerMin)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAPIKey)
		r.With(s.rateLimit(eventsLimiter)).Post("/events", s.handleAddEvent)
		r.With(s.rateLimit(queryLimiter)).Post("/query", s.handleQuery)
	})

	return r
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	s.log.Info("http server listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
