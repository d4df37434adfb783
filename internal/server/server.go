// Package server exposes the directory and ingestion pipeline over an
// authenticated HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/manuid/internal/config"
	"github.com/sells-group/manuid/internal/directory"
	"github.com/sells-group/manuid/internal/ingest"
)

// Server is the HTTP API over the vendor directory.
type Server struct {
	cfg       config.Config
	directory *directory.Service
	pipeline  *ingest.Pipeline
	router    chi.Router
}

// New assembles the router with logging, CORS, auth, and rate limiting.
func New(cfg config.Config, dir *directory.Service, pipeline *ingest.Pipeline) *Server {
	s := &Server{
		cfg:       cfg,
		directory: dir,
		pipeline:  pipeline,
	}

	r := chi.NewRouter()
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	limiter := newRateLimiter(cfg.Auth.RateLimitPerMinute)
	r.Route("/v1", func(r chi.Router) {
		r.Use(apiKeyAuth(cfg.Auth.APIKeyList()))
		r.Use(limiter.middleware)

		r.Get("/product-types", s.handleListProductTypes)
		r.Post("/search/vendors", s.handleSearchVendors)
		r.Post("/ingestion/url", s.handleIngestURL)
		r.Get("/vendors/{vendorID}", s.handleGetVendor)
		r.Post("/vendors/{vendorID}/verify", s.handleVerifyVendor)
		r.Get("/source-catalog", s.handleSourceCatalog)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})

	s.router = r
	return s
}

// Handler returns the assembled router. Used by tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("http server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return eris.Wrap(err, "server: listen")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "server: shutdown")
	}
	zap.L().Info("http server stopped")
	return nil
}
