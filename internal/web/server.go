// Package web provides the HTTP server and handlers for the CSV upload API.
package web

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/tabledrop/tabledrop/internal/config"
	"github.com/tabledrop/tabledrop/internal/core"
	"github.com/tabledrop/tabledrop/internal/ingest"
	"github.com/tabledrop/tabledrop/internal/web/middleware"
)

// RecordService is the core surface the HTTP layer depends on.
// Satisfied by *core.Service; tests substitute a stub.
type RecordService interface {
	ImportDataset(ctx context.Context, ds *ingest.Dataset) (*core.ImportResult, error)
	Insert(ctx context.Context, fields map[string]any) (core.Record, error)
	GetAll(ctx context.Context, filter *core.Filter) ([]core.Record, error)
	GetByID(ctx context.Context, id int64) (core.Record, error)
	Update(ctx context.Context, id int64, fields map[string]any) (core.Record, error)
	Delete(ctx context.Context, id int64) error
	Columns(ctx context.Context) ([]core.ColumnInfo, error)
	Table() string
	Ping(ctx context.Context) error
}

// Server is the HTTP server for the CSV upload API.
type Server struct {
	service RecordService
	cfg     *config.Config
	router  *chi.Mux
	server  *http.Server
}

// NewServer creates a new Server instance.
func NewServer(service RecordService, cfg *config.Config) *Server {
	s := &Server{
		service: service,
		cfg:     cfg,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(chimw.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(chimw.Compress(5))
	s.router.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))
	s.router.Use(securityHeaders)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Post("/upload/", s.handleUpload)

	s.router.Route("/records", func(r chi.Router) {
		r.Get("/", s.handleListRecords)
		r.Post("/", s.handleCreateRecord)
		r.Get("/{id}", s.handleGetRecord)
		r.Put("/{id}", s.handleUpdateRecord)
		r.Delete("/{id}", s.handleDeleteRecord)
	})

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/debug/columns", s.handleColumns)
}

// Start begins listening for HTTP requests. Blocks until the server stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		next.ServeHTTP(w, r)
	})
}
