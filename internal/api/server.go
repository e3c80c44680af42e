package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/report-vault/internal/autosave"
	"github.com/report-vault/internal/config"
	"github.com/report-vault/internal/diff"
	"github.com/report-vault/internal/sanitize"
	"github.com/report-vault/internal/versions"
)

// Deps are the components the HTTP server exposes
type Deps struct {
	Store    *versions.Store
	Autosave *autosave.Manager
	Gate     *sanitize.Gate
	Diff     *diff.Engine
	// Gatherer backs /metrics; nil disables the endpoint
	Gatherer prometheus.Gatherer
	Logger   zerolog.Logger
}

// Server represents the HTTP server
type Server struct {
	*http.Server
	router   chi.Router
	store    *versions.Store
	autosave *autosave.Manager
	gate     *sanitize.Gate
	diff     *diff.Engine
	log      zerolog.Logger
}

// NewServer creates a new HTTP server with all routes configured
func NewServer(cfg config.ServerConfig, deps Deps) *Server {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if deps.Gate == nil {
		deps.Gate = sanitize.New(nil)
	}
	if deps.Diff == nil {
		deps.Diff = diff.NewEngine()
	}

	s := &Server{
		Server: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler: r,
		},
		router:   r,
		store:    deps.Store,
		autosave: deps.Autosave,
		gate:     deps.Gate,
		diff:     deps.Diff,
		log:      deps.Logger,
	}

	// Setup routes
	s.setupRoutes()
	if deps.Gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.SetHeader("Content-Type", "application/json"))

		// Health check
		r.Get("/health", s.handleHealth)
		r.Get("/usage", s.handleUsage)

		// Stateless tools
		r.Post("/sanitize", s.handleSanitize)
		r.Post("/diff", s.handleDiffContent)

		// Documents
		r.Get("/documents", s.handleListDocuments)
		r.Post("/import", s.handleImport)
		r.Route("/documents/{docID}", func(r chi.Router) {
			r.Get("/versions", s.handleListVersions)
			r.Post("/versions", s.handleAppend)
			r.Get("/versions/{versionID}", s.handleGetVersion)
			r.Delete("/versions/{versionID}", s.handleDeleteVersion)
			r.Post("/versions/{versionID}/restore", s.handleRestore)
			r.Get("/diff/{v1}/{v2}", s.handleDiff)
			r.Post("/evict", s.handleEvict)
			r.Get("/export", s.handleExport)
			r.Post("/reload", s.handleReload)
			r.Post("/quarantine", s.handleQuarantine)

			r.Get("/autosave", s.handleAutosaveStatus)
			r.Post("/autosave", s.handleAutosaveChange)
			r.Delete("/autosave", s.handleAutosaveClose)
		})
	})
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.Server.Shutdown(ctx)
}
