// Package server provides the HTTP API for kotae.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/quota"
	"github.com/hyperjump/kotae/pkg/utils"
)

// Asker answers questions.
type Asker interface {
	Ask(ctx context.Context, who models.Requester, req models.AskRequest) (*models.AskResponse, error)
}

// Ingester stores uploaded knowledge files.
type Ingester interface {
	Ingest(ctx context.Context, tenantID string, upload models.DocumentUpload) (*models.Document, error)
}

// Store is the persistence the admin endpoints need.
type Store interface {
	UpsertTenantPolicy(ctx context.Context, tenantID string, policy *models.TenantPolicy) error
	SetAIPaused(ctx context.Context, tenantID, id string, paused bool, by string) error
	SummarizeUsage(ctx context.Context, tenantID string, days int) (*models.UsageSummary, error)
}

// QuotaReporter reports a tenant's quota status.
type QuotaReporter interface {
	Check(ctx context.Context, tenantID string) (quota.Status, error)
}

// Server is the HTTP server for the kotae API.
type Server struct {
	asker     Asker
	ingester  Ingester
	store     Store
	quota     QuotaReporter
	gatherer  prometheus.Gatherer
	config    *config.ServerConfig
	adminRole string
	logger    *zap.Logger
	server    *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithGatherer exposes the given registry at /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithQuota adds quota status to the usage endpoint.
func WithQuota(q QuotaReporter) Option {
	return func(s *Server) { s.quota = q }
}

// WithAdminRole sets the role required for tenant administration endpoints.
func WithAdminRole(role string) Option {
	return func(s *Server) { s.adminRole = role }
}

// NewServer creates a server with the given dependencies.
func NewServer(asker Asker, ingester Ingester, store Store, cfg *config.ServerConfig, opts ...Option) *Server {
	s := &Server{
		asker:     asker,
		ingester:  ingester,
		store:     store,
		config:    cfg,
		adminRole: "admin",
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = utils.OrNop(s.logger)
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router returns the HTTP handler with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", s.handleHealth)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.requireRequester)
		r.Post("/ask", s.handleAsk)
		r.With(s.requireAdmin).Post("/conversations/{id}/pause", s.handlePause(true))
		r.With(s.requireAdmin).Post("/conversations/{id}/resume", s.handlePause(false))

		r.Route("/tenants/{tenant}", func(r chi.Router) {
			r.Use(s.requireTenantAdmin)
			r.Post("/documents", s.handleIngest)
			r.Put("/policy", s.handlePutPolicy)
			r.Post("/policy/extract", s.handleExtractPolicy)
			r.Get("/usage", s.handleUsage)
		})
	})
	return r
}

// Start starts the HTTP server and blocks until it stops. It returns
// http.ErrServerClosed when Stop ran first.
func (s *Server) Start() error {
	s.logger.Info("Starting server", zap.String("addr", s.server.Addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
