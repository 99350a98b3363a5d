// Package server exposes the discovery pipeline and the prospect store
// over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/drmonteiro/brands-ai/internal/cache"
	"github.com/drmonteiro/brands-ai/internal/config"
	"github.com/drmonteiro/brands-ai/internal/model"
	"github.com/drmonteiro/brands-ai/internal/monitoring"
	"github.com/drmonteiro/brands-ai/internal/pipeline"
	"github.com/drmonteiro/brands-ai/internal/query"
	"github.com/drmonteiro/brands-ai/internal/store"
	"github.com/drmonteiro/brands-ai/internal/stream"
)

// Pipeline starts and resumes discovery runs.
type Pipeline interface {
	Start(ctx context.Context, city string, opts pipeline.StartOptions) (*stream.Stream, error)
	Resume(ctx context.Context, req pipeline.ResumeRequest) (*stream.Stream, error)
}

// Notifier sends an outreach email for one brand.
type Notifier interface {
	Notify(ctx context.Context, lead model.BrandLead, source model.EmailSource) error
}

// RunLister lists pipeline runs.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.PipelineRun, error)
}

// StatsCollector produces the monitoring snapshot.
type StatsCollector interface {
	Collect(ctx context.Context, lookbackHours int) (*monitoring.MetricsSnapshot, error)
}

// Deps are the collaborators behind the routes. Notifier, Stats and
// Gatherer may be nil; their routes then answer 503 or are not mounted.
type Deps struct {
	Pipeline      Pipeline
	Query         *query.Service
	Notifier      Notifier
	Runs          RunLister
	Stats         StatsCollector
	Cache         cache.Cache
	Gatherer      prometheus.Gatherer
	LookbackHours int
}

// Server is the HTTP API.
type Server struct {
	cfg      config.ServerConfig
	deps     Deps
	validate *validator.Validate
	router   chi.Router
}

// New builds the server and its routes.
func New(cfg config.ServerConfig, deps Deps) *Server {
	if deps.LookbackHours <= 0 {
		deps.LookbackHours = 24
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	s := &Server{cfg: cfg, deps: deps, validate: v}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger, middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(s.cfg.AllowedOrigins),
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	if s.deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/prospect", s.handleStart)
		r.Post("/prospect/resume", s.handleResume)
		r.Post("/approve-email", s.handleApproveEmail)

		r.Route("/prospects", func(r chi.Router) {
			r.Get("/", s.handleListProspects)
			r.Post("/suppress", s.handleSuppress)
			r.Get("/filters/options", s.handleFilterOptions)
			r.Get("/{id}", s.handleGetProspect)
			r.Patch("/{id}/status", s.handleUpdateStatus)
			r.Delete("/{id}", s.handleDeleteProspect)
		})

		r.Get("/cities", s.handleCities)
		r.Get("/cities/{city}/stats", s.handleCityStats)

		r.Get("/runs", s.handleListRuns)
		r.Get("/stats", s.handleStats)
		r.Delete("/cache/{city}", s.handleInvalidateCache)
	})
	return r
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zap.L().Warn("server shutdown", zap.Error(err))
		}
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server listen")
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
