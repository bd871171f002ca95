// Package httpapi is the HTTP Surface: a chi router exposing the
// repository engine's read and mutating operations, plus health and
// Prometheus metrics endpoints.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DSLitvinov/difference-engine/internal/metrics"
	"github.com/DSLitvinov/difference-engine/internal/repo"
)

// Server holds the dependencies every handler needs.
type Server struct {
	engine  *repo.Engine
	metrics *metrics.Metrics
}

// NewServer wires engine and an optional metrics bundle (nil disables
// metrics recording) into a Server.
func NewServer(engine *repo.Engine, m *metrics.Metrics) *Server {
	return &Server{engine: engine, metrics: m}
}

// NewRouter builds the chi router exposing every endpoint of the
// repository engine's HTTP Surface. rateLimiter may be nil to disable
// per-mesh rate limiting on mutating routes.
func (s *Server) NewRouter(rateLimiter *MeshRateLimiter) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))
	r.Use(cors)
	if s.metrics != nil {
		r.Use(metricsMiddleware(s.metrics))
	}

	r.Get("/health", s.handleHealth)
	r.Post("/rescan", s.handleRescan)
	r.Get("/forest", s.handleForest)

	if s.metrics != nil {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/mesh/{mesh}", func(mr chi.Router) {
		mr.Get("/", s.handleGetMesh)
		mr.Get("/branches", s.handleGetBranches)
		mr.Get("/branch/{branch}/commits", s.handleGetCommits)

		mr.Group(func(gr chi.Router) {
			if rateLimiter != nil {
				gr.Use(rateLimiter.Middleware)
			}
			gr.Post("/correct", s.handleSetCorrect)
			gr.Post("/branch", s.handleCreateBranch)
			gr.Delete("/branch/{branch}", s.handleDeleteBranch)
			gr.Post("/commit", s.handleCreateCommit)
			gr.Delete("/branch/{branch}/commit/{commit_id}", s.handleDeleteCommit)
		})
	})

	return r
}
