// Package api serves the LTI tool over HTTP: the launch endpoint, the
// student Q&A API, instructor material management and the MCP tool server.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/borisletic/lti-qa-tool/internal/metrics"
	"github.com/borisletic/lti-qa-tool/internal/qa"
	"github.com/borisletic/lti-qa-tool/internal/storage"
)

// Deps holds the dependencies of the HTTP handler.
type Deps struct {
	Registry   *qa.Registry
	Store      *storage.Store
	Metrics    *metrics.Metrics
	Sessions   *Sessions // optional; a fresh table is created when nil
	AdminToken string    // bearer token for instructor routes; empty disables token access
	UploadDir  string    // staging directory for uploaded materials
}

// NewHandler returns the router for the whole HTTP surface.
func NewHandler(deps Deps) http.Handler {
	if deps.Sessions == nil {
		deps.Sessions = NewSessions(0)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(observeRequests(deps.Metrics))
	r.Use(withSession(deps.Sessions))

	r.Get("/health", handleHealth)
	r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	r.Post("/launch", handleLaunch(deps))

	r.Route("/api", func(r chi.Router) {
		r.Post("/ask", handleAsk(deps))
		r.Post("/feedback", handleFeedback(deps))
		r.Get("/similar", handleSimilar(deps))
		r.Get("/stats", handleStats(deps))
		r.Get("/graph/stats", handleGraphStats(deps))

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireInstructor(deps.AdminToken))
			r.Post("/materials", handleUploadMaterials(deps))
			r.Get("/materials", handleListMaterials(deps))
			r.Delete("/materials/{course}/{filename}", handleDeleteMaterial(deps))
			r.Get("/jobs", handleListJobs(deps))
			r.Post("/jobs/{id}/retry", handleRetryJob(deps))
			r.Get("/graph/export", handleGraphExport(deps))
			r.Get("/graph/match", handleGraphMatch(deps))
		})
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"service":   "LTI Q&A Tool",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// observeRequests counts requests by route pattern and status code.
func observeRequests(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.ObserveRequest(route, status)
		})
	}
}
