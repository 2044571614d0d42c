package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	mw "github.com/kiranshivaraju/sitegen/internal/api/middleware"
	"github.com/kiranshivaraju/sitegen/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	RateLimit *mw.RateLimit

	HealthHandler   http.HandlerFunc
	CreateJob       http.HandlerFunc
	UpdateProgress  http.HandlerFunc
	CompleteJob     http.HandlerFunc
	RefineEstimate  http.HandlerFunc
	JobStatus       http.HandlerFunc
	JobHistory      http.HandlerFunc
	JobMetrics      http.HandlerFunc
	DemoHandler     http.HandlerFunc
	DemoCancel      http.HandlerFunc
	WebSocket       http.Handler
	MetricsExporter http.Handler
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(mw.PeerAddr)
	r.Use(chimw.RealIP)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	if deps.MetricsExporter != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsExporter)
	}
	if deps.WebSocket != nil {
		r.Method(http.MethodGet, "/api/v1/ws", deps.WebSocket)
	} else {
		r.Get("/api/v1/ws", orNotImplemented(nil))
	}

	// Producer routes
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimit.Limit)

		r.Post("/api/v1/jobs", orNotImplemented(deps.CreateJob))
		r.Get("/api/v1/jobs/{jobID}", orNotImplemented(deps.JobStatus))
		r.Post("/api/v1/jobs/{jobID}/progress", orNotImplemented(deps.UpdateProgress))
		r.Post("/api/v1/jobs/{jobID}/complete", orNotImplemented(deps.CompleteJob))
		r.Post("/api/v1/jobs/{jobID}/estimate", orNotImplemented(deps.RefineEstimate))
		r.Get("/api/v1/jobs/{jobID}/history", orNotImplemented(deps.JobHistory))
		r.Get("/api/v1/jobs/{jobID}/metrics", orNotImplemented(deps.JobMetrics))

		r.Post("/api/v1/demo", orNotImplemented(deps.DemoHandler))
		r.Post("/api/v1/demo/{jobID}/cancel", orNotImplemented(deps.DemoCancel))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
