package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/worldmind/pipeline/internal/api/middleware"
	"github.com/worldmind/pipeline/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	SubmitJob   http.HandlerFunc
	GetJob      http.HandlerFunc
	ListJobs    http.HandlerFunc
	CleanupJobs http.HandlerFunc

	CreateSource http.HandlerFunc
	ListSources  http.HandlerFunc
	GetSource    http.HandlerFunc

	CreateDataset http.HandlerFunc
	ListDatasets  http.HandlerFunc
	GetDataset    http.HandlerFunc

	OracleStatus http.HandlerFunc
	CreateSignal http.HandlerFunc
	ListSignals  http.HandlerFunc
	GetSignal    http.HandlerFunc
	RetrySignal  http.HandlerFunc
	OracleStats  http.HandlerFunc

	CreateKey http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Post("/api/v1/jobs", orNotImplemented(deps.SubmitJob))
		r.Get("/api/v1/jobs", orNotImplemented(deps.ListJobs))
		r.Get("/api/v1/jobs/{jobID}", orNotImplemented(deps.GetJob))

		r.Post("/api/v1/sources", orNotImplemented(deps.CreateSource))
		r.Get("/api/v1/sources", orNotImplemented(deps.ListSources))
		r.Get("/api/v1/sources/{sourceID}", orNotImplemented(deps.GetSource))

		r.Post("/api/v1/datasets", orNotImplemented(deps.CreateDataset))
		r.Get("/api/v1/datasets", orNotImplemented(deps.ListDatasets))
		r.Get("/api/v1/datasets/{datasetID}", orNotImplemented(deps.GetDataset))

		r.Get("/api/v1/oracle/status", orNotImplemented(deps.OracleStatus))
		r.Post("/api/v1/oracle/signals", orNotImplemented(deps.CreateSignal))
		r.Get("/api/v1/oracle/signals", orNotImplemented(deps.ListSignals))
		r.Get("/api/v1/oracle/signals/{signalID}", orNotImplemented(deps.GetSignal))
		r.Post("/api/v1/oracle/signals/{signalID}/retry", orNotImplemented(deps.RetrySignal))
		r.Get("/api/v1/oracle/stats", orNotImplemented(deps.OracleStats))

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope("admin"))

			r.Post("/api/v1/jobs/cleanup", orNotImplemented(deps.CleanupJobs))
			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKey))
		})
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
