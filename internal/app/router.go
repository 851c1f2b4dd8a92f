package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	macroshttp "github.com/Jayes-h/fintech-process-automation-sub001/internal/macros/http"
	mishttp "github.com/Jayes-h/fintech-process-automation-sub001/internal/mis/http"
	"github.com/Jayes-h/fintech-process-automation-sub001/internal/observability"
	skumaphttp "github.com/Jayes-h/fintech-process-automation-sub001/internal/skumap/http"
	"github.com/Jayes-h/fintech-process-automation-sub001/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger        *slog.Logger
	Config        *Config
	MacrosHandler *macroshttp.Handler
	SKUMapHandler *skumaphttp.Handler
	MISHandler    *mishttp.Handler
	JobHandler    *jobs.Handler
	Metrics       *observability.Metrics
}

// NewRouter constructs the chi.Router with the service defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Group(func(r chi.Router) {
		r.Use(UploadLimit(params.Config))
		if params.MacrosHandler != nil {
			params.MacrosHandler.MountRoutes(r)
		}
		if params.MISHandler != nil {
			params.MISHandler.MountRoutes(r)
		}
	})
	if params.SKUMapHandler != nil {
		params.SKUMapHandler.MountRoutes(r)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
