package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"eda/internal/platform/metrics"
	"eda/internal/platform/middleware"
	"eda/pkg/platform/httputil"
)

// HealthChecker reports whether a backend is usable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Routes is anything that mounts its own routes, like the users handler.
type Routes interface {
	Register(r chi.Router)
}

// Config carries what NewRouter wires.
type Config struct {
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	Gatherer       prometheus.Gatherer
	RequestTimeout time.Duration
	Checks         map[string]HealthChecker
	Routes         []Routes
}

// NewRouter builds the public router. /health and /metrics skip the request
// timeout and content-type checks.
func NewRouter(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestID)

	r.Get("/health", healthHandler(cfg.Checks))
	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(api chi.Router) {
		api.Use(middleware.RequestTime)
		api.Use(middleware.Logger(cfg.Logger))
		api.Use(middleware.Timeout(cfg.RequestTimeout))
		api.Use(middleware.ContentTypeJSON)
		if cfg.Metrics != nil {
			api.Use(middleware.LatencyMiddleware(cfg.Metrics))
		}
		for _, routes := range cfg.Routes {
			routes.Register(api)
		}
	})
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]HealthChecker) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(names))}
		status := http.StatusOK
		for _, name := range names {
			if err := checks[name].Health(ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
