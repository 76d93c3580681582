package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JaimeStill/tally/internal/config"
	"github.com/JaimeStill/tally/internal/infrastructure"
	"github.com/JaimeStill/tally/pkg/handlers"
	"github.com/JaimeStill/tally/pkg/lifecycle"
	"github.com/JaimeStill/tally/pkg/module"
)

// buildRouter registers the native operational endpoints. Domain modules are
// mounted by the caller.
func buildRouter(infra *infrastructure.Infrastructure, cfg *config.Config) *module.Router {
	router := module.NewRouter()

	router.HandleNative("GET /healthz", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlers.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": cfg.Version})
	}))

	router.HandleNative("GET /readyz", readiness(map[string]lifecycle.ReadinessChecker{
		"lifecycle": infra.Lifecycle,
		"database":  infra.Database,
	}))

	router.HandleNative(
		"GET "+cfg.Metrics.Path,
		promhttp.HandlerFor(infra.Registry, promhttp.HandlerOpts{Registry: infra.Registry}),
	)

	return router
}

// readiness reports 503 with the names of unready subsystems until every
// checker is ready.
func readiness(checks map[string]lifecycle.ReadinessChecker) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := make(map[string]bool, len(checks))
		ready := true
		for name, c := range checks {
			status[name] = c.Ready()
			ready = ready && status[name]
		}

		code := http.StatusOK
		if !ready {
			code = http.StatusServiceUnavailable
		}
		handlers.RespondJSON(w, code, map[string]any{"ready": ready, "checks": status})
	})
}
