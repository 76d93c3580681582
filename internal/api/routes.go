package api

import (
	"log/slog"
	"net/http"

	"github.com/JaimeStill/tally/internal/metrics"
	"github.com/JaimeStill/tally/pkg/routes"
)

func registerRoutes(mux *http.ServeMux, domain *Domain, m *metrics.Metrics, logger *slog.Logger) {
	groups := []routes.Group{
		domain.Deals.Handler().Routes(),
		domain.Chart.Handler().Routes(),
		domain.Golden.Handler().Routes(),
		domain.Prompts.Handler().Routes(),
		domain.Accounts.Handler().Routes(),
		domain.Ledger.Handler().Routes(),
		domain.Mappings.Handler().Routes(),
		domain.Anomalies.Handler().Routes(),
		domain.Adjustments.Handler().Routes(),
		domain.Audit.Handler().Routes(),
	}

	routes.Register(mux, m.Route, groups...)
	logger.Debug("routes registered", "routes", routes.Paths(groups...))
}
