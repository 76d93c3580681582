// Package infrastructure provides core service initialization for application startup.
// It assembles common dependencies (logging, database, metrics, external
// providers, audit stream) that domain systems require.
package infrastructure

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/JaimeStill/tally/internal/config"
	"github.com/JaimeStill/tally/internal/events"
	"github.com/JaimeStill/tally/internal/metrics"
	"github.com/JaimeStill/tally/internal/providers"
	"github.com/JaimeStill/tally/pkg/database"
	"github.com/JaimeStill/tally/pkg/lifecycle"
)

// Infrastructure holds the core systems required by all domain modules.
// It provides a single point of initialization for lifecycle coordination,
// logging, database access, instrumentation, and external services.
type Infrastructure struct {
	Lifecycle *lifecycle.Coordinator
	Logger    *slog.Logger
	Database  database.System
	Registry  *prometheus.Registry
	Metrics   *metrics.Metrics
	Providers *providers.Set
	Events    events.Publisher
}

// New creates an Infrastructure from the application configuration.
// It initializes all systems but does not start them; call Start separately.
func New(cfg *config.Config) (*Infrastructure, error) {
	lc := lifecycle.New()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	db, err := database.New(&cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("database init failed: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m, err := metrics.New(cfg.Metrics.Namespace, registry)
	if err != nil {
		return nil, fmt.Errorf("metrics init failed: %w", err)
	}

	set, err := providers.New(lc.Context(), &cfg.Providers, m, logger)
	if err != nil {
		return nil, fmt.Errorf("providers init failed: %w", err)
	}

	return &Infrastructure{
		Lifecycle: lc,
		Logger:    logger,
		Database:  db,
		Registry:  registry,
		Metrics:   m,
		Providers: set,
		Events:    events.New(&cfg.Events, logger),
	}, nil
}

// Start registers all infrastructure systems with the lifecycle coordinator.
// The database joins startup and shutdown; the database and the event stream
// close only after drain hooks have finished.
func (i *Infrastructure) Start() error {
	if err := i.Database.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("database start failed: %w", err)
	}

	i.Lifecycle.OnShutdown("event stream", func() {
		<-i.Lifecycle.Drained()
		if err := i.Events.Close(); err != nil {
			i.Logger.Error("event stream close failed", "error", err)
			return
		}
		i.Logger.Info("event stream closed")
	})

	return nil
}
