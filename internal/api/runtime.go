package api

import (
	"time"

	"github.com/JaimeStill/tally/internal/config"
	"github.com/JaimeStill/tally/internal/infrastructure"
	"github.com/JaimeStill/tally/pkg/pagination"
)

// Runtime extends Infrastructure with API-specific configuration.
type Runtime struct {
	*infrastructure.Infrastructure
	Pagination    pagination.Config
	Engine        config.EngineConfig
	MaxBatchSize  int
	ReasonTimeout time.Duration

	// BackgroundEmbedding starts the embedding queue. Short-lived callers
	// that embed synchronously turn it off.
	BackgroundEmbedding bool
}

// NewRuntime creates an API runtime with a module-scoped logger.
func NewRuntime(cfg *config.Config, infra *infrastructure.Infrastructure) *Runtime {
	scoped := *infra
	scoped.Logger = infra.Logger.With("module", "api")

	return &Runtime{
		Infrastructure: &scoped,
		Pagination:     cfg.API.Pagination,
		Engine:         cfg.Engine,
		MaxBatchSize:   cfg.API.MaxBatchSize,
		ReasonTimeout:  cfg.Providers.TimeoutDuration(),

		BackgroundEmbedding: true,
	}
}
