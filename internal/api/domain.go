package api

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/JaimeStill/tally/internal/accounts"
	"github.com/JaimeStill/tally/internal/adjustments"
	"github.com/JaimeStill/tally/internal/anomalies"
	"github.com/JaimeStill/tally/internal/audit"
	"github.com/JaimeStill/tally/internal/auth"
	"github.com/JaimeStill/tally/internal/chart"
	"github.com/JaimeStill/tally/internal/deals"
	"github.com/JaimeStill/tally/internal/golden"
	"github.com/JaimeStill/tally/internal/ledger"
	"github.com/JaimeStill/tally/internal/mappings"
	"github.com/JaimeStill/tally/internal/prompts"
)

const embeddingBuffer = 1024

// Domain holds all domain systems that comprise the API.
type Domain struct {
	Deals       deals.System
	Chart       chart.System
	Golden      golden.System
	Prompts     prompts.System
	Accounts    accounts.System
	Ledger      ledger.System
	Mappings    mappings.System
	Anomalies   anomalies.System
	Adjustments adjustments.System
	Audit       audit.System

	// EmbeddingQueue is nil when the runtime disables background embedding.
	EmbeddingQueue *accounts.Queue
}

// NewDomain creates all domain systems from the API runtime. The background
// embedding queue, when enabled, is drained before the database closes.
func NewDomain(runtime *Runtime) *Domain {
	db := runtime.Database.Connection()
	engine := runtime.Engine
	lc := runtime.Lifecycle

	dealsSystem := deals.New(
		deals.NewStore(db),
		runtime.Events,
		deals.Config{LowConfidence: engine.Audit.LowConfidence},
		runtime.Logger,
		runtime.Pagination,
	)
	chartSystem := chart.New(db, runtime.Logger, runtime.Pagination)
	promptsSystem := prompts.New(db, runtime.Logger, runtime.Pagination)
	ledgerSystem := ledger.New(db, runtime.MaxBatchSize, runtime.Logger, runtime.Pagination)

	goldenSystem := golden.New(
		golden.NewStore(db),
		runtime.Providers.Embedder,
		golden.Config{
			DedupSimilarity: engine.Classifier.DedupSimilarity,
			CorpusTTL:       engine.Classifier.CorpusTTLDuration(),
			Workers:         engine.Classifier.Workers,
		},
		runtime.Logger,
		runtime.Pagination,
	)

	var queue *accounts.Queue
	var enqueuer accounts.EmbeddingQueue
	if runtime.BackgroundEmbedding {
		queue = accounts.NewQueue(engine.Classifier.Workers, embeddingBuffer, runtime.Logger)
		enqueuer = queue
	}

	accountsSystem := accounts.New(
		accounts.NewStore(db),
		runtime.Providers.Embedder,
		enqueuer,
		engine.Classifier.Workers,
		runtime.Metrics,
		runtime.Logger,
		runtime.Pagination,
	)

	if queue != nil {
		queue.Start(lc.Context(), func(ctx context.Context, scope auth.Scope, id uuid.UUID) error {
			_, err := accountsSystem.Embed(ctx, scope, id)
			return err
		})
		lc.OnDrain("embedding queue", queue.Close)
	}

	mappingsSystem := mappings.New(
		mappings.NewStore(db),
		mappings.Runtime{
			Accounts:  accountsSystem,
			Golden:    goldenSystem,
			Chart:     chartSystem,
			Prompts:   promptsSystem,
			Reasoner:  runtime.Providers.Reasoner,
			Publisher: runtime.Events,
			Metrics:   runtime.Metrics,
			Logger:    runtime.Logger,
		},
		mappings.Config{
			Policy: mappings.Policy{
				HighSimilarity: engine.Classifier.HighSimilarity,
				MinSimilarity:  engine.Classifier.MinSimilarity,
				GreenThreshold: engine.Classifier.GreenThreshold,
			},
			TopK:          engine.Classifier.TopK,
			Workers:       engine.Classifier.Workers,
			ReasonTimeout: runtime.ReasonTimeout,
		},
		runtime.Pagination,
	)

	anomaliesSystem := anomalies.New(
		anomalies.NewStore(db),
		anomalies.Runtime{
			Prompts:   promptsSystem,
			Reasoner:  runtime.Providers.Reasoner,
			Publisher: runtime.Events,
			Metrics:   runtime.Metrics,
			Logger:    runtime.Logger,
		},
		anomalies.Policy{
			Window:            engine.Anomaly.Window,
			MinHistory:        engine.Anomaly.MinHistory,
			AddbackCategories: engine.Anomaly.AddbackCategories,
		},
		runtime.ReasonTimeout,
		runtime.Pagination,
	)

	adjustmentsSystem := adjustments.New(
		adjustments.NewStore(db),
		adjustments.Runtime{
			Anomalies: anomaliesSystem,
			Publisher: runtime.Events,
			Metrics:   runtime.Metrics,
			Logger:    runtime.Logger,
		},
		runtime.Pagination,
	)

	auditSystem := audit.New(
		audit.NewStore(db),
		audit.Runtime{
			Prompts:   promptsSystem,
			Reasoner:  runtime.Providers.Reasoner,
			Publisher: runtime.Events,
			Metrics:   runtime.Metrics,
			Logger:    runtime.Logger,
		},
		audit.Config{
			Policy: audit.Policy{
				CapexThreshold: decimal.NewFromFloat(engine.Audit.CapexThreshold),
				CapexAccounts:  engine.Audit.CapexAccounts,
				LowConfidence:  engine.Audit.LowConfidence,
			},
			Workers:       engine.Classifier.Workers,
			ReasonTimeout: runtime.ReasonTimeout,
		},
		runtime.Pagination,
	)

	return &Domain{
		Deals:       dealsSystem,
		Chart:       chartSystem,
		Golden:      goldenSystem,
		Prompts:     promptsSystem,
		Accounts:    accountsSystem,
		Ledger:      ledgerSystem,
		Mappings:    mappingsSystem,
		Anomalies:   anomaliesSystem,
		Adjustments: adjustmentsSystem,
		Audit:       auditSystem,

		EmbeddingQueue: queue,
	}
}
