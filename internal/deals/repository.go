package deals

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/JaimeStill/tally/internal/auth"
	"github.com/JaimeStill/tally/internal/events"
	"github.com/JaimeStill/tally/pkg/pagination"
)

// Config tunes deal statistics.
type Config struct {
	// LowConfidence is the confidence below which a mapped transaction
	// counts as low confidence.
	LowConfidence int
}

type repo struct {
	store      Store
	publisher  events.Publisher
	config     Config
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates the deal System. A nil publisher records events without
// streaming them.
func New(store Store, publisher events.Publisher, cfg Config, logger *slog.Logger, pagination pagination.Config) System {
	return &repo{
		store:      store,
		publisher:  publisher,
		config:     cfg,
		logger:     logger.With("system", "deals"),
		pagination: pagination,
	}
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger, r.pagination)
}

func (r *repo) List(ctx context.Context, scope auth.Scope, page pagination.PageRequest) (*pagination.PageResult[Deal], error) {
	page.Normalize(r.pagination)
	return r.store.List(ctx, scope, page)
}

func (r *repo) Find(ctx context.Context, scope auth.Scope, id uuid.UUID) (*Deal, error) {
	return r.store.Find(ctx, scope, id)
}

func (r *repo) Create(ctx context.Context, scope auth.Scope, cmd CreateCommand) (*Deal, error) {
	cmd, err := cmd.Normalize()
	if err != nil {
		return nil, err
	}

	ev := &events.Event{
		Action:  "created",
		ActorID: scope.ActorID,
		Detail:  map[string]any{"name": cmd.Name},
	}

	d, err := r.store.Create(ctx, scope, Deal{
		Name:      cmd.Name,
		Industry:  cmd.Industry,
		Notes:     cmd.Notes,
		CreatedBy: scope.ActorID,
	}, ev)
	if err != nil {
		return nil, err
	}

	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, *ev); err != nil {
			r.logger.Warn("audit events not published", "count", 1, "error", err)
		}
	}

	r.logger.Info("deal created", "id", d.ID, "name", d.Name, "actor", scope.ActorID)
	return d, nil
}

func (r *repo) Stats(ctx context.Context, scope auth.Scope, id uuid.UUID) (*Stats, error) {
	c, err := r.store.Counts(ctx, scope, id, r.config.LowConfidence)
	if err != nil {
		return nil, err
	}
	s := c.Stats(id)
	return &s, nil
}
