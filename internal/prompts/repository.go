package prompts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/JaimeStill/tally/pkg/pagination"
	"github.com/JaimeStill/tally/pkg/query"
	"github.com/JaimeStill/tally/pkg/repository"
)

// resolveTTL bounds how long another instance's activation can go unseen.
const resolveTTL = 30 * time.Second

type repo struct {
	db         *sql.DB
	logger     *slog.Logger
	pagination pagination.Config
	resolved   *cache.Cache
}

// New returns the Postgres-backed prompt registry.
func New(db *sql.DB, logger *slog.Logger, pagination pagination.Config) System {
	return &repo{
		db:         db,
		logger:     logger.With("system", "prompts"),
		pagination: pagination,
		resolved:   cache.New(resolveTTL, 2*resolveTTL),
	}
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger, r.pagination)
}

func (r *repo) List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Prompt], error) {
	page.Normalize(r.pagination)

	qb := query.NewBuilder(projection, defaultSort...).
		WhereSearch(page.Search, "Name", "Description").
		OrderByFields(page.Sort)
	filters.Apply(qb)

	result, err := repository.Page(ctx, r.db, qb, page, scanPrompt)
	if err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}
	return result, nil
}

func (r *repo) Find(ctx context.Context, id uuid.UUID) (*Prompt, error) {
	q, args := query.NewBuilder(projection).BuildSingle("ID", id)
	p, err := repository.QueryOne(ctx, r.db, q, args, scanPrompt)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &p, nil
}

// Resolve returns the active override for stage, or the built-in default
// when none is active. Results are cached per stage.
func (r *repo) Resolve(ctx context.Context, stage Stage) (string, error) {
	if _, err := ParseStage(string(stage)); err != nil {
		return "", err
	}
	if v, ok := r.resolved.Get(string(stage)); ok {
		return v.(string), nil
	}

	var text string
	err := r.db.QueryRowContext(ctx,
		"SELECT instructions FROM prompts WHERE stage = $1 AND active",
		stage,
	).Scan(&text)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		text, err = Instructions(stage)
		if err != nil {
			return "", err
		}
	case err != nil:
		return "", fmt.Errorf("resolve %s instructions: %w", stage, err)
	}

	r.resolved.SetDefault(string(stage), text)
	return text, nil
}

func (r *repo) Create(ctx context.Context, cmd CreateCommand) (*Prompt, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	p, err := r.write(ctx, func(tx *sql.Tx) (Prompt, error) {
		return repository.QueryOne(ctx, tx,
			"INSERT INTO prompts(name, stage, instructions, description) VALUES ($1, $2, $3, $4) RETURNING "+columns,
			[]any{cmd.Name, cmd.Stage, cmd.Instructions, cmd.Description},
			scanPrompt,
		)
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("prompt created", "id", p.ID, "name", p.Name, "stage", p.Stage)
	return &p, nil
}

func (r *repo) Update(ctx context.Context, id uuid.UUID, cmd UpdateCommand) (*Prompt, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	p, err := r.write(ctx, func(tx *sql.Tx) (Prompt, error) {
		return repository.QueryOne(ctx, tx, `
			UPDATE prompts SET
				instructions = COALESCE($2, instructions),
				description = COALESCE($3, description)
			WHERE id = $1
			RETURNING `+columns,
			[]any{id, cmd.Instructions, cmd.Description},
			scanPrompt,
		)
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("prompt updated", "id", p.ID, "stage", p.Stage, "active", p.Active)
	return &p, nil
}

func (r *repo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.write(ctx, func(tx *sql.Tx) (Prompt, error) {
		return Prompt{}, repository.ExecExpectOne(ctx, tx, "DELETE FROM prompts WHERE id = $1", id)
	})
	if err != nil {
		return err
	}

	r.logger.Info("prompt deleted", "id", id)
	return nil
}

func (r *repo) Activate(ctx context.Context, id uuid.UUID) (*Prompt, error) {
	p, err := r.write(ctx, func(tx *sql.Tx) (Prompt, error) {
		// Clear the stage first; the partial unique index allows one active row.
		if _, err := tx.ExecContext(ctx, `
			UPDATE prompts SET active = false
			WHERE active AND id <> $1
			  AND stage = (SELECT stage FROM prompts WHERE id = $1)`,
			id,
		); err != nil {
			return Prompt{}, fmt.Errorf("clear active prompt: %w", err)
		}

		return repository.QueryOne(ctx, tx,
			"UPDATE prompts SET active = true WHERE id = $1 RETURNING "+columns,
			[]any{id},
			scanPrompt,
		)
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("prompt activated", "id", p.ID, "name", p.Name, "stage", p.Stage)
	return &p, nil
}

func (r *repo) Deactivate(ctx context.Context, id uuid.UUID) (*Prompt, error) {
	p, err := r.write(ctx, func(tx *sql.Tx) (Prompt, error) {
		return repository.QueryOne(ctx, tx,
			"UPDATE prompts SET active = false WHERE id = $1 RETURNING "+columns,
			[]any{id},
			scanPrompt,
		)
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("prompt deactivated", "id", p.ID, "name", p.Name, "stage", p.Stage)
	return &p, nil
}

// write runs fn in a transaction, maps store errors to domain errors, and
// drops cached resolutions once the change is committed.
func (r *repo) write(ctx context.Context, fn func(tx *sql.Tx) (Prompt, error)) (Prompt, error) {
	p, err := repository.WithTx(ctx, r.db, fn)
	if err != nil {
		return Prompt{}, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	r.resolved.Flush()
	return p, nil
}
