package chart

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/JaimeStill/tally/pkg/pagination"
	"github.com/JaimeStill/tally/pkg/query"
	"github.com/JaimeStill/tally/pkg/repository"
)

type repo struct {
	db         *sql.DB
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates a chart repository implementing the System interface.
func New(db *sql.DB, logger *slog.Logger, pagination pagination.Config) System {
	return &repo{
		db:         db,
		logger:     logger.With("system", "chart"),
		pagination: pagination,
	}
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger, r.pagination)
}

func (r *repo) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Account], error) {
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(projection, defaultSort).
		WhereSearch(page.Search, "Code", "Name")

	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	result, err := repository.Page(ctx, r.db, qb, page, scanAccount)
	if err != nil {
		return nil, fmt.Errorf("list chart of accounts: %w", err)
	}
	return result, nil
}

func (r *repo) Find(ctx context.Context, code string) (*Account, error) {
	q, args := query.NewBuilder(projection).BuildSingle("Code", code)

	a, err := repository.QueryOne(ctx, r.db, q, args, scanAccount)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, err)
	}
	return &a, nil
}
