package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/JaimeStill/tally/internal/auth"
	"github.com/JaimeStill/tally/pkg/pagination"
	"github.com/JaimeStill/tally/pkg/query"
	"github.com/JaimeStill/tally/pkg/repository"
)

const lineColumns = `id, period_id, line_name, line_category, amount, display_order,
	is_subtotal, mapped_coa_code, gl_derived_amount, variance`

type repo struct {
	db         *sql.DB
	maxBatch   int
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates the ledger System. maxBatch bounds the rows accepted per
// ingest call; zero means unbounded.
func New(db *sql.DB, maxBatch int, logger *slog.Logger, pagination pagination.Config) System {
	return &repo{
		db:         db,
		maxBatch:   maxBatch,
		logger:     logger.With("system", "ledger"),
		pagination: pagination,
	}
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger, r.pagination)
}

func (r *repo) IngestTransactions(
	ctx context.Context,
	scope auth.Scope,
	dealID uuid.UUID,
	rows []TransactionInput,
) (*IngestResult, error) {
	if err := ValidateTransactions(rows, r.maxBatch); err != nil {
		return nil, err
	}

	q := `
		INSERT INTO gl_transactions(
			organization_id, deal_id, txn_date, account_name, description, vendor, amount
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	inserted, err := repository.WithScope(ctx, r.db, scope.Org(), func(tx *sql.Tx) (int, error) {
		if err := checkDeal(ctx, tx, scope, dealID); err != nil {
			return 0, err
		}

		stmt, err := tx.PrepareContext(ctx, q)
		if err != nil {
			return 0, fmt.Errorf("prepare gl insert: %w", err)
		}
		defer stmt.Close()

		for i, row := range rows {
			if _, err := stmt.ExecContext(
				ctx,
				scope.TenantID, dealID, row.TxnDate.Time,
				row.AccountName, row.Description, row.Vendor, row.Amount,
			); err != nil {
				return 0, fmt.Errorf("insert gl row %d: %w", i, err)
			}
		}
		return len(rows), nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("gl transactions ingested", "deal_id", dealID, "rows", inserted)
	return &IngestResult{DealID: dealID, Inserted: inserted}, nil
}

func (r *repo) IngestPeriod(ctx context.Context, scope auth.Scope, dealID uuid.UUID, input PeriodInput) (*Period, error) {
	if err := input.Validate(r.maxBatch); err != nil {
		return nil, err
	}

	periodQ := `
		INSERT INTO pl_periods(organization_id, deal_id, period_start, period_end)
		VALUES ($1, $2, $3, $4)
		RETURNING id, organization_id, deal_id, period_start, period_end`

	lineQ := `
		INSERT INTO pl_line_items(
			period_id, organization_id, deal_id, line_name, line_category,
			amount, display_order, is_subtotal, mapped_coa_code
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + lineColumns

	period, err := repository.WithScope(ctx, r.db, scope.Org(), func(tx *sql.Tx) (Period, error) {
		if err := checkDeal(ctx, tx, scope, dealID); err != nil {
			return Period{}, err
		}

		p, err := repository.QueryOne(ctx, tx, periodQ, []any{
			scope.TenantID, dealID, input.PeriodStart.Time, input.PeriodEnd.Time,
		}, scanPeriod)
		if err != nil {
			return Period{}, repository.MapError(err, ErrDealNotFound, ErrPeriodExists)
		}

		p.Lines = make([]LineItem, 0, len(input.Lines))
		for i, l := range input.Lines {
			item, err := repository.QueryOne(ctx, tx, lineQ, []any{
				p.ID, scope.TenantID, dealID, l.LineName, l.LineCategory,
				l.Amount, l.DisplayOrder, l.IsSubtotal, l.MappedCOACode,
			}, scanLineItem)
			if err != nil {
				return Period{}, fmt.Errorf("insert line %d: %w", i, err)
			}
			p.Lines = append(p.Lines, item)
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info(
		"pl period ingested",
		"deal_id", dealID,
		"period_start", input.PeriodStart.Format("2006-01-02"),
		"lines", len(period.Lines),
	)
	return &period, nil
}

func (r *repo) ListTransactions(
	ctx context.Context,
	scope auth.Scope,
	dealID uuid.UUID,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Transaction], error) {
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(projection, defaultSort).
		WhereEquals("OrganizationID", scope.TenantID).
		WhereEquals("DealID", dealID).
		WhereSearch(page.Search, "AccountName", "Description", "Vendor")

	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	return repository.ReadScope(ctx, r.db, scope.Org(), func(tx *sql.Tx) (*pagination.PageResult[Transaction], error) {
		if err := checkDeal(ctx, tx, scope, dealID); err != nil {
			return nil, err
		}

		result, err := repository.Page(ctx, tx, qb, page, scanTransaction)
		if err != nil {
			return nil, fmt.Errorf("list gl transactions: %w", err)
		}
		return result, nil
	})
}

func (r *repo) ListPeriods(ctx context.Context, scope auth.Scope, dealID uuid.UUID) ([]Period, error) {
	periodsQ := `
		SELECT id, organization_id, deal_id, period_start, period_end
		FROM pl_periods
		WHERE deal_id = $1 AND organization_id = $2
		ORDER BY period_start`

	linesQ := `
		SELECT ` + lineColumns + `
		FROM pl_line_items
		WHERE deal_id = $1 AND organization_id = $2
		ORDER BY display_order, line_name`

	return repository.WithScope(ctx, r.db, scope.Org(), func(tx *sql.Tx) ([]Period, error) {
		if err := checkDeal(ctx, tx, scope, dealID); err != nil {
			return nil, err
		}

		periods, err := repository.QueryMany(ctx, tx, periodsQ, []any{dealID, scope.TenantID}, scanPeriod)
		if err != nil {
			return nil, fmt.Errorf("query pl periods: %w", err)
		}

		lines, err := repository.QueryMany(ctx, tx, linesQ, []any{dealID, scope.TenantID}, scanLineItem)
		if err != nil {
			return nil, fmt.Errorf("query pl line items: %w", err)
		}

		return attachLines(periods, lines), nil
	})
}

func attachLines(periods []Period, lines []LineItem) []Period {
	index := make(map[uuid.UUID]int, len(periods))
	for i := range periods {
		index[periods[i].ID] = i
		periods[i].Lines = make([]LineItem, 0)
	}
	for _, l := range lines {
		if i, ok := index[l.PeriodID]; ok {
			periods[i].Lines = append(periods[i].Lines, l)
		}
	}
	return periods
}

func checkDeal(ctx context.Context, q repository.Querier, scope auth.Scope, dealID uuid.UUID) error {
	var one int
	err := q.QueryRowContext(
		ctx,
		"SELECT 1 FROM deals WHERE id = $1 AND organization_id = $2",
		dealID, scope.TenantID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrDealNotFound
	}
	return err
}
