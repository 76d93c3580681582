package adjustments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/JaimeStill/tally/internal/accounts"
	"github.com/JaimeStill/tally/internal/auth"
	"github.com/JaimeStill/tally/internal/events"
	"github.com/JaimeStill/tally/pkg/pagination"
	"github.com/JaimeStill/tally/pkg/query"
	"github.com/JaimeStill/tally/pkg/repository"
)

type pgStore struct {
	db *sql.DB
}

// NewStore returns a PostgreSQL-backed Store.
func NewStore(db *sql.DB) Store {
	return &pgStore{db: db}
}

// stamps names the actor and time columns set when entering a status.
var stamps = map[Status][2]string{
	StatusPending:  {"submitted_by", "submitted_at"},
	StatusApproved: {"approved_by", "approved_at"},
	StatusRejected: {"rejected_by", "rejected_at"},
}

func (s *pgStore) Find(ctx context.Context, scope auth.Scope, id uuid.UUID) (*Adjustment, error) {
	return s.findBy(ctx, scope, "ID", id)
}

func (s *pgStore) FindBySource(ctx context.Context, scope auth.Scope, sourceRefID uuid.UUID) (*Adjustment, error) {
	return s.findBy(ctx, scope, "SourceRefID", sourceRefID)
}

func (s *pgStore) findBy(ctx context.Context, scope auth.Scope, field string, id uuid.UUID) (*Adjustment, error) {
	q, args := query.
		NewBuilder(projection).
		WhereEquals("OrganizationID", scope.TenantID).
		BuildSingle(field, id)

	a, err := repository.WithScope(ctx, s.db, scope.Org(), func(tx *sql.Tx) (Adjustment, error) {
		a, err := repository.QueryOne(ctx, tx, q, args, scanAdjustment)
		if err != nil {
			return a, err
		}
		a.Links, err = links(ctx, tx, a.ID)
		return a, err
	})
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &a, nil
}

func (s *pgStore) List(
	ctx context.Context,
	scope auth.Scope,
	dealID uuid.UUID,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Adjustment], error) {
	qb := query.
		NewBuilder(projection, defaultSort).
		WhereEquals("OrganizationID", scope.TenantID).
		WhereEquals("DealID", dealID).
		WhereSearch(page.Search, "Description", "Rationale")

	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	return repository.ReadScope(ctx, s.db, scope.Org(), func(tx *sql.Tx) (*pagination.PageResult[Adjustment], error) {
		if err := checkDeal(ctx, tx, scope, dealID); err != nil {
			return nil, err
		}

		result, err := repository.Page(ctx, tx, qb, page, scanAdjustment)
		if err != nil {
			return nil, fmt.Errorf("list adjustments: %w", err)
		}
		return result, nil
	})
}

func (s *pgStore) Create(ctx context.Context, scope auth.Scope, a Adjustment, ev *events.Event) (*Adjustment, error) {
	q := `
		INSERT INTO adjustments(
			organization_id, deal_id, status, source, source_ref_id, category,
			description, amount, period_start, period_end, rationale, created_by
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (source_ref_id) WHERE source_ref_id IS NOT NULL DO NOTHING
		RETURNING ` + returning

	created, err := repository.WithScope(ctx, s.db, scope.Org(), func(tx *sql.Tx) (*Adjustment, error) {
		if err := checkDeal(ctx, tx, scope, a.DealID); err != nil {
			return nil, err
		}

		created, err := repository.QueryOne(ctx, tx, q, []any{
			scope.TenantID, a.DealID, StatusDraft, a.Source, a.SourceRefID, a.Category,
			a.Description, a.Amount, timeOf(a.PeriodStart), timeOf(a.PeriodEnd), a.Rationale, a.CreatedBy,
		}, scanAdjustment)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDuplicate
		}
		if err != nil {
			return nil, fmt.Errorf("insert adjustment: %w", err)
		}

		if err := link(ctx, tx, scope, created, a.Links); err != nil {
			return nil, err
		}
		if created.Links, err = links(ctx, tx, created.ID); err != nil {
			return nil, err
		}

		fill(ev, created, "")
		if err := events.Record(ctx, tx, ev); err != nil {
			return nil, err
		}
		return &created, nil
	})
	if err != nil {
		if repository.IsCheckViolation(err) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCategory, err)
		}
		return nil, err
	}
	return created, nil
}

func (s *pgStore) Update(ctx context.Context, scope auth.Scope, a Adjustment, ev *events.Event) (*Adjustment, error) {
	q := `
		UPDATE adjustments
		SET category = $1, description = $2, amount = $3, period_start = $4,
			period_end = $5, rationale = $6, updated_at = $7
		WHERE id = $8 AND organization_id = $9 AND status = 'draft'
		RETURNING ` + returning

	return repository.WithScope(ctx, s.db, scope.Org(), func(tx *sql.Tx) (*Adjustment, error) {
		updated, err := repository.QueryOne(ctx, tx, q, []any{
			a.Category, a.Description, a.Amount, timeOf(a.PeriodStart), timeOf(a.PeriodEnd),
			a.Rationale, time.Now().UTC(), a.ID, scope.TenantID,
		}, scanAdjustment)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, missingOr(ctx, tx, scope, a.ID, ErrNotDraft)
		}
		if err != nil {
			return nil, fmt.Errorf("update adjustment: %w", err)
		}

		if updated.Links, err = links(ctx, tx, updated.ID); err != nil {
			return nil, err
		}

		fill(ev, updated, updated.Status)
		if err := events.Record(ctx, tx, ev); err != nil {
			return nil, err
		}
		return &updated, nil
	})
}

func (s *pgStore) Link(ctx context.Context, scope auth.Scope, id uuid.UUID, txIDs []uuid.UUID, ev *events.Event) (*Adjustment, error) {
	return s.editLinks(ctx, scope, id, ev, func(tx *sql.Tx, a Adjustment) error {
		return link(ctx, tx, scope, a, txIDs)
	})
}

func (s *pgStore) Unlink(ctx context.Context, scope auth.Scope, id, txID uuid.UUID, ev *events.Event) (*Adjustment, error) {
	return s.editLinks(ctx, scope, id, ev, func(tx *sql.Tx, a Adjustment) error {
		_, err := tx.ExecContext(ctx,
			"DELETE FROM adjustment_gl_links WHERE adjustment_id = $1 AND gl_transaction_id = $2",
			a.ID, txID,
		)
		if err != nil {
			return fmt.Errorf("unlink gl transaction: %w", err)
		}
		return nil
	})
}

// editLinks locks a draft, applies edit, and records ev.
func (s *pgStore) editLinks(
	ctx context.Context,
	scope auth.Scope,
	id uuid.UUID,
	ev *events.Event,
	edit func(tx *sql.Tx, a Adjustment) error,
) (*Adjustment, error) {
	lockQ := `SELECT ` + returning + ` FROM adjustments WHERE id = $1 AND organization_id = $2 FOR UPDATE`

	return repository.WithScope(ctx, s.db, scope.Org(), func(tx *sql.Tx) (*Adjustment, error) {
		a, err := repository.QueryOne(ctx, tx, lockQ, []any{id, scope.TenantID}, scanAdjustment)
		if err != nil {
			return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
		}
		if a.Status != StatusDraft {
			return nil, fmt.Errorf("%w: status is %s", ErrNotDraft, a.Status)
		}

		if err := edit(tx, a); err != nil {
			return nil, err
		}
		if a.Links, err = links(ctx, tx, a.ID); err != nil {
			return nil, err
		}

		fill(ev, a, a.Status)
		if err := events.Record(ctx, tx, ev); err != nil {
			return nil, err
		}
		return &a, nil
	})
}

func (s *pgStore) Apply(ctx context.Context, scope auth.Scope, c Change, ev *events.Event) (*Adjustment, error) {
	cols, ok := stamps[c.To]
	if !ok {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, c.From, c.To)
	}

	q := fmt.Sprintf(`
		UPDATE adjustments
		SET status = $1, %s = $2, %s = $3, updated_at = $3,
			approval_notes = COALESCE($4, approval_notes)
		WHERE id = $5 AND organization_id = $6 AND status = $7
		RETURNING %s`, cols[0], cols[1], returning)

	return repository.WithScope(ctx, s.db, scope.Org(), func(tx *sql.Tx) (*Adjustment, error) {
		a, err := repository.QueryOne(ctx, tx, q, []any{
			c.To, scope.ActorID, time.Now().UTC(), c.Notes, c.ID, scope.TenantID, c.From,
		}, scanAdjustment)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, missingOr(ctx, tx, scope, c.ID, ErrStaleStatus)
		}
		if err != nil {
			return nil, fmt.Errorf("transition adjustment: %w", err)
		}

		if a.Links, err = links(ctx, tx, a.ID); err != nil {
			return nil, err
		}

		fill(ev, a, c.From)
		if err := events.Record(ctx, tx, ev); err != nil {
			return nil, err
		}
		return &a, nil
	})
}

func (s *pgStore) BridgeInputs(ctx context.Context, scope auth.Scope, dealID uuid.UUID) (*LedgerTotals, map[Category]decimal.Decimal, error) {
	ledgerQ := `
		SELECT c.category, c.subcategory, c.name, SUM(t.amount)
		FROM gl_transactions t
		JOIN chart_of_accounts c ON c.code = t.mapped_coa_code
		WHERE t.deal_id = $1 AND t.organization_id = $2
		GROUP BY c.code, c.category, c.subcategory, c.name
		ORDER BY c.code`

	unmappedQ := `
		SELECT COUNT(*), COALESCE(SUM(amount), 0)
		FROM gl_transactions
		WHERE deal_id = $1 AND organization_id = $2 AND mapped_coa_code IS NULL`

	approvedQ := `
		SELECT category, SUM(amount)
		FROM adjustments
		WHERE deal_id = $1 AND organization_id = $2 AND status = 'approved'
		GROUP BY category`

	type inputs struct {
		ledger   LedgerTotals
		approved map[Category]decimal.Decimal
	}

	out, err := repository.ReadScope(ctx, s.db, scope.Org(), func(tx *sql.Tx) (inputs, error) {
		if err := checkDeal(ctx, tx, scope, dealID); err != nil {
			return inputs{}, err
		}

		var in inputs
		var err error
		in.ledger.Rows, err = repository.QueryMany(ctx, tx, ledgerQ, []any{dealID, scope.TenantID}, func(sc repository.Scanner) (LedgerTotal, error) {
			var t LedgerTotal
			err := sc.Scan(&t.Category, &t.Subcategory, &t.Name, &t.Amount)
			return t, err
		})
		if err != nil {
			return inputs{}, fmt.Errorf("sum gl by coa: %w", err)
		}

		if err := tx.QueryRowContext(ctx, unmappedQ, dealID, scope.TenantID).Scan(
			&in.ledger.Unmapped, &in.ledger.UnmappedAmount,
		); err != nil {
			return inputs{}, fmt.Errorf("sum unmapped gl: %w", err)
		}

		type total struct {
			category Category
			amount   decimal.Decimal
		}
		totals, err := repository.QueryMany(ctx, tx, approvedQ, []any{dealID, scope.TenantID}, func(sc repository.Scanner) (total, error) {
			var t total
			err := sc.Scan(&t.category, &t.amount)
			return t, err
		})
		if err != nil {
			return inputs{}, fmt.Errorf("sum approved adjustments: %w", err)
		}

		in.approved = make(map[Category]decimal.Decimal, len(totals))
		for _, t := range totals {
			in.approved[t.category] = t.amount
		}
		return in, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &out.ledger, out.approved, nil
}

// link attaches GL transactions of the adjustment's deal. Existing links are
// kept; a transaction outside the deal fails the whole call.
func link(ctx context.Context, tx *sql.Tx, scope auth.Scope, a Adjustment, txIDs []uuid.UUID) error {
	if len(txIDs) == 0 {
		return nil
	}

	ids := make([]string, 0, len(txIDs))
	seen := make(map[uuid.UUID]bool, len(txIDs))
	for _, id := range txIDs {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id.String())
		}
	}

	var found int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM gl_transactions
		 WHERE id = ANY($1::uuid[]) AND deal_id = $2 AND organization_id = $3`,
		ids, a.DealID, scope.TenantID,
	).Scan(&found); err != nil {
		return fmt.Errorf("check gl transactions: %w", err)
	}
	if found != len(ids) {
		return fmt.Errorf("%w: %d of %d not in deal %s", ErrTransactionNotFound, len(ids)-found, len(ids), a.DealID)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO adjustment_gl_links(adjustment_id, gl_transaction_id)
		 SELECT $1, t FROM unnest($2::uuid[]) AS t
		 ON CONFLICT (adjustment_id, gl_transaction_id) DO NOTHING`,
		a.ID, ids,
	); err != nil {
		return fmt.Errorf("link gl transactions: %w", err)
	}
	return nil
}

func links(ctx context.Context, q repository.Querier, id uuid.UUID) ([]uuid.UUID, error) {
	return repository.QueryMany(ctx, q,
		"SELECT gl_transaction_id FROM adjustment_gl_links WHERE adjustment_id = $1 ORDER BY created_at, gl_transaction_id",
		[]any{id},
		func(sc repository.Scanner) (uuid.UUID, error) {
			var id uuid.UUID
			err := sc.Scan(&id)
			return id, err
		},
	)
}

// missingOr distinguishes a missing adjustment from one in the wrong state
// after a conditional update matched no row.
func missingOr(ctx context.Context, tx *sql.Tx, scope auth.Scope, id uuid.UUID, stateErr error) error {
	var one int
	err := tx.QueryRowContext(ctx,
		"SELECT 1 FROM adjustments WHERE id = $1 AND organization_id = $2",
		id, scope.TenantID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return stateErr
}

func checkDeal(ctx context.Context, q repository.Querier, scope auth.Scope, dealID uuid.UUID) error {
	if err := accounts.CheckDeal(ctx, q, scope, dealID); err != nil {
		if errors.Is(err, accounts.ErrDealNotFound) {
			return ErrDealNotFound
		}
		return err
	}
	return nil
}

func fill(ev *events.Event, a Adjustment, from Status) {
	ev.OrganizationID = a.OrganizationID
	ev.DealID = a.DealID
	ev.Entity = events.EntityAdjustment
	ev.EntityID = a.ID
	ev.FromStatus = string(from)
	ev.ToStatus = string(a.Status)
}
