package deals

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

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

func (s *pgStore) List(ctx context.Context, scope auth.Scope, page pagination.PageRequest) (*pagination.PageResult[Deal], error) {
	qb := query.
		NewBuilder(projection, defaultSort).
		WhereEquals("OrganizationID", scope.TenantID).
		WhereSearch(page.Search, "Name", "Industry")

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	return repository.ReadScope(ctx, s.db, scope.Org(), func(tx *sql.Tx) (*pagination.PageResult[Deal], error) {
		result, err := repository.Page(ctx, tx, qb, page, scanDeal)
		if err != nil {
			return nil, fmt.Errorf("list deals: %w", err)
		}
		return result, nil
	})
}

func (s *pgStore) Find(ctx context.Context, scope auth.Scope, id uuid.UUID) (*Deal, error) {
	q, args := query.
		NewBuilder(projection).
		WhereEquals("OrganizationID", scope.TenantID).
		BuildSingle("ID", id)

	d, err := repository.ReadScope(ctx, s.db, scope.Org(), func(tx *sql.Tx) (Deal, error) {
		return repository.QueryOne(ctx, tx, q, args, scanDeal)
	})
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &d, nil
}

func (s *pgStore) Create(ctx context.Context, scope auth.Scope, d Deal, ev *events.Event) (*Deal, error) {
	q := `
		INSERT INTO deals(organization_id, name, industry, notes, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + returning

	return repository.WithScope(ctx, s.db, scope.Org(), func(tx *sql.Tx) (*Deal, error) {
		created, err := repository.QueryOne(ctx, tx, q, []any{
			scope.TenantID, d.Name, d.Industry, d.Notes, d.CreatedBy,
		}, scanDeal)
		if err != nil {
			return nil, fmt.Errorf("insert deal: %w", err)
		}

		ev.OrganizationID = created.OrganizationID
		ev.DealID = created.ID
		ev.Entity = events.EntityDeal
		ev.EntityID = created.ID
		if err := events.Record(ctx, tx, ev); err != nil {
			return nil, err
		}
		return &created, nil
	})
}

func (s *pgStore) Counts(ctx context.Context, scope auth.Scope, id uuid.UUID, lowConfidence int) (Counts, error) {
	q := `
		SELECT
			(SELECT COUNT(*) FROM client_accounts WHERE deal_id = d.id),
			(SELECT COUNT(*) FROM account_mappings WHERE deal_id = d.id AND coa_code IS NOT NULL),
			(SELECT COUNT(*) FROM account_mappings WHERE deal_id = d.id AND status = 'approved'),
			(SELECT COUNT(*) FROM gl_transactions WHERE deal_id = d.id),
			(SELECT COUNT(*) FROM gl_transactions WHERE deal_id = d.id AND mapped_coa_code IS NOT NULL),
			(SELECT COUNT(*) FROM gl_transactions WHERE deal_id = d.id AND is_verified),
			(SELECT COUNT(*) FROM gl_transactions WHERE deal_id = d.id AND confidence < $3),
			(SELECT COUNT(*) FROM pl_periods WHERE deal_id = d.id),
			(SELECT COUNT(*) FROM anomalies WHERE deal_id = d.id),
			(SELECT COUNT(*) FROM adjustments WHERE deal_id = d.id AND status IN ('draft', 'pending')),
			(SELECT COUNT(*) FROM open_items WHERE deal_id = d.id AND status <> 'resolved')
		FROM deals d
		WHERE d.id = $1 AND d.organization_id = $2`

	return repository.ReadScope(ctx, s.db, scope.Org(), func(tx *sql.Tx) (Counts, error) {
		var c Counts
		err := tx.QueryRowContext(ctx, q, id, scope.TenantID, lowConfidence).Scan(
			&c.Accounts,
			&c.MappedAccounts,
			&c.ApprovedAccounts,
			&c.Transactions,
			&c.MappedTransactions,
			&c.VerifiedTransactions,
			&c.LowConfidence,
			&c.Periods,
			&c.Anomalies,
			&c.OpenAdjustments,
			&c.OpenItems,
		)
		if errors.Is(err, sql.ErrNoRows) {
			return c, ErrNotFound
		}
		if err != nil {
			return c, fmt.Errorf("count deal rows: %w", err)
		}
		return c, nil
	})
}
