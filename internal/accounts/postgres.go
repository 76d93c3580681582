package accounts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/tally/internal/auth"
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

// CheckDeal returns ErrDealNotFound unless the deal belongs to the scope's tenant.
func CheckDeal(ctx context.Context, q repository.Querier, scope auth.Scope, dealID uuid.UUID) error {
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

func (s *pgStore) RawRows(ctx context.Context, scope auth.Scope, dealID uuid.UUID) ([]RawRow, error) {
	q := `
		SELECT id, account_name, COALESCE(description, ''), COALESCE(vendor, ''), amount
		FROM gl_transactions
		WHERE deal_id = $1 AND organization_id = $2
		ORDER BY txn_date, id`

	return repository.WithScope(ctx, s.db, scope.Org(), func(tx *sql.Tx) ([]RawRow, error) {
		if err := CheckDeal(ctx, tx, scope, dealID); err != nil {
			return nil, err
		}
		return repository.QueryMany(ctx, tx, q, []any{dealID, scope.TenantID}, func(sc repository.Scanner) (RawRow, error) {
			var r RawRow
			err := sc.Scan(&r.ID, &r.AccountName, &r.Description, &r.Vendor, &r.Amount)
			return r, err
		})
	})
}

func (s *pgStore) Apply(ctx context.Context, scope auth.Scope, dealID uuid.UUID, groups []Group) ([]Account, error) {
	insertQ := `
		INSERT INTO client_accounts(
			organization_id, deal_id, account_key, account_name, description,
			vendor, transaction_count, total_amount
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (deal_id, account_key) DO NOTHING
		RETURNING ` + returning

	linkQ := `
		UPDATE gl_transactions
		SET client_account_id = (
			SELECT id FROM client_accounts WHERE deal_id = $1 AND account_key = $2
		)
		WHERE deal_id = $1 AND id = ANY($3::uuid[]) AND client_account_id IS NULL`

	return repository.WithScope(ctx, s.db, scope.Org(), func(tx *sql.Tx) ([]Account, error) {
		inserted := make([]Account, 0)

		for _, g := range groups {
			a, err := repository.QueryOne(ctx, tx, insertQ, []any{
				scope.TenantID, dealID, g.Key, g.AccountName, g.Description,
				g.Vendor, g.TransactionCount, g.TotalAmount,
			}, scanAccount)

			switch {
			case errors.Is(err, sql.ErrNoRows):
				// key already existed
			case err != nil:
				return nil, fmt.Errorf("insert client account %q: %w", g.Key, err)
			default:
				inserted = append(inserted, a)
			}

			ids := make([]string, len(g.RowIDs))
			for i, id := range g.RowIDs {
				ids[i] = id.String()
			}
			if _, err := tx.ExecContext(ctx, linkQ, dealID, g.Key, ids); err != nil {
				return nil, fmt.Errorf("link gl rows to %q: %w", g.Key, err)
			}
		}

		return inserted, nil
	})
}

func (s *pgStore) Find(ctx context.Context, scope auth.Scope, id uuid.UUID) (*Account, error) {
	q, args := query.
		NewBuilder(projection).
		WhereEquals("OrganizationID", scope.TenantID).
		BuildSingle("ID", id)

	a, err := repository.WithScope(ctx, s.db, scope.Org(), func(tx *sql.Tx) (Account, error) {
		return repository.QueryOne(ctx, tx, q, args, scanAccount)
	})
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, err)
	}
	return &a, nil
}

func (s *pgStore) IDs(ctx context.Context, scope auth.Scope, dealID uuid.UUID) ([]uuid.UUID, error) {
	return s.ids(ctx, scope, dealID, false)
}

func (s *pgStore) Unembedded(ctx context.Context, scope auth.Scope, dealID uuid.UUID) ([]uuid.UUID, error) {
	return s.ids(ctx, scope, dealID, true)
}

func (s *pgStore) ids(ctx context.Context, scope auth.Scope, dealID uuid.UUID, unembedded bool) ([]uuid.UUID, error) {
	q := "SELECT id FROM client_accounts WHERE deal_id = $1 AND organization_id = $2"
	if unembedded {
		q += " AND embedding IS NULL"
	}
	q += " ORDER BY account_key"

	return repository.WithScope(ctx, s.db, scope.Org(), func(tx *sql.Tx) ([]uuid.UUID, error) {
		if err := CheckDeal(ctx, tx, scope, dealID); err != nil {
			return nil, err
		}
		return repository.QueryMany(ctx, tx, q, []any{dealID, scope.TenantID}, func(sc repository.Scanner) (uuid.UUID, error) {
			var id uuid.UUID
			err := sc.Scan(&id)
			return id, err
		})
	})
}

func (s *pgStore) SetEmbedding(ctx context.Context, scope auth.Scope, id uuid.UUID, vector []float32) error {
	embedding, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("marshal embedding: %w", err)
	}

	_, err = repository.WithScope(ctx, s.db, scope.Org(), func(tx *sql.Tx) (struct{}, error) {
		return struct{}{}, repository.ExecExpectOne(
			ctx, tx,
			`UPDATE client_accounts SET embedding = $1, embedded_at = $2
			 WHERE id = $3 AND organization_id = $4`,
			embedding, time.Now().UTC(), id, scope.TenantID,
		)
	})
	if err != nil {
		return repository.MapError(err, ErrNotFound, err)
	}
	return nil
}

func (s *pgStore) List(
	ctx context.Context,
	scope auth.Scope,
	dealID uuid.UUID,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Account], error) {
	qb := query.
		NewBuilder(projection, defaultSort).
		WhereEquals("OrganizationID", scope.TenantID).
		WhereEquals("DealID", dealID).
		WhereSearch(page.Search, "AccountName", "Description", "Vendor")

	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	return repository.ReadScope(ctx, s.db, scope.Org(), func(tx *sql.Tx) (*pagination.PageResult[Account], error) {
		result, err := repository.Page(ctx, tx, qb, page, scanAccount)
		if err != nil {
			return nil, fmt.Errorf("list client accounts: %w", err)
		}
		return result, nil
	})
}
