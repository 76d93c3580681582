package mappings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

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

func (s *pgStore) Find(ctx context.Context, scope auth.Scope, id uuid.UUID) (*Mapping, error) {
	return s.findBy(ctx, scope, "ID", id)
}

func (s *pgStore) FindByAccount(ctx context.Context, scope auth.Scope, clientAccountID uuid.UUID) (*Mapping, error) {
	return s.findBy(ctx, scope, "ClientAccountID", clientAccountID)
}

func (s *pgStore) findBy(ctx context.Context, scope auth.Scope, field string, id uuid.UUID) (*Mapping, error) {
	q, args := query.
		NewBuilder(projection).
		WhereEquals("OrganizationID", scope.TenantID).
		BuildSingle(field, id)

	m, err := repository.WithScope(ctx, s.db, scope.Org(), func(tx *sql.Tx) (Mapping, error) {
		return repository.QueryOne(ctx, tx, q, args, scanMapping)
	})
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &m, nil
}

func (s *pgStore) Save(ctx context.Context, scope auth.Scope, m Mapping, force bool, ev *events.Event) (*Mapping, bool, error) {
	insertQ := `
		INSERT INTO account_mappings(
			organization_id, deal_id, client_account_id, coa_code,
			confidence, rationale, status, classified_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (client_account_id) DO NOTHING
		RETURNING ` + returning

	lockQ := `
		SELECT ` + returning + `
		FROM account_mappings
		WHERE client_account_id = $1 AND organization_id = $2
		FOR UPDATE`

	updateQ := `
		UPDATE account_mappings
		SET coa_code = $1, confidence = $2, rationale = $3, status = $4, classified_at = $5,
			reviewed_by = NULL, reviewed_at = NULL, reject_reason = NULL
		WHERE id = $6
		RETURNING ` + returning

	type saved struct {
		mapping Mapping
		changed bool
	}

	out, err := repository.WithScope(ctx, s.db, scope.Org(), func(tx *sql.Tx) (saved, error) {
		inserted, err := repository.QueryOne(ctx, tx, insertQ, []any{
			scope.TenantID, m.DealID, m.ClientAccountID, m.COACode,
			m.Confidence, m.Rationale, m.Status, m.ClassifiedAt,
		}, scanMapping)

		var from Status
		switch {
		case err == nil:
			m = inserted
		case errors.Is(err, sql.ErrNoRows):
			existing, err := repository.QueryOne(ctx, tx, lockQ, []any{m.ClientAccountID, scope.TenantID}, scanMapping)
			if err != nil {
				return saved{}, fmt.Errorf("lock existing mapping: %w", err)
			}
			if existing.Status.Terminal() && !force {
				return saved{mapping: existing}, nil
			}
			from = existing.Status
			m, err = repository.QueryOne(ctx, tx, updateQ, []any{
				m.COACode, m.Confidence, m.Rationale, m.Status, m.ClassifiedAt, existing.ID,
			}, scanMapping)
			if err != nil {
				return saved{}, fmt.Errorf("update mapping: %w", err)
			}
		default:
			return saved{}, repository.MapError(err, ErrAccountNotFound, ErrDuplicate)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE gl_transactions SET mapped_coa_code = $1, confidence = $2, is_verified = false
			 WHERE client_account_id = $3`,
			m.COACode, m.Confidence, m.ClientAccountID,
		); err != nil {
			return saved{}, fmt.Errorf("stamp gl rows: %w", err)
		}

		fill(ev, m, from)
		if err := events.Record(ctx, tx, ev); err != nil {
			return saved{}, err
		}
		return saved{mapping: m, changed: true}, nil
	})
	if err != nil {
		if repository.IsForeignKey(err) {
			return nil, false, ErrAccountNotFound
		}
		return nil, false, err
	}
	return &out.mapping, out.changed, nil
}

func (s *pgStore) Apply(ctx context.Context, scope auth.Scope, c Change, ev *events.Event) (*Mapping, error) {
	updateQ := `
		UPDATE account_mappings
		SET status = $1,
			coa_code = COALESCE($2, coa_code),
			confidence = COALESCE($3, confidence),
			rationale = COALESCE($4, rationale),
			reject_reason = $5,
			reviewed_by = $6,
			reviewed_at = $7
		WHERE id = $8 AND organization_id = $9 AND status = $10
		RETURNING ` + returning

	return repository.WithScope(ctx, s.db, scope.Org(), func(tx *sql.Tx) (*Mapping, error) {
		m, err := repository.QueryOne(ctx, tx, updateQ, []any{
			c.To, c.COACode, c.Confidence, c.Rationale, c.RejectReason,
			scope.ActorID, time.Now().UTC(), c.MappingID, scope.TenantID, c.From,
		}, scanMapping)
		if errors.Is(err, sql.ErrNoRows) {
			var one int
			err := tx.QueryRowContext(ctx,
				"SELECT 1 FROM account_mappings WHERE id = $1 AND organization_id = $2",
				c.MappingID, scope.TenantID,
			).Scan(&one)
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrNotFound
			}
			if err != nil {
				return nil, err
			}
			return nil, ErrStaleStatus
		}
		if err != nil {
			return nil, fmt.Errorf("apply %s: %w", c.Action, err)
		}

		if m.Status == StatusApproved {
			if _, err := tx.ExecContext(ctx,
				`UPDATE gl_transactions SET mapped_coa_code = $1, confidence = $2, is_verified = true
				 WHERE client_account_id = $3`,
				m.COACode, m.Confidence, m.ClientAccountID,
			); err != nil {
				return nil, fmt.Errorf("verify gl rows: %w", err)
			}
		}

		fill(ev, m, c.From)
		if err := events.Record(ctx, tx, ev); err != nil {
			return nil, err
		}
		return &m, nil
	})
}

func (s *pgStore) Verified(ctx context.Context, scope auth.Scope) ([]Verified, error) {
	q := `
		SELECT am.id, ca.account_name, COALESCE(ca.description, ''), COALESCE(ca.vendor, ''),
			am.coa_code, ca.embedding
		FROM account_mappings am
		JOIN client_accounts ca ON ca.id = am.client_account_id
		WHERE am.organization_id = $1
			AND am.status = 'approved'
			AND am.coa_code IS NOT NULL
			AND ca.embedding IS NOT NULL
		ORDER BY am.id`

	return repository.WithScope(ctx, s.db, scope.Org(), func(tx *sql.Tx) ([]Verified, error) {
		return repository.QueryMany(ctx, tx, q, []any{scope.TenantID}, func(sc repository.Scanner) (Verified, error) {
			var v Verified
			var embedding []byte
			if err := sc.Scan(&v.MappingID, &v.AccountName, &v.Description, &v.Vendor, &v.COACode, &embedding); err != nil {
				return v, err
			}
			if err := json.Unmarshal(embedding, &v.Embedding); err != nil {
				return v, fmt.Errorf("unmarshal embedding: %w", err)
			}
			return v, nil
		})
	})
}

func (s *pgStore) Green(ctx context.Context, scope auth.Scope, dealID uuid.UUID, minConfidence int) ([]uuid.UUID, error) {
	q := `
		SELECT id FROM account_mappings
		WHERE deal_id = $1 AND organization_id = $2 AND status = 'green' AND confidence >= $3
		ORDER BY confidence DESC, id`

	return repository.WithScope(ctx, s.db, scope.Org(), func(tx *sql.Tx) ([]uuid.UUID, error) {
		if err := accounts.CheckDeal(ctx, tx, scope, dealID); err != nil {
			return nil, err
		}
		return repository.QueryMany(ctx, tx, q, []any{dealID, scope.TenantID, minConfidence}, func(sc repository.Scanner) (uuid.UUID, error) {
			var id uuid.UUID
			err := sc.Scan(&id)
			return id, err
		})
	})
}

func (s *pgStore) Summary(ctx context.Context, scope auth.Scope, dealID uuid.UUID) (*Summary, error) {
	return repository.WithScope(ctx, s.db, scope.Org(), func(tx *sql.Tx) (*Summary, error) {
		if err := accounts.CheckDeal(ctx, tx, scope, dealID); err != nil {
			return nil, err
		}

		var total int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM client_accounts WHERE deal_id = $1 AND organization_id = $2",
			dealID, scope.TenantID,
		).Scan(&total); err != nil {
			return nil, fmt.Errorf("count client accounts: %w", err)
		}

		rows, err := tx.QueryContext(ctx,
			`SELECT status, COUNT(*) FROM account_mappings
			 WHERE deal_id = $1 AND organization_id = $2
			 GROUP BY status`,
			dealID, scope.TenantID,
		)
		if err != nil {
			return nil, fmt.Errorf("count mappings: %w", err)
		}
		defer rows.Close()

		counts := make(map[Status]int)
		for rows.Next() {
			var status Status
			var n int
			if err := rows.Scan(&status, &n); err != nil {
				return nil, err
			}
			counts[status] = n
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}

		summary := NewSummary(dealID, total, counts)
		return &summary, nil
	})
}

func (s *pgStore) List(
	ctx context.Context,
	scope auth.Scope,
	dealID uuid.UUID,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Mapping], error) {
	qb := query.
		NewBuilder(projection, defaultSort).
		WhereEquals("OrganizationID", scope.TenantID).
		WhereEquals("DealID", dealID).
		WhereSearch(page.Search, "COACode", "Rationale")

	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	return repository.ReadScope(ctx, s.db, scope.Org(), func(tx *sql.Tx) (*pagination.PageResult[Mapping], error) {
		if err := accounts.CheckDeal(ctx, tx, scope, dealID); err != nil {
			return nil, err
		}

		result, err := repository.Page(ctx, tx, qb, page, scanMapping)
		if err != nil {
			return nil, fmt.Errorf("list mappings: %w", err)
		}
		return result, nil
	})
}

func fill(ev *events.Event, m Mapping, from Status) {
	ev.OrganizationID = m.OrganizationID
	ev.DealID = m.DealID
	ev.Entity = events.EntityMapping
	ev.EntityID = m.ID
	ev.FromStatus = string(from)
	ev.ToStatus = string(m.Status)
}
