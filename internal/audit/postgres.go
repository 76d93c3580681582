package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

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

func (s *pgStore) Inputs(ctx context.Context, scope auth.Scope, dealID uuid.UUID) (*Inputs, error) {
	dealQ := "SELECT name, industry FROM deals WHERE id = $1 AND organization_id = $2"

	// A transaction without its own mapping inherits the client account's
	// mapping unless that mapping was rejected or never proposed a COA.
	txnQ := `
		SELECT t.id, t.txn_date, t.account_name, t.description, t.vendor, t.amount,
			COALESCE(t.mapped_coa_code, m.coa_code),
			COALESCE(c.name, ''),
			COALESCE(c.category, ''),
			CASE
				WHEN t.mapped_coa_code IS NOT NULL THEN t.confidence
				WHEN m.coa_code IS NOT NULL THEN m.confidence
			END
		FROM gl_transactions t
		LEFT JOIN account_mappings m
			ON m.client_account_id = t.client_account_id AND m.status <> 'rejected'
		LEFT JOIN chart_of_accounts c
			ON c.code = COALESCE(t.mapped_coa_code, m.coa_code)
		WHERE t.deal_id = $1 AND t.organization_id = $2
		ORDER BY t.txn_date, t.id`

	return repository.ReadScope(ctx, s.db, scope.Org(), func(tx *sql.Tx) (*Inputs, error) {
		var in Inputs
		err := tx.QueryRowContext(ctx, dealQ, dealID, scope.TenantID).Scan(&in.Deal.Name, &in.Deal.Industry)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDealNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("load deal: %w", err)
		}

		in.Transactions, err = repository.QueryMany(ctx, tx, txnQ, []any{dealID, scope.TenantID}, scanTxn)
		if err != nil {
			return nil, fmt.Errorf("query gl transactions: %w", err)
		}
		return &in, nil
	})
}

func (s *pgStore) Known(ctx context.Context, scope auth.Scope, dealID uuid.UUID) (map[Key]bool, error) {
	q := "SELECT gl_transaction_id, reason FROM open_items WHERE deal_id = $1 AND organization_id = $2"

	keys, err := repository.ReadScope(ctx, s.db, scope.Org(), func(tx *sql.Tx) ([]Key, error) {
		return repository.QueryMany(ctx, tx, q, []any{dealID, scope.TenantID}, func(sc repository.Scanner) (Key, error) {
			var k Key
			err := sc.Scan(&k.TransactionID, &k.Reason)
			return k, err
		})
	})
	if err != nil {
		return nil, err
	}

	known := make(map[Key]bool, len(keys))
	for _, k := range keys {
		known[k] = true
	}
	return known, nil
}

func (s *pgStore) Insert(ctx context.Context, scope auth.Scope, dealID uuid.UUID, candidates []Candidate) ([]OpenItem, []events.Event, error) {
	q := `
		INSERT INTO open_items(organization_id, deal_id, gl_transaction_id, reason, detail, question)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (gl_transaction_id, reason) DO NOTHING
		RETURNING ` + returning

	type inserted struct {
		items  []OpenItem
		events []events.Event
	}

	out, err := repository.WithScope(ctx, s.db, scope.Org(), func(tx *sql.Tx) (inserted, error) {
		res := inserted{items: make([]OpenItem, 0, len(candidates))}

		for _, c := range candidates {
			o, err := repository.QueryOne(ctx, tx, q, []any{
				scope.TenantID, dealID, c.Txn.ID, c.Flag.Reason, c.Flag.Detail, c.Question,
			}, scanOpenItem)
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return inserted{}, fmt.Errorf("insert open item for transaction %s: %w", c.Txn.ID, err)
			}

			ev := flaggedEvent(scope, o, c.Drafted)
			if err := events.Record(ctx, tx, &ev); err != nil {
				return inserted{}, err
			}

			res.items = append(res.items, o)
			res.events = append(res.events, ev)
		}
		return res, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return out.items, out.events, nil
}

func (s *pgStore) Apply(ctx context.Context, scope auth.Scope, c Change, ev *events.Event) (*OpenItem, error) {
	q := `
		UPDATE open_items
		SET status = $1, resolution = COALESCE($2, resolution), updated_by = $3, updated_at = $4
		WHERE id = $5 AND organization_id = $6 AND status = $7
		RETURNING ` + returning

	return repository.WithScope(ctx, s.db, scope.Org(), func(tx *sql.Tx) (*OpenItem, error) {
		o, err := repository.QueryOne(ctx, tx, q, []any{
			c.To, c.Resolution, scope.ActorID, time.Now().UTC(), c.ID, scope.TenantID, c.From,
		}, scanOpenItem)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, missingOr(ctx, tx, scope, c.ID, ErrStaleStatus)
		}
		if err != nil {
			return nil, fmt.Errorf("transition open item: %w", err)
		}

		ev.OrganizationID = o.OrganizationID
		ev.DealID = o.DealID
		ev.Entity = events.EntityOpenItem
		ev.EntityID = o.ID
		ev.FromStatus = string(c.From)
		ev.ToStatus = string(o.Status)
		if err := events.Record(ctx, tx, ev); err != nil {
			return nil, err
		}
		return &o, nil
	})
}

func (s *pgStore) Find(ctx context.Context, scope auth.Scope, id uuid.UUID) (*OpenItem, error) {
	q, args := query.
		NewBuilder(projection).
		WhereEquals("OrganizationID", scope.TenantID).
		BuildSingle("ID", id)

	o, err := repository.ReadScope(ctx, s.db, scope.Org(), func(tx *sql.Tx) (OpenItem, error) {
		return repository.QueryOne(ctx, tx, q, args, scanOpenItem)
	})
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &o, nil
}

func (s *pgStore) List(
	ctx context.Context,
	scope auth.Scope,
	dealID uuid.UUID,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[OpenItem], error) {
	qb := query.
		NewBuilder(projection, defaultSort).
		WhereEquals("OrganizationID", scope.TenantID).
		WhereEquals("DealID", dealID).
		WhereSearch(page.Search, "Detail", "Question")

	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	return repository.ReadScope(ctx, s.db, scope.Org(), func(tx *sql.Tx) (*pagination.PageResult[OpenItem], error) {
		var one int
		err := tx.QueryRowContext(ctx,
			"SELECT 1 FROM deals WHERE id = $1 AND organization_id = $2",
			dealID, scope.TenantID,
		).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDealNotFound
		}
		if err != nil {
			return nil, err
		}

		result, err := repository.Page(ctx, tx, qb, page, scanOpenItem)
		if err != nil {
			return nil, fmt.Errorf("list open items: %w", err)
		}
		return result, nil
	})
}

// missingOr distinguishes a missing open item from one in the wrong state
// after a conditional update matched no row.
func missingOr(ctx context.Context, tx *sql.Tx, scope auth.Scope, id uuid.UUID, stateErr error) error {
	var one int
	err := tx.QueryRowContext(ctx,
		"SELECT 1 FROM open_items WHERE id = $1 AND organization_id = $2",
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

func scanTxn(sc repository.Scanner) (Txn, error) {
	var (
		t          Txn
		coa        sql.NullString
		confidence sql.NullInt32
	)
	err := sc.Scan(
		&t.ID,
		&t.Date,
		&t.AccountName,
		&t.Description,
		&t.Vendor,
		&t.Amount,
		&coa,
		&t.COAName,
		&t.COACategory,
		&confidence,
	)
	if err != nil {
		return t, err
	}
	if coa.Valid {
		t.COACode = &coa.String
	}
	if confidence.Valid {
		c := int(confidence.Int32)
		t.Confidence = &c
	}
	return t, nil
}

// flaggedEvent builds the audit event for a newly stored open item.
func flaggedEvent(scope auth.Scope, o OpenItem, drafted bool) events.Event {
	return events.Event{
		OrganizationID: o.OrganizationID,
		DealID:         o.DealID,
		Entity:         events.EntityOpenItem,
		EntityID:       o.ID,
		Action:         "flagged",
		ActorID:        scope.ActorID,
		ToStatus:       string(o.Status),
		Detail: map[string]any{
			"gl_transaction_id": o.GLTransactionID.String(),
			"reason":            string(o.Reason),
			"drafted":           drafted,
		},
	}
}
