package anomalies

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

func (s *pgStore) History(ctx context.Context, scope auth.Scope, dealID uuid.UUID) (*History, error) {
	periodsQ := `
		SELECT period_start FROM pl_periods
		WHERE deal_id = $1 AND organization_id = $2
		ORDER BY period_start`

	pointsQ := `
		SELECT li.id, p.period_start, li.line_name, li.line_category, li.amount, li.is_subtotal
		FROM pl_line_items li
		JOIN pl_periods p ON p.id = li.period_id
		WHERE li.deal_id = $1 AND li.organization_id = $2
		ORDER BY p.period_start, li.display_order`

	return repository.WithScope(ctx, s.db, scope.Org(), func(tx *sql.Tx) (*History, error) {
		if err := checkDeal(ctx, tx, scope, dealID); err != nil {
			return nil, err
		}

		periods, err := repository.QueryMany(ctx, tx, periodsQ, []any{dealID, scope.TenantID}, func(sc repository.Scanner) (time.Time, error) {
			var t time.Time
			err := sc.Scan(&t)
			return t, err
		})
		if err != nil {
			return nil, fmt.Errorf("query periods: %w", err)
		}

		points, err := repository.QueryMany(ctx, tx, pointsQ, []any{dealID, scope.TenantID}, func(sc repository.Scanner) (Point, error) {
			var p Point
			err := sc.Scan(&p.LineItemID, &p.PeriodStart, &p.LineName, &p.LineCategory, &p.Amount, &p.IsSubtotal)
			return p, err
		})
		if err != nil {
			return nil, fmt.Errorf("query line items: %w", err)
		}

		return &History{Periods: periods, Points: points}, nil
	})
}

func (s *pgStore) Known(ctx context.Context, scope auth.Scope, dealID uuid.UUID) (map[Key]bool, error) {
	q := "SELECT pl_line_item_id, anomaly_type FROM anomalies WHERE deal_id = $1 AND organization_id = $2"

	keys, err := repository.WithScope(ctx, s.db, scope.Org(), func(tx *sql.Tx) ([]Key, error) {
		return repository.QueryMany(ctx, tx, q, []any{dealID, scope.TenantID}, func(sc repository.Scanner) (Key, error) {
			var k Key
			err := sc.Scan(&k.LineItemID, &k.Type)
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

func (s *pgStore) Insert(ctx context.Context, scope auth.Scope, dealID uuid.UUID, candidates []Candidate) ([]Anomaly, []events.Event, error) {
	q := `
		INSERT INTO anomalies(
			organization_id, deal_id, pl_line_item_id, anomaly_type, severity,
			current_amount, trailing_average, variance_multiple, summary,
			is_addback_candidate, confidence
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (pl_line_item_id, anomaly_type) DO NOTHING
		RETURNING ` + returning

	type inserted struct {
		anomalies []Anomaly
		events    []events.Event
	}

	out, err := repository.WithScope(ctx, s.db, scope.Org(), func(tx *sql.Tx) (inserted, error) {
		res := inserted{anomalies: make([]Anomaly, 0, len(candidates))}

		for _, c := range candidates {
			a, err := repository.QueryOne(ctx, tx, q, []any{
				scope.TenantID, dealID, c.Point.LineItemID, c.Finding.Type, c.Finding.Severity,
				c.Point.Amount, nullable(c.Finding.TrailingAverage), nullable(c.Finding.Multiple),
				c.Summary, c.Addback, c.Finding.Severity.Confidence(),
			}, scanAnomaly)
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return inserted{}, fmt.Errorf("insert anomaly for line %s: %w", c.Point.LineItemID, err)
			}

			ev := detectedEvent(scope, a)
			if err := events.Record(ctx, tx, &ev); err != nil {
				return inserted{}, err
			}

			res.anomalies = append(res.anomalies, a)
			res.events = append(res.events, ev)
		}
		return res, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return out.anomalies, out.events, nil
}

func (s *pgStore) ReconcileInputs(
	ctx context.Context,
	scope auth.Scope,
	dealID uuid.UUID,
	period time.Time,
) ([]ReconLine, map[string]decimal.Decimal, error) {
	periodQ := `
		SELECT id, period_end FROM pl_periods
		WHERE deal_id = $1 AND organization_id = $2 AND period_start = $3`

	linesQ := `
		SELECT id, line_name, mapped_coa_code, amount
		FROM pl_line_items
		WHERE period_id = $1 AND mapped_coa_code IS NOT NULL AND NOT is_subtotal
		ORDER BY display_order, line_name`

	totalsQ := `
		SELECT mapped_coa_code, SUM(amount)
		FROM gl_transactions
		WHERE deal_id = $1 AND organization_id = $2
			AND mapped_coa_code IS NOT NULL
			AND txn_date BETWEEN $3 AND $4
		GROUP BY mapped_coa_code`

	type inputs struct {
		lines  []ReconLine
		totals map[string]decimal.Decimal
	}

	out, err := repository.WithScope(ctx, s.db, scope.Org(), func(tx *sql.Tx) (inputs, error) {
		if err := checkDeal(ctx, tx, scope, dealID); err != nil {
			return inputs{}, err
		}

		var periodID uuid.UUID
		var periodEnd time.Time
		err := tx.QueryRowContext(ctx, periodQ, dealID, scope.TenantID, period).Scan(&periodID, &periodEnd)
		if errors.Is(err, sql.ErrNoRows) {
			return inputs{}, ErrPeriodNotFound
		}
		if err != nil {
			return inputs{}, err
		}

		lines, err := repository.QueryMany(ctx, tx, linesQ, []any{periodID}, func(sc repository.Scanner) (ReconLine, error) {
			var l ReconLine
			err := sc.Scan(&l.LineItemID, &l.LineName, &l.COACode, &l.Amount)
			return l, err
		})
		if err != nil {
			return inputs{}, fmt.Errorf("query mapped lines: %w", err)
		}

		type total struct {
			code   string
			amount decimal.Decimal
		}
		sums, err := repository.QueryMany(ctx, tx, totalsQ, []any{dealID, scope.TenantID, period, periodEnd}, func(sc repository.Scanner) (total, error) {
			var t total
			err := sc.Scan(&t.code, &t.amount)
			return t, err
		})
		if err != nil {
			return inputs{}, fmt.Errorf("sum gl rows: %w", err)
		}

		totals := make(map[string]decimal.Decimal, len(sums))
		for _, t := range sums {
			totals[t.code] = t.amount
		}
		return inputs{lines: lines, totals: totals}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return out.lines, out.totals, nil
}

func (s *pgStore) SaveReconciliation(ctx context.Context, scope auth.Scope, lines []Reconciled) error {
	q := `
		UPDATE pl_line_items SET gl_derived_amount = $1, variance = $2
		WHERE id = $3 AND organization_id = $4`

	_, err := repository.WithScope(ctx, s.db, scope.Org(), func(tx *sql.Tx) (struct{}, error) {
		for _, l := range lines {
			if err := repository.ExecExpectOne(ctx, tx, q, l.GLDerivedAmount, l.Variance, l.LineItemID, scope.TenantID); err != nil {
				return struct{}{}, fmt.Errorf("update line %s: %w", l.LineItemID, err)
			}
		}
		return struct{}{}, nil
	})
	return err
}

func (s *pgStore) Find(ctx context.Context, scope auth.Scope, id uuid.UUID) (*Anomaly, error) {
	q, args := query.
		NewBuilder(projection).
		WhereEquals("OrganizationID", scope.TenantID).
		BuildSingle("ID", id)

	a, err := repository.WithScope(ctx, s.db, scope.Org(), func(tx *sql.Tx) (Anomaly, error) {
		return repository.QueryOne(ctx, tx, q, args, scanAnomaly)
	})
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, err)
	}
	return &a, nil
}

func (s *pgStore) List(
	ctx context.Context,
	scope auth.Scope,
	dealID uuid.UUID,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Anomaly], error) {
	qb := query.
		NewBuilder(projection, defaultSort).
		WhereEquals("OrganizationID", scope.TenantID).
		WhereEquals("DealID", dealID).
		WhereSearch(page.Search, "Summary")

	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	return repository.ReadScope(ctx, s.db, scope.Org(), func(tx *sql.Tx) (*pagination.PageResult[Anomaly], error) {
		if err := checkDeal(ctx, tx, scope, dealID); err != nil {
			return nil, err
		}

		result, err := repository.Page(ctx, tx, qb, page, scanAnomaly)
		if err != nil {
			return nil, fmt.Errorf("list anomalies: %w", err)
		}
		return result, nil
	})
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

func nullable(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*d)
}

// detectedEvent builds the audit event for a newly stored anomaly.
func detectedEvent(scope auth.Scope, a Anomaly) events.Event {
	return events.Event{
		OrganizationID: a.OrganizationID,
		DealID:         a.DealID,
		Entity:         events.EntityAnomaly,
		EntityID:       a.ID,
		Action:         "detected",
		ActorID:        scope.ActorID,
		Detail: map[string]any{
			"pl_line_item_id": a.PLLineItemID.String(),
			"anomaly_type":    string(a.Type),
			"severity":        string(a.Severity),
		},
	}
}
