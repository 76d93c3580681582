package golden

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

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

func (s *pgStore) Corpus(ctx context.Context) ([]Mapping, error) {
	q, args := query.
		NewBuilder(projection, query.SortField{Field: "ID"}).
		WhereNotNull("Embedding").
		Build()

	rows, err := repository.QueryMany(ctx, s.db, q, args, scanMapping)
	if err != nil {
		return nil, fmt.Errorf("load golden corpus: %w", err)
	}
	return rows, nil
}

func (s *pgStore) Insert(ctx context.Context, c Candidate) (Mapping, error) {
	embedding, err := json.Marshal(c.Embedding)
	if err != nil {
		return Mapping{}, fmt.Errorf("marshal embedding: %w", err)
	}

	q := `
		INSERT INTO golden_mappings(
			account_name, description, vendor, coa_code, category, embedding, source
		)
		SELECT $1, $2, $3, coa.code, coa.category, $5, $6
		FROM chart_of_accounts coa
		WHERE coa.code = $4
		RETURNING id, account_name, description, vendor, coa_code, category,
				  embedding, source, created_at`

	args := []any{c.AccountName, c.Description, c.Vendor, c.COACode, embedding, c.Source}

	m, err := repository.WithTx(ctx, s.db, func(tx *sql.Tx) (Mapping, error) {
		return repository.QueryOne(ctx, tx, q, args, scanMapping)
	})
	if err != nil {
		return Mapping{}, repository.MapError(err, ErrUnknownCOA, ErrDuplicate)
	}
	return m, nil
}

func (s *pgStore) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Mapping], error) {
	qb := query.
		NewBuilder(projection, defaultSort).
		WhereSearch(page.Search, "AccountName", "Description", "Vendor")

	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	result, err := repository.Page(ctx, s.db, qb, page, scanMapping)
	if err != nil {
		return nil, fmt.Errorf("list golden mappings: %w", err)
	}
	return result, nil
}
