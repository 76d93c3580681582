package repository

import (
	"context"
	"fmt"

	"github.com/JaimeStill/tally/pkg/pagination"
	"github.com/JaimeStill/tally/pkg/query"
)

// Page counts the rows qb matches and fetches the requested page. A page
// past the last row returns the total without issuing the page query.
func Page[T any](
	ctx context.Context,
	q Querier,
	qb *query.Builder,
	page pagination.PageRequest,
	scan ScanFunc[T],
) (*pagination.PageResult[T], error) {
	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := q.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count: %w", err)
	}

	var items []T
	if total > page.Offset() {
		pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
		var err error
		if items, err = QueryMany(ctx, q, pageSQL, pageArgs, scan); err != nil {
			return nil, fmt.Errorf("page: %w", err)
		}
	}

	result := pagination.NewPageResult(items, total, page.Page, page.PageSize)
	return &result, nil
}
