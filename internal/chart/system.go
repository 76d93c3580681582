package chart

import (
	"context"

	"github.com/JaimeStill/tally/pkg/pagination"
)

// System defines the read-only contract for the chart of accounts.
type System interface {
	Handler() *Handler

	List(
		ctx context.Context,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[Account], error)

	Find(ctx context.Context, code string) (*Account, error)
}
