package ledger

import (
	"fmt"

	"github.com/JaimeStill/tally/internal/failure"
)

// Domain errors for ledger operations.
var (
	ErrDealNotFound  = fmt.Errorf("deal not found: %w", failure.NotFound)
	ErrPeriodExists  = fmt.Errorf("period already ingested for deal: %w", failure.Conflict)
	ErrInvalidInput  = fmt.Errorf("invalid ledger input: %w", failure.Invalid)
	ErrBatchTooLarge = fmt.Errorf("ledger batch too large: %w", failure.Invalid)
)

// MapHTTPStatus maps ledger errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	return failure.HTTPStatus(err)
}
