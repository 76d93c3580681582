package mappings

import (
	"fmt"

	"github.com/JaimeStill/tally/internal/failure"
)

// Domain errors for mapping operations.
var (
	ErrNotFound          = fmt.Errorf("mapping not found: %w", failure.NotFound)
	ErrAccountNotFound   = fmt.Errorf("client account not found: %w", failure.NotFound)
	ErrDealNotFound      = fmt.Errorf("deal not found: %w", failure.NotFound)
	ErrUnknownCOA        = fmt.Errorf("chart of accounts code not found: %w", failure.NotFound)
	ErrDuplicate         = fmt.Errorf("mapping already exists for client account: %w", failure.Conflict)
	ErrStaleStatus       = fmt.Errorf("mapping status changed concurrently: %w", failure.Conflict)
	ErrInvalidTransition = fmt.Errorf("invalid mapping transition: %w", failure.InvalidTransition)
	ErrInvalidConfidence = fmt.Errorf("confidence must be between 0 and 100: %w", failure.Invalid)
	ErrCOARequired       = fmt.Errorf("override requires a coa code: %w", failure.Invalid)
	ErrNoProposal        = fmt.Errorf("mapping has no proposed coa code, override instead: %w", failure.Invalid)
)

// MapHTTPStatus maps mapping errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	return failure.HTTPStatus(err)
}
