package adjustments

import (
	"fmt"

	"github.com/JaimeStill/tally/internal/failure"
)

// Domain errors for adjustment operations.
var (
	ErrNotFound            = fmt.Errorf("adjustment not found: %w", failure.NotFound)
	ErrDealNotFound        = fmt.Errorf("deal not found: %w", failure.NotFound)
	ErrTransactionNotFound = fmt.Errorf("gl transaction not found in deal: %w", failure.NotFound)
	ErrAnomalyNotFound     = fmt.Errorf("anomaly not found: %w", failure.NotFound)

	ErrInvalidTransition = fmt.Errorf("adjustment transition not allowed: %w", failure.InvalidTransition)
	ErrNotDraft          = fmt.Errorf("adjustment is not a draft: %w", failure.InvalidTransition)
	ErrNotTerminal       = fmt.Errorf("only approved or rejected adjustments can be reopened: %w", failure.InvalidTransition)
	ErrNotAddback        = fmt.Errorf("anomaly is not an addback candidate: %w", failure.InvalidTransition)

	ErrDuplicate   = fmt.Errorf("adjustment already exists for source: %w", failure.Conflict)
	ErrStaleStatus = fmt.Errorf("adjustment status changed concurrently: %w", failure.Conflict)

	ErrInvalidCategory     = fmt.Errorf("invalid adjustment category: %w", failure.Invalid)
	ErrInvalidSource       = fmt.Errorf("invalid adjustment source: %w", failure.Invalid)
	ErrDescriptionRequired = fmt.Errorf("description is required: %w", failure.Invalid)
	ErrInvalidPeriod       = fmt.Errorf("period end is before period start: %w", failure.Invalid)
	ErrLinksRequired       = fmt.Errorf("at least one gl transaction is required: %w", failure.Invalid)
)

// MapHTTPStatus maps adjustment errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	return failure.HTTPStatus(err)
}
