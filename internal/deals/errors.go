package deals

import (
	"fmt"

	"github.com/JaimeStill/tally/internal/failure"
)

// Domain errors for deal operations.
var (
	ErrNotFound     = fmt.Errorf("deal not found: %w", failure.NotFound)
	ErrDuplicate    = fmt.Errorf("deal already exists: %w", failure.Conflict)
	ErrNameRequired = fmt.Errorf("deal name is required: %w", failure.Invalid)
)

// MapHTTPStatus maps deal errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	return failure.HTTPStatus(err)
}
