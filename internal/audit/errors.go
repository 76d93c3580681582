package audit

import (
	"fmt"

	"github.com/JaimeStill/tally/internal/failure"
)

// Domain errors for audit operations.
var (
	ErrNotFound     = fmt.Errorf("open item not found: %w", failure.NotFound)
	ErrDealNotFound = fmt.Errorf("deal not found: %w", failure.NotFound)

	ErrInvalidTransition = fmt.Errorf("open item transition not allowed: %w", failure.InvalidTransition)
	ErrStaleStatus       = fmt.Errorf("open item status changed concurrently: %w", failure.Conflict)
	ErrDuplicate         = fmt.Errorf("open item already exists: %w", failure.Conflict)

	ErrResolutionRequired = fmt.Errorf("resolution is required to resolve an open item: %w", failure.Invalid)
)

// MapHTTPStatus maps audit errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	return failure.HTTPStatus(err)
}
