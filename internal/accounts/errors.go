package accounts

import (
	"fmt"

	"github.com/JaimeStill/tally/internal/failure"
)

// Domain errors for client account operations.
var (
	ErrNotFound     = fmt.Errorf("client account not found: %w", failure.NotFound)
	ErrDealNotFound = fmt.Errorf("deal not found: %w", failure.NotFound)
)

// MapHTTPStatus maps account errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	return failure.HTTPStatus(err)
}
