package golden

import (
	"fmt"

	"github.com/JaimeStill/tally/internal/failure"
)

// Domain errors for golden mapping operations.
var (
	ErrDuplicate     = fmt.Errorf("golden mapping already exists: %w", failure.Conflict)
	ErrUnknownCOA    = fmt.Errorf("chart of accounts code not found: %w", failure.NotFound)
	ErrNoEmbedding   = fmt.Errorf("golden candidate has no embedding: %w", failure.Invalid)
	ErrInvalidSource = fmt.Errorf("source must be seed or import: %w", failure.Invalid)
)

// MapHTTPStatus maps golden errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	return failure.HTTPStatus(err)
}
