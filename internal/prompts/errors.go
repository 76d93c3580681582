package prompts

import (
	"fmt"

	"github.com/JaimeStill/tally/internal/failure"
)

var (
	ErrNotFound     = fmt.Errorf("prompt not found: %w", failure.NotFound)
	ErrDuplicate    = fmt.Errorf("prompt name or active stage already taken: %w", failure.Conflict)
	ErrInvalidStage = fmt.Errorf("stage must be mapping or anomaly: %w", failure.Invalid)
	ErrEmpty        = fmt.Errorf("prompt name and instructions are required: %w", failure.Invalid)
	ErrInvalidID    = fmt.Errorf("prompt id must be a uuid: %w", failure.Invalid)
)

// MapHTTPStatus maps prompt domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	return failure.HTTPStatus(err)
}
