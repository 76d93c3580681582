package chart

import (
	"fmt"

	"github.com/JaimeStill/tally/internal/failure"
)

// ErrNotFound is returned when no chart of accounts entry has the given code.
var ErrNotFound = fmt.Errorf("chart of accounts code not found: %w", failure.NotFound)

// MapHTTPStatus maps chart errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	return failure.HTTPStatus(err)
}
