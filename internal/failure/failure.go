// Package failure defines the error kinds shared by every domain package.
// Domain sentinels wrap a kind so callers can branch on either.
package failure

import (
	"errors"
	"net/http"
)

// Error kinds.
var (
	NotFound            = errors.New("not found")
	Conflict            = errors.New("conflict")
	InvalidTransition   = errors.New("invalid transition")
	ExternalUnavailable = errors.New("external service unavailable")
	DataIntegrity       = errors.New("data integrity violation")
	Invalid             = errors.New("invalid input")
)

// HTTPStatus maps an error to a response status by kind.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, NotFound):
		return http.StatusNotFound
	case errors.Is(err, Conflict):
		return http.StatusConflict
	case errors.Is(err, InvalidTransition):
		return http.StatusUnprocessableEntity
	case errors.Is(err, Invalid):
		return http.StatusBadRequest
	case errors.Is(err, ExternalUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
