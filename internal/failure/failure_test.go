package failure_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/JaimeStill/tally/internal/failure"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", fmt.Errorf("mapping not found: %w", failure.NotFound), http.StatusNotFound},
		{"conflict", fmt.Errorf("link exists: %w", failure.Conflict), http.StatusConflict},
		{"invalid transition", fmt.Errorf("approved to draft: %w", failure.InvalidTransition), http.StatusUnprocessableEntity},
		{"invalid input", failure.Invalid, http.StatusBadRequest},
		{"external", failure.ExternalUnavailable, http.StatusServiceUnavailable},
		{"data integrity", failure.DataIntegrity, http.StatusInternalServerError},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, failure.HTTPStatus(tt.err))
		})
	}
}
