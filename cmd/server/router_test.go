package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaimeStill/tally/pkg/lifecycle"
)

type check bool

func (c check) Ready() bool { return bool(c) }

func TestReadiness(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]lifecycle.ReadinessChecker
		code   int
	}{
		{"all ready", map[string]lifecycle.ReadinessChecker{"lifecycle": check(true), "database": check(true)}, http.StatusOK},
		{"database down", map[string]lifecycle.ReadinessChecker{"lifecycle": check(true), "database": check(false)}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			readiness(tt.checks).ServeHTTP(rec, httptest.NewRequest("GET", "/readyz", nil))

			assert.Equal(t, tt.code, rec.Code)

			var body struct {
				Ready  bool            `json:"ready"`
				Checks map[string]bool `json:"checks"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code == http.StatusOK, body.Ready)
			assert.Len(t, body.Checks, len(tt.checks))
		})
	}
}

func TestReadinessDuringShutdown(t *testing.T) {
	lc := lifecycle.New()
	lc.WaitForStartup()

	h := readiness(map[string]lifecycle.ReadinessChecker{"lifecycle": lc})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, lc.Shutdown(time.Second))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
