// Package auth carries the caller's authorization context through the engine.
// A Scope is resolved once at the boundary (HTTP middleware or CLI flags) and
// passed explicitly to every domain operation; nothing below re-derives it.
package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Header names the upstream gateway sets after authenticating the caller.
const (
	HeaderTenant = "X-Tally-Tenant"
	HeaderActor  = "X-Tally-Actor"
)

var (
	ErrMissingScope = errors.New("tenant and actor are required")
	ErrForbidden    = errors.New("actor is not a member of tenant")
)

// Scope identifies the organization whose rows are visible and the actor
// recorded on every state change.
type Scope struct {
	TenantID uuid.UUID `json:"tenant_id"`
	ActorID  string    `json:"actor_id"`
}

// Validate reports ErrMissingScope when either identity is absent.
func (s Scope) Validate() error {
	if s.TenantID == uuid.Nil || s.ActorID == "" {
		return ErrMissingScope
	}
	return nil
}

// Org returns the tenant ID in the form used by the row-level security setting.
func (s Scope) Org() string {
	return s.TenantID.String()
}

type scopeKey struct{}

// WithScope returns a context carrying s.
func WithScope(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

// FromContext returns the Scope stored by WithScope.
func FromContext(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(scopeKey{}).(Scope)
	return s, ok
}
