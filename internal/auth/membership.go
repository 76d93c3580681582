package auth

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// Resolver decides whether an actor belongs to a tenant.
type Resolver interface {
	IsMember(ctx context.Context, tenantID uuid.UUID, actorID string) (bool, error)
}

type membership struct {
	db *sql.DB
}

// NewMembership creates a Resolver backed by the organization_members table.
// Membership is read from that table only; there is no secondary lookup.
func NewMembership(db *sql.DB) Resolver {
	return &membership{db: db}
}

func (m *membership) IsMember(ctx context.Context, tenantID uuid.UUID, actorID string) (bool, error) {
	var exists bool
	err := m.db.QueryRowContext(
		ctx,
		`SELECT EXISTS (
			SELECT 1 FROM organization_members
			WHERE organization_id = $1 AND actor_id = $2
		)`,
		tenantID, actorID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("resolve membership: %w", err)
	}
	return exists, nil
}
