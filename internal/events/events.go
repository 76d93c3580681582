// Package events records state changes to the audit_events table and streams
// them to Kafka. Recording is transactional; publishing is best-effort and
// happens after commit.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/tally/pkg/repository"
)

// Entities that emit audit events.
const (
	EntityMapping    = "mapping"
	EntityAdjustment = "adjustment"
	EntityAnomaly    = "anomaly"
	EntityDeal       = "deal"
	EntityOpenItem   = "open_item"
)

// Event is one audited state change.
type Event struct {
	ID             uuid.UUID      `json:"id"`
	OrganizationID uuid.UUID      `json:"organization_id"`
	DealID         uuid.UUID      `json:"deal_id"`
	Entity         string         `json:"entity"`
	EntityID       uuid.UUID      `json:"entity_id"`
	Action         string         `json:"action"`
	ActorID        string         `json:"actor_id"`
	FromStatus     string         `json:"from_status,omitempty"`
	ToStatus       string         `json:"to_status,omitempty"`
	Detail         map[string]any `json:"detail,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Key is the partition key: events of one deal stay ordered.
func (e Event) Key() []byte {
	return []byte(e.DealID.String())
}

// Record inserts e into audit_events using x, which is normally the
// transaction performing the state change. ID and CreatedAt are assigned here.
func Record(ctx context.Context, x repository.Executor, e *Event) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	detail, err := json.Marshal(e.Detail)
	if err != nil {
		return fmt.Errorf("marshal audit detail: %w", err)
	}

	_, err = x.ExecContext(ctx, `
		INSERT INTO audit_events(
			id, organization_id, deal_id, entity, entity_id, action,
			actor_id, from_status, to_status, detail, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), $10, $11)`,
		e.ID, e.OrganizationID, e.DealID, e.Entity, e.EntityID, e.Action,
		e.ActorID, e.FromStatus, e.ToStatus, detail, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record audit event: %w", err)
	}
	return nil
}
