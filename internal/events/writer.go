package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types written by the settlement engine and seeding.
const (
	TypeScenarioSeeded      = "scenario.seeded"
	TypeSettlementCommitted = "settlement.committed"
	TypeResourcesDeducted   = "character.resources.deducted"
	TypeMetricsApplied      = "metrics.applied"
	TypeProjectCompleted    = "project.completed"
	TypeSnapshotRestored    = "snapshot.restored"
)

type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

// Append writes an event row inside tx so it commits or rolls back with the
// change it describes.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actorID string, payload EventPayload) error {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, evtType, entityKind, nullable(entityID), actorID, string(data))
	if err != nil {
		return fmt.Errorf("append %s event: %w", evtType, err)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
