// Package events appends audit rows inside the caller's transaction so an event
// exists exactly when the change it describes was committed.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	LedgerStarted              = "ledger.started"
	LedgerChoiceSubmitted      = "ledger.choice.submitted"
	LedgerCompleted            = "ledger.completed"
	LedgerExited               = "ledger.exited"
	ExperienceImported         = "experience.imported"
	ExperiencePublished        = "experience.published"
	ExperienceValidationFailed = "experience.validation.failed"
	APIKeyCreated              = "apikey.created"
	APIKeyRevoked              = "apikey.revoked"
)

// Writer stamps events with Now, or the wall clock when Now is nil.
type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

const insertEvent = `INSERT INTO events(ts,type,experience_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`

func (w Writer) stamp() string {
	if w.Now != nil {
		return w.Now().UTC().Format(time.RFC3339)
	}
	return time.Now().UTC().Format(time.RFC3339)
}

// Append records one event in tx. experienceID and entityID may be empty.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, experienceID, entityKind, entityID, actorID string, payload EventPayload) error {
	if tx == nil {
		return fmt.Errorf("event %s: transaction required", evtType)
	}
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("event %s payload: %w", evtType, err)
	}
	if _, err := tx.ExecContext(ctx, insertEvent,
		w.stamp(), evtType, orNull(experienceID), entityKind, orNull(entityID), actorID, string(data)); err != nil {
		return fmt.Errorf("append %s: %w", evtType, err)
	}
	return nil
}

func orNull(v string) any {
	if v == "" {
		return nil
	}
	return v
}
