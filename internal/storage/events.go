package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/halcyonhq/halcyon/internal/model"
)

// InsertSetupEvent records a terminal analytics event for one finalization
// run. Callers treat failures here as best-effort.
func (db *DB) InsertSetupEvent(ctx context.Context, e model.SetupEvent) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Payload == nil {
		e.Payload = map[string]any{}
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO setup_events (id, user_id, draft_id, event_type, success, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.UserID, e.DraftID, string(e.EventType), e.Success, e.Payload, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: insert setup event: %w", err)
	}
	return nil
}

// GetSetupEventsByUser returns a user's setup events, newest first.
func (db *DB) GetSetupEventsByUser(ctx context.Context, userID uuid.UUID) ([]model.SetupEvent, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, user_id, draft_id, event_type, success, payload, created_at
		 FROM setup_events WHERE user_id = $1
		 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("storage: get setup events: %w", err)
	}
	defer rows.Close()

	var events []model.SetupEvent
	for rows.Next() {
		var e model.SetupEvent
		if err := rows.Scan(&e.ID, &e.UserID, &e.DraftID, &e.EventType, &e.Success, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan setup event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
