package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"reportr-backend/internal/events"
)

// EventStore appends lifecycle events to the report_events table.
type EventStore struct {
	db *sql.DB
}

func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

func (s *EventStore) Publish(ctx context.Context, event events.Event) error {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to encode event data: %w", err)
	}
	if event.Data == nil {
		data = []byte("{}")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO report_events (id, session_id, type, data, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, event.ID, event.SessionID, string(event.Type), string(data), event.At)
	if err != nil {
		return fmt.Errorf("failed to record event %s: %w", event.Type, err)
	}
	return nil
}

// ListForSession returns a session's events, oldest first.
func (s *EventStore) ListForSession(ctx context.Context, sessionID uuid.UUID) ([]events.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, type, data, created_at
		FROM report_events
		WHERE session_id = $1
		ORDER BY created_at ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		var (
			event     events.Event
			eventType string
			data      []byte
		)
		if err := rows.Scan(&event.ID, &event.SessionID, &eventType, &data, &event.At); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		event.Type = events.Type(eventType)
		if len(data) > 0 {
			if err := json.Unmarshal(data, &event.Data); err != nil {
				return nil, fmt.Errorf("failed to decode event data: %w", err)
			}
		}
		out = append(out, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return out, nil
}
