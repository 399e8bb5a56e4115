package supabase

import (
	"context"
	"fmt"

	"github.com/supabase-community/supabase-go"

	"reportr-backend/internal/events"
)

const eventsTable = "report_events"

// RealtimeClient publishes lifecycle events by inserting them into report_events
// through PostgREST. Supabase Realtime broadcasts the inserts to subscribed clients.
type RealtimeClient struct {
	client *supabase.Client
}

func NewRealtimeClient(client *supabase.Client) *RealtimeClient {
	return &RealtimeClient{
		client: client,
	}
}

type eventRow struct {
	ID        string                 `json:"id"`
	SessionID string                 `json:"session_id"`
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data"`
	CreatedAt string                 `json:"created_at"`
}

func (r *RealtimeClient) Publish(ctx context.Context, event events.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	row := eventRow{
		ID:        event.ID.String(),
		SessionID: event.SessionID.String(),
		Type:      string(event.Type),
		Data:      event.Data,
		CreatedAt: event.At.Format("2006-01-02T15:04:05.999999Z07:00"),
	}
	if row.Data == nil {
		row.Data = map[string]interface{}{}
	}
	_, _, err := r.client.From(eventsTable).Insert(row, true, "id", "minimal", "").Execute()
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.Type, err)
	}
	return nil
}
