package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Type names a session lifecycle event.
type Type string

const (
	ReportCreated           Type = "report.created"
	ReportFormSaved         Type = "report.form_saved"
	ReportImageAdmitted     Type = "report.image_admitted"
	ReportGenerationStarted Type = "report.generation_started"
	ReportCompleted         Type = "report.completed"
	ReportGenerationFailed  Type = "report.generation_failed"
	ReportExpired           Type = "report.expired_cleanup"
)

// Event is one lifecycle notification. ID lets sinks that share a table drop
// duplicates. Data holds event-specific fields.
type Event struct {
	ID        uuid.UUID              `json:"id"`
	Type      Type                   `json:"type"`
	SessionID uuid.UUID              `json:"session_id"`
	At        time.Time              `json:"at"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

func New(eventType Type, sessionID uuid.UUID, data map[string]interface{}) Event {
	return Event{
		ID:        uuid.New(),
		Type:      eventType,
		SessionID: sessionID,
		At:        time.Now().UTC(),
		Data:      data,
	}
}

// Publisher delivers events. Delivery is best-effort; callers log failures and move on.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// LogPublisher writes every event to a structured logger.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event Event) error {
	attrs := []any{"event", string(event.Type), "session_id", event.SessionID.String()}
	for k, v := range event.Data {
		attrs = append(attrs, k, v)
	}
	p.logger.InfoContext(ctx, "report event", attrs...)
	return nil
}

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Event payloads

func ImageAdmittedPayload(group string, imageID uuid.UUID, sizeBytes int64) map[string]interface{} {
	return map[string]interface{}{
		"group":      group,
		"image_id":   imageID.String(),
		"size_bytes": sizeBytes,
	}
}

func CompletedPayload(fileName string, sizeBytes int64, reused bool) map[string]interface{} {
	return map[string]interface{}{
		"status":     "completed",
		"file_name":  fileName,
		"size_bytes": sizeBytes,
		"reused":     reused,
	}
}

func GenerationFailedPayload(errorMsg string) map[string]interface{} {
	return map[string]interface{}{
		"status": "draft",
		"error":  errorMsg,
	}
}

func ExpiredPayload(removed int, ttl time.Duration) map[string]interface{} {
	return map[string]interface{}{
		"removed": removed,
		"ttl":     ttl.String(),
	}
}
