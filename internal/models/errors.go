package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrSessionNotFound = errors.New("report session not found")
	ErrEmptyRender     = errors.New("pdf renderer returned empty output")
)

// SessionNotFound wraps ErrSessionNotFound with the id that was looked up.
func SessionNotFound(id uuid.UUID) error {
	return fmt.Errorf("report session '%s': %w", id, ErrSessionNotFound)
}

// FieldViolation is one failed constraint on one form field.
type FieldViolation struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message"`
}

// ValidationError enumerates every violated form field, not just the first.
type ValidationError struct {
	Violations []FieldViolation
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.Message
	}
	return "invalid form fields: " + strings.Join(msgs, "; ")
}

// IncompleteSessionError is returned when generation is requested before every
// prerequisite is in place.
type IncompleteSessionError struct {
	Missing MissingRequirements
}

func (e *IncompleteSessionError) Error() string {
	var parts []string
	if e.Missing.FormFields {
		parts = append(parts, "form fields")
	}
	if n := len(e.Missing.PhotoGroups); n > 0 {
		parts = append(parts, fmt.Sprintf("%d photo group(s)", n))
	}
	return "report session is incomplete: missing " + strings.Join(parts, " and ")
}

// AdmissionReason is the machine-readable cause of an upload rejection.
type AdmissionReason string

const (
	ReasonUnsupportedMediaType AdmissionReason = "unsupported_media_type"
	ReasonFileTooLarge         AdmissionReason = "file_too_large"
	ReasonPhotoGroupFull       AdmissionReason = "photo_group_full"
	ReasonSessionTooLarge      AdmissionReason = "session_too_large"
	ReasonInvalidImage         AdmissionReason = "invalid_image"
	ReasonDimensionsTooLarge   AdmissionReason = "image_too_large_dimensions"
)

// AdmissionError explains why an upload was refused. Only the fields relevant to the
// reason are set.
type AdmissionError struct {
	Reason       AdmissionReason `json:"reason"`
	Message      string          `json:"-"`
	ContentType  string          `json:"content_type,omitempty"`
	AllowedTypes []string        `json:"allowed_types,omitempty"`
	Group        PhotoGroup      `json:"group,omitempty"`
	CurrentCount int             `json:"current_count,omitempty"`
	MaxCount     int             `json:"max_count,omitempty"`
	SizeBytes    int64           `json:"size_bytes,omitempty"`
	LimitBytes   int64           `json:"limit_bytes,omitempty"`
	Width        int             `json:"width,omitempty"`
	Height       int             `json:"height,omitempty"`
	LimitPixels  int             `json:"limit_pixels,omitempty"`
}

func (e *AdmissionError) Error() string {
	return e.Message
}

// ConflictReason names the state-machine precondition that was violated.
type ConflictReason string

const (
	ConflictGenerationInProgress ConflictReason = "generation_in_progress"
	ConflictArtifactLost         ConflictReason = "artifact_lost"
	ConflictSessionNotDraft      ConflictReason = "session_not_draft"
	ConflictStatusChanged        ConflictReason = "status_changed"
)

// ConflictError reports a request that is illegal in the session's current state.
type ConflictError struct {
	Reason  ConflictReason
	Status  Status
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// RendererUnavailableError signals a transient renderer problem; callers may retry.
type RendererUnavailableError struct {
	Err error
}

func (e *RendererUnavailableError) Error() string {
	return "report renderer unavailable: " + e.Err.Error()
}

func (e *RendererUnavailableError) Unwrap() error {
	return e.Err
}

// StorageError is an I/O failure in the repository. It fails the current request only.
type StorageError struct {
	Op        string
	SessionID uuid.UUID
	Err       error
}

func (e *StorageError) Error() string {
	if e.SessionID == uuid.Nil {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s (session %s): %v", e.Op, e.SessionID, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
