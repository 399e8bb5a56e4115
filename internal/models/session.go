package models

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a report session.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusGenerating Status = "generating"
	StatusCompleted  Status = "completed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusGenerating, StatusCompleted:
		return true
	}
	return false
}

// Session is the aggregate root for one report: its form data, its photographs and,
// once generated, the path of the rendered PDF.
//
// Sessions are handed out as snapshots; mutating one does not touch the stored record.
type Session struct {
	ID               uuid.UUID                  `json:"id"`
	CreatedAt        time.Time                  `json:"created_at"`
	Status           Status                     `json:"status"`
	FormFields       *FormFields                `json:"form_fields"`
	Images           map[PhotoGroup][]ImageMeta `json:"images"`
	GeneratedPDFPath *string                    `json:"generated_pdf_path"`
}

// NewSession returns an empty draft session created at the given instant.
func NewSession(id uuid.UUID, createdAt time.Time) *Session {
	return &Session{
		ID:        id,
		CreatedAt: createdAt.UTC(),
		Status:    StatusDraft,
		Images:    make(map[PhotoGroup][]ImageMeta),
	}
}

// ImageCount returns how many images are stored for the group.
func (s *Session) ImageCount(group PhotoGroup) int {
	return len(s.Images[group])
}

// TotalImageBytes sums the sizes of every stored image across all groups.
func (s *Session) TotalImageBytes() int64 {
	var total int64
	for _, images := range s.Images {
		for _, image := range images {
			total += image.SizeBytes
		}
	}
	return total
}

// Clone returns a deep copy so callers can mutate it freely.
func (s *Session) Clone() *Session {
	out := *s
	if s.FormFields != nil {
		fields := *s.FormFields
		out.FormFields = &fields
	}
	if s.GeneratedPDFPath != nil {
		path := *s.GeneratedPDFPath
		out.GeneratedPDFPath = &path
	}
	out.Images = make(map[PhotoGroup][]ImageMeta, len(s.Images))
	for group, images := range s.Images {
		out.Images[group] = append([]ImageMeta(nil), images...)
	}
	return &out
}

// MissingRequirements lists what still blocks generation. It is empty when the session
// is complete.
func (s *Session) MissingRequirements() MissingRequirements {
	var missing MissingRequirements
	if s.FormFields == nil {
		missing.FormFields = true
	}
	for _, group := range PhotoGroups() {
		if s.ImageCount(group) < group.Limits().Min {
			missing.PhotoGroups = append(missing.PhotoGroups, group)
		}
	}
	return missing
}

// MissingRequirements is the structured list of everything a session still lacks.
type MissingRequirements struct {
	FormFields  bool         `json:"form_fields"`
	PhotoGroups []PhotoGroup `json:"photo_groups"`
}

func (m MissingRequirements) Empty() bool {
	return !m.FormFields && len(m.PhotoGroups) == 0
}

// ImageMeta describes one admitted upload. It never changes after creation.
type ImageMeta struct {
	ID               uuid.UUID  `json:"id"`
	GroupName        PhotoGroup `json:"group_name"`
	OriginalFilename string     `json:"original_filename"`
	StoredFilename   string     `json:"stored_filename"`
	SizeBytes        int64      `json:"size_bytes"`
	Width            int        `json:"width"`
	Height           int        `json:"height"`
}

// IsLandscape reports whether the image is at least as wide as it is tall.
func (m ImageMeta) IsLandscape() bool {
	return m.Width >= m.Height
}

// ArtifactRef points at a generated report whose bytes are known to exist.
type ArtifactRef struct {
	SessionID uuid.UUID
	Path      string
	FileName  string
	SizeBytes int64
	ModTime   time.Time
}
