package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"reportr-backend/internal/models"
	"reportr-backend/internal/storage"
)

// SessionRepository is the slice of storage.FileSystemRepository the services need.
type SessionRepository interface {
	Create(ctx context.Context) (*models.Session, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Session, error)
	SaveFormFields(ctx context.Context, id uuid.UUID, fields models.FormFields) (*models.Session, error)
	SaveImage(ctx context.Context, id uuid.UUID, params storage.SaveImageParams) (*models.ImageMeta, error)
	PersistArtifact(ctx context.Context, id uuid.UUID, data []byte) (*models.ArtifactRef, error)
	GetArtifactRef(ctx context.Context, id uuid.UUID) (*models.ArtifactRef, error)
	SetStatus(ctx context.Context, id uuid.UUID, status models.Status) (*models.Session, error)
	SetStatusIf(ctx context.Context, id uuid.UUID, expected, next models.Status) (*models.Session, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, ref *models.ArtifactRef) (*models.Session, error)
	DeleteImages(ctx context.Context, id uuid.UUID) error
	DeleteExpired(ctx context.Context, maxAge time.Duration) (int, error)
}

// ArtifactPublisher copies a finished report somewhere outside the local reports root.
type ArtifactPublisher interface {
	PublishArtifact(ctx context.Context, sessionID uuid.UUID, filename string, data []byte) error
}

var _ SessionRepository = (*storage.FileSystemRepository)(nil)
