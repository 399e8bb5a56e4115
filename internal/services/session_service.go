package services

import (
	"bytes"
	"context"
	"log/slog"

	"github.com/google/uuid"

	"reportr-backend/internal/admission"
	"reportr-backend/internal/events"
	"reportr-backend/internal/models"
	"reportr-backend/internal/storage"
)

// SessionService handles the draft-side operations: creating sessions, saving form
// fields and admitting uploads.
type SessionService struct {
	repo      SessionRepository
	admission *admission.Controller
	publisher events.Publisher
	logger    *slog.Logger
}

func NewSessionService(repo SessionRepository, controller *admission.Controller, publisher events.Publisher, logger *slog.Logger) *SessionService {
	return &SessionService{
		repo:      repo,
		admission: controller,
		publisher: publisher,
		logger:    logger,
	}
}

func (s *SessionService) Create(ctx context.Context) (*models.Session, error) {
	session, err := s.repo.Create(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "report session created", "session_id", session.ID.String())
	s.publish(ctx, events.New(events.ReportCreated, session.ID, nil))
	return session, nil
}

// Get returns the session or an error wrapping models.ErrSessionNotFound.
func (s *SessionService) Get(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	session, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, models.SessionNotFound(id)
	}
	return session, nil
}

// SaveForm validates the fields and overwrites the session's form.
func (s *SessionService) SaveForm(ctx context.Context, id uuid.UUID, fields models.FormFields) (*models.Session, error) {
	if err := fields.Validate(); err != nil {
		return nil, err
	}
	session, err := s.repo.SaveFormFields(ctx, id, fields)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.New(events.ReportFormSaved, id, nil))
	return session, nil
}

// UploadImage runs admission against the current snapshot and stores the image when it
// passes. Nothing is written for a rejected upload.
func (s *SessionService) UploadImage(ctx context.Context, id uuid.UUID, upload admission.Upload) (*models.ImageMeta, error) {
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	admitted, err := s.admission.Admit(session, upload)
	if err != nil {
		s.logger.InfoContext(ctx, "upload rejected",
			"session_id", id.String(),
			"group", upload.Group.String(),
			"reason", err.Error(),
		)
		return nil, err
	}

	image, err := s.repo.SaveImage(ctx, id, storage.SaveImageParams{
		Group:            admitted.Group,
		Data:             bytes.NewReader(admitted.Data),
		OriginalFilename: admitted.Filename,
		SizeBytes:        int64(len(admitted.Data)),
		Width:            admitted.Width,
		Height:           admitted.Height,
		MaxSessionBytes:  s.admission.Policy().MaxSessionBytes,
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.New(events.ReportImageAdmitted, id, events.ImageAdmittedPayload(image.GroupName.String(), image.ID, image.SizeBytes)))
	return image, nil
}

// Artifact returns the downloadable report, or an error wrapping
// models.ErrSessionNotFound when the session or its bytes are gone.
func (s *SessionService) Artifact(ctx context.Context, id uuid.UUID) (*models.ArtifactRef, error) {
	ref, err := s.repo.GetArtifactRef(ctx, id)
	if err != nil {
		return nil, err
	}
	if ref == nil {
		return nil, models.SessionNotFound(id)
	}
	return ref, nil
}

func (s *SessionService) publish(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to publish event",
			"event", string(event.Type),
			"session_id", event.SessionID.String(),
			"error", err,
		)
	}
}
