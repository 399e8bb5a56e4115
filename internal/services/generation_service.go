package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"reportr-backend/internal/events"
	"reportr-backend/internal/models"
	"reportr-backend/internal/renderer"
)

// GenerationResult is what a client needs to fetch the report.
type GenerationResult struct {
	SessionID   uuid.UUID
	DownloadURL string
	FileName    string
	// Reused is true when an existing artifact was returned without rendering.
	Reused bool
}

// DownloadURL is the API path serving a session's report.
func DownloadURL(id uuid.UUID) string {
	return fmt.Sprintf("/reports/%s/download", id)
}

// GenerationService drives a session from draft through generating to completed.
type GenerationService struct {
	repo      SessionRepository
	renderer  renderer.Renderer
	permits   *semaphore.Weighted
	publisher events.Publisher
	artifacts []ArtifactPublisher
	logger    *slog.Logger
}

// NewGenerationService wires the orchestrator. permits bounds concurrent renders across
// all sessions and is owned by the caller.
func NewGenerationService(
	repo SessionRepository,
	r renderer.Renderer,
	permits *semaphore.Weighted,
	publisher events.Publisher,
	logger *slog.Logger,
	artifacts ...ArtifactPublisher,
) *GenerationService {
	return &GenerationService{
		repo:      repo,
		renderer:  r,
		permits:   permits,
		publisher: publisher,
		artifacts: artifacts,
		logger:    logger,
	}
}

// RequestGeneration returns the session's report, rendering it first if needed.
//
// An artifact already on disk always wins over the recorded status, so retries after a
// crash or a lost response are answered without rendering again. Only the caller that
// moves the session from draft to generating renders; concurrent callers get a
// *models.ConflictError.
func (s *GenerationService) RequestGeneration(ctx context.Context, id uuid.UUID) (*GenerationResult, error) {
	session, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, models.SessionNotFound(id)
	}

	ref, err := s.repo.GetArtifactRef(ctx, id)
	if err != nil {
		return nil, err
	}
	if ref != nil {
		if session.Status != models.StatusCompleted || session.GeneratedPDFPath == nil || *session.GeneratedPDFPath != ref.Path {
			if _, err := s.repo.MarkCompleted(ctx, id, ref); err != nil {
				return nil, err
			}
			s.logger.WarnContext(ctx, "found existing report, corrected session status",
				"session_id", id.String(),
				"previous_status", string(session.Status),
			)
		}
		return s.result(id, ref, true), nil
	}

	switch session.Status {
	case models.StatusCompleted:
		return nil, &models.ConflictError{
			Reason:  models.ConflictArtifactLost,
			Status:  session.Status,
			Message: "report was generated previously but the file is missing",
		}
	case models.StatusGenerating:
		return nil, &models.ConflictError{
			Reason:  models.ConflictGenerationInProgress,
			Status:  session.Status,
			Message: "report generation is already in progress, retry later",
		}
	}

	if missing := session.MissingRequirements(); !missing.Empty() {
		return nil, &models.IncompleteSessionError{Missing: missing}
	}

	if _, err := s.repo.SetStatusIf(ctx, id, models.StatusDraft, models.StatusGenerating); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "report generation started", "session_id", id.String())
	s.publish(ctx, events.New(events.ReportGenerationStarted, id, nil))

	data, err := s.render(ctx, id)
	if err != nil {
		s.fail(ctx, id, err)
		return nil, err
	}

	ref, err = s.repo.PersistArtifact(ctx, id, data)
	if err != nil {
		s.fail(ctx, id, err)
		return nil, err
	}
	if err := s.repo.DeleteImages(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "failed to delete session images after generation",
			"session_id", id.String(),
			"error", err,
		)
	}

	s.logger.InfoContext(ctx, "report generation completed",
		"session_id", id.String(),
		"file_name", ref.FileName,
		"size_bytes", ref.SizeBytes,
	)
	s.publish(ctx, events.New(events.ReportCompleted, id, events.CompletedPayload(ref.FileName, ref.SizeBytes, false)))
	s.publishArtifact(ctx, id, ref.FileName, data)

	return s.result(id, ref, false), nil
}

// render holds a permit for the duration of one renderer call. The session is re-read
// after the permit is granted since it may have changed while waiting.
func (s *GenerationService) render(ctx context.Context, id uuid.UUID) ([]byte, error) {
	if err := s.permits.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for render permit: %w", err)
	}
	defer s.permits.Release(1)

	session, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, models.SessionNotFound(id)
	}

	data, err := s.renderer.Render(ctx, session)
	if err != nil {
		var unavailable *models.RendererUnavailableError
		if errors.Is(err, renderer.ErrNotReady) && !errors.As(err, &unavailable) {
			return nil, &models.RendererUnavailableError{Err: err}
		}
		return nil, fmt.Errorf("render report: %w", err)
	}
	if len(data) == 0 {
		return nil, models.ErrEmptyRender
	}
	return data, nil
}

// fail rolls a generating session back to draft. Rollback is best-effort and survives
// cancellation of the request context; its own failure is only logged.
func (s *GenerationService) fail(ctx context.Context, id uuid.UUID, cause error) {
	rollbackCtx := context.WithoutCancel(ctx)
	if _, err := s.repo.SetStatusIf(rollbackCtx, id, models.StatusGenerating, models.StatusDraft); err != nil {
		s.logger.ErrorContext(ctx, "failed to roll session back to draft",
			"session_id", id.String(),
			"cause", cause,
			"error", err,
		)
	}
	s.logger.WarnContext(ctx, "report generation failed",
		"session_id", id.String(),
		"error", cause,
	)
	s.publish(rollbackCtx, events.New(events.ReportGenerationFailed, id, events.GenerationFailedPayload(cause.Error())))
}

func (s *GenerationService) publishArtifact(ctx context.Context, id uuid.UUID, name string, data []byte) {
	ctx = context.WithoutCancel(ctx)
	for _, p := range s.artifacts {
		if err := p.PublishArtifact(ctx, id, name, data); err != nil {
			s.logger.WarnContext(ctx, "failed to publish report artifact",
				"session_id", id.String(),
				"file_name", name,
				"error", err,
			)
		}
	}
}

func (s *GenerationService) publish(ctx context.Context, event events.Event) {
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

func (s *GenerationService) result(id uuid.UUID, ref *models.ArtifactRef, reused bool) *GenerationResult {
	return &GenerationResult{
		SessionID:   id,
		DownloadURL: DownloadURL(id),
		FileName:    ref.FileName,
		Reused:      reused,
	}
}
