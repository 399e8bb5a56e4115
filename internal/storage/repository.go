package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"reportr-backend/internal/models"
)

// Option configures a FileSystemRepository.
type Option func(*FileSystemRepository)

// WithClock overrides the time source used for created_at and expiry.
func WithClock(now func() time.Time) Option {
	return func(r *FileSystemRepository) {
		r.now = now
	}
}

// FileSystemRepository stores one directory per session under sessionsRoot
// (session.json plus images/<group>/<file>) and one directory per session under
// reportsRoot holding the rendered PDF.
type FileSystemRepository struct {
	sessionsRoot string
	reportsRoot  string
	now          func() time.Time
	locks        sessionLocks
}

// SaveImageParams carries an admitted upload into the repository.
type SaveImageParams struct {
	Group            models.PhotoGroup
	Data             io.Reader
	OriginalFilename string
	SizeBytes        int64
	Width            int
	Height           int
	// MaxSessionBytes caps the session's total image bytes; zero means no cap.
	MaxSessionBytes  int64
}

// NewFileSystemRepository creates both roots if needed.
func NewFileSystemRepository(sessionsRoot, reportsRoot string, opts ...Option) (*FileSystemRepository, error) {
	for _, dir := range []string{sessionsRoot, reportsRoot} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory %s: %w", dir, err)
		}
	}
	r := &FileSystemRepository{
		sessionsRoot: sessionsRoot,
		reportsRoot:  reportsRoot,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *FileSystemRepository) SessionsRoot() string { return r.sessionsRoot }

func (r *FileSystemRepository) ReportsRoot() string { return r.reportsRoot }

func (r *FileSystemRepository) sessionDir(id uuid.UUID) string {
	return filepath.Join(r.sessionsRoot, id.String())
}

func (r *FileSystemRepository) metadataPath(id uuid.UUID) string {
	return filepath.Join(r.sessionDir(id), metadataFileName)
}

func (r *FileSystemRepository) imagesDir(id uuid.UUID) string {
	return filepath.Join(r.sessionDir(id), imagesDirName)
}

func (r *FileSystemRepository) reportsDir(id uuid.UUID) string {
	return filepath.Join(r.reportsRoot, id.String())
}

// ImagePath returns where the bytes of a stored image live.
func (r *FileSystemRepository) ImagePath(sessionID uuid.UUID, image models.ImageMeta) string {
	return filepath.Join(r.imagesDir(sessionID), string(image.GroupName), image.StoredFilename)
}

// Create persists a new empty draft session. The session directory is assembled under a
// staging name and renamed into place, so it either fully exists or not at all.
func (r *FileSystemRepository) Create(ctx context.Context) (*models.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	session := models.NewSession(uuid.New(), r.now())

	staging := filepath.Join(r.sessionsRoot, stagingPrefix+session.ID.String())
	if err := os.MkdirAll(filepath.Join(staging, imagesDirName), 0o755); err != nil {
		os.RemoveAll(staging)
		return nil, &models.StorageError{Op: "create", SessionID: session.ID, Err: err}
	}
	if err := writeJSONAtomic(filepath.Join(staging, metadataFileName), session); err != nil {
		os.RemoveAll(staging)
		return nil, &models.StorageError{Op: "create", SessionID: session.ID, Err: err}
	}
	if err := os.Rename(staging, r.sessionDir(session.ID)); err != nil {
		os.RemoveAll(staging)
		return nil, &models.StorageError{Op: "create", SessionID: session.ID, Err: err}
	}
	return session, nil
}

// Get returns the latest persisted snapshot, or (nil, nil) when the id is unknown.
func (r *FileSystemRepository) Get(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.read(id)
}

func (r *FileSystemRepository) read(id uuid.UUID) (*models.Session, error) {
	data, err := os.ReadFile(r.metadataPath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &models.StorageError{Op: "read", SessionID: id, Err: err}
	}
	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, &models.StorageError{Op: "read", SessionID: id, Err: fmt.Errorf("decode metadata: %w", err)}
	}
	if session.Images == nil {
		session.Images = make(map[models.PhotoGroup][]models.ImageMeta)
	}
	return &session, nil
}

func (r *FileSystemRepository) write(session *models.Session) error {
	if err := writeJSONAtomic(r.metadataPath(session.ID), session); err != nil {
		return &models.StorageError{Op: "write", SessionID: session.ID, Err: err}
	}
	return nil
}

// mutate loads a session under its lock, applies fn and persists the result.
func (r *FileSystemRepository) mutate(ctx context.Context, id uuid.UUID, fn func(*models.Session) error) (*models.Session, error) {
	unlock := r.locks.lock(id)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	session, err := r.read(id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, models.SessionNotFound(id)
	}
	if err := fn(session); err != nil {
		return nil, err
	}
	if err := r.write(session); err != nil {
		return nil, err
	}
	return session, nil
}

func requireDraft(session *models.Session, action string) error {
	if session.Status == models.StatusDraft {
		return nil
	}
	return &models.ConflictError{
		Reason:  models.ConflictSessionNotDraft,
		Status:  session.Status,
		Message: fmt.Sprintf("cannot %s: report session is %s", action, session.Status),
	}
}

// SaveFormFields overwrites the form-fields slot of a draft session.
func (r *FileSystemRepository) SaveFormFields(ctx context.Context, id uuid.UUID, fields models.FormFields) (*models.Session, error) {
	return r.mutate(ctx, id, func(session *models.Session) error {
		if err := requireDraft(session, "save form fields"); err != nil {
			return err
		}
		session.FormFields = &fields
		return nil
	})
}

// SaveImage writes the image bytes, then appends and persists the metadata. When the
// metadata write fails the new file is removed again, so the session never references a
// missing file nor leaves an unreferenced one behind.
//
// Status, group capacity and the session byte total are re-checked under the session
// lock; admission runs on an earlier snapshot and two uploads may race past it.
func (r *FileSystemRepository) SaveImage(ctx context.Context, id uuid.UUID, params SaveImageParams) (*models.ImageMeta, error) {
	if !params.Group.Valid() {
		return nil, fmt.Errorf("unknown photo group %q", params.Group)
	}

	unlock := r.locks.lock(id)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	session, err := r.read(id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, models.SessionNotFound(id)
	}
	if err := requireDraft(session, "upload images"); err != nil {
		return nil, err
	}
	limits := params.Group.Limits()
	if current := session.ImageCount(params.Group); current >= limits.Max {
		return nil, &models.AdmissionError{
			Reason:       models.ReasonPhotoGroupFull,
			Message:      fmt.Sprintf("photo group %s already holds %d of %d images", params.Group, current, limits.Max),
			Group:        params.Group,
			CurrentCount: current,
			MaxCount:     limits.Max,
		}
	}
	if params.MaxSessionBytes > 0 {
		if total := session.TotalImageBytes() + params.SizeBytes; total > params.MaxSessionBytes {
			return nil, &models.AdmissionError{
				Reason:     models.ReasonSessionTooLarge,
				Message:    fmt.Sprintf("session would hold %d bytes of images, the limit is %d", total, params.MaxSessionBytes),
				SizeBytes:  total,
				LimitBytes: params.MaxSessionBytes,
			}
		}
	}

	imageID := uuid.New()
	meta := models.ImageMeta{
		ID:               imageID,
		GroupName:        params.Group,
		OriginalFilename: params.OriginalFilename,
		StoredFilename:   imageID.String() + resolveExtension(params.OriginalFilename),
		SizeBytes:        params.SizeBytes,
		Width:            params.Width,
		Height:           params.Height,
	}

	path := r.ImagePath(id, meta)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &models.StorageError{Op: "save image", SessionID: id, Err: err}
	}
	written, err := writeFileAtomic(path, params.Data)
	if err != nil {
		return nil, &models.StorageError{Op: "save image", SessionID: id, Err: err}
	}
	if meta.SizeBytes == 0 {
		meta.SizeBytes = written
	}

	session.Images[params.Group] = append(session.Images[params.Group], meta)
	if err := r.write(session); err != nil {
		os.Remove(path)
		return nil, err
	}
	return &meta, nil
}

// PersistArtifact writes the rendered report and marks the session completed in a
// single metadata write.
func (r *FileSystemRepository) PersistArtifact(ctx context.Context, id uuid.UUID, data []byte) (*models.ArtifactRef, error) {
	var ref *models.ArtifactRef
	_, err := r.mutate(ctx, id, func(session *models.Session) error {
		dir := r.reportsDir(id)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &models.StorageError{Op: "persist artifact", SessionID: id, Err: err}
		}
		path := filepath.Join(dir, artifactFileName(session))
		if _, err := writeFileAtomic(path, bytes.NewReader(data)); err != nil {
			return &models.StorageError{Op: "persist artifact", SessionID: id, Err: err}
		}
		info, err := os.Stat(path)
		if err != nil {
			return &models.StorageError{Op: "persist artifact", SessionID: id, Err: err}
		}
		session.Status = models.StatusCompleted
		session.GeneratedPDFPath = &path
		ref = newArtifactRef(id, path, info)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ref, nil
}

func artifactFileName(session *models.Session) string {
	slug := ""
	if session.FormFields != nil {
		slug = slugify(session.FormFields.BuildingDetails.BuildingName)
	}
	if slug == "" {
		slug = session.ID.String()
	}
	return artifactPrefix + slug + artifactExt
}

func newArtifactRef(id uuid.UUID, path string, info fs.FileInfo) *models.ArtifactRef {
	return &models.ArtifactRef{
		SessionID: id,
		Path:      path,
		FileName:  filepath.Base(path),
		SizeBytes: info.Size(),
		ModTime:   info.ModTime(),
	}
}

// GetArtifactRef returns a reference only when the artifact bytes exist. A recorded path
// whose file is gone reports as absent. Without a recorded path the session's reports
// directory is scanned, which finds a report written just before a crash.
func (r *FileSystemRepository) GetArtifactRef(ctx context.Context, id uuid.UUID) (*models.ArtifactRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	session, err := r.read(id)
	if err != nil || session == nil {
		return nil, err
	}
	return r.resolveArtifact(session)
}

func (r *FileSystemRepository) resolveArtifact(session *models.Session) (*models.ArtifactRef, error) {
	if session.GeneratedPDFPath != nil {
		info, err := os.Stat(*session.GeneratedPDFPath)
		if err == nil && info.Mode().IsRegular() {
			return newArtifactRef(session.ID, *session.GeneratedPDFPath, info), nil
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, &models.StorageError{Op: "stat artifact", SessionID: session.ID, Err: err}
		}
		return nil, nil
	}

	dir := r.reportsDir(session.ID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &models.StorageError{Op: "scan artifacts", SessionID: session.ID, Err: err}
	}
	var newest *models.ArtifactRef
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || strings.HasPrefix(name, ".") || !strings.EqualFold(filepath.Ext(name), artifactExt) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if newest == nil || info.ModTime().After(newest.ModTime) {
			newest = newArtifactRef(session.ID, filepath.Join(dir, name), info)
		}
	}
	return newest, nil
}

// SetStatus overwrites the status unconditionally.
func (r *FileSystemRepository) SetStatus(ctx context.Context, id uuid.UUID, status models.Status) (*models.Session, error) {
	return r.mutate(ctx, id, func(session *models.Session) error {
		session.Status = status
		return nil
	})
}

// SetStatusIf moves the session from expected to next, or returns a *ConflictError
// carrying the status it actually found.
func (r *FileSystemRepository) SetStatusIf(ctx context.Context, id uuid.UUID, expected, next models.Status) (*models.Session, error) {
	return r.mutate(ctx, id, func(session *models.Session) error {
		if session.Status != expected {
			reason := models.ConflictStatusChanged
			if session.Status == models.StatusGenerating {
				reason = models.ConflictGenerationInProgress
			}
			return &models.ConflictError{
				Reason:  reason,
				Status:  session.Status,
				Message: fmt.Sprintf("report session is %s, expected %s", session.Status, expected),
			}
		}
		session.Status = next
		return nil
	})
}

// MarkCompleted records an artifact that already exists on disk and flips the session to
// completed.
func (r *FileSystemRepository) MarkCompleted(ctx context.Context, id uuid.UUID, ref *models.ArtifactRef) (*models.Session, error) {
	return r.mutate(ctx, id, func(session *models.Session) error {
		path := ref.Path
		session.Status = models.StatusCompleted
		session.GeneratedPDFPath = &path
		return nil
	})
}

// DeleteImages removes the stored image bytes. Form fields, status, artifact and image
// metadata are left as they are.
func (r *FileSystemRepository) DeleteImages(ctx context.Context, id uuid.UUID) error {
	unlock := r.locks.lock(id)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.RemoveAll(r.imagesDir(id)); err != nil {
		return &models.StorageError{Op: "delete images", SessionID: id, Err: err}
	}
	return nil
}

// DeleteExpired removes every non-completed session created before now-maxAge, together
// with any partial artifact. Sessions with unreadable metadata are skipped. Removal
// failures are joined into the returned error; the count covers what was removed.
func (r *FileSystemRepository) DeleteExpired(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := r.now().Add(-maxAge)
	entries, err := os.ReadDir(r.sessionsRoot)
	if err != nil {
		return 0, &models.StorageError{Op: "scan sessions", Err: err}
	}

	removed := 0
	var errs []error
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, stagingPrefix) {
			r.removeStaleStaging(entry, cutoff)
			continue
		}
		id, err := uuid.Parse(name)
		if err != nil {
			continue
		}
		ok, err := r.deleteIfExpired(id, cutoff)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			removed++
		}
	}
	return removed, errors.Join(errs...)
}

func (r *FileSystemRepository) deleteIfExpired(id uuid.UUID, cutoff time.Time) (bool, error) {
	unlock := r.locks.lock(id)
	defer unlock()

	session, err := r.read(id)
	if err != nil || session == nil {
		return false, nil
	}
	if session.Status == models.StatusCompleted || session.CreatedAt.After(cutoff) {
		return false, nil
	}
	if err := os.RemoveAll(r.sessionDir(id)); err != nil {
		return false, &models.StorageError{Op: "delete expired", SessionID: id, Err: err}
	}
	if err := os.RemoveAll(r.reportsDir(id)); err != nil {
		return false, &models.StorageError{Op: "delete expired", SessionID: id, Err: err}
	}
	return true, nil
}

// removeStaleStaging drops leftovers of a Create interrupted by a crash.
func (r *FileSystemRepository) removeStaleStaging(entry fs.DirEntry, cutoff time.Time) {
	info, err := entry.Info()
	if err != nil || info.ModTime().After(cutoff) {
		return
	}
	os.RemoveAll(filepath.Join(r.sessionsRoot, entry.Name()))
}

// RecoverInterrupted repairs sessions left in generating by a previous process. A session
// whose artifact exists becomes completed; every other one goes back to draft.
func (r *FileSystemRepository) RecoverInterrupted(ctx context.Context) (int, error) {
	sessions, err := r.List(ctx)
	if err != nil {
		return 0, err
	}
	recovered := 0
	for _, session := range sessions {
		if session.Status != models.StatusGenerating {
			continue
		}
		ref, err := r.resolveArtifact(&session)
		if err != nil {
			return recovered, err
		}
		if ref != nil {
			_, err = r.MarkCompleted(ctx, session.ID, ref)
		} else {
			_, err = r.SetStatusIf(ctx, session.ID, models.StatusGenerating, models.StatusDraft)
		}
		if err != nil {
			return recovered, err
		}
		recovered++
	}
	return recovered, nil
}

// List returns every readable session, oldest first.
func (r *FileSystemRepository) List(ctx context.Context) ([]models.Session, error) {
	entries, err := os.ReadDir(r.sessionsRoot)
	if err != nil {
		return nil, &models.StorageError{Op: "scan sessions", Err: err}
	}
	sessions := make([]models.Session, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.IsDir() {
			continue
		}
		id, err := uuid.Parse(entry.Name())
		if err != nil {
			continue
		}
		session, err := r.read(id)
		if err != nil || session == nil {
			continue
		}
		sessions = append(sessions, *session)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions, nil
}
