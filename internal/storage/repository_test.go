package storage_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reportr-backend/internal/models"
	"reportr-backend/internal/storage"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newRepo(t *testing.T, opts ...storage.Option) (*storage.FileSystemRepository, string, string) {
	t.Helper()
	root := t.TempDir()
	sessions := filepath.Join(root, "sessions")
	reports := filepath.Join(root, "reports")
	repo, err := storage.NewFileSystemRepository(sessions, reports, opts...)
	require.NoError(t, err)
	return repo, sessions, reports
}

func sampleForm() models.FormFields {
	var f models.FormFields
	f.BuildingDetails = models.BuildingDetails{
		TestingDate:      "2026-02",
		BuildingName:     "Acacia Residences",
		BuildingLocation: "Makati City",
		NumberOfStorey:   12,
	}
	f.Superstructure.RebarScanning.NumberOfRebarScanLocations = 4
	f.Superstructure.ReboundHammerTest.NumberOfReboundHammerTestLocations = 6
	f.Superstructure.ConcreteCoreExtraction.NumberOfCoringLocations = 3
	f.Superstructure.RebarExtraction.NumberOfRebarSamplesExtracted = 2
	f.Superstructure.RestorationWorks = models.RestorationWorks{
		NonShrinkGroutProductUsed: "SikaGrout 214",
		EpoxyABUsed:               "Sikadur-31",
	}
	f.Substructure.ConcreteCoreExtraction = models.FoundationCoreExtraction{
		NumberOfFoundationLocations:      2,
		NumberOfFoundationCoresExtracted: 2,
	}
	f.Signature = models.Signature{PreparedBy: "Jane Dela Cruz", PreparedByRole: "Structural Engineer"}
	return f
}

func saveImage(t *testing.T, repo *storage.FileSystemRepository, id uuid.UUID, group models.PhotoGroup, name string) *models.ImageMeta {
	t.Helper()
	data := []byte("image-bytes-" + name)
	meta, err := repo.SaveImage(context.Background(), id, storage.SaveImageParams{
		Group:            group,
		Data:             bytes.NewReader(data),
		OriginalFilename: name,
		SizeBytes:        int64(len(data)),
		Width:            800,
		Height:           600,
	})
	require.NoError(t, err)
	return meta
}

func TestCreateThenGetReturnsEmptyDraft(t *testing.T) {
	repo, sessions, _ := newRepo(t)
	ctx := context.Background()

	created, err := repo.Create(ctx)
	require.NoError(t, err)

	got, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, models.StatusDraft, got.Status)
	assert.Nil(t, got.FormFields)
	assert.Empty(t, got.Images)
	assert.Nil(t, got.GeneratedPDFPath)

	assert.FileExists(t, filepath.Join(sessions, created.ID.String(), "session.json"))
	assert.DirExists(t, filepath.Join(sessions, created.ID.String(), "images"))

	entries, err := os.ReadDir(sessions)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), "."), "staging leftovers: %s", e.Name())
	}
}

func TestGetUnknownReturnsNil(t *testing.T) {
	repo, _, _ := newRepo(t)

	got, err := repo.Get(context.Background(), uuid.New())
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetCorruptMetadataIsStorageError(t *testing.T) {
	repo, sessions, _ := newRepo(t)
	created, err := repo.Create(context.Background())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(sessions, created.ID.String(), "session.json"), []byte("{not json"), 0o644))

	_, err = repo.Get(context.Background(), created.ID)
	var storageErr *models.StorageError
	assert.ErrorAs(t, err, &storageErr)
}

func TestSaveFormFieldsRoundTrip(t *testing.T) {
	repo, _, _ := newRepo(t)
	ctx := context.Background()
	created, err := repo.Create(ctx)
	require.NoError(t, err)

	form := sampleForm()
	saved, err := repo.SaveFormFields(ctx, created.ID, form)
	require.NoError(t, err)
	require.NotNil(t, saved.FormFields)

	got, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got.FormFields)
	assert.Equal(t, form, *got.FormFields)
}

func TestSaveFormFieldsUnknownSession(t *testing.T) {
	repo, _, _ := newRepo(t)

	_, err := repo.SaveFormFields(context.Background(), uuid.New(), sampleForm())
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}

func TestSaveFormFieldsRejectedOnceGenerating(t *testing.T) {
	repo, _, _ := newRepo(t)
	ctx := context.Background()
	created, err := repo.Create(ctx)
	require.NoError(t, err)
	_, err = repo.SetStatus(ctx, created.ID, models.StatusGenerating)
	require.NoError(t, err)

	_, err = repo.SaveFormFields(ctx, created.ID, sampleForm())
	var conflict *models.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, models.ConflictSessionNotDraft, conflict.Reason)
}

func TestSaveImageStoresBytesAndMetadata(t *testing.T) {
	repo, _, _ := newRepo(t)
	ctx := context.Background()
	created, err := repo.Create(ctx)
	require.NoError(t, err)

	meta := saveImage(t, repo, created.ID, models.PhotoGroupRebarScanning, "Scan.JPG")
	assert.Equal(t, meta.ID.String()+".jpg", meta.StoredFilename)
	assert.Equal(t, "Scan.JPG", meta.OriginalFilename)

	data, err := os.ReadFile(repo.ImagePath(created.ID, *meta))
	require.NoError(t, err)
	assert.Equal(t, "image-bytes-Scan.JPG", string(data))

	got, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, got.Images[models.PhotoGroupRebarScanning], 1)
	assert.Equal(t, *meta, got.Images[models.PhotoGroupRebarScanning][0])
}

func TestSaveImageDefaultsExtension(t *testing.T) {
	repo, _, _ := newRepo(t)
	created, err := repo.Create(context.Background())
	require.NoError(t, err)

	meta := saveImage(t, repo, created.ID, models.PhotoGroupRestoration, "blob")
	assert.True(t, strings.HasSuffix(meta.StoredFilename, ".bin"))
}

func TestSaveImageEnforcesGroupMaximum(t *testing.T) {
	repo, _, _ := newRepo(t)
	created, err := repo.Create(context.Background())
	require.NoError(t, err)
	saveImage(t, repo, created.ID, models.PhotoGroupBuildingPhoto, "front.png")

	_, err = repo.SaveImage(context.Background(), created.ID, storage.SaveImageParams{
		Group:            models.PhotoGroupBuildingPhoto,
		Data:             bytes.NewReader([]byte("x")),
		OriginalFilename: "again.png",
		SizeBytes:        1,
		Width:            10,
		Height:           10,
	})
	var admission *models.AdmissionError
	require.ErrorAs(t, err, &admission)
	assert.Equal(t, models.ReasonPhotoGroupFull, admission.Reason)
	assert.Equal(t, 1, admission.CurrentCount)
	assert.Equal(t, 1, admission.MaxCount)
}

func TestSaveImageEnforcesSessionByteCeiling(t *testing.T) {
	repo, _, _ := newRepo(t)
	ctx := context.Background()
	created, err := repo.Create(ctx)
	require.NoError(t, err)

	params := func(size int) storage.SaveImageParams {
		return storage.SaveImageParams{
			Group:            models.PhotoGroupRestoration,
			Data:             bytes.NewReader(bytes.Repeat([]byte{1}, size)),
			OriginalFilename: "r.jpg",
			SizeBytes:        int64(size),
			Width:            10,
			Height:           10,
			MaxSessionBytes:  100,
		}
	}
	_, err = repo.SaveImage(ctx, created.ID, params(60))
	require.NoError(t, err)

	_, err = repo.SaveImage(ctx, created.ID, params(41))
	var admission *models.AdmissionError
	require.ErrorAs(t, err, &admission)
	assert.Equal(t, models.ReasonSessionTooLarge, admission.Reason)
	assert.Equal(t, int64(101), admission.SizeBytes)

	_, err = repo.SaveImage(ctx, created.ID, params(40))
	require.NoError(t, err)

	got, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Len(t, got.Images[models.PhotoGroupRestoration], 2)
}

func TestConcurrentSaveImageRespectsSessionByteCeiling(t *testing.T) {
	repo, _, _ := newRepo(t)
	ctx := context.Background()
	created, err := repo.Create(ctx)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.SaveImage(ctx, created.ID, storage.SaveImageParams{
				Group:            models.PhotoGroupRestoration,
				Data:             bytes.NewReader(bytes.Repeat([]byte{1}, 40)),
				OriginalFilename: "r.jpg",
				SizeBytes:        40,
				Width:            10,
				Height:           10,
				MaxSessionBytes:  100,
			})
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, accepted)
	got, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(80), got.TotalImageBytes())
}

func TestSaveImageFailedWriteKeepsEarlierImages(t *testing.T) {
	repo, _, _ := newRepo(t)
	ctx := context.Background()
	created, err := repo.Create(ctx)
	require.NoError(t, err)
	first := saveImage(t, repo, created.ID, models.PhotoGroupConcreteCoring, "one.jpg")

	_, err = repo.SaveImage(ctx, created.ID, storage.SaveImageParams{
		Group:            models.PhotoGroupConcreteCoring,
		Data:             failingReader{},
		OriginalFilename: "two.jpg",
		SizeBytes:        10,
		Width:            10,
		Height:           10,
	})
	require.Error(t, err)

	got, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, got.Images[models.PhotoGroupConcreteCoring], 1)
	assert.Equal(t, first.ID, got.Images[models.PhotoGroupConcreteCoring][0].ID)

	entries, err := os.ReadDir(filepath.Dir(repo.ImagePath(created.ID, *first)))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk on fire") }

func TestConcurrentSaveImageKeepsEveryImage(t *testing.T) {
	repo, _, _ := newRepo(t)
	ctx := context.Background()
	created, err := repo.Create(ctx)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.SaveImage(ctx, created.ID, storage.SaveImageParams{
				Group:            models.PhotoGroupRestoration,
				Data:             bytes.NewReader([]byte("img")),
				OriginalFilename: "r.jpg",
				SizeBytes:        3,
				Width:            10,
				Height:           10,
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Len(t, got.Images[models.PhotoGroupRestoration], 5)
}

func TestPersistArtifactCompletesSession(t *testing.T) {
	repo, _, reports := newRepo(t)
	ctx := context.Background()
	created, err := repo.Create(ctx)
	require.NoError(t, err)
	_, err = repo.SaveFormFields(ctx, created.ID, sampleForm())
	require.NoError(t, err)

	ref, err := repo.PersistArtifact(ctx, created.ID, []byte("%PDF-1.4 test"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(reports, created.ID.String(), "activity-report-acacia-residences.pdf"), ref.Path)
	assert.Equal(t, int64(len("%PDF-1.4 test")), ref.SizeBytes)

	got, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	require.NotNil(t, got.GeneratedPDFPath)
	assert.Equal(t, ref.Path, *got.GeneratedPDFPath)
}

func TestPersistArtifactFallsBackToSessionID(t *testing.T) {
	repo, _, _ := newRepo(t)
	created, err := repo.Create(context.Background())
	require.NoError(t, err)

	ref, err := repo.PersistArtifact(context.Background(), created.ID, []byte("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, "activity-report-"+created.ID.String()+".pdf", ref.FileName)
}

func TestGetArtifactRefDanglingPathIsAbsent(t *testing.T) {
	repo, _, _ := newRepo(t)
	ctx := context.Background()
	created, err := repo.Create(ctx)
	require.NoError(t, err)
	ref, err := repo.PersistArtifact(ctx, created.ID, []byte("%PDF"))
	require.NoError(t, err)
	require.NoError(t, os.Remove(ref.Path))

	got, err := repo.GetArtifactRef(ctx, created.ID)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetArtifactRefFindsUnrecordedReport(t *testing.T) {
	repo, _, reports := newRepo(t)
	ctx := context.Background()
	created, err := repo.Create(ctx)
	require.NoError(t, err)

	dir := filepath.Join(reports, created.ID.String())
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".tmp-123"), []byte("partial"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "activity-report-x.pdf"), []byte("%PDF"), 0o644))

	ref, err := repo.GetArtifactRef(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, "activity-report-x.pdf", ref.FileName)
}

func TestGetArtifactRefUnknownSession(t *testing.T) {
	repo, _, _ := newRepo(t)

	ref, err := repo.GetArtifactRef(context.Background(), uuid.New())
	assert.NoError(t, err)
	assert.Nil(t, ref)
}

func TestSetStatusIf(t *testing.T) {
	repo, _, _ := newRepo(t)
	ctx := context.Background()
	created, err := repo.Create(ctx)
	require.NoError(t, err)

	updated, err := repo.SetStatusIf(ctx, created.ID, models.StatusDraft, models.StatusGenerating)
	require.NoError(t, err)
	assert.Equal(t, models.StatusGenerating, updated.Status)

	_, err = repo.SetStatusIf(ctx, created.ID, models.StatusDraft, models.StatusGenerating)
	var conflict *models.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, models.ConflictGenerationInProgress, conflict.Reason)
	assert.Equal(t, models.StatusGenerating, conflict.Status)
}

func TestSetStatusIfOnlyOneConcurrentWinner(t *testing.T) {
	repo, _, _ := newRepo(t)
	ctx := context.Background()
	created, err := repo.Create(ctx)
	require.NoError(t, err)

	const callers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.SetStatusIf(ctx, created.ID, models.StatusDraft, models.StatusGenerating); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestDeleteImagesKeepsEverythingElse(t *testing.T) {
	repo, _, _ := newRepo(t)
	ctx := context.Background()
	created, err := repo.Create(ctx)
	require.NoError(t, err)
	_, err = repo.SaveFormFields(ctx, created.ID, sampleForm())
	require.NoError(t, err)
	meta := saveImage(t, repo, created.ID, models.PhotoGroupBuildingPhoto, "front.jpg")

	require.NoError(t, repo.DeleteImages(ctx, created.ID))

	assert.NoFileExists(t, repo.ImagePath(created.ID, *meta))
	got, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.FormFields)
	assert.Equal(t, models.StatusDraft, got.Status)
	assert.Len(t, got.Images[models.PhotoGroupBuildingPhoto], 1)
}

func TestDeleteExpired(t *testing.T) {
	ttl := 24 * time.Hour
	start := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: start.Add(-2 * ttl)}
	repo, sessions, reports := newRepo(t, storage.WithClock(clock.Now))
	ctx := context.Background()

	oldDraft, err := repo.Create(ctx)
	require.NoError(t, err)
	_, err = repo.PersistArtifact(ctx, oldDraft.ID, []byte("%PDF"))
	require.NoError(t, err)
	// Partial artifact from a render that never completed the session.
	_, err = repo.SetStatus(ctx, oldDraft.ID, models.StatusDraft)
	require.NoError(t, err)

	oldCompleted, err := repo.Create(ctx)
	require.NoError(t, err)
	_, err = repo.PersistArtifact(ctx, oldCompleted.ID, []byte("%PDF"))
	require.NoError(t, err)

	clock.Set(start)
	freshDraft, err := repo.Create(ctx)
	require.NoError(t, err)

	removed, err := repo.DeleteExpired(ctx, ttl)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	assert.NoDirExists(t, filepath.Join(sessions, oldDraft.ID.String()))
	assert.NoDirExists(t, filepath.Join(reports, oldDraft.ID.String()))

	for _, id := range []uuid.UUID{oldCompleted.ID, freshDraft.ID} {
		got, err := repo.Get(ctx, id)
		require.NoError(t, err)
		assert.NotNil(t, got)
	}
}

func TestDeleteExpiredSkipsCorruptMetadata(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	repo, sessions, _ := newRepo(t, storage.WithClock(clock.Now))
	created, err := repo.Create(context.Background())
	require.NoError(t, err)
	metadata := filepath.Join(sessions, created.ID.String(), "session.json")
	require.NoError(t, os.WriteFile(metadata, []byte("garbage"), 0o644))

	clock.Set(clock.Now().Add(72 * time.Hour))
	removed, err := repo.DeleteExpired(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
	assert.FileExists(t, metadata)
}

func TestRecoverInterrupted(t *testing.T) {
	repo, _, _ := newRepo(t)
	ctx := context.Background()

	stuck, err := repo.Create(ctx)
	require.NoError(t, err)
	_, err = repo.SetStatus(ctx, stuck.ID, models.StatusGenerating)
	require.NoError(t, err)

	rendered, err := repo.Create(ctx)
	require.NoError(t, err)
	ref, err := repo.PersistArtifact(ctx, rendered.ID, []byte("%PDF"))
	require.NoError(t, err)
	_, err = repo.SetStatus(ctx, rendered.ID, models.StatusGenerating)
	require.NoError(t, err)

	untouched, err := repo.Create(ctx)
	require.NoError(t, err)

	count, err := repo.RecoverInterrupted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	got, err := repo.Get(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, got.Status)

	got, err = repo.Get(ctx, rendered.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.Equal(t, ref.Path, *got.GeneratedPDFPath)

	got, err = repo.Get(ctx, untouched.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, got.Status)
}

func TestListOrdersByCreation(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	repo, _, _ := newRepo(t, storage.WithClock(clock.Now))
	ctx := context.Background()

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		s, err := repo.Create(ctx)
		require.NoError(t, err)
		ids = append(ids, s.ID)
		clock.Set(clock.Now().Add(time.Minute))
	}

	sessions, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	for i, s := range sessions {
		assert.Equal(t, ids[i], s.ID)
	}
}
