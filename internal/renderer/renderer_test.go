package renderer_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reportr-backend/internal/models"
	"reportr-backend/internal/renderer"
)

type dirLocator string

func (d dirLocator) ImagePath(_ uuid.UUID, image models.ImageMeta) string {
	return filepath.Join(string(d), string(image.GroupName), image.StoredFilename)
}

func writePNG(t *testing.T, path string, width, height int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		img.Set(x, height/2, color.RGBA{B: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func completeSession(t *testing.T) (*models.Session, dirLocator) {
	t.Helper()
	locator := dirLocator(t.TempDir())
	session := models.NewSession(uuid.New(), time.Now())

	var form models.FormFields
	form.BuildingDetails = models.BuildingDetails{
		TestingDate:      "2026-02",
		BuildingName:     "Acacia Residences",
		BuildingLocation: "Makati City",
		NumberOfStorey:   12,
	}
	form.Superstructure.RebarScanning.NumberOfRebarScanLocations = 4
	form.Superstructure.ReboundHammerTest.NumberOfReboundHammerTestLocations = 6
	form.Superstructure.ConcreteCoreExtraction.NumberOfCoringLocations = 3
	form.Superstructure.RebarExtraction.NumberOfRebarSamplesExtracted = 2
	form.Superstructure.RestorationWorks.NonShrinkGroutProductUsed = "SikaGrout 214"
	form.Superstructure.RestorationWorks.EpoxyABUsed = "Sikadur-31"
	form.Substructure.ConcreteCoreExtraction.NumberOfFoundationLocations = 2
	form.Substructure.ConcreteCoreExtraction.NumberOfFoundationCoresExtracted = 2
	form.Signature.PreparedBy = "Jane Dela Cruz"
	form.Signature.PreparedByRole = "Structural Engineer"
	session.FormFields = &form

	for i, group := range models.PhotoGroups() {
		width, height := 120, 80
		if i%2 == 1 {
			width, height = 80, 120
		}
		meta := models.ImageMeta{
			ID:             uuid.New(),
			GroupName:      group,
			StoredFilename: uuid.NewString() + ".png",
			Width:          width,
			Height:         height,
		}
		writePNG(t, locator.ImagePath(session.ID, meta), width, height)
		session.Images[group] = []models.ImageMeta{meta}
	}
	return session, locator
}

func TestUnconfiguredIsNotReady(t *testing.T) {
	_, err := renderer.Unconfigured{}.Render(context.Background(), models.NewSession(uuid.New(), time.Now()))
	assert.ErrorIs(t, err, renderer.ErrNotReady)
}

func TestBuildDocumentRequiresFormFields(t *testing.T) {
	_, err := renderer.BuildDocument(models.NewSession(uuid.New(), time.Now()), dirLocator(t.TempDir()))
	assert.ErrorIs(t, err, renderer.ErrNotReady)
}

func TestBuildDocumentContent(t *testing.T) {
	session, locator := completeSession(t)

	doc, err := renderer.BuildDocument(session, locator)
	require.NoError(t, err)
	assert.Equal(t, "FEBRUARY 2026", doc.TestingMonth)
	require.NotNil(t, doc.CoverImage)
	assert.Len(t, doc.Images(), len(models.PhotoGroups()))

	var headings []string
	for _, s := range doc.Sections {
		headings = append(headings, s.Heading)
	}
	assert.Contains(t, headings, "A. INTRODUCTION")
	assert.Contains(t, headings, "B.6. Restoration Works")
	assert.Contains(t, headings, "C.3. Restoration for Coring Works, Backfilling, and Compaction")

	var intro strings.Builder
	for _, run := range doc.Sections[0].Blocks[0].Paragraph {
		intro.WriteString(run.Text)
	}
	assert.Contains(t, intro.String(), "twelve-storey building, Acacia Residences")
}

func TestBuildDocumentSkipsMissingImages(t *testing.T) {
	session, locator := completeSession(t)
	meta := session.Images[models.PhotoGroupRestoration][0]
	require.NoError(t, os.Remove(locator.ImagePath(session.ID, meta)))

	doc, err := renderer.BuildDocument(session, locator)
	require.NoError(t, err)
	assert.Len(t, doc.Images(), len(models.PhotoGroups())-1)
}

func TestFigureRowsPairsByOrientation(t *testing.T) {
	f := renderer.Figure{Images: []renderer.FigureImage{
		{Path: "a", Landscape: true},
		{Path: "b", Landscape: false},
		{Path: "c", Landscape: true},
		{Path: "d", Landscape: true},
	}}
	rows := f.Rows()
	require.Len(t, rows, 3)
	assert.Len(t, rows[0], 2)
	assert.Len(t, rows[1], 1)
	assert.Equal(t, "d", rows[1][0].Path)
	assert.Equal(t, "b", rows[2][0].Path)

	f.Large = true
	assert.Len(t, f.Rows(), 4)
}

func TestPDFRendererProducesReadablePDF(t *testing.T) {
	session, locator := completeSession(t)

	data, err := renderer.NewPDFRenderer(locator).Render(context.Background(), session)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte("%PDF")))

	info, err := renderer.Inspect(data)
	require.NoError(t, err)
	assert.Greater(t, info.Pages, 2)
}

func TestPDFRendererWithoutImages(t *testing.T) {
	session, locator := completeSession(t)
	session.Images = map[models.PhotoGroup][]models.ImageMeta{}

	data, err := renderer.NewPDFRenderer(locator).Render(context.Background(), session)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
}

func TestPDFRendererNotReadyWithoutForm(t *testing.T) {
	_, err := renderer.NewPDFRenderer(dirLocator(t.TempDir())).Render(context.Background(), models.NewSession(uuid.New(), time.Now()))
	assert.ErrorIs(t, err, renderer.ErrNotReady)
}

func TestInspectRejectsGarbage(t *testing.T) {
	_, err := renderer.Inspect([]byte("this is not a pdf"))
	assert.Error(t, err)
}

func TestGotenbergRendererEmptyURLNotReady(t *testing.T) {
	session, locator := completeSession(t)

	_, err := renderer.NewGotenbergRenderer("", locator).Render(context.Background(), session)
	assert.ErrorIs(t, err, renderer.ErrNotReady)
}

func TestGotenbergRendererSendsHTMLAndImages(t *testing.T) {
	session, locator := completeSession(t)

	var files []string
	var index string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/forms/chromium/convert/html", r.URL.Path)
		_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if !assert.NoError(t, err) {
			return
		}
		mr := multipart.NewReader(r.Body, params["boundary"])
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if !assert.NoError(t, err) {
				return
			}
			files = append(files, part.FileName())
			if part.FileName() == "index.html" {
				body, _ := io.ReadAll(part)
				index = string(body)
			}
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.7 fake"))
	}))
	defer server.Close()

	data, err := renderer.NewGotenbergRenderer(server.URL, locator).Render(context.Background(), session)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 fake", string(data))
	assert.Contains(t, files, "index.html")
	assert.Len(t, files, 1+len(models.PhotoGroups()))
	assert.Contains(t, index, "Acacia Residences")
	assert.Contains(t, index, "<strong>four (4) rebar scan locations</strong>")
	assert.Contains(t, index, `src="image-001.png"`)
}

func TestGotenbergRendererRetriesServerErrors(t *testing.T) {
	session, locator := completeSession(t)

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("%PDF"))
	}))
	defer server.Close()

	r := renderer.NewGotenbergRenderer(server.URL, locator, renderer.WithBackoffs(time.Millisecond, time.Millisecond))
	data, err := r.Render(context.Background(), session)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data))
	assert.Equal(t, int32(3), calls.Load())
}

func TestGotenbergRendererUnavailableAfterRetries(t *testing.T) {
	session, locator := completeSession(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer server.Close()

	r := renderer.NewGotenbergRenderer(server.URL, locator, renderer.WithBackoffs(time.Millisecond, time.Millisecond))
	_, err := r.Render(context.Background(), session)
	var unavailable *models.RendererUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Contains(t, err.Error(), "failed after 3 retries")
}

func TestGotenbergRendererDoesNotRetryClientErrors(t *testing.T) {
	session, locator := completeSession(t)
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad form", http.StatusBadRequest)
	}))
	defer server.Close()

	r := renderer.NewGotenbergRenderer(server.URL, locator, renderer.WithBackoffs(time.Millisecond))
	_, err := r.Render(context.Background(), session)
	require.Error(t, err)
	var unavailable *models.RendererUnavailableError
	assert.NotErrorAs(t, err, &unavailable)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRetryWithBackoff(t *testing.T) {
	r := renderer.NewGotenbergRenderer("http://gotenberg.test", nil, renderer.WithBackoffs(time.Millisecond, time.Millisecond))

	callCount := 0
	err := r.RetryWithBackoff(context.Background(), func() error {
		callCount++
		if callCount < 3 {
			return assert.AnError
		}
		return nil
	}, 3)

	assert.NoError(t, err)
	assert.Equal(t, 3, callCount)
}

func TestRetryWithBackoffStopsOnCancel(t *testing.T) {
	r := renderer.NewGotenbergRenderer("http://gotenberg.test", nil, renderer.WithBackoffs(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.RetryWithBackoff(ctx, func() error { return assert.AnError }, 3)
	assert.ErrorIs(t, err, context.Canceled)
}
