package admission_test

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reportr-backend/internal/admission"
	"reportr-backend/internal/models"
)

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	img.Set(0, 0, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newSession() *models.Session {
	return models.NewSession(uuid.New(), time.Now())
}

func fill(session *models.Session, group models.PhotoGroup, n int, size int64) {
	for i := 0; i < n; i++ {
		session.Images[group] = append(session.Images[group], models.ImageMeta{
			ID:        uuid.New(),
			GroupName: group,
			SizeBytes: size,
			Width:     100,
			Height:    100,
		})
	}
}

func pngUpload(t *testing.T, group models.PhotoGroup, width, height int) admission.Upload {
	data := encodePNG(t, width, height)
	return admission.Upload{
		Group:       group,
		ContentType: "image/png",
		Filename:    "photo.png",
		SizeBytes:   int64(len(data)),
		Data:        data,
	}
}

func requireReason(t *testing.T, err error, reason models.AdmissionReason) *models.AdmissionError {
	t.Helper()
	var admissionErr *models.AdmissionError
	require.ErrorAs(t, err, &admissionErr)
	assert.Equal(t, reason, admissionErr.Reason)
	return admissionErr
}

func TestAdmitAcceptsValidImage(t *testing.T) {
	c := admission.NewController(admission.DefaultPolicy(), admission.DecodeConfigMeasurer{})

	admitted, err := c.Admit(newSession(), pngUpload(t, models.PhotoGroupRebarScanning, 1200, 800))
	require.NoError(t, err)
	assert.Equal(t, 1200, admitted.Width)
	assert.Equal(t, 800, admitted.Height)
}

func TestAdmitContentTypeParametersIgnored(t *testing.T) {
	c := admission.NewController(admission.DefaultPolicy(), nil)
	upload := pngUpload(t, models.PhotoGroupRebarScanning, 10, 10)
	upload.ContentType = "IMAGE/PNG; charset=binary"

	_, err := c.Admit(newSession(), upload)
	assert.NoError(t, err)
}

func TestAdmitRejectsUnsupportedMediaType(t *testing.T) {
	c := admission.NewController(admission.DefaultPolicy(), nil)
	upload := pngUpload(t, models.PhotoGroupRebarScanning, 10, 10)
	upload.ContentType = "image/gif"

	_, err := c.Admit(newSession(), upload)
	rejection := requireReason(t, err, models.ReasonUnsupportedMediaType)
	assert.Equal(t, "image/gif", rejection.ContentType)
	assert.Contains(t, rejection.AllowedTypes, "image/webp")
}

func TestAdmitRejectsOversizedFile(t *testing.T) {
	policy := admission.DefaultPolicy()
	policy.MaxFileBytes = 64
	c := admission.NewController(policy, nil)
	upload := pngUpload(t, models.PhotoGroupRebarScanning, 10, 10)
	upload.Data = bytes.Repeat([]byte{1}, 65)
	upload.SizeBytes = 65

	_, err := c.Admit(newSession(), upload)
	rejection := requireReason(t, err, models.ReasonFileTooLarge)
	assert.Equal(t, int64(65), rejection.SizeBytes)
	assert.Equal(t, int64(64), rejection.LimitBytes)
}

func TestAdmitGroupFullRegardlessOfContent(t *testing.T) {
	c := admission.NewController(admission.DefaultPolicy(), nil)
	session := newSession()
	fill(session, models.PhotoGroupCoreSamplesFamilyPic, 2, 10)

	for _, data := range [][]byte{encodePNG(t, 10, 10), []byte("not an image at all"), encodePNG(t, 4000, 10)} {
		_, err := c.Admit(session, admission.Upload{
			Group:       models.PhotoGroupCoreSamplesFamilyPic,
			ContentType: "image/png",
			SizeBytes:   int64(len(data)),
			Data:        data,
		})
		rejection := requireReason(t, err, models.ReasonPhotoGroupFull)
		assert.Equal(t, models.PhotoGroupCoreSamplesFamilyPic, rejection.Group)
		assert.Equal(t, 2, rejection.CurrentCount)
		assert.Equal(t, 2, rejection.MaxCount)
	}
}

func TestAdmitRejectsSessionTooLarge(t *testing.T) {
	c := admission.NewController(admission.DefaultPolicy(), nil)
	session := newSession()
	fill(session, models.PhotoGroupRestoration, 5, 60*admission.MiB)

	_, err := c.Admit(session, pngUpload(t, models.PhotoGroupRebarScanning, 10, 10))
	requireReason(t, err, models.ReasonSessionTooLarge)
}

func TestAdmitRejectsUndecodableBytes(t *testing.T) {
	c := admission.NewController(admission.DefaultPolicy(), nil)
	data := []byte("definitely not a png")

	_, err := c.Admit(newSession(), admission.Upload{
		Group:       models.PhotoGroupRebarScanning,
		ContentType: "image/png",
		SizeBytes:   int64(len(data)),
		Data:        data,
	})
	requireReason(t, err, models.ReasonInvalidImage)
}

func TestAdmitRejectsLongerSideOverLimit(t *testing.T) {
	c := admission.NewController(admission.DefaultPolicy(), nil)

	for _, size := range [][2]int{{1201, 10}, {10, 1201}} {
		_, err := c.Admit(newSession(), pngUpload(t, models.PhotoGroupRebarScanning, size[0], size[1]))
		rejection := requireReason(t, err, models.ReasonDimensionsTooLarge)
		assert.Equal(t, size[0], rejection.Width)
		assert.Equal(t, size[1], rejection.Height)
		assert.Equal(t, 1200, rejection.LimitPixels)
	}
}

func TestAdmitChecksRunInOrder(t *testing.T) {
	measured := false
	measurer := admission.MeasurerFunc(func([]byte) (int, int, error) {
		measured = true
		return 10, 10, nil
	})
	c := admission.NewController(admission.DefaultPolicy(), measurer)
	session := newSession()
	fill(session, models.PhotoGroupBuildingPhoto, 1, 10)

	// Wrong type and full group: the content type wins.
	_, err := c.Admit(session, admission.Upload{Group: models.PhotoGroupBuildingPhoto, ContentType: "text/plain", Data: []byte("x")})
	requireReason(t, err, models.ReasonUnsupportedMediaType)

	_, err = c.Admit(session, admission.Upload{Group: models.PhotoGroupBuildingPhoto, ContentType: "image/jpeg", Data: []byte("x")})
	requireReason(t, err, models.ReasonPhotoGroupFull)
	assert.False(t, measured)
}

func TestAdmitRejectsNonDraftSession(t *testing.T) {
	c := admission.NewController(admission.DefaultPolicy(), nil)
	session := newSession()
	session.Status = models.StatusCompleted

	_, err := c.Admit(session, pngUpload(t, models.PhotoGroupRebarScanning, 10, 10))
	var conflict *models.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, models.ConflictSessionNotDraft, conflict.Reason)
}
