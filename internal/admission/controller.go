package admission

import (
	"fmt"

	"reportr-backend/internal/models"
)

// Upload is an image as received from the client.
type Upload struct {
	Group       models.PhotoGroup
	ContentType string
	Filename    string
	// SizeBytes is the size declared by the transport; the larger of it and len(Data)
	// is checked.
	SizeBytes int64
	Data      []byte
}

// Admitted is an upload that passed every check, with its measured dimensions.
type Admitted struct {
	Upload
	Width  int
	Height int
}

// Controller gates uploads against a Policy before they reach the repository.
type Controller struct {
	policy   Policy
	measurer Measurer
}

func NewController(policy Policy, measurer Measurer) *Controller {
	if measurer == nil {
		measurer = DecodeConfigMeasurer{}
	}
	return &Controller{policy: policy, measurer: measurer}
}

func (c *Controller) Policy() Policy {
	return c.policy
}

// Admit runs the checks in a fixed order and stops at the first failure: session
// state, content type, file size, group capacity, session size, then decoded
// dimensions. Rejections are *models.AdmissionError or *models.ConflictError.
func (c *Controller) Admit(session *models.Session, upload Upload) (*Admitted, error) {
	if session.Status != models.StatusDraft {
		return nil, &models.ConflictError{
			Reason:  models.ConflictSessionNotDraft,
			Status:  session.Status,
			Message: fmt.Sprintf("cannot upload images: report session is %s", session.Status),
		}
	}

	if !c.policy.Allows(upload.ContentType) {
		return nil, &models.AdmissionError{
			Reason:       models.ReasonUnsupportedMediaType,
			Message:      fmt.Sprintf("content type %q is not accepted", upload.ContentType),
			ContentType:  upload.ContentType,
			AllowedTypes: c.policy.AllowedContentTypes,
		}
	}

	size := upload.SizeBytes
	if n := int64(len(upload.Data)); n > size {
		size = n
	}
	if size > c.policy.MaxFileBytes {
		return nil, &models.AdmissionError{
			Reason:     models.ReasonFileTooLarge,
			Message:    fmt.Sprintf("image is %d bytes, the limit is %d", size, c.policy.MaxFileBytes),
			SizeBytes:  size,
			LimitBytes: c.policy.MaxFileBytes,
		}
	}

	limits := upload.Group.Limits()
	if current := session.ImageCount(upload.Group); current >= limits.Max {
		return nil, &models.AdmissionError{
			Reason:       models.ReasonPhotoGroupFull,
			Message:      fmt.Sprintf("photo group %s already holds %d of %d images", upload.Group, current, limits.Max),
			Group:        upload.Group,
			CurrentCount: current,
			MaxCount:     limits.Max,
		}
	}

	if total := session.TotalImageBytes() + size; total > c.policy.MaxSessionBytes {
		return nil, &models.AdmissionError{
			Reason:     models.ReasonSessionTooLarge,
			Message:    fmt.Sprintf("session would hold %d bytes of images, the limit is %d", total, c.policy.MaxSessionBytes),
			SizeBytes:  total,
			LimitBytes: c.policy.MaxSessionBytes,
		}
	}

	width, height, err := c.measurer.Measure(upload.Data)
	if err != nil {
		return nil, &models.AdmissionError{
			Reason:  models.ReasonInvalidImage,
			Message: "file could not be decoded as an image: " + err.Error(),
		}
	}
	if longer := max(width, height); longer > c.policy.MaxPixels {
		return nil, &models.AdmissionError{
			Reason:      models.ReasonDimensionsTooLarge,
			Message:     fmt.Sprintf("image is %dx%d pixels, the longer side may be at most %d", width, height, c.policy.MaxPixels),
			Width:       width,
			Height:      height,
			LimitPixels: c.policy.MaxPixels,
		}
	}

	return &Admitted{Upload: upload, Width: width, Height: height}, nil
}
