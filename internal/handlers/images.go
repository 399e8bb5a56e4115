package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"reportr-backend/internal/admission"
	"reportr-backend/internal/models"
	"reportr-backend/internal/services"
)

// multipartOverhead is allowed on top of the per-file limit for headers and boundaries.
const multipartOverhead = 1 * admission.MiB

type ImagesHandler struct {
	sessions     *services.SessionService
	maxFileBytes int64
}

func NewImagesHandler(sessions *services.SessionService, policy admission.Policy) *ImagesHandler {
	return &ImagesHandler{
		sessions:     sessions,
		maxFileBytes: policy.MaxFileBytes,
	}
}

// UploadImage godoc
// @Summary     Upload a photograph
// @Description Adds one image to a photo group of a draft session. The upload is checked
// @Description for type, size, group capacity, session size and pixel dimensions, in that order.
// @Tags        reports
// @Accept      multipart/form-data
// @Produce     json
// @Param       id    path     string true "Session ID (UUID)"
// @Param       group path     string true "Photo group name"
// @Param       image formData file   true "Image file (jpeg, png or webp)"
// @Success     201 {object} models.ImageUploadResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Failure     409 {object} models.ErrorResponse
// @Failure     413 {object} models.ErrorResponse
// @Failure     415 {object} models.ErrorResponse
// @Failure     422 {object} models.ErrorResponse
// @Router      /reports/{id}/images/{group} [post]
func (h *ImagesHandler) UploadImage(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	group, ok := models.ParsePhotoGroup(c.Param("group"))
	if !ok {
		respondBadRequest(c, "unknown photo group "+c.Param("group"), gin.H{"allowed": models.PhotoGroups()})
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxFileBytes+multipartOverhead)
	mr, err := c.Request.MultipartReader()
	if err != nil {
		respondBadRequest(c, "expecting a multipart/form-data body", nil)
		return
	}
	upload, err := h.readImagePart(mr)
	if err != nil {
		if isBodyTooLarge(err) {
			respondError(c, &models.AdmissionError{
				Reason:     models.ReasonFileTooLarge,
				Message:    "image exceeds the upload size limit",
				LimitBytes: h.maxFileBytes,
			})
			return
		}
		respondBadRequest(c, err.Error(), nil)
		return
	}
	upload.Group = group

	image, err := h.sessions.UploadImage(c.Request.Context(), id, upload)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, models.ImageUploadResponse{Image: *image})
}

var errMissingImage = errors.New("multipart field 'image' is required")

// readImagePart streams parts until it reaches the "image" file and reads at most one
// byte past the file limit from it. Everything else about the upload is left to
// admission, which checks the declared type before the size.
func (h *ImagesHandler) readImagePart(mr *multipart.Reader) (admission.Upload, error) {
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return admission.Upload{}, errMissingImage
		}
		if err != nil {
			return admission.Upload{}, fmt.Errorf("failed to read upload: %w", err)
		}
		if part.FormName() != "image" || part.FileName() == "" {
			part.Close()
			continue
		}
		defer part.Close()

		data, err := io.ReadAll(io.LimitReader(part, h.maxFileBytes+1))
		if err != nil {
			return admission.Upload{}, fmt.Errorf("failed to read uploaded file: %w", err)
		}
		return admission.Upload{
			ContentType: part.Header.Get("Content-Type"),
			Filename:    part.FileName(),
			SizeBytes:   int64(len(data)),
			Data:        data,
		}, nil
	}
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large")
}
