package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"reportr-backend/internal/models"
)

const (
	codeNotFound            = "not_found"
	codeValidationFailed    = "validation_failed"
	codeIncompleteSession   = "incomplete_session"
	codeRendererUnavailable = "renderer_unavailable"
	codeEmptyRender         = "empty_render"
	codeStorageError        = "storage_error"
	codeBadRequest          = "bad_request"
	codeInternal            = "internal_error"
)

// respondError turns a service error into its HTTP status and structured body.
// Internal details of unexpected failures are logged through c.Error, never returned.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)

	var (
		validation  *models.ValidationError
		incomplete  *models.IncompleteSessionError
		rejected    *models.AdmissionError
		conflict    *models.ConflictError
		unavailable *models.RendererUnavailableError
		storageErr  *models.StorageError
	)

	switch {
	case errors.Is(err, models.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   codeNotFound,
			Message: "report session or its report was not found",
		})

	case errors.As(err, &validation):
		c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{
			Error:   codeValidationFailed,
			Message: validation.Error(),
			Details: gin.H{"fields": validation.Violations},
		})

	case errors.As(err, &incomplete):
		c.JSON(http.StatusUnprocessableEntity, models.IncompleteSessionResponse{
			Error:   codeIncompleteSession,
			Message: incomplete.Error(),
			Details: models.IncompleteDetails{Missing: incomplete.Missing},
			Missing: incomplete.Missing,
		})

	case errors.As(err, &rejected):
		c.JSON(admissionStatus(rejected.Reason), models.ErrorResponse{
			Error:   string(rejected.Reason),
			Message: rejected.Message,
			Details: rejected,
		})

	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Error:   string(conflict.Reason),
			Message: conflict.Message,
			Details: gin.H{"status": conflict.Status},
		})

	case errors.As(err, &unavailable):
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{
			Error:   codeRendererUnavailable,
			Message: "the report renderer is unavailable, retry later",
		})

	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{
			Error:   codeRendererUnavailable,
			Message: "gave up waiting for the report renderer, retry later",
		})

	case errors.Is(err, models.ErrEmptyRender):
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   codeEmptyRender,
			Message: "the report renderer produced no output",
		})

	case errors.As(err, &storageErr):
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   codeStorageError,
			Message: "report storage failed",
		})

	default:
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   codeInternal,
			Message: "internal server error",
		})
	}
}

func admissionStatus(reason models.AdmissionReason) int {
	switch reason {
	case models.ReasonUnsupportedMediaType:
		return http.StatusUnsupportedMediaType
	case models.ReasonFileTooLarge, models.ReasonSessionTooLarge:
		return http.StatusRequestEntityTooLarge
	case models.ReasonPhotoGroupFull:
		return http.StatusConflict
	default:
		return http.StatusUnprocessableEntity
	}
}

func respondBadRequest(c *gin.Context, message string, details interface{}) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error:   codeBadRequest,
		Message: message,
		Details: details,
	})
}

// sessionID parses the :id path parameter, answering 400 itself when it is malformed.
func sessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondBadRequest(c, "invalid report session id", gin.H{"id": c.Param("id")})
		return uuid.Nil, false
	}
	return id, true
}
