package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"reportr-backend/internal/models"
	"reportr-backend/internal/services"
)

type ReportsHandler struct {
	sessions   *services.SessionService
	generation *services.GenerationService
}

func NewReportsHandler(sessions *services.SessionService, generation *services.GenerationService) *ReportsHandler {
	return &ReportsHandler{
		sessions:   sessions,
		generation: generation,
	}
}

// CreateReport godoc
// @Summary     Create a report session
// @Description Starts an empty draft session. Form fields and photographs are added to it
// @Description before the PDF is generated.
// @Tags        reports
// @Produce     json
// @Success     201 {object} models.SessionStatusResponse
// @Failure     500 {object} models.ErrorResponse
// @Router      /reports [post]
func (h *ReportsHandler) CreateReport(c *gin.Context) {
	session, err := h.sessions.Create(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, models.SessionStatusResponse{
		SessionID: session.ID,
		Status:    session.Status,
	})
}

// GetReport godoc
// @Summary     Get a report session
// @Tags        reports
// @Produce     json
// @Param       id path string true "Session ID (UUID)"
// @Success     200 {object} models.Session
// @Failure     400 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Router      /reports/{id} [get]
func (h *ReportsHandler) GetReport(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	session, err := h.sessions.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// SaveForm godoc
// @Summary     Save form fields
// @Description Replaces the session's form fields. Every violated field is reported at once.
// @Tags        reports
// @Accept      json
// @Produce     json
// @Param       id   path string            true "Session ID (UUID)"
// @Param       form body models.FormFields true "Form fields"
// @Success     200 {object} models.Session
// @Failure     400 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Failure     409 {object} models.ErrorResponse
// @Failure     422 {object} models.ErrorResponse
// @Router      /reports/{id} [put]
func (h *ReportsHandler) SaveForm(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	var fields models.FormFields
	if err := c.ShouldBindJSON(&fields); err != nil {
		if verr := typeMismatch(err); verr != nil {
			respondError(c, verr)
			return
		}
		respondBadRequest(c, "invalid request body: "+err.Error(), nil)
		return
	}
	session, err := h.sessions.SaveForm(c.Request.Context(), id, fields)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// GenerateReport godoc
// @Summary     Generate the PDF report
// @Description Renders the report once every requirement is met. Repeated calls return the
// @Description existing report without rendering again.
// @Tags        reports
// @Produce     json
// @Param       id path string true "Session ID (UUID)"
// @Success     200 {object} models.GenerateReportResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Failure     409 {object} models.ErrorResponse
// @Failure     422 {object} models.IncompleteSessionResponse
// @Failure     500 {object} models.ErrorResponse
// @Failure     503 {object} models.ErrorResponse
// @Router      /reports/{id}/generate [post]
func (h *ReportsHandler) GenerateReport(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	result, err := h.generation.RequestGeneration(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.GenerateReportResponse{
		SessionID:   result.SessionID,
		DownloadURL: result.DownloadURL,
	})
}

// DownloadReport godoc
// @Summary     Download the PDF report
// @Tags        reports
// @Produce     application/pdf
// @Param       id path string true "Session ID (UUID)"
// @Success     200 {file} file
// @Failure     400 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Router      /reports/{id}/download [get]
func (h *ReportsHandler) DownloadReport(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	ref, err := h.sessions.Artifact(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Type", "application/pdf")
	c.FileAttachment(ref.Path, ref.FileName)
}

// typeMismatch reports a well-formed body whose value has the wrong JSON type for a
// form field as a validation failure on that field.
func typeMismatch(err error) *models.ValidationError {
	var typeErr *json.UnmarshalTypeError
	if !errors.As(err, &typeErr) {
		return nil
	}
	field := typeErr.Field
	if field == "" {
		field = "form_fields"
	}
	return &models.ValidationError{Violations: []models.FieldViolation{{
		Field:   field,
		Rule:    "type",
		Param:   typeErr.Type.String(),
		Message: fmt.Sprintf("%s must be a %s, got %s", field, jsonTypeName(typeErr.Type.Kind().String()), typeErr.Value),
	}}}
}

func jsonTypeName(kind string) string {
	switch kind {
	case "int", "int8", "int16", "int32", "int64", "uint", "uint8", "uint16", "uint32", "uint64", "float32", "float64":
		return "number"
	case "struct", "map":
		return "object"
	case "slice", "array":
		return "array"
	default:
		return kind
	}
}
