package models

import "github.com/google/uuid"

type SessionStatusResponse struct {
	SessionID uuid.UUID `json:"session_id"`
	Status    Status    `json:"status"`
}

type ImageUploadResponse struct {
	Image ImageMeta `json:"image"`
}

type GenerateReportResponse struct {
	SessionID   uuid.UUID `json:"session_id"`
	DownloadURL string    `json:"download_url"`
}

type PhotoGroupResponse struct {
	Name PhotoGroup `json:"name"`
	Min  int        `json:"min"`
	Max  int        `json:"max"`
}

type PhotoGroupsResponse struct {
	PhotoGroups []PhotoGroupResponse `json:"photo_groups"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the body of every non-2xx reply. Error is a stable machine-readable
// code; Message is for people.
type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// IncompleteSessionResponse is returned with 422 from the generate endpoint.
// Missing is repeated at the top level for clients that do not look inside details.
type IncompleteSessionResponse struct {
	Error   string              `json:"error"`
	Message string              `json:"message"`
	Details IncompleteDetails   `json:"details"`
	Missing MissingRequirements `json:"missing"`
}

type IncompleteDetails struct {
	Missing MissingRequirements `json:"missing"`
}
