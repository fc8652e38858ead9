package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/camden-git/faceenhancer/enhance"
)

// Error codes used in APIErrorDetail.Code.
const (
	CodeInvalidImage      = "invalid_image"
	CodeMissingImage      = "missing_image"
	CodeUnsupportedMedia  = "unsupported_media_type"
	CodePayloadTooLarge   = "payload_too_large"
	CodeInvalidRequest    = "invalid_request"
	CodeEnhancementFailed = "enhancement_failed"
	CodeNotFound          = "not_found"
	CodeQueueFull         = "queue_full"
	CodeHistoryDisabled   = "history_disabled"
	CodeInternal          = "internal_error"
)

// APIErrorDetail represents a single error in the standardized error response.
type APIErrorDetail struct {
	Code   string `json:"code"`
	Status string `json:"status"`
	Detail string `json:"detail"`
}

// APIErrorResponse represents the standardized error response body.
type APIErrorResponse struct {
	Errors []APIErrorDetail `json:"errors"`
}

// WriteAPIError writes a standardized error response with the given HTTP status, code, and detail.
func WriteAPIError(w http.ResponseWriter, httpStatus int, code string, detail string) {
	WriteAPIErrors(w, httpStatus, code, []string{detail})
}

// WriteAPIErrors writes one error entry per detail, all sharing status and code.
func WriteAPIErrors(w http.ResponseWriter, httpStatus int, code string, details []string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)

	resp := APIErrorResponse{Errors: make([]APIErrorDetail, 0, len(details))}
	for _, d := range details {
		resp.Errors = append(resp.Errors, APIErrorDetail{
			Code:   code,
			Status: strconv.Itoa(httpStatus),
			Detail: d,
		})
	}

	_ = json.NewEncoder(w).Encode(resp)
}

// writeEnhanceError maps a failed pipeline result onto the error envelope.
func writeEnhanceError(w http.ResponseWriter, err error) {
	if enhance.IsInputError(err) {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidImage, err.Error())
		return
	}
	var stageErr *enhance.StageError
	if errors.As(err, &stageErr) {
		WriteAPIError(w, http.StatusInternalServerError, CodeEnhancementFailed, stageErr.Error())
		return
	}
	WriteAPIError(w, http.StatusInternalServerError, CodeEnhancementFailed, "enhancement failed")
}
