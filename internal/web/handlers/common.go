package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/kozaktomas/face-gallery/internal/embedding"
	"github.com/kozaktomas/face-gallery/internal/gallery"
	"github.com/kozaktomas/face-gallery/internal/recognition"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// maxBodyBytes caps JSON request bodies; a batch of 512-d vectors fits easily.
const maxBodyBytes = 32 << 20

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// decodeJSON decodes the request body into dst, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return false
	}
	return true
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, gallery.ErrCapacityExceeded),
		errors.Is(err, gallery.ErrDuplicateIdentity),
		errors.Is(err, gallery.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, gallery.ErrIdentityNotFound):
		return http.StatusNotFound
	case errors.Is(err, embedding.ErrDimensionMismatch),
		errors.Is(err, embedding.ErrInvalidVector),
		errors.Is(err, gallery.ErrInvalidIdentity):
		return http.StatusBadRequest
	case errors.Is(err, recognition.ErrNoFaceDetected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, gallery.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondDomainError sends err with the status chosen by errorStatus.
func respondDomainError(w http.ResponseWriter, err error) {
	respondError(w, errorStatus(err), err.Error())
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
