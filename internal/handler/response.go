package handler

// RESPONSE HELPERS:
// Every endpoint replies with the same envelope:
//
//	{"success": true,  "message": "...", "user": {...}}    on success
//	{"success": false, "message": "..."}                   on error
//
// The optional payload field (user, course, courses) depends on the
// endpoint. A fixed shape means the frontend parses every response the
// same way regardless of status code.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/lms-backend/internal/apperror"
	"github.com/sakif/lms-backend/internal/model"
)

// Response is the standard envelope returned by all API endpoints.
type Response struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	User    *model.User    `json:"user,omitempty"`
	Course  *model.Course  `json:"course,omitempty"`
	Courses []model.Course `json:"courses,omitempty"`
}

// writeJSON sends a JSON response with the given status code. Headers
// and status must be written before the body; once Encode writes, header
// changes are silently ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to an HTTP status and sends the error
// envelope. This is the only place domain errors meet HTTP status codes;
// the service layer stays protocol-agnostic.
//
// Conflict maps to 400 (not 409): the API treats a duplicate email as
// just another bad request, and the frontend branches on the message.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError

		switch {
		case errors.Is(err, apperror.ErrValidation), errors.Is(err, apperror.ErrConflict):
			status = http.StatusBadRequest
		case errors.Is(err, apperror.ErrUnauthorized):
			status = http.StatusUnauthorized
		case errors.Is(err, apperror.ErrForbidden):
			status = http.StatusForbidden
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound
		}

		writeJSON(w, status, Response{Success: false, Message: appErr.Message})
		return
	}

	// Unknown error: never leak internal detail (SQL, file paths, hosts)
	// to the client.
	writeJSON(w, http.StatusInternalServerError, Response{
		Success: false,
		Message: "an internal error occurred",
	})
}
