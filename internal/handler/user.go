// Package handler contains the HTTP layer: request parsing, response
// writing, and cookie management. Handlers never contain business rules —
// they translate HTTP to service calls and domain errors back to HTTP.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/lms-backend/internal/apperror"
	"github.com/sakif/lms-backend/internal/auth"
	"github.com/sakif/lms-backend/internal/service"
)

// maxUploadSize bounds multipart request memory (32 MB covers avatars
// and thumbnails; lecture videos stream through the same limit per part).
const maxUploadSize = 32 << 20

// UserHandler serves the credential lifecycle endpoints under
// /api/v1/user.
type UserHandler struct {
	users  *service.UserService
	tokens *auth.TokenService
	logger *slog.Logger
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(users *service.UserService, tokens *auth.TokenService, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, tokens: tokens, logger: logger}
}

// setSessionCookie stores the session JWT in an HttpOnly, Secure cookie
// whose MaxAge matches the token TTL. HttpOnly keeps it away from
// scripts; SameSite=Lax keeps it off cross-site POSTs.
func (h *UserHandler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.tokens.TTL().Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}

// parseForm accepts either a multipart form (the frontend sends files
// this way) or urlencoded/JSON bodies, so the endpoints work from both
// HTML forms and API clients. After this call r.FormValue works for the
// non-file fields; JSON fields are returned in the map.
func parseForm(r *http.Request) (map[string]string, error) {
	ct := r.Header.Get("Content-Type")
	switch {
	case strings.HasPrefix(ct, "multipart/form-data"):
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			return nil, apperror.ValidationFailed("body", "malformed multipart form")
		}
		return nil, nil
	case strings.HasPrefix(ct, "application/json"):
		fields := map[string]string{}
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			return nil, apperror.ValidationFailed("body", "malformed JSON body")
		}
		return fields, nil
	default:
		if err := r.ParseForm(); err != nil {
			return nil, apperror.ValidationFailed("body", "malformed form body")
		}
		return nil, nil
	}
}

// field reads a named value from whichever body shape parseForm found.
func field(r *http.Request, jsonFields map[string]string, name string) string {
	if jsonFields != nil {
		return jsonFields[name]
	}
	return r.FormValue(name)
}

// formFile extracts an optional uploaded file. Returns (nil, noop, nil)
// when the field is absent. The returned closer must run after the
// service has consumed the content.
func formFile(r *http.Request, name string) (*service.Upload, func(), error) {
	if r.MultipartForm == nil {
		return nil, func() {}, nil
	}
	file, header, err := r.FormFile(name)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, func() {}, nil
	}
	if err != nil {
		return nil, func() {}, apperror.ValidationFailed(name, "could not read uploaded file")
	}
	upload := &service.Upload{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Content:     file,
	}
	return upload, func() { _ = file.Close() }, nil
}

// HandleRegister creates an account and signs the user in.
//
// HTTP: POST /api/v1/user/register
// Body: fullName, email, password, optional avatar file (multipart)
func (h *UserHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	jsonFields, err := parseForm(r)
	if err != nil {
		writeError(w, err)
		return
	}

	avatar, closeFile, err := formFile(r, "avatar")
	if err != nil {
		writeError(w, err)
		return
	}
	defer closeFile()

	result, err := h.users.Register(r.Context(),
		field(r, jsonFields, "fullName"),
		field(r, jsonFields, "email"),
		field(r, jsonFields, "password"),
		avatar,
	)
	if err != nil {
		writeError(w, err)
		return
	}

	h.setSessionCookie(w, result.Token)
	writeJSON(w, http.StatusCreated, Response{
		Success: true,
		Message: "user registered successfully",
		User:    result.User,
	})
}

// HandleLogin verifies credentials and issues the session cookie.
//
// HTTP: POST /api/v1/user/login
func (h *UserHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	jsonFields, err := parseForm(r)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.users.Login(r.Context(),
		field(r, jsonFields, "email"),
		field(r, jsonFields, "password"),
	)
	if err != nil {
		writeError(w, err)
		return
	}

	h.setSessionCookie(w, result.Token)
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "user logged in successfully",
		User:    result.User,
	})
}

// HandleLogout clears the session cookie. Stateless sessions mean the
// token stays technically valid until expiry; without the cookie the
// browser can't present it.
//
// HTTP: GET /api/v1/user/logout
func (h *UserHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	clearSessionCookie(w)
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "user logged out successfully"})
}

// HandleMe returns the signed-in user's profile.
//
// HTTP: GET /api/v1/user/me (session required)
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("authentication required"))
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "user details", User: user})
}

// HandleForgotPassword starts the reset flow. The response is the same
// whether or not the email has an account, so the endpoint cannot be
// used to enumerate addresses.
//
// HTTP: POST /api/v1/user/reset
func (h *UserHandler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	jsonFields, err := parseForm(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.users.ForgotPassword(r.Context(), field(r, jsonFields, "email")); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "if that email is registered, a reset link has been sent",
	})
}

// HandleResetPassword completes the reset flow with the raw token from
// the emailed link.
//
// HTTP: POST /api/v1/user/reset/{resetToken}
func (h *UserHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	jsonFields, err := parseForm(r)
	if err != nil {
		writeError(w, err)
		return
	}

	rawToken := chi.URLParam(r, "resetToken")
	if err := h.users.ResetPassword(r.Context(), rawToken, field(r, jsonFields, "password")); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{Success: true, Message: "password reset successfully"})
}

// HandleChangePassword replaces the signed-in user's password.
//
// HTTP: POST /api/v1/user/changed-password (session required)
func (h *UserHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("authentication required"))
		return
	}

	jsonFields, err := parseForm(r)
	if err != nil {
		writeError(w, err)
		return
	}

	err = h.users.ChangePassword(r.Context(), user.ID,
		field(r, jsonFields, "oldPassword"),
		field(r, jsonFields, "newPassword"),
	)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{Success: true, Message: "password changed successfully"})
}

// HandleUpdateProfile changes display name and/or avatar. The path id
// must be the signed-in user unless the caller is an admin.
//
// HTTP: POST /api/v1/user/update/{id} (session required)
func (h *UserHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("authentication required"))
		return
	}

	targetID := chi.URLParam(r, "id")
	if targetID != user.ID && !user.IsAdmin() {
		writeError(w, apperror.Forbidden("you can only update your own profile"))
		return
	}

	jsonFields, err := parseForm(r)
	if err != nil {
		writeError(w, err)
		return
	}

	avatar, closeFile, err := formFile(r, "avatar")
	if err != nil {
		writeError(w, err)
		return
	}
	defer closeFile()

	updated, err := h.users.UpdateProfile(r.Context(), targetID, field(r, jsonFields, "fullName"), avatar)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "profile updated successfully",
		User:    updated,
	})
}
