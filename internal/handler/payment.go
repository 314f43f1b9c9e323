package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/lms-backend/internal/apperror"
	"github.com/sakif/lms-backend/internal/auth"
	"github.com/sakif/lms-backend/internal/service"
)

// PaymentHandler serves the subscription endpoints under
// /api/v1/payments. The actual charge happens at an external payment
// gateway; this boundary only flips the entitlement flag the
// subscriber-gated course routes consume.
type PaymentHandler struct {
	users  *service.UserService
	logger *slog.Logger
}

// NewPaymentHandler creates a PaymentHandler.
func NewPaymentHandler(users *service.UserService, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{users: users, logger: logger}
}

// HandleSubscribe activates the signed-in user's subscription.
//
// HTTP: POST /api/v1/payments/subscribe (session required)
func (h *PaymentHandler) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("authentication required"))
		return
	}

	updated, err := h.users.Subscribe(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "subscribed successfully",
		User:    updated,
	})
}

// HandleUnsubscribe cancels the signed-in user's subscription.
//
// HTTP: POST /api/v1/payments/unsubscribe (session required)
func (h *PaymentHandler) HandleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("authentication required"))
		return
	}

	updated, err := h.users.Unsubscribe(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "unsubscribed successfully",
		User:    updated,
	})
}
