package auth

import (
	"context"
	"net/http"

	"github.com/sakif/lms-backend/internal/model"
)

// SessionCookie is the cookie the session JWT travels in.
const SessionCookie = "token"

// contextKey is an unexported type for this package's context keys, so no
// other package can read or shadow the authenticated user value.
type contextKey string

const userKey contextKey = "user"

// IdentityResolver resolves a token's embedded user id to the current
// credential record. Satisfied by repository.UserRepository. The store,
// not the token, is the authority on the user's current role and profile.
type IdentityResolver interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}

// RequireAuth enforces authentication on protected routes.
//
// Outcome per request is binary: the user record lands in the request
// context and the chain continues, or the request dies with 401. Steps:
// read the "token" cookie (absent → 401), validate the JWT (invalid or
// expired → 401), re-resolve the user from the store (gone → 401).
func RequireAuth(tokens *TokenService, users IdentityResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := resolveUser(r, tokens, users)
			if err != nil {
				unauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), userKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole allows the request through only when the authenticated
// user's role is in the allowed set. Must be chained after RequireAuth —
// an unauthenticated request is rejected with 401 as a safety net, not
// as a supported configuration.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				unauthorized(w)
				return
			}
			if _, ok := allowed[user.Role]; !ok {
				forbidden(w, "you do not have permission to access this resource")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSubscriber allows admins and users with an active subscription
// through; everyone else gets 403. Chained after RequireAuth.
func RequireSubscriber() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				unauthorized(w)
				return
			}
			if !user.IsSubscribed() {
				forbidden(w, "an active subscription is required to access this resource")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserFromContext retrieves the authenticated user attached by
// RequireAuth. Returns (nil, false) on routes that skipped the middleware.
func UserFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(userKey).(*model.User)
	return user, ok && user != nil
}

// resolveUser reads the session cookie, validates the JWT, and loads the
// current credential record.
func resolveUser(r *http.Request, tokens *TokenService, users IdentityResolver) (*model.User, error) {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return nil, err
	}

	userID, err := tokens.Validate(cookie.Value)
	if err != nil {
		return nil, err
	}

	return users.GetByID(r.Context(), userID)
}

func unauthorized(w http.ResponseWriter) {
	writeJSONError(w, http.StatusUnauthorized, "please log in to continue")
}

func forbidden(w http.ResponseWriter, message string) {
	writeJSONError(w, http.StatusForbidden, message)
}

// writeJSONError emits the API's standard error envelope. Duplicated from
// the handler package deliberately: middleware rejecting a request should
// not import the handler layer it guards.
func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"success":false,"message":"` + message + `"}`))
}
