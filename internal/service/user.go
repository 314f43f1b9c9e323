// Package service contains the business logic layer of the application.
//
// Services sit between the HTTP handlers and the repositories:
//
//	Handler (HTTP)  → parses requests, writes responses, sets cookies
//	Service         → validates, enforces rules, orchestrates
//	Repository (DB) → reads/writes records
//
// Services accept primitives and small structs, never *http.Request, and
// return domain errors from the apperror package — the handler translates
// those into HTTP status codes. Every service takes its repository as an
// interface so tests can substitute in-memory fakes.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	gomail "net/mail"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/lms-backend/internal/apperror"
	"github.com/sakif/lms-backend/internal/auth"
	"github.com/sakif/lms-backend/internal/mail"
	"github.com/sakif/lms-backend/internal/model"
	"github.com/sakif/lms-backend/internal/repository"
	"github.com/sakif/lms-backend/internal/storage"
)

// Validation constants.
const (
	MinFullNameLength = 5
	MaxFullNameLength = 50
	MinPasswordLength = 8
)

// defaultAvatarURL is used when a user registers without uploading an
// avatar. A user with the default avatar has an empty Avatar.PublicID,
// which marks the asset as "not ours to delete".
const defaultAvatarURL = "https://www.gravatar.com/avatar/?d=mp"

// Upload is a file received from a multipart form, handed from the
// handler to the service. Content is consumed exactly once.
type Upload struct {
	FileName    string
	ContentType string
	Content     io.Reader
}

// AuthResult bundles the authenticated user and the issued session JWT
// so the handler can set the cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// UserService handles registration, login, and the credential lifecycle:
// password change, forgot/reset flows, profile updates, and subscription
// state. It owns every business rule around credentials; handlers only
// parse HTTP and set cookies.
type UserService struct {
	users       repository.UserRepository
	tokens      *auth.TokenService
	passwords   *auth.PasswordService
	resets      *auth.ResetTokenIssuer
	mailer      mail.Mailer
	media       storage.Service
	frontendURL string
	logger      *slog.Logger
}

// NewUserService creates a UserService with all required dependencies.
// frontendURL is the base URL reset links point at, e.g.
// "https://lms.example.com" → "https://lms.example.com/reset-password/<token>".
func NewUserService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	resets *auth.ResetTokenIssuer,
	mailer mail.Mailer,
	media storage.Service,
	frontendURL string,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		users:       users,
		tokens:      tokens,
		passwords:   passwords,
		resets:      resets,
		mailer:      mailer,
		media:       media,
		frontendURL: strings.TrimSuffix(frontendURL, "/"),
		logger:      logger,
	}
}

// Register creates a new account and signs the user in.
//
// The email is lowercased before storage so lookups are case-insensitive.
// Duplicate detection is left entirely to the repository's UNIQUE
// constraint (returned as apperror.ErrConflict) — checking first with a
// SELECT would still race under concurrency.
//
// The avatar upload is optional and best-effort: if the media host
// rejects it the account is still created with the default avatar, and
// the failure is logged. Losing an avatar is not worth losing a signup.
func (s *UserService) Register(ctx context.Context, fullName, email, password string, avatar *Upload) (*AuthResult, error) {
	fullName = strings.TrimSpace(fullName)
	if err := validateFullName(fullName); err != nil {
		return nil, err
	}

	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}

	if err := validatePassword(password); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/user: hashing password: %w", err)
	}

	user := &model.User{
		FullName:     fullName,
		Email:        email,
		PasswordHash: hash,
		Avatar:       model.Asset{URL: defaultAvatarURL},
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	if avatar != nil {
		if err := s.attachAvatar(ctx, user, avatar); err != nil {
			// The account exists; the avatar just didn't stick.
			s.logger.Warn("avatar upload failed during registration, keeping default",
				slog.String("userID", user.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/user: generating token for user %s: %w", user.ID, err)
	}

	s.logger.Info("user registered",
		slog.String("userID", user.ID),
		slog.String("email", user.Email),
	)

	return &AuthResult{User: user, Token: token}, nil
}

// Login verifies an email/password pair and issues a session token.
//
// The error for an unknown email and the error for a wrong password are
// deliberately identical, so the endpoint cannot be used to probe which
// addresses have accounts.
func (s *UserService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if password == "" {
		return nil, apperror.ValidationFailed("password", "password is required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, apperror.Unauthorized("email or password is incorrect")
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		return nil, apperror.Unauthorized("email or password is incorrect")
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/user: generating token for user %s: %w", user.ID, err)
	}

	s.logger.Info("user logged in", slog.String("userID", user.ID))

	return &AuthResult{User: user, Token: token}, nil
}

// GetProfile returns the user record for the given id.
func (s *UserService) GetProfile(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperror.ValidationFailed("id", "user ID is required")
	}
	return s.users.GetByID(ctx, id)
}

// ForgotPassword starts the password-reset flow: mint a token, persist
// its digest and expiry, and email the raw token as a link.
//
// When no account matches the email, this returns nil — the handler
// replies with the same neutral message either way, so the endpoint
// cannot be used to enumerate accounts.
//
// If the email cannot be sent, the persisted reset state is cleared
// before returning the error: a token the user never received must not
// stay redeemable.
func (s *UserService) ForgotPassword(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		s.logger.Info("password reset requested for unknown email")
		return nil
	}

	token, err := s.resets.Create()
	if err != nil {
		return fmt.Errorf("service/user: %w", err)
	}

	if err := s.users.SetResetToken(ctx, user.ID, token.Hash, token.ExpiresAt); err != nil {
		return fmt.Errorf("service/user: storing reset token: %w", err)
	}

	link := fmt.Sprintf("%s/reset-password/%s", s.frontendURL, token.Raw)
	body := fmt.Sprintf(
		`<p>You requested a password reset. Click the link below to choose a new password:</p>
<p><a href=%q target="_blank">Reset your password</a></p>
<p>If the link does not work, copy this URL into your browser:<br>%s</p>
<p>The link expires in %d minutes. If you did not request this, you can ignore this email.</p>`,
		link, link, int(time.Until(token.ExpiresAt).Minutes())+1,
	)

	if err := s.mailer.Send(ctx, user.Email, "Reset your password", body); err != nil {
		if clearErr := s.users.ClearResetToken(ctx, user.ID); clearErr != nil {
			s.logger.Error("failed to clear reset token after mail failure",
				slog.String("userID", user.ID),
				slog.String("error", clearErr.Error()),
			)
		}
		return fmt.Errorf("service/user: sending reset email: %w", err)
	}

	s.logger.Info("password reset email sent", slog.String("userID", user.ID))
	return nil
}

// ResetPassword completes the reset flow: the presented raw token is
// hashed and atomically matched-and-cleared against the stored digest.
// A token that is unknown, expired, or already used yields
// apperror.ErrUnauthorized; which of the three it was is not revealed.
func (s *UserService) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	if strings.TrimSpace(rawToken) == "" {
		return apperror.ValidationFailed("resetToken", "reset token is required")
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	hash, err := s.passwords.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("service/user: hashing password: %w", err)
	}

	if err := s.users.ConsumeResetToken(ctx, auth.HashResetToken(rawToken), hash, time.Now()); err != nil {
		return err
	}

	s.logger.Info("password reset completed")
	return nil
}

// ChangePassword replaces the password of a signed-in user after
// verifying the old one.
func (s *UserService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if oldPassword == "" {
		return apperror.ValidationFailed("oldPassword", "old password is required")
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.passwords.Verify(user.PasswordHash, oldPassword); err != nil {
		return apperror.Unauthorized("old password is incorrect")
	}

	hash, err := s.passwords.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("service/user: hashing password: %w", err)
	}

	user.PasswordHash = hash
	if err := s.users.Update(ctx, user); err != nil {
		return fmt.Errorf("service/user: updating password for user %s: %w", userID, err)
	}

	s.logger.Info("password changed", slog.String("userID", userID))
	return nil
}

// UpdateProfile changes the user's display name and/or avatar. Empty
// fullName means "don't change". Unlike registration, an avatar upload
// failure here fails the whole call — the user explicitly asked for the
// new image.
//
// Order matters: upload the new asset, persist the record, then delete
// the old asset. A failed delete leaks one orphaned object, which is
// recoverable; the reverse order could leave the record pointing at a
// deleted object.
func (s *UserService) UpdateProfile(ctx context.Context, userID, fullName string, avatar *Upload) (*model.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if fullName = strings.TrimSpace(fullName); fullName != "" {
		if err := validateFullName(fullName); err != nil {
			return nil, err
		}
		user.FullName = fullName
	}

	oldAvatarID := ""
	if avatar != nil {
		oldAvatarID = user.Avatar.PublicID
		if err := s.attachAvatar(ctx, user, avatar); err != nil {
			return nil, fmt.Errorf("service/user: uploading avatar: %w", err)
		}
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("service/user: updating profile for user %s: %w", userID, err)
	}

	if oldAvatarID != "" {
		if err := s.media.Delete(ctx, oldAvatarID); err != nil {
			s.logger.Warn("failed to delete replaced avatar",
				slog.String("userID", userID),
				slog.String("assetID", oldAvatarID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.Info("profile updated", slog.String("userID", userID))
	return user, nil
}

// Subscribe activates the user's subscription. In a full deployment this
// is called after the payment provider confirms the charge.
func (s *UserService) Subscribe(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Subscription == model.SubscriptionActive {
		return nil, apperror.Conflict("user is already subscribed")
	}

	if err := s.users.SetSubscription(ctx, userID, model.SubscriptionActive); err != nil {
		return nil, fmt.Errorf("service/user: activating subscription for user %s: %w", userID, err)
	}
	user.Subscription = model.SubscriptionActive

	s.logger.Info("subscription activated", slog.String("userID", userID))
	return user, nil
}

// Unsubscribe cancels the user's subscription.
func (s *UserService) Unsubscribe(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Subscription != model.SubscriptionActive {
		return nil, apperror.Conflict("user has no active subscription")
	}

	if err := s.users.SetSubscription(ctx, userID, model.SubscriptionInactive); err != nil {
		return nil, fmt.Errorf("service/user: cancelling subscription for user %s: %w", userID, err)
	}
	user.Subscription = model.SubscriptionInactive

	s.logger.Info("subscription cancelled", slog.String("userID", userID))
	return user, nil
}

// attachAvatar uploads the image and persists the new asset reference on
// the user record.
func (s *UserService) attachAvatar(ctx context.Context, user *model.User, avatar *Upload) error {
	key := fmt.Sprintf("avatars/%s", xid.New().String())
	asset, err := s.media.Upload(ctx, key, avatar.Content, avatar.ContentType)
	if err != nil {
		return err
	}

	user.Avatar = model.Asset{PublicID: asset.ID, URL: asset.URL}
	return s.users.Update(ctx, user)
}

func validateFullName(fullName string) error {
	if fullName == "" {
		return apperror.ValidationFailed("fullName", "full name is required")
	}
	if len(fullName) < MinFullNameLength {
		return apperror.ValidationFailed("fullName",
			fmt.Sprintf("full name must be at least %d characters", MinFullNameLength))
	}
	if len(fullName) > MaxFullNameLength {
		return apperror.ValidationFailed("fullName",
			fmt.Sprintf("full name must be %d characters or less", MaxFullNameLength))
	}
	return nil
}

// normalizeEmail validates the address and returns it lowercased.
func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", apperror.ValidationFailed("email", "email is required")
	}
	addr, err := gomail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperror.ValidationFailed("email", "email address is not valid")
	}
	return email, nil
}

func validatePassword(password string) error {
	if password == "" {
		return apperror.ValidationFailed("password", "password is required")
	}
	if len(password) < MinPasswordLength {
		return apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	return nil
}
