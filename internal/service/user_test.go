package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sakif/lms-backend/internal/apperror"
	"github.com/sakif/lms-backend/internal/auth"
	"github.com/sakif/lms-backend/internal/model"
	"github.com/sakif/lms-backend/internal/storage"
)

// =========================================================================
// MOCKS
// =========================================================================

type mockUserRepo struct {
	users  map[string]*model.User // keyed by ID
	nextID int
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*model.User)}
}

func (m *mockUserRepo) Create(_ context.Context, user *model.User) error {
	for _, u := range m.users {
		if u.Email == user.Email {
			return apperror.Conflict("an account with this email already exists")
		}
	}
	m.nextID++
	user.ID = fmt.Sprintf("user-%d", m.nextID)
	if user.Role == "" {
		user.Role = model.RoleUser
	}
	if user.Subscription == "" {
		user.Subscription = model.SubscriptionInactive
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	stored := *user
	m.users[user.ID] = &stored
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	user, ok := m.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	result := *user
	return &result, nil
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			result := *u
			return &result, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (m *mockUserRepo) Update(_ context.Context, user *model.User) error {
	if _, ok := m.users[user.ID]; !ok {
		return apperror.NotFound("user", user.ID)
	}
	stored := *user
	m.users[user.ID] = &stored
	return nil
}

func (m *mockUserRepo) SetResetToken(_ context.Context, id, tokenHash string, expiresAt time.Time) error {
	user, ok := m.users[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	user.ResetTokenHash = tokenHash
	user.ResetTokenExpires = &expiresAt
	return nil
}

func (m *mockUserRepo) ClearResetToken(_ context.Context, id string) error {
	user, ok := m.users[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	user.ResetTokenHash = ""
	user.ResetTokenExpires = nil
	return nil
}

func (m *mockUserRepo) ConsumeResetToken(_ context.Context, tokenHash, newPasswordHash string, now time.Time) error {
	for _, u := range m.users {
		if u.ResetTokenHash != "" && u.ResetTokenHash == tokenHash &&
			u.ResetTokenExpires != nil && u.ResetTokenExpires.After(now) {
			u.PasswordHash = newPasswordHash
			u.ResetTokenHash = ""
			u.ResetTokenExpires = nil
			return nil
		}
	}
	return apperror.Unauthorized("reset token is invalid or has expired")
}

func (m *mockUserRepo) SetSubscription(_ context.Context, id, status string) error {
	user, ok := m.users[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	user.Subscription = status
	return nil
}

// fakeMailer records sent mail and can be told to fail.
type fakeMailer struct {
	sent    []sentMail
	failErr error
}

type sentMail struct {
	To      string
	Subject string
	Body    string
}

func (f *fakeMailer) Send(_ context.Context, to, subject, htmlBody string) error {
	if f.failErr != nil {
		return f.failErr
	}
	f.sent = append(f.sent, sentMail{To: to, Subject: subject, Body: htmlBody})
	return nil
}

// fakeMedia records uploads and deletes and can be told to fail uploads.
type fakeMedia struct {
	uploads   []string
	deletes   []string
	uploadErr error
}

func (f *fakeMedia) Upload(_ context.Context, key string, body io.Reader, _ string) (storage.Asset, error) {
	if f.uploadErr != nil {
		return storage.Asset{}, f.uploadErr
	}
	_, _ = io.Copy(io.Discard, body)
	f.uploads = append(f.uploads, key)
	return storage.Asset{ID: key, URL: "https://cdn.example.com/" + key}, nil
}

func (f *fakeMedia) Delete(_ context.Context, id string) error {
	f.deletes = append(f.deletes, id)
	return nil
}

// =========================================================================
// TEST HELPERS
// =========================================================================

type userServiceFixture struct {
	svc    *UserService
	repo   *mockUserRepo
	mailer *fakeMailer
	media  *fakeMedia
}

func newUserServiceFixture(t *testing.T) *userServiceFixture {
	t.Helper()

	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	if err != nil {
		t.Fatalf("failed to create token service: %v", err)
	}

	repo := newMockUserRepo()
	mailer := &fakeMailer{}
	media := &fakeMedia{}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	svc := NewUserService(
		repo,
		tokens,
		auth.NewPasswordServiceForTest(4),
		auth.NewResetTokenIssuer(15*time.Minute),
		mailer,
		media,
		"http://localhost:3000",
		logger,
	)

	return &userServiceFixture{svc: svc, repo: repo, mailer: mailer, media: media}
}

func (f *userServiceFixture) register(t *testing.T, email string) *AuthResult {
	t.Helper()
	result, err := f.svc.Register(context.Background(), "Test Person", email, "correct-horse", nil)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	return result
}

// =========================================================================
// REGISTER / LOGIN
// =========================================================================

func TestRegister(t *testing.T) {
	f := newUserServiceFixture(t)

	result, err := f.svc.Register(context.Background(), "Test Person", "New.User@Example.COM", "correct-horse", nil)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if result.User.Email != "new.user@example.com" {
		t.Errorf("Email = %q, want lowercased", result.User.Email)
	}
	if result.User.Role != model.RoleUser {
		t.Errorf("Role = %q, want %q", result.User.Role, model.RoleUser)
	}
	if result.User.PasswordHash == "correct-horse" {
		t.Error("password stored as plaintext")
	}
	if result.User.Avatar.URL != defaultAvatarURL {
		t.Errorf("Avatar.URL = %q, want default", result.User.Avatar.URL)
	}
	if result.Token == "" {
		t.Error("Register() must issue a session token")
	}
}

func TestRegister_ValidationFailures(t *testing.T) {
	f := newUserServiceFixture(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		fullName string
		email    string
		password string
	}{
		{"empty full name", "", "a@example.com", "correct-horse"},
		{"short full name", "Bob", "a@example.com", "correct-horse"},
		{"empty email", "Test Person", "", "correct-horse"},
		{"malformed email", "Test Person", "not-an-email", "correct-horse"},
		{"empty password", "Test Person", "a@example.com", ""},
		{"short password", "Test Person", "a@example.com", "short"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Register(ctx, tt.fullName, tt.email, tt.password, nil)
			if !errors.Is(err, apperror.ErrValidation) {
				t.Errorf("Register() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	f := newUserServiceFixture(t)
	f.register(t, "dup@example.com")

	// Different case, same account.
	_, err := f.svc.Register(context.Background(), "Other Person", "DUP@example.com", "another-pass", nil)
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("Register() error = %v, want ErrConflict", err)
	}
}

func TestRegister_AvatarUploadFailureKeepsAccount(t *testing.T) {
	f := newUserServiceFixture(t)
	f.media.uploadErr = errors.New("media host down")

	avatar := &Upload{FileName: "me.png", ContentType: "image/png", Content: strings.NewReader("img")}
	result, err := f.svc.Register(context.Background(), "Test Person", "a@example.com", "correct-horse", avatar)
	if err != nil {
		t.Fatalf("Register() error = %v, want account created despite upload failure", err)
	}
	if result.User.Avatar.URL != defaultAvatarURL {
		t.Errorf("Avatar.URL = %q, want default kept", result.User.Avatar.URL)
	}
}

func TestRegister_WithAvatar(t *testing.T) {
	f := newUserServiceFixture(t)

	avatar := &Upload{FileName: "me.png", ContentType: "image/png", Content: strings.NewReader("img")}
	result, err := f.svc.Register(context.Background(), "Test Person", "a@example.com", "correct-horse", avatar)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if result.User.Avatar.PublicID == "" {
		t.Error("Avatar.PublicID empty, want uploaded asset id")
	}
	if len(f.media.uploads) != 1 {
		t.Errorf("uploads = %d, want 1", len(f.media.uploads))
	}
}

func TestLogin(t *testing.T) {
	f := newUserServiceFixture(t)
	f.register(t, "login@example.com")

	result, err := f.svc.Login(context.Background(), "Login@Example.com", "correct-horse")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if result.Token == "" {
		t.Error("Login() must issue a session token")
	}
}

func TestLogin_WrongCredentialsAreIndistinguishable(t *testing.T) {
	f := newUserServiceFixture(t)
	f.register(t, "known@example.com")
	ctx := context.Background()

	_, errUnknown := f.svc.Login(ctx, "unknown@example.com", "correct-horse")
	_, errWrongPass := f.svc.Login(ctx, "known@example.com", "wrong-password")

	if !errors.Is(errUnknown, apperror.ErrUnauthorized) {
		t.Errorf("unknown email error = %v, want ErrUnauthorized", errUnknown)
	}
	if !errors.Is(errWrongPass, apperror.ErrUnauthorized) {
		t.Errorf("wrong password error = %v, want ErrUnauthorized", errWrongPass)
	}
	// Same message either way, or the endpoint leaks which emails exist.
	if errUnknown.Error() != errWrongPass.Error() {
		t.Errorf("error messages differ: %q vs %q", errUnknown.Error(), errWrongPass.Error())
	}
}

// =========================================================================
// FORGOT / RESET PASSWORD
// =========================================================================

func TestForgotPassword_SendsLinkWithRawToken(t *testing.T) {
	f := newUserServiceFixture(t)
	reg := f.register(t, "forgot@example.com")

	if err := f.svc.ForgotPassword(context.Background(), "forgot@example.com"); err != nil {
		t.Fatalf("ForgotPassword() error = %v", err)
	}

	if len(f.mailer.sent) != 1 {
		t.Fatalf("sent %d emails, want 1", len(f.mailer.sent))
	}
	msg := f.mailer.sent[0]
	if msg.To != "forgot@example.com" {
		t.Errorf("To = %q", msg.To)
	}
	if !strings.Contains(msg.Body, "http://localhost:3000/reset-password/") {
		t.Errorf("body does not contain reset link: %q", msg.Body)
	}

	// The stored digest must never appear in the email.
	stored, _ := f.repo.GetByID(context.Background(), reg.User.ID)
	if stored.ResetTokenHash == "" {
		t.Fatal("reset token digest not persisted")
	}
	if strings.Contains(msg.Body, stored.ResetTokenHash) {
		t.Error("email contains the stored digest instead of the raw token")
	}
}

func TestForgotPassword_UnknownEmailSucceedsQuietly(t *testing.T) {
	f := newUserServiceFixture(t)

	if err := f.svc.ForgotPassword(context.Background(), "nobody@example.com"); err != nil {
		t.Fatalf("ForgotPassword() error = %v, want nil for unknown email", err)
	}
	if len(f.mailer.sent) != 0 {
		t.Errorf("sent %d emails, want 0", len(f.mailer.sent))
	}
}

func TestForgotPassword_MailFailureClearsToken(t *testing.T) {
	f := newUserServiceFixture(t)
	reg := f.register(t, "forgot@example.com")
	f.mailer.failErr = errors.New("smtp: connection refused")

	err := f.svc.ForgotPassword(context.Background(), "forgot@example.com")
	if err == nil {
		t.Fatal("ForgotPassword() error = nil, want mail failure")
	}

	stored, _ := f.repo.GetByID(context.Background(), reg.User.ID)
	if stored.ResetTokenHash != "" || stored.ResetTokenExpires != nil {
		t.Error("reset state not cleared after mail failure")
	}
}

// extractResetToken pulls the raw token out of the emailed link.
func extractResetToken(t *testing.T, body string) string {
	t.Helper()
	const marker = "/reset-password/"
	i := strings.Index(body, marker)
	if i < 0 {
		t.Fatalf("no reset link in body: %q", body)
	}
	rest := body[i+len(marker):]
	end := strings.IndexAny(rest, "\"< \n")
	if end < 0 {
		end = len(rest)
	}
	return rest[:end]
}

func TestResetPassword(t *testing.T) {
	f := newUserServiceFixture(t)
	f.register(t, "reset@example.com")
	ctx := context.Background()

	if err := f.svc.ForgotPassword(ctx, "reset@example.com"); err != nil {
		t.Fatalf("ForgotPassword() error = %v", err)
	}
	raw := extractResetToken(t, f.mailer.sent[0].Body)

	if err := f.svc.ResetPassword(ctx, raw, "brand-new-password"); err != nil {
		t.Fatalf("ResetPassword() error = %v", err)
	}

	// Old password no longer works, new one does.
	if _, err := f.svc.Login(ctx, "reset@example.com", "correct-horse"); !errors.Is(err, apperror.ErrUnauthorized) {
		t.Errorf("Login() with old password error = %v, want ErrUnauthorized", err)
	}
	if _, err := f.svc.Login(ctx, "reset@example.com", "brand-new-password"); err != nil {
		t.Errorf("Login() with new password error = %v", err)
	}
}

func TestResetPassword_TokenIsSingleUse(t *testing.T) {
	f := newUserServiceFixture(t)
	f.register(t, "reset@example.com")
	ctx := context.Background()

	_ = f.svc.ForgotPassword(ctx, "reset@example.com")
	raw := extractResetToken(t, f.mailer.sent[0].Body)

	if err := f.svc.ResetPassword(ctx, raw, "brand-new-password"); err != nil {
		t.Fatalf("first ResetPassword() error = %v", err)
	}
	if err := f.svc.ResetPassword(ctx, raw, "yet-another-pass"); !errors.Is(err, apperror.ErrUnauthorized) {
		t.Errorf("second ResetPassword() error = %v, want ErrUnauthorized", err)
	}
}

func TestResetPassword_UnknownToken(t *testing.T) {
	f := newUserServiceFixture(t)

	err := f.svc.ResetPassword(context.Background(), "deadbeefdeadbeefdeadbeefdeadbeefdeadbeef", "brand-new-password")
	if !errors.Is(err, apperror.ErrUnauthorized) {
		t.Errorf("ResetPassword() error = %v, want ErrUnauthorized", err)
	}
}

func TestResetPassword_WeakPasswordRejectedBeforeConsuming(t *testing.T) {
	f := newUserServiceFixture(t)
	f.register(t, "reset@example.com")
	ctx := context.Background()

	_ = f.svc.ForgotPassword(ctx, "reset@example.com")
	raw := extractResetToken(t, f.mailer.sent[0].Body)

	if err := f.svc.ResetPassword(ctx, raw, "short"); !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("ResetPassword() error = %v, want ErrValidation", err)
	}
	// The token survives a rejected attempt.
	if err := f.svc.ResetPassword(ctx, raw, "brand-new-password"); err != nil {
		t.Errorf("ResetPassword() after validation failure error = %v", err)
	}
}

// =========================================================================
// CHANGE PASSWORD / PROFILE
// =========================================================================

func TestChangePassword(t *testing.T) {
	f := newUserServiceFixture(t)
	reg := f.register(t, "change@example.com")
	ctx := context.Background()

	if err := f.svc.ChangePassword(ctx, reg.User.ID, "correct-horse", "brand-new-password"); err != nil {
		t.Fatalf("ChangePassword() error = %v", err)
	}
	if _, err := f.svc.Login(ctx, "change@example.com", "brand-new-password"); err != nil {
		t.Errorf("Login() with new password error = %v", err)
	}
}

func TestChangePassword_WrongOldPassword(t *testing.T) {
	f := newUserServiceFixture(t)
	reg := f.register(t, "change@example.com")

	err := f.svc.ChangePassword(context.Background(), reg.User.ID, "wrong-old", "brand-new-password")
	if !errors.Is(err, apperror.ErrUnauthorized) {
		t.Errorf("ChangePassword() error = %v, want ErrUnauthorized", err)
	}
}

func TestChangePassword_UnknownUser(t *testing.T) {
	f := newUserServiceFixture(t)

	err := f.svc.ChangePassword(context.Background(), "ghost", "correct-horse", "brand-new-password")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("ChangePassword() error = %v, want ErrNotFound", err)
	}
}

func TestUpdateProfile_NameOnly(t *testing.T) {
	f := newUserServiceFixture(t)
	reg := f.register(t, "profile@example.com")

	updated, err := f.svc.UpdateProfile(context.Background(), reg.User.ID, "Renamed Person", nil)
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if updated.FullName != "Renamed Person" {
		t.Errorf("FullName = %q", updated.FullName)
	}
	if len(f.media.uploads) != 0 {
		t.Errorf("uploads = %d, want 0", len(f.media.uploads))
	}
}

func TestUpdateProfile_ReplacesAndDeletesOldAvatar(t *testing.T) {
	f := newUserServiceFixture(t)

	avatar := &Upload{FileName: "a.png", ContentType: "image/png", Content: strings.NewReader("img")}
	reg, err := f.svc.Register(context.Background(), "Test Person", "p@example.com", "correct-horse", avatar)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	oldID := reg.User.Avatar.PublicID

	newAvatar := &Upload{FileName: "b.png", ContentType: "image/png", Content: strings.NewReader("img2")}
	updated, err := f.svc.UpdateProfile(context.Background(), reg.User.ID, "", newAvatar)
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}

	if updated.Avatar.PublicID == oldID {
		t.Error("avatar not replaced")
	}
	if len(f.media.deletes) != 1 || f.media.deletes[0] != oldID {
		t.Errorf("deletes = %v, want [%q]", f.media.deletes, oldID)
	}
}

func TestUpdateProfile_DefaultAvatarIsNeverDeleted(t *testing.T) {
	f := newUserServiceFixture(t)
	reg := f.register(t, "profile@example.com") // default avatar, no PublicID

	newAvatar := &Upload{FileName: "b.png", ContentType: "image/png", Content: strings.NewReader("img")}
	if _, err := f.svc.UpdateProfile(context.Background(), reg.User.ID, "", newAvatar); err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if len(f.media.deletes) != 0 {
		t.Errorf("deletes = %v, want none for default avatar", f.media.deletes)
	}
}

func TestUpdateProfile_UploadFailureFailsCall(t *testing.T) {
	f := newUserServiceFixture(t)
	reg := f.register(t, "profile@example.com")
	f.media.uploadErr = errors.New("media host down")

	avatar := &Upload{FileName: "b.png", ContentType: "image/png", Content: strings.NewReader("img")}
	if _, err := f.svc.UpdateProfile(context.Background(), reg.User.ID, "", avatar); err == nil {
		t.Fatal("UpdateProfile() error = nil, want upload failure")
	}
}

// =========================================================================
// SUBSCRIPTION
// =========================================================================

func TestSubscribeAndUnsubscribe(t *testing.T) {
	f := newUserServiceFixture(t)
	reg := f.register(t, "sub@example.com")
	ctx := context.Background()

	user, err := f.svc.Subscribe(ctx, reg.User.ID)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if user.Subscription != model.SubscriptionActive {
		t.Errorf("Subscription = %q, want active", user.Subscription)
	}

	// Double subscribe is a conflict.
	if _, err := f.svc.Subscribe(ctx, reg.User.ID); !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("second Subscribe() error = %v, want ErrConflict", err)
	}

	user, err = f.svc.Unsubscribe(ctx, reg.User.ID)
	if err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if user.Subscription != model.SubscriptionInactive {
		t.Errorf("Subscription = %q, want inactive", user.Subscription)
	}

	if _, err := f.svc.Unsubscribe(ctx, reg.User.ID); !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("second Unsubscribe() error = %v, want ErrConflict", err)
	}
}
