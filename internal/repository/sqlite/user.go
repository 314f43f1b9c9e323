package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/lms-backend/internal/apperror"
	"github.com/sakif/lms-backend/internal/model"
	"github.com/sakif/lms-backend/internal/repository"
)

// UserDB implements repository.UserRepository on the shared pool.
type UserDB struct {
	conn *sql.DB
}

var _ repository.UserRepository = (*UserDB)(nil)

const userColumns = `id, full_name, email, password_hash, role,
	avatar_public_id, avatar_url, subscription,
	reset_token_hash, reset_token_expires, created_at, updated_at`

// Create inserts a new credential record, assigning its id and
// timestamps. A duplicate email trips the UNIQUE constraint and comes
// back as apperror.ErrConflict — under concurrent registration attempts
// with the same email the constraint is what makes exactly one succeed.
func (db *UserDB) Create(ctx context.Context, user *model.User) error {
	now := time.Now()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Role == "" {
		user.Role = model.RoleUser
	}
	if user.Subscription == "" {
		user.Subscription = model.SubscriptionInactive
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, full_name, email, password_hash, role,
			avatar_public_id, avatar_url, subscription, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.FullName,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.Avatar.PublicID,
		user.Avatar.URL,
		user.Subscription,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "users.email") {
			return apperror.Conflict("an account with this email already exists")
		}
		return fmt.Errorf("sqlite: inserting user %s: %w", user.Email, err)
	}

	return nil
}

// GetByID retrieves a user by internal id.
// Returns apperror.ErrNotFound if no record exists.
func (db *UserDB) GetByID(ctx context.Context, id string) (*model.User, error) {
	return db.getUser(ctx, `WHERE id = ?`, id)
}

// GetByEmail retrieves a user by (lowercased) email.
func (db *UserDB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return db.getUser(ctx, `WHERE email = ?`, email)
}

func (db *UserDB) getUser(ctx context.Context, where string, arg any) (*model.User, error) {
	var (
		u       model.User
		expires sql.NullTime
	)

	err := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users `+where, arg,
	).Scan(
		&u.ID,
		&u.FullName,
		&u.Email,
		&u.PasswordHash,
		&u.Role,
		&u.Avatar.PublicID,
		&u.Avatar.URL,
		&u.Subscription,
		&u.ResetTokenHash,
		&expires,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", fmt.Sprint(arg))
		}
		return nil, fmt.Errorf("sqlite: getting user %v: %w", arg, err)
	}

	if expires.Valid {
		t := expires.Time
		u.ResetTokenExpires = &t
	}

	return &u, nil
}

// Update persists the mutable profile fields of an existing record.
// Reset-token state is managed by the dedicated methods below, never here.
func (db *UserDB) Update(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now()

	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET full_name = ?, password_hash = ?,
			avatar_public_id = ?, avatar_url = ?, subscription = ?, updated_at = ?
		 WHERE id = ?`,
		user.FullName,
		user.PasswordHash,
		user.Avatar.PublicID,
		user.Avatar.URL,
		user.Subscription,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("user", user.ID)
	}

	return nil
}

// SetResetToken stores a pending reset: digest plus expiry, both set
// together (the record invariant is both-present or both-absent).
func (db *UserDB) SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET reset_token_hash = ?, reset_token_expires = ?, updated_at = ?
		 WHERE id = ?`,
		tokenHash, expiresAt, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting reset token for user %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}

// ClearResetToken removes any pending reset state.
func (db *UserDB) ClearResetToken(ctx context.Context, id string) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE users SET reset_token_hash = '', reset_token_expires = NULL, updated_at = ?
		 WHERE id = ?`,
		time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: clearing reset token for user %s: %w", id, err)
	}
	return nil
}

// ConsumeResetToken is the verify-and-clear step of the reset flow as one
// conditional UPDATE: the new hash is written and the reset fields are
// cleared only for the row whose unexpired digest matches. Because
// matching and clearing happen in the same statement, a second concurrent
// request with the same token finds no matching row — at most one reset
// per issued token, with no read-then-write race.
func (db *UserDB) ConsumeResetToken(ctx context.Context, tokenHash, newPasswordHash string, now time.Time) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, reset_token_hash = '',
			reset_token_expires = NULL, updated_at = ?
		 WHERE reset_token_hash = ? AND reset_token_hash != ''
		   AND reset_token_expires IS NOT NULL AND reset_token_expires > ?`,
		newPasswordHash, now, tokenHash, now,
	)
	if err != nil {
		return fmt.Errorf("sqlite: consuming reset token: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: consuming reset token: %w", err)
	}
	if n == 0 {
		return apperror.Unauthorized("reset token is invalid or has expired")
	}

	return nil
}

// SetSubscription flips the entitlement flag consumed by the
// subscriber-only routes.
func (db *UserDB) SetSubscription(ctx context.Context, id, status string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET subscription = ?, updated_at = ? WHERE id = ?`,
		status, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting subscription for user %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure on
// the given column. The pure Go driver surfaces constraint errors as
// formatted messages, so matching the constraint name is the portable
// check.
func isUniqueViolation(err error, constraint string) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed: "+constraint)
}
