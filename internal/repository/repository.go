// Package repository defines the persistence interfaces consumed by the
// service layer. The sqlite subpackage provides the concrete store.
package repository

import (
	"context"
	"time"

	"github.com/sakif/lms-backend/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// UserRepository persists credential records.
//
// Email uniqueness is enforced by the store (UNIQUE constraint), not by
// application code: Create returns apperror.ErrConflict on a duplicate,
// and of N concurrent creates with the same email exactly one wins.
// ConsumeResetToken is the conditional verify-and-clear update from the
// reset flow — it must be a single atomic store operation so two
// concurrent resets with the same token cannot both succeed.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	Update(ctx context.Context, user *model.User) error

	// SetResetToken stores the digest and expiry of a pending reset.
	SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error
	// ClearResetToken removes any pending reset state (e.g. after a
	// failed email dispatch).
	ClearResetToken(ctx context.Context, id string) error
	// ConsumeResetToken atomically sets the new password hash and clears
	// the reset fields for the record whose unexpired token digest
	// matches. Returns apperror.ErrUnauthorized when no record matches.
	ConsumeResetToken(ctx context.Context, tokenHash, newPasswordHash string, now time.Time) error

	SetSubscription(ctx context.Context, id, status string) error
}

// CourseRepository persists the course catalog and its nested lectures.
type CourseRepository interface {
	Create(ctx context.Context, course *model.Course) error
	// GetByID loads a course including its lectures.
	GetByID(ctx context.Context, id string) (*model.Course, error)
	// List returns courses without lectures; NumberOfLectures is filled.
	List(ctx context.Context, opts ListOptions) ([]model.Course, error)
	Update(ctx context.Context, course *model.Course) error
	Delete(ctx context.Context, id string) error
	AddLecture(ctx context.Context, lecture *model.Lecture) error
}
