package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/lms-backend/internal/apperror"
	"github.com/sakif/lms-backend/internal/model"
	"github.com/sakif/lms-backend/internal/repository"
)

// CourseDB implements repository.CourseRepository on the shared pool.
type CourseDB struct {
	conn *sql.DB
}

var _ repository.CourseRepository = (*CourseDB)(nil)

// Create inserts a new course, assigning its id and timestamps.
func (db *CourseDB) Create(ctx context.Context, course *model.Course) error {
	now := time.Now()
	course.ID = xid.New().String()
	course.CreatedAt = now
	course.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO courses (id, title, description, category,
			thumbnail_public_id, thumbnail_url, created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		course.ID,
		course.Title,
		course.Description,
		course.Category,
		course.Thumbnail.PublicID,
		course.Thumbnail.URL,
		course.CreatedBy,
		course.CreatedAt,
		course.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting course %q: %w", course.Title, err)
	}

	return nil
}

// GetByID loads a course with its lectures, ordered oldest first.
func (db *CourseDB) GetByID(ctx context.Context, id string) (*model.Course, error) {
	var c model.Course

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, title, description, category, thumbnail_public_id,
			thumbnail_url, created_by, created_at, updated_at
		 FROM courses WHERE id = ?`, id,
	).Scan(
		&c.ID,
		&c.Title,
		&c.Description,
		&c.Category,
		&c.Thumbnail.PublicID,
		&c.Thumbnail.URL,
		&c.CreatedBy,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("course", id)
		}
		return nil, fmt.Errorf("sqlite: getting course %s: %w", id, err)
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, course_id, title, description, media_public_id, media_url, created_at
		 FROM lectures WHERE course_id = ? ORDER BY created_at, id`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing lectures for course %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var l model.Lecture
		if err := rows.Scan(
			&l.ID,
			&l.CourseID,
			&l.Title,
			&l.Description,
			&l.Media.PublicID,
			&l.Media.URL,
			&l.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning lecture: %w", err)
		}
		c.Lectures = append(c.Lectures, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating lectures: %w", err)
	}

	c.NumberOfLectures = len(c.Lectures)
	return &c, nil
}

// List returns the catalog without lecture bodies; the lecture count is
// filled via a correlated subquery.
func (db *CourseDB) List(ctx context.Context, opts repository.ListOptions) ([]model.Course, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT c.id, c.title, c.description, c.category, c.thumbnail_public_id,
			c.thumbnail_url, c.created_by, c.created_at, c.updated_at,
			(SELECT COUNT(*) FROM lectures l WHERE l.course_id = c.id)
		 FROM courses c
		 ORDER BY c.created_at DESC, c.id
		 LIMIT ? OFFSET ?`,
		limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing courses: %w", err)
	}
	defer rows.Close()

	courses := []model.Course{}
	for rows.Next() {
		var c model.Course
		if err := rows.Scan(
			&c.ID,
			&c.Title,
			&c.Description,
			&c.Category,
			&c.Thumbnail.PublicID,
			&c.Thumbnail.URL,
			&c.CreatedBy,
			&c.CreatedAt,
			&c.UpdatedAt,
			&c.NumberOfLectures,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning course: %w", err)
		}
		courses = append(courses, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating courses: %w", err)
	}

	return courses, nil
}

// Update persists the mutable fields of a course.
func (db *CourseDB) Update(ctx context.Context, course *model.Course) error {
	course.UpdatedAt = time.Now()

	res, err := db.conn.ExecContext(ctx,
		`UPDATE courses SET title = ?, description = ?, category = ?,
			thumbnail_public_id = ?, thumbnail_url = ?, updated_at = ?
		 WHERE id = ?`,
		course.Title,
		course.Description,
		course.Category,
		course.Thumbnail.PublicID,
		course.Thumbnail.URL,
		course.UpdatedAt,
		course.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating course %s: %w", course.ID, err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("course", course.ID)
	}

	return nil
}

// Delete removes a course; lectures go with it via ON DELETE CASCADE.
func (db *CourseDB) Delete(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM courses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting course %s: %w", id, err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("course", id)
	}

	return nil
}

// AddLecture appends a lecture to a course.
func (db *CourseDB) AddLecture(ctx context.Context, lecture *model.Lecture) error {
	lecture.ID = xid.New().String()
	lecture.CreatedAt = time.Now()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO lectures (id, course_id, title, description,
			media_public_id, media_url, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		lecture.ID,
		lecture.CourseID,
		lecture.Title,
		lecture.Description,
		lecture.Media.PublicID,
		lecture.Media.URL,
		lecture.CreatedAt,
	)
	if err != nil {
		// FK violation means the course vanished between check and insert.
		return fmt.Errorf("sqlite: inserting lecture for course %s: %w", lecture.CourseID, err)
	}

	return nil
}
