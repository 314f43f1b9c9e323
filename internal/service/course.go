package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rs/xid"

	"github.com/sakif/lms-backend/internal/apperror"
	"github.com/sakif/lms-backend/internal/model"
	"github.com/sakif/lms-backend/internal/repository"
	"github.com/sakif/lms-backend/internal/storage"
)

// Course catalog validation constants.
const (
	MinCourseTitleLength       = 8
	MaxCourseTitleLength       = 59
	MinCourseDescriptionLength = 8
	MaxCourseDescriptionLength = 199

	DefaultCourseListLimit = 20
	MaxCourseListLimit     = 100
)

// CourseService handles the course catalog: the public listing, the
// subscriber-only lecture content, and the admin-only mutations.
// Authorization (who may call what) is enforced by middleware at the
// routing layer; this service assumes the caller is already entitled.
type CourseService struct {
	courses repository.CourseRepository
	media   storage.Service
	logger  *slog.Logger
}

// NewCourseService creates a CourseService.
func NewCourseService(courses repository.CourseRepository, media storage.Service, logger *slog.Logger) *CourseService {
	return &CourseService{
		courses: courses,
		media:   media,
		logger:  logger,
	}
}

// List returns the public catalog view: course metadata with lecture
// counts, never lecture bodies. Limit is clamped to a sane range.
func (s *CourseService) List(ctx context.Context, limit, offset int) ([]model.Course, error) {
	if limit <= 0 {
		limit = DefaultCourseListLimit
	}
	if limit > MaxCourseListLimit {
		limit = MaxCourseListLimit
	}
	if offset < 0 {
		offset = 0
	}

	courses, err := s.courses.List(ctx, repository.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		return nil, fmt.Errorf("service/course: listing courses: %w", err)
	}
	return courses, nil
}

// GetLectures returns a course including its full lecture list. This is
// the subscriber-only view — the route is gated by RequireSubscriber.
func (s *CourseService) GetLectures(ctx context.Context, id string) (*model.Course, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperror.ValidationFailed("id", "course ID is required")
	}
	return s.courses.GetByID(ctx, id)
}

// Create adds a new course to the catalog. The thumbnail is required:
// the catalog page renders one per course, and unlike avatars there is
// no sensible default image for an arbitrary course.
func (s *CourseService) Create(ctx context.Context, title, description, category, createdBy string, thumbnail *Upload) (*model.Course, error) {
	title = strings.TrimSpace(title)
	description = strings.TrimSpace(description)
	category = strings.TrimSpace(category)

	if err := validateCourseFields(title, description); err != nil {
		return nil, err
	}
	if category == "" {
		return nil, apperror.ValidationFailed("category", "category is required")
	}
	if thumbnail == nil {
		return nil, apperror.ValidationFailed("thumbnail", "course thumbnail is required")
	}

	asset, err := s.uploadAsset(ctx, "thumbnails", thumbnail)
	if err != nil {
		return nil, fmt.Errorf("service/course: uploading thumbnail: %w", err)
	}

	course := &model.Course{
		Title:       title,
		Description: description,
		Category:    category,
		Thumbnail:   asset,
		CreatedBy:   createdBy,
	}

	if err := s.courses.Create(ctx, course); err != nil {
		// The record never made it in; don't leave the thumbnail orphaned.
		if delErr := s.media.Delete(ctx, asset.PublicID); delErr != nil {
			s.logger.Warn("failed to delete thumbnail after create failure",
				slog.String("assetID", asset.PublicID),
				slog.String("error", delErr.Error()),
			)
		}
		return nil, fmt.Errorf("service/course: creating course: %w", err)
	}

	s.logger.Info("course created",
		slog.String("courseID", course.ID),
		slog.String("title", course.Title),
	)

	return course, nil
}

// Update modifies course metadata. Empty fields mean "don't change";
// a new thumbnail replaces (and deletes) the old one.
func (s *CourseService) Update(ctx context.Context, id, title, description, category string, thumbnail *Upload) (*model.Course, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperror.ValidationFailed("id", "course ID is required")
	}

	course, err := s.courses.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if title = strings.TrimSpace(title); title != "" {
		if err := validateCourseTitle(title); err != nil {
			return nil, err
		}
		course.Title = title
	}
	if description = strings.TrimSpace(description); description != "" {
		if err := validateCourseDescription(description); err != nil {
			return nil, err
		}
		course.Description = description
	}
	if category = strings.TrimSpace(category); category != "" {
		course.Category = category
	}

	oldThumbnailID := ""
	if thumbnail != nil {
		asset, err := s.uploadAsset(ctx, "thumbnails", thumbnail)
		if err != nil {
			return nil, fmt.Errorf("service/course: uploading thumbnail: %w", err)
		}
		oldThumbnailID = course.Thumbnail.PublicID
		course.Thumbnail = asset
	}

	if err := s.courses.Update(ctx, course); err != nil {
		return nil, fmt.Errorf("service/course: updating course %s: %w", id, err)
	}

	if oldThumbnailID != "" {
		if err := s.media.Delete(ctx, oldThumbnailID); err != nil {
			s.logger.Warn("failed to delete replaced thumbnail",
				slog.String("courseID", id),
				slog.String("assetID", oldThumbnailID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.Info("course updated", slog.String("courseID", id))
	return course, nil
}

// Delete removes a course, its lectures (cascaded by the store), and its
// media assets. Asset deletion is best-effort: an unreachable media host
// must not keep a course undeletable.
func (s *CourseService) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return apperror.ValidationFailed("id", "course ID is required")
	}

	course, err := s.courses.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.courses.Delete(ctx, id); err != nil {
		return err
	}

	assetIDs := make([]string, 0, len(course.Lectures)+1)
	if course.Thumbnail.PublicID != "" {
		assetIDs = append(assetIDs, course.Thumbnail.PublicID)
	}
	for _, lecture := range course.Lectures {
		if lecture.Media.PublicID != "" {
			assetIDs = append(assetIDs, lecture.Media.PublicID)
		}
	}
	for _, assetID := range assetIDs {
		if err := s.media.Delete(ctx, assetID); err != nil {
			s.logger.Warn("failed to delete course asset",
				slog.String("courseID", id),
				slog.String("assetID", assetID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.Info("course deleted", slog.String("courseID", id))
	return nil
}

// AddLecture appends a lecture to a course. Media is optional — a
// lecture can be text-only. Returns the updated course with its full
// lecture list.
func (s *CourseService) AddLecture(ctx context.Context, courseID, title, description string, media *Upload) (*model.Course, error) {
	title = strings.TrimSpace(title)
	description = strings.TrimSpace(description)

	if title == "" {
		return nil, apperror.ValidationFailed("title", "lecture title is required")
	}
	if description == "" {
		return nil, apperror.ValidationFailed("description", "lecture description is required")
	}

	// Confirm the course exists before touching the media host.
	if _, err := s.courses.GetByID(ctx, courseID); err != nil {
		return nil, err
	}

	lecture := &model.Lecture{
		CourseID:    courseID,
		Title:       title,
		Description: description,
	}

	if media != nil {
		asset, err := s.uploadAsset(ctx, "lectures", media)
		if err != nil {
			return nil, fmt.Errorf("service/course: uploading lecture media: %w", err)
		}
		lecture.Media = asset
	}

	if err := s.courses.AddLecture(ctx, lecture); err != nil {
		if lecture.Media.PublicID != "" {
			if delErr := s.media.Delete(ctx, lecture.Media.PublicID); delErr != nil {
				s.logger.Warn("failed to delete lecture media after insert failure",
					slog.String("assetID", lecture.Media.PublicID),
					slog.String("error", delErr.Error()),
				)
			}
		}
		return nil, fmt.Errorf("service/course: adding lecture to course %s: %w", courseID, err)
	}

	s.logger.Info("lecture added",
		slog.String("courseID", courseID),
		slog.String("lectureID", lecture.ID),
	)

	return s.courses.GetByID(ctx, courseID)
}

func (s *CourseService) uploadAsset(ctx context.Context, prefix string, upload *Upload) (model.Asset, error) {
	key := fmt.Sprintf("%s/%s", prefix, xid.New().String())
	asset, err := s.media.Upload(ctx, key, upload.Content, upload.ContentType)
	if err != nil {
		return model.Asset{}, err
	}
	return model.Asset{PublicID: asset.ID, URL: asset.URL}, nil
}

func validateCourseFields(title, description string) error {
	if title == "" {
		return apperror.ValidationFailed("title", "title is required")
	}
	if err := validateCourseTitle(title); err != nil {
		return err
	}
	if description == "" {
		return apperror.ValidationFailed("description", "description is required")
	}
	return validateCourseDescription(description)
}

func validateCourseTitle(title string) error {
	if len(title) < MinCourseTitleLength || len(title) > MaxCourseTitleLength {
		return apperror.ValidationFailed("title",
			fmt.Sprintf("title must be between %d and %d characters", MinCourseTitleLength, MaxCourseTitleLength))
	}
	return nil
}

func validateCourseDescription(description string) error {
	if len(description) < MinCourseDescriptionLength || len(description) > MaxCourseDescriptionLength {
		return apperror.ValidationFailed("description",
			fmt.Sprintf("description must be between %d and %d characters", MinCourseDescriptionLength, MaxCourseDescriptionLength))
	}
	return nil
}
