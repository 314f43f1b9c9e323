package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/lms-backend/internal/apperror"
	"github.com/sakif/lms-backend/internal/auth"
	"github.com/sakif/lms-backend/internal/service"
)

// CourseHandler serves the course catalog under /api/v1/courses.
// Role and subscription gating happen in middleware at the routing
// layer; by the time a request reaches an admin-only method here, the
// caller is already an admin.
type CourseHandler struct {
	courses *service.CourseService
	logger  *slog.Logger
}

// NewCourseHandler creates a CourseHandler.
func NewCourseHandler(courses *service.CourseService, logger *slog.Logger) *CourseHandler {
	return &CourseHandler{courses: courses, logger: logger}
}

// HandleList returns the public catalog: course metadata and lecture
// counts, no lecture bodies.
//
// HTTP: GET /api/v1/courses?limit=20&offset=0
func (h *CourseHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	courses, err := h.courses.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "all courses",
		Courses: courses,
	})
}

// HandleGetLectures returns one course with its full lecture list.
//
// HTTP: GET /api/v1/courses/{id} (session + subscriber or admin)
func (h *CourseHandler) HandleGetLectures(w http.ResponseWriter, r *http.Request) {
	course, err := h.courses.GetLectures(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "course lectures",
		Course:  course,
	})
}

// HandleCreate adds a course to the catalog.
//
// HTTP: POST /api/v1/courses (session + admin)
// Body: multipart with title, description, category, thumbnail file
func (h *CourseHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
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

	thumbnail, closeFile, err := formFile(r, "thumbnail")
	if err != nil {
		writeError(w, err)
		return
	}
	defer closeFile()

	course, err := h.courses.Create(r.Context(),
		field(r, jsonFields, "title"),
		field(r, jsonFields, "description"),
		field(r, jsonFields, "category"),
		user.ID,
		thumbnail,
	)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, Response{
		Success: true,
		Message: "course created successfully",
		Course:  course,
	})
}

// HandleUpdate modifies course metadata; empty fields are left alone.
//
// HTTP: PUT /api/v1/courses/{id} (session + admin)
func (h *CourseHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	jsonFields, err := parseForm(r)
	if err != nil {
		writeError(w, err)
		return
	}

	thumbnail, closeFile, err := formFile(r, "thumbnail")
	if err != nil {
		writeError(w, err)
		return
	}
	defer closeFile()

	course, err := h.courses.Update(r.Context(), chi.URLParam(r, "id"),
		field(r, jsonFields, "title"),
		field(r, jsonFields, "description"),
		field(r, jsonFields, "category"),
		thumbnail,
	)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "course updated successfully",
		Course:  course,
	})
}

// HandleDelete removes a course, its lectures, and (best effort) its
// media assets.
//
// HTTP: DELETE /api/v1/courses/{id} (session + admin)
func (h *CourseHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.courses.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{Success: true, Message: "course deleted successfully"})
}

// HandleAddLecture appends a lecture to a course.
//
// HTTP: POST /api/v1/courses/{id} (session + admin)
// Body: multipart with title, description, optional lecture media file
func (h *CourseHandler) HandleAddLecture(w http.ResponseWriter, r *http.Request) {
	jsonFields, err := parseForm(r)
	if err != nil {
		writeError(w, err)
		return
	}

	media, closeFile, err := formFile(r, "lecture")
	if err != nil {
		writeError(w, err)
		return
	}
	defer closeFile()

	course, err := h.courses.AddLecture(r.Context(), chi.URLParam(r, "id"),
		field(r, jsonFields, "title"),
		field(r, jsonFields, "description"),
		media,
	)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "lecture added successfully",
		Course:  course,
	})
}
