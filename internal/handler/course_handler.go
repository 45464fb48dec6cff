package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/VasantLong/cgms2025/internal/model"
	"github.com/VasantLong/cgms2025/internal/response"
	"github.com/VasantLong/cgms2025/internal/service"
)

// CourseHandler handles course endpoints.
type CourseHandler struct {
	courseService *service.CourseService
	log           zerolog.Logger
}

// NewCourseHandler creates a new CourseHandler.
func NewCourseHandler(courseService *service.CourseService, log zerolog.Logger) *CourseHandler {
	return &CourseHandler{
		courseService: courseService,
		log:           log.With().Str("component", "course_handler").Logger(),
	}
}

// List godoc
// GET /api/course/list
// Lists courses with pagination. Pages are served from cache when possible.
func (h *CourseHandler) List(c *gin.Context) {
	page, perPage := pageParams(c)

	result, err := h.courseService.List(c.Request.Context(), page, perPage)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"courses": result.Courses}, result.Pagination)
}

// Get godoc
// GET /api/course/:sn
func (h *CourseHandler) Get(c *gin.Context) {
	sn, ok := pathID(c, "sn")
	if !ok {
		return
	}

	course, err := h.courseService.GetByID(c.Request.Context(), sn)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"course": course})
}

// Create godoc
// POST /api/course
func (h *CourseHandler) Create(c *gin.Context) {
	var req model.CourseRequest
	if !bindJSON(c, &req) {
		return
	}

	course, err := h.courseService.Create(c.Request.Context(), req)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"course": course})
}

// Update godoc
// PUT /api/course/:sn
func (h *CourseHandler) Update(c *gin.Context) {
	sn, ok := pathID(c, "sn")
	if !ok {
		return
	}
	var req model.CourseRequest
	if !bindJSON(c, &req) {
		return
	}

	course, err := h.courseService.Update(c.Request.Context(), sn, req)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"course": course})
}

// Delete godoc
// DELETE /api/course/:sn
// Deletes a course. Courses that still have sections are refused with 409.
func (h *CourseHandler) Delete(c *gin.Context) {
	sn, ok := pathID(c, "sn")
	if !ok {
		return
	}

	if err := h.courseService.Delete(c.Request.Context(), sn); err != nil {
		fail(c, h.log, err)
		return
	}

	c.Status(http.StatusNoContent)
}
