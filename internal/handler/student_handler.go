package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/VasantLong/cgms2025/internal/model"
	"github.com/VasantLong/cgms2025/internal/response"
	"github.com/VasantLong/cgms2025/internal/service"
)

// StudentHandler handles student record endpoints.
type StudentHandler struct {
	studentService *service.StudentService
	log            zerolog.Logger
}

// NewStudentHandler creates a new StudentHandler.
func NewStudentHandler(studentService *service.StudentService, log zerolog.Logger) *StudentHandler {
	return &StudentHandler{
		studentService: studentService,
		log:            log.With().Str("component", "student_handler").Logger(),
	}
}

// List godoc
// GET /api/student/list
// Lists students with pagination, optionally filtered by ?q= on number or name.
func (h *StudentHandler) List(c *gin.Context) {
	page, perPage := pageParams(c)

	students, pagination, err := h.studentService.List(c.Request.Context(), c.Query("q"), page, perPage)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"students": students}, pagination)
}

// Get godoc
// GET /api/student/:sn
func (h *StudentHandler) Get(c *gin.Context) {
	sn, ok := pathID(c, "sn")
	if !ok {
		return
	}

	student, err := h.studentService.GetByID(c.Request.Context(), sn)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"student": student})
}

// Create godoc
// POST /api/student
// Creates a student. A taken student number is a 409 naming the owner.
func (h *StudentHandler) Create(c *gin.Context) {
	var req model.StudentRequest
	if !bindJSON(c, &req) {
		return
	}

	student, err := h.studentService.Create(c.Request.Context(), req)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"student": student})
}

// Update godoc
// PUT /api/student/:sn
func (h *StudentHandler) Update(c *gin.Context) {
	sn, ok := pathID(c, "sn")
	if !ok {
		return
	}
	var req model.StudentRequest
	if !bindJSON(c, &req) {
		return
	}

	student, err := h.studentService.Update(c.Request.Context(), sn, req)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"student": student})
}

// Delete godoc
// DELETE /api/student/:sn
// Deletes a student together with their enrollments and grades.
func (h *StudentHandler) Delete(c *gin.Context) {
	sn, ok := pathID(c, "sn")
	if !ok {
		return
	}

	if err := h.studentService.Delete(c.Request.Context(), sn); err != nil {
		fail(c, h.log, err)
		return
	}

	c.Status(http.StatusNoContent)
}
