package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/VasantLong/cgms2025/internal/model"
	"github.com/VasantLong/cgms2025/internal/response"
	"github.com/VasantLong/cgms2025/internal/service"
)

// RosterHandler handles section roster endpoints.
type RosterHandler struct {
	rosterService *service.RosterService
	log           zerolog.Logger
}

// NewRosterHandler creates a new RosterHandler.
func NewRosterHandler(rosterService *service.RosterService, log zerolog.Logger) *RosterHandler {
	return &RosterHandler{
		rosterService: rosterService,
		log:           log.With().Str("component", "roster_handler").Logger(),
	}
}

// ListEnrolled godoc
// GET /api/class/:sn/students
// Lists the section's students ordered by student number.
func (h *RosterHandler) ListEnrolled(c *gin.Context) {
	classSN, ok := pathID(c, "sn")
	if !ok {
		return
	}
	page, perPage := pageParams(c)

	students, pagination, err := h.rosterService.ListEnrolled(c.Request.Context(), classSN, page, perPage)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"students": students}, pagination)
}

// ListAvailable godoc
// GET /api/class/:sn/students/available
// Lists students that can be added. ?scope=course also hides students
// already in another section of the same course.
func (h *RosterHandler) ListAvailable(c *gin.Context) {
	classSN, ok := pathID(c, "sn")
	if !ok {
		return
	}

	scope := model.AvailableScope(c.Query("scope"))
	students, err := h.rosterService.ListAvailable(c.Request.Context(), classSN, scope)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"students": students})
}

// CheckConflicts godoc
// GET /api/class/:sn/students/conflicts?student_sns=1,2,3
// Previews cross-section conflicts for a candidate list without changing anything.
func (h *RosterHandler) CheckConflicts(c *gin.Context) {
	classSN, ok := pathID(c, "sn")
	if !ok {
		return
	}
	candidates, err := parseIntList(c.QueryArray("student_sns"))
	if err != nil {
		response.FailWithFields(c, http.StatusUnprocessableEntity, response.ErrValidation,
			map[string]string{"student_sns": "must be a comma-separated list of ids"})
		return
	}

	conflicts, err := h.rosterService.CheckConflicts(c.Request.Context(), classSN, candidates)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"has_conflicts": len(conflicts) > 0,
		"conflicts":     conflicts,
	})
}

// Reconcile godoc
// PUT /api/class/:sn/students
// Replaces the section roster with the given student list. Students being
// added that already sit in another section of the course abort the whole
// change with 409; the body then carries the unchanged roster and the conflicts.
func (h *RosterHandler) Reconcile(c *gin.Context) {
	classSN, ok := pathID(c, "sn")
	if !ok {
		return
	}
	var req model.ReconcileRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.rosterService.Reconcile(c.Request.Context(), classSN, req.StudentSNs)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// Unenroll godoc
// DELETE /api/class/:sn/students/:stu_sn
// Removes one student and their grade from the section.
func (h *RosterHandler) Unenroll(c *gin.Context) {
	classSN, ok := pathID(c, "sn")
	if !ok {
		return
	}
	stuSN, ok := pathID(c, "stu_sn")
	if !ok {
		return
	}

	if err := h.rosterService.Unenroll(c.Request.Context(), classSN, stuSN); err != nil {
		fail(c, h.log, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// parseIntList accepts both repeated parameters and comma-separated values.
func parseIntList(raw []string) ([]int, error) {
	var out []int
	for _, part := range raw {
		for _, s := range strings.Split(part, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			n, err := strconv.Atoi(s)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
	}
	return out, nil
}
