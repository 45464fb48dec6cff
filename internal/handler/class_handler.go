package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/VasantLong/cgms2025/internal/model"
	"github.com/VasantLong/cgms2025/internal/response"
	"github.com/VasantLong/cgms2025/internal/service"
)

// ClassHandler handles section endpoints.
type ClassHandler struct {
	classService *service.ClassService
	log          zerolog.Logger
}

// NewClassHandler creates a new ClassHandler.
func NewClassHandler(classService *service.ClassService, log zerolog.Logger) *ClassHandler {
	return &ClassHandler{
		classService: classService,
		log:          log.With().Str("component", "class_handler").Logger(),
	}
}

// List godoc
// GET /api/class/list
// Lists all sections, optionally only those of ?cou_sn=.
func (h *ClassHandler) List(c *gin.Context) {
	var couSN *int
	if raw := c.Query("cou_sn"); raw != "" {
		sn, err := strconv.Atoi(raw)
		if err != nil {
			response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
			return
		}
		couSN = &sn
	}

	classes, err := h.classService.List(c.Request.Context(), couSN)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"classes": classes})
}

// Get godoc
// GET /api/class/:sn
func (h *ClassHandler) Get(c *gin.Context) {
	sn, ok := pathID(c, "sn")
	if !ok {
		return
	}

	class, err := h.classService.GetByID(c.Request.Context(), sn)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"class": class})
}

// Create godoc
// POST /api/class
// Creates a section. The course component of class_no must match cou_sn.
func (h *ClassHandler) Create(c *gin.Context) {
	var req model.ClassRequest
	if !bindJSON(c, &req) {
		return
	}

	class, err := h.classService.Create(c.Request.Context(), req)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"class": class})
}

// Update godoc
// PUT /api/class/:sn
func (h *ClassHandler) Update(c *gin.Context) {
	sn, ok := pathID(c, "sn")
	if !ok {
		return
	}
	var req model.ClassRequest
	if !bindJSON(c, &req) {
		return
	}

	class, err := h.classService.Update(c.Request.Context(), sn, req)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"class": class})
}

// Delete godoc
// DELETE /api/class/:sn
func (h *ClassHandler) Delete(c *gin.Context) {
	sn, ok := pathID(c, "sn")
	if !ok {
		return
	}

	if err := h.classService.Delete(c.Request.Context(), sn); err != nil {
		fail(c, h.log, err)
		return
	}

	c.Status(http.StatusNoContent)
}
