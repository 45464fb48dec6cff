package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/VasantLong/cgms2025/internal/middleware"
	"github.com/VasantLong/cgms2025/internal/model"
	"github.com/VasantLong/cgms2025/internal/response"
	"github.com/VasantLong/cgms2025/internal/service"
)

// GradeHandler handles grade entry, import and lookup endpoints.
type GradeHandler struct {
	gradeService   *service.GradeService
	maxImportBytes int64
	log            zerolog.Logger
}

// NewGradeHandler creates a new GradeHandler. maxImportBytes caps CSV uploads.
func NewGradeHandler(gradeService *service.GradeService, maxImportBytes int64, log zerolog.Logger) *GradeHandler {
	return &GradeHandler{
		gradeService:   gradeService,
		maxImportBytes: maxImportBytes,
		log:            log.With().Str("component", "grade_handler").Logger(),
	}
}

// Batch godoc
// POST /api/grade/batch
// Writes grades for students of one section. Rows that cannot be applied are
// listed in skipped; a store failure applies nothing and returns 500.
func (h *GradeHandler) Batch(c *gin.Context) {
	var req model.BatchGradeRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.gradeService.BatchUpsert(c.Request.Context(), req, middleware.GetOperator(c))
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// Import godoc
// POST /api/grade/import
// Imports grades keyed by student number, either as JSON {class_sn, rows}
// or as multipart/form-data with class_sn and a CSV file.
func (h *GradeHandler) Import(c *gin.Context) {
	var (
		classSN int
		rows    []model.ImportRow
		ok      bool
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		classSN, rows, ok = h.readUpload(c)
	} else {
		var req model.ImportRequest
		if ok = bindJSON(c, &req); ok {
			classSN, rows = req.ClassSN, req.Rows
		}
	}
	if !ok {
		return
	}

	result, err := h.gradeService.ImportRows(c.Request.Context(), classSN, rows, middleware.GetOperator(c))
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

func (h *GradeHandler) readUpload(c *gin.Context) (int, []model.ImportRow, bool) {
	if h.maxImportBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxImportBytes)
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Fail(c, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge)
			return 0, nil, false
		}
		response.Fail(c, http.StatusBadRequest, response.ErrFileRequired)
		return 0, nil, false
	}
	defer file.Close()

	classSN, err := strconv.Atoi(c.Request.FormValue("class_sn"))
	if err != nil || classSN < 1 {
		response.FailWithFields(c, http.StatusUnprocessableEntity, response.ErrValidation,
			map[string]string{"class_sn": "class_sn is required"})
		return 0, nil, false
	}
	if !isCSVUpload(header.Filename, header.Header.Get("Content-Type")) {
		response.Fail(c, http.StatusBadRequest, response.ErrUnsupportedFile)
		return 0, nil, false
	}

	rows, err := decodeImportCSV(file)
	if err != nil {
		response.FailWithMessageFields(c, http.StatusUnprocessableEntity, response.ErrInvalidPayload,
			"could not read grade sheet", map[string]string{"file": err.Error()})
		return 0, nil, false
	}
	return classSN, rows, true
}

// Version godoc
// GET /api/grade/check-conflict/:class_sn
// Returns the section's grade version stamp for optimistic concurrency checks.
func (h *GradeHandler) Version(c *gin.Context) {
	classSN, ok := pathID(c, "class_sn")
	if !ok {
		return
	}

	version, err := h.gradeService.Version(c.Request.Context(), classSN)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"class_sn": classSN, "version": version})
}

// StudentsWithGrades godoc
// GET /api/class/:sn/students-with-grades
func (h *GradeHandler) StudentsWithGrades(c *gin.Context) {
	classSN, ok := pathID(c, "sn")
	if !ok {
		return
	}

	entries, err := h.gradeService.ListWithGrades(c.Request.Context(), classSN)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"students": entries})
}

// List godoc
// GET /api/grade/list
func (h *GradeHandler) List(c *gin.Context) {
	rows, err := h.gradeService.ListAll(c.Request.Context())
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"grades": rows})
}

// Audit godoc
// GET /api/grade/audit/:class_sn/:stu_sn
// Returns the change history of one grade, oldest first.
func (h *GradeHandler) Audit(c *gin.Context) {
	classSN, ok := pathID(c, "class_sn")
	if !ok {
		return
	}
	stuSN, ok := pathID(c, "stu_sn")
	if !ok {
		return
	}

	entries, err := h.gradeService.AuditTrail(c.Request.Context(), classSN, stuSN)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"audit": entries})
}
