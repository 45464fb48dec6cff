package handler

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/VasantLong/cgms2025/internal/response"
	"github.com/VasantLong/cgms2025/internal/service"
)

// ReportHandler serves transcripts, section summaries and grade sheet exports.
type ReportHandler struct {
	reportService *service.ReportService
	log           zerolog.Logger
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(reportService *service.ReportService, log zerolog.Logger) *ReportHandler {
	return &ReportHandler{
		reportService: reportService,
		log:           log.With().Str("component", "report_handler").Logger(),
	}
}

// Transcript godoc
// GET /api/student/:sn/report
// Returns all grades of a student with earned credits and GPA.
func (h *ReportHandler) Transcript(c *gin.Context) {
	stuSN, ok := pathID(c, "sn")
	if !ok {
		return
	}

	transcript, err := h.reportService.Transcript(c.Request.Context(), stuSN)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, transcript)
}

// Summary godoc
// GET /api/report/class/:sn/summary
func (h *ReportHandler) Summary(c *gin.Context) {
	classSN, ok := pathID(c, "sn")
	if !ok {
		return
	}

	summary, err := h.reportService.Summary(c.Request.Context(), classSN)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, summary)
}

// GradeSheet godoc
// GET /api/report/class/:sn/grades.csv
// Downloads the section roster with grades as CSV.
func (h *ReportHandler) GradeSheet(c *gin.Context) {
	classSN, ok := pathID(c, "sn")
	if !ok {
		return
	}

	var buf bytes.Buffer
	classNo, err := h.reportService.WriteGradeSheet(c.Request.Context(), classSN, &buf)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+classNo+`-grades.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}
