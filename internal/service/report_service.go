package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/VasantLong/cgms2025/internal/model"
	"github.com/VasantLong/cgms2025/internal/ports"
)

// PassMark is the lowest passing grade.
const PassMark = 60.0

// ReportService builds read-only transcripts, summaries and exports.
type ReportService struct {
	reports  ports.ReportReader
	roster   ports.RosterReader
	students ports.StudentStore
	classes  ports.ClassStore
	log      zerolog.Logger
}

// NewReportService creates a new ReportService.
func NewReportService(
	reports ports.ReportReader,
	roster ports.RosterReader,
	students ports.StudentStore,
	classes ports.ClassStore,
	log zerolog.Logger,
) *ReportService {
	return &ReportService{
		reports:  reports,
		roster:   roster,
		students: students,
		classes:  classes,
		log:      log.With().Str("component", "report_service").Logger(),
	}
}

// Transcript returns a student's grades with credit and GPA totals.
func (s *ReportService) Transcript(ctx context.Context, stuSN int) (*model.Transcript, error) {
	var (
		stu   *model.Student
		lines []model.TranscriptLine
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		stu, err = s.students.GetByID(gctx, stuSN)
		return storeErr("student", err)
	})
	g.Go(func() error {
		var err error
		lines, err = s.reports.TranscriptLines(gctx, stuSN)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if lines == nil {
		lines = []model.TranscriptLine{}
	}

	return &model.Transcript{Student: *stu, Grades: lines, Stats: transcriptStats(lines)}, nil
}

// gradePoint maps a grade to the 4.0 scale: 60 earns 1.0, 90 and above earn 4.0.
func gradePoint(g float64) float64 {
	if g < PassMark {
		return 0
	}
	return math.Min((g-50)/10, 4.0)
}

func transcriptStats(lines []model.TranscriptLine) model.TranscriptStats {
	var st model.TranscriptStats
	var weighted, attempted float64
	for _, l := range lines {
		if l.Grade == nil {
			st.Pending++
			continue
		}
		credit := 0.0
		if l.Credit != nil {
			credit = *l.Credit
		}
		if *l.Grade >= PassMark {
			st.Passed++
			st.TotalCredits += credit
		} else {
			st.Failed++
		}
		weighted += gradePoint(*l.Grade) * credit
		attempted += credit
	}
	if attempted > 0 {
		st.GPA = math.Round(weighted/attempted*100) / 100
	}
	return st
}

// Summary aggregates a section's grades.
func (s *ReportService) Summary(ctx context.Context, classSN int) (*model.SectionSummary, error) {
	sum, err := s.reports.SectionSummary(ctx, classSN, PassMark)
	if err != nil {
		return nil, storeErr("section", err)
	}
	return sum, nil
}

// WriteGradeSheet writes a section's roster with grades as CSV and returns
// the section number for naming the download.
func (s *ReportService) WriteGradeSheet(ctx context.Context, classSN int, w io.Writer) (string, error) {
	var (
		cls     *model.Class
		entries []model.RosterEntry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		cls, err = s.classes.GetByID(gctx, classSN)
		return storeErr("section", err)
	})
	g.Go(func() error {
		var err error
		entries, err = s.roster.ListWithGrades(gctx, classSN)
		return err
	})
	if err := g.Wait(); err != nil {
		return "", err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"stu_no", "stu_name", "grade"}); err != nil {
		return "", fmt.Errorf("write header: %w", err)
	}
	for _, e := range entries {
		grade := ""
		if e.Grade != nil {
			grade = strconv.FormatFloat(*e.Grade, 'f', 1, 64)
		}
		if err := cw.Write([]string{e.No, e.Name, grade}); err != nil {
			return "", fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return "", fmt.Errorf("flush csv: %w", err)
	}
	return cls.No, nil
}
