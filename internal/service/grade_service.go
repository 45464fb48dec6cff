package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/VasantLong/cgms2025/internal/metrics"
	"github.com/VasantLong/cgms2025/internal/model"
	"github.com/VasantLong/cgms2025/internal/policy"
	"github.com/VasantLong/cgms2025/internal/ports"
	"github.com/VasantLong/cgms2025/internal/response"
)

// GradeService is the grade ledger: every grade write goes through it, is
// audited, and advances the section's version stamp.
type GradeService struct {
	tx      ports.Transactor
	roster  ports.RosterReader
	grades  ports.GradeReader
	classes ports.ClassStore
	policy  *policy.Policy
	metrics *metrics.Metrics
	events  notifier
	log     zerolog.Logger
}

// NewGradeService creates a new GradeService. pub and m may be nil.
func NewGradeService(
	tx ports.Transactor,
	roster ports.RosterReader,
	grades ports.GradeReader,
	classes ports.ClassStore,
	p *policy.Policy,
	pub ports.EventPublisher,
	m *metrics.Metrics,
	log zerolog.Logger,
) *GradeService {
	l := log.With().Str("component", "grade_service").Logger()
	return &GradeService{
		tx:      tx,
		roster:  roster,
		grades:  grades,
		classes: classes,
		policy:  p,
		metrics: m,
		events:  notifier{pub: pub, log: l},
		log:     l,
	}
}

// gradeWrite is a validated row waiting to be applied. ref points back to
// the caller's row index.
type gradeWrite struct {
	ref    int
	stuSN  int
	value  *float64
	remark *string
}

type writeOutcome int

const (
	writeChanged writeOutcome = iota
	writeUnchanged
	writeNotEnrolled
)

type applied struct {
	outcomes map[int]writeOutcome // by ref
	changed  int
	version  time.Time
}

// apply writes rows against a locked section. The version is bumped once when
// at least one grade changed; unchanged rows are neither written nor audited.
func (s *GradeService) apply(
	ctx context.Context,
	tx ports.SectionTx,
	cls *model.Class,
	writes []gradeWrite,
	source model.GradeSource,
	op model.Operator,
) (*applied, error) {
	enrolledSNs, err := tx.EnrolledStudentSNs(ctx, cls.SN)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	enrolled := make(map[int]bool, len(enrolledSNs))
	for _, sn := range enrolledSNs {
		enrolled[sn] = true
	}

	existing, err := tx.GradesFor(ctx, cls.SN)
	if err != nil {
		return nil, fmt.Errorf("load grades: %w", err)
	}

	out := &applied{outcomes: make(map[int]writeOutcome, len(writes)), version: cls.UpdatedAt}
	var audit []model.GradeAuditEntry
	for _, w := range writes {
		if !enrolled[w.stuSN] {
			out.outcomes[w.ref] = writeNotEnrolled
			continue
		}
		old, had := existing[w.stuSN]
		if sameGrade(old.Value, w.value) {
			out.outcomes[w.ref] = writeUnchanged
			continue
		}

		id, err := tx.UpsertGrade(ctx, cls.SN, w.stuSN, w.value)
		if err != nil {
			return nil, fmt.Errorf("upsert grade for student %d: %w", w.stuSN, err)
		}
		entry := model.GradeAuditEntry{
			GradeID:      &id,
			ClassSN:      cls.SN,
			StuSN:        w.stuSN,
			NewGrade:     w.value,
			Source:       source,
			OperatorSN:   op.SN,
			OperatorName: op.Name,
			Remark:       w.remark,
		}
		if had {
			entry.OldGrade = old.Value
		}
		audit = append(audit, entry)
		existing[w.stuSN] = model.Grade{ID: id, Value: w.value}
		out.outcomes[w.ref] = writeChanged
		out.changed++
	}

	if out.changed == 0 {
		return out, nil
	}
	if err := tx.AppendAudit(ctx, audit); err != nil {
		return nil, fmt.Errorf("append audit: %w", err)
	}
	version, err := tx.BumpVersion(ctx, cls.SN)
	if err != nil {
		return nil, fmt.Errorf("bump version: %w", err)
	}
	out.version = version
	return out, nil
}

// BatchUpsert writes grades for enrolled students of a section. Rows with an
// out-of-range grade or a student outside the roster are skipped and reported;
// the rest are applied in one transaction. A store failure aborts the batch.
func (s *GradeService) BatchUpsert(ctx context.Context, req model.BatchGradeRequest, op model.Operator) (*model.BatchResult, error) {
	start := time.Now()
	defer s.metrics.ObserveTx("grade_batch", start)

	skips := make([]string, len(req.Grades))
	lastRow := make(map[int]int, len(req.Grades))
	for i, row := range req.Grades {
		// Bounds apply to the submitted value, before rounding.
		if row.Grade != nil && !s.policy.GradeInRange(*row.Grade) {
			skips[i] = model.SkipOutOfRange
			continue
		}
		if prev, ok := lastRow[row.StuSN]; ok {
			skips[prev] = model.SkipSuperseded
		}
		lastRow[row.StuSN] = i
	}

	var writes []gradeWrite
	for i, row := range req.Grades {
		if skips[i] != "" {
			continue
		}
		writes = append(writes, gradeWrite{ref: i, stuSN: row.StuSN, value: roundedPtr(row.Grade)})
	}

	var res *applied
	err := s.tx.RunInTx(ctx, func(ctx context.Context, tx ports.SectionTx) error {
		cls, err := tx.LockSection(ctx, req.ClassSN)
		if err != nil {
			return storeErr("section", err)
		}
		if req.ExpectedVersion != nil && !req.ExpectedVersion.Equal(cls.UpdatedAt) {
			return &Error{
				Kind:    KindConflict,
				Code:    response.ErrVersionMismatch,
				Message: "grades changed since version " + req.ExpectedVersion.UTC().Format(time.RFC3339Nano),
				Data:    map[string]any{"class_sn": cls.SN, "version": cls.UpdatedAt},
			}
		}
		res, err = s.apply(ctx, tx, cls, writes, model.GradeSourceBatch, op)
		return err
	})
	if err != nil {
		return nil, err
	}

	result := &model.BatchResult{Skipped: []model.GradeSkip{}, Version: res.version}
	skipCounts := make(map[string]int)
	for i, row := range req.Grades {
		reason := skips[i]
		if reason == "" {
			switch res.outcomes[i] {
			case writeChanged:
				result.UpdatedCount++
				continue
			case writeUnchanged:
				result.UnchangedCount++
				continue
			case writeNotEnrolled:
				reason = model.SkipNotEnrolled
			}
		}
		result.Skipped = append(result.Skipped, model.GradeSkip{StuSN: row.StuSN, Reason: reason})
		skipCounts[reason]++
	}

	s.metrics.ObserveGrades(string(model.GradeSourceBatch), result.UpdatedCount, skipCounts)
	s.log.Info().
		Int("class_sn", req.ClassSN).
		Int("operator_sn", op.SN).
		Int("updated", result.UpdatedCount).
		Int("unchanged", result.UnchangedCount).
		Int("skipped", len(result.Skipped)).
		Msg("Grade batch applied")
	s.announce(ctx, req.ClassSN, result.UpdatedCount, result.Version)
	return result, nil
}

// ImportRows writes grades identified by student number. Each row is logged
// as success, failed (unknown or unenrolled student) or invalid (malformed
// student number or grade). Valid rows are applied in one transaction.
func (s *GradeService) ImportRows(ctx context.Context, classSN int, rows []model.ImportRow, op model.Operator) (*model.ImportResult, error) {
	start := time.Now()
	defer s.metrics.ObserveTx("grade_import", start)

	logs := make([]model.ImportLog, len(rows))
	values := make([]*float64, len(rows))
	lastRow := make(map[string]int, len(rows))
	for i, row := range rows {
		no := strings.TrimSpace(row.StuNo)
		logs[i] = model.ImportLog{Row: i + 1, StuNo: no}

		if !s.policy.ValidStudentNo(no) {
			logs[i].Status, logs[i].Message = model.ImportInvalid, "invalid student number"
			continue
		}
		v, err := parseGrade(row.Grade)
		if err != nil {
			logs[i].Status, logs[i].Message = model.ImportInvalid, err.Error()
			continue
		}
		if v != nil && !s.policy.GradeInRange(*v) {
			logs[i].Status = model.ImportInvalid
			logs[i].Message = fmt.Sprintf("grade %g outside [%g, %g]", *v, s.policy.GradeMin, s.policy.GradeMax)
			continue
		}
		values[i] = roundedPtr(v)
		if prev, ok := lastRow[no]; ok {
			logs[prev].Status = model.ImportFailed
			logs[prev].Message = fmt.Sprintf("superseded by row %d", i+1)
		}
		lastRow[no] = i
	}

	nos := make([]string, 0, len(lastRow))
	for no := range lastRow {
		nos = append(nos, no)
	}

	var res *applied
	err := s.tx.RunInTx(ctx, func(ctx context.Context, tx ports.SectionTx) error {
		cls, err := tx.LockSection(ctx, classSN)
		if err != nil {
			return storeErr("section", err)
		}
		students, err := tx.StudentsByNo(ctx, nos)
		if err != nil {
			return fmt.Errorf("resolve students: %w", err)
		}

		var writes []gradeWrite
		for i, row := range rows {
			if logs[i].Status != "" {
				continue
			}
			stu, ok := students[logs[i].StuNo]
			if !ok {
				logs[i].Status, logs[i].Message = model.ImportFailed, "student not found"
				continue
			}
			if name := strings.TrimSpace(row.Name); name != "" && name != stu.Name {
				logs[i].Message = fmt.Sprintf("name %q differs from record %q; ", name, stu.Name)
			}
			var remark *string
			if r := strings.TrimSpace(row.Remark); r != "" {
				remark = &r
			}
			writes = append(writes, gradeWrite{ref: i, stuSN: stu.SN, value: values[i], remark: remark})
		}

		res, err = s.apply(ctx, tx, cls, writes, model.GradeSourceImport, op)
		return err
	})
	if err != nil {
		return nil, err
	}

	result := &model.ImportResult{Version: res.version}
	for i := range logs {
		if logs[i].Status == "" {
			switch res.outcomes[i] {
			case writeChanged:
				logs[i].Status, logs[i].Message = model.ImportSuccess, logs[i].Message+"grade updated"
			case writeUnchanged:
				logs[i].Status, logs[i].Message = model.ImportSuccess, logs[i].Message+"grade unchanged"
			case writeNotEnrolled:
				logs[i].Status, logs[i].Message = model.ImportFailed, "student is not enrolled in this section"
			}
		}
		switch logs[i].Status {
		case model.ImportSuccess:
			result.Success++
		case model.ImportFailed:
			result.Failed++
		case model.ImportInvalid:
			result.Invalid++
		}
	}
	result.Logs = logs

	s.metrics.ObserveGrades(string(model.GradeSourceImport), res.changed, map[string]int{
		model.ImportFailed:  result.Failed,
		model.ImportInvalid: result.Invalid,
	})
	s.log.Info().
		Int("class_sn", classSN).
		Int("operator_sn", op.SN).
		Int("success", result.Success).
		Int("failed", result.Failed).
		Int("invalid", result.Invalid).
		Msg("Grade import applied")
	s.announce(ctx, classSN, res.changed, result.Version)
	return result, nil
}

func (s *GradeService) announce(ctx context.Context, classSN, changed int, version time.Time) {
	if changed == 0 {
		return
	}
	s.events.publish(ctx, model.ClassEvent{
		Type:    model.EventGradesChanged,
		ClassSN: classSN,
		Version: version,
		Updated: changed,
		At:      time.Now().UTC(),
	})
}

// Version returns the section's version stamp.
func (s *GradeService) Version(ctx context.Context, classSN int) (time.Time, error) {
	cls, err := s.classes.GetByID(ctx, classSN)
	if err != nil {
		return time.Time{}, storeErr("section", err)
	}
	return cls.UpdatedAt, nil
}

// ListWithGrades returns the roster of a section with each student's grade.
func (s *GradeService) ListWithGrades(ctx context.Context, classSN int) ([]model.RosterEntry, error) {
	if _, err := s.classes.GetByID(ctx, classSN); err != nil {
		return nil, storeErr("section", err)
	}
	entries, err := s.roster.ListWithGrades(ctx, classSN)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []model.RosterEntry{}
	}
	return entries, nil
}

// ListAll returns every grade row across sections.
func (s *GradeService) ListAll(ctx context.Context) ([]model.GradeListRow, error) {
	rows, err := s.grades.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []model.GradeListRow{}
	}
	return rows, nil
}

// AuditTrail returns the change history of one student's grade in a section, oldest first.
func (s *GradeService) AuditTrail(ctx context.Context, classSN, stuSN int) ([]model.GradeAuditEntry, error) {
	if _, err := s.classes.GetByID(ctx, classSN); err != nil {
		return nil, storeErr("section", err)
	}
	entries, err := s.grades.AuditTrail(ctx, classSN, stuSN)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []model.GradeAuditEntry{}
	}
	return entries, nil
}

// roundGrade rounds to the one decimal place the store keeps.
func roundGrade(v float64) float64 {
	return math.Round(v*10) / 10
}

func roundedPtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := roundGrade(*v)
	return &r
}

func sameGrade(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return roundGrade(*a) == roundGrade(*b)
}

// parseGrade accepts a JSON number, a numeric string, or an empty value.
// The value is returned unrounded.
func parseGrade(raw any) (*float64, error) {
	var v float64
	switch g := raw.(type) {
	case nil:
		return nil, nil
	case float64:
		v = g
	case int:
		v = float64(g)
	case json.Number:
		f, err := g.Float64()
		if err != nil {
			return nil, fmt.Errorf("grade %q is not a number", g.String())
		}
		v = f
	case string:
		str := strings.TrimSpace(g)
		if str == "" {
			return nil, nil
		}
		f, err := strconv.ParseFloat(str, 64)
		if err != nil {
			return nil, fmt.Errorf("grade %q is not a number", str)
		}
		v = f
	default:
		return nil, fmt.Errorf("grade has unsupported type %T", raw)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("grade is not a finite number")
	}
	return &v, nil
}
