package memory

import (
	"context"
	"sort"

	"github.com/VasantLong/cgms2025/internal/model"
	"github.com/VasantLong/cgms2025/internal/ports"
)

// ListEnrolled implements ports.RosterReader.
func (s *Store) ListEnrolled(_ context.Context, classSN, limit, offset int) ([]model.Student, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.roster(classSN)
	return page(all, limit, offset), len(all), nil
}

// ListAvailable implements ports.RosterReader.
func (s *Store) ListAvailable(_ context.Context, classSN int, scope model.AvailableScope) ([]model.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	couSN := s.data.classes[classSN].CouSN
	taken := make(map[int]bool)
	for p, e := range s.data.enrollments {
		if p.classSN == classSN || (scope == model.ScopeCourse && e.couSN == couSN) {
			taken[p.stuSN] = true
		}
	}
	out := []model.Student{}
	for _, stu := range s.data.students {
		if !taken[stu.SN] {
			out = append(out, stu)
		}
	}
	sortStudents(out)
	return out, nil
}

// FindConflicts implements ports.RosterReader.
func (s *Store) FindConflicts(_ context.Context, classSN int, stuSNs []int) ([]model.Conflict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conflicts(classSN, s.data.classes[classSN].CouSN, stuSNs), nil
}

// ListWithGrades implements ports.RosterReader.
func (s *Store) ListWithGrades(_ context.Context, classSN int) ([]model.RosterEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.RosterEntry{}
	for _, stu := range s.roster(classSN) {
		e := model.RosterEntry{Student: stu}
		if g, ok := s.data.grades[pair{classSN, stu.SN}]; ok {
			e.Grade = g.Value
			at := g.UpdatedAt
			e.GradeUpdatedAt = &at
		}
		out = append(out, e)
	}
	return out, nil
}

// ListAll implements ports.GradeReader.
func (s *Store) ListAll(_ context.Context) ([]model.GradeListRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.GradeListRow{}
	for p, g := range s.data.grades {
		stu := s.data.students[p.stuSN]
		cls := s.data.classes[p.classSN]
		out = append(out, model.GradeListRow{
			StuSN: stu.SN, StuNo: stu.No, StuName: stu.Name,
			ClassSN: cls.SN, ClassNo: cls.No,
			CouSN: cls.CouSN, CouName: s.data.courses[cls.CouSN].Name,
			Grade: g.Value,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StuNo != out[j].StuNo {
			return out[i].StuNo < out[j].StuNo
		}
		return out[i].ClassNo < out[j].ClassNo
	})
	return out, nil
}

// AuditTrail implements ports.GradeReader.
func (s *Store) AuditTrail(_ context.Context, classSN, stuSN int) ([]model.GradeAuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.GradeAuditEntry{}
	for _, e := range s.data.audit {
		if e.ClassSN == classSN && e.StuSN == stuSN {
			out = append(out, e)
		}
	}
	return out, nil
}

// AuditLen returns the number of audit entries ever appended.
func (s *Store) AuditLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data.audit)
}

// TranscriptLines implements ports.ReportReader.
func (s *Store) TranscriptLines(_ context.Context, stuSN int) ([]model.TranscriptLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.TranscriptLine{}
	for p := range s.data.enrollments {
		if p.stuSN != stuSN {
			continue
		}
		cls := s.data.classes[p.classSN]
		co := s.data.courses[cls.CouSN]
		line := model.TranscriptLine{
			ClassSN: cls.SN, ClassNo: cls.No, CourseName: co.Name,
			Semester: cls.Semester, Credit: co.Credit,
		}
		if g, ok := s.data.grades[p]; ok {
			line.Grade = g.Value
		}
		out = append(out, line)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Semester != out[j].Semester {
			return out[i].Semester < out[j].Semester
		}
		return out[i].ClassNo < out[j].ClassNo
	})
	return out, nil
}

// SectionSummary implements ports.ReportReader.
func (s *Store) SectionSummary(_ context.Context, classSN int, passMark float64) (*model.SectionSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cls, ok := s.data.classes[classSN]
	if !ok {
		return nil, ports.ErrNotFound
	}
	sum := &model.SectionSummary{ClassSN: classSN, ClassNo: cls.No}
	var total float64
	var passed int
	for p := range s.data.enrollments {
		if p.classSN != classSN {
			continue
		}
		sum.Enrolled++
		g, ok := s.data.grades[p]
		if !ok || g.Value == nil {
			continue
		}
		v := *g.Value
		sum.Graded++
		total += v
		if sum.Max == nil || v > *sum.Max {
			sum.Max = ptr(v)
		}
		if sum.Min == nil || v < *sum.Min {
			sum.Min = ptr(v)
		}
		if v >= passMark {
			passed++
		}
	}
	if sum.Graded > 0 {
		sum.Mean = ptr(total / float64(sum.Graded))
		sum.PassRate = ptr(float64(passed) / float64(sum.Graded))
	}
	return sum, nil
}

func ptr(v float64) *float64 { return &v }
