package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/VasantLong/cgms2025/internal/model"
	"github.com/VasantLong/cgms2025/internal/ports"
)

var errForeignKey = errors.New("foreign key violation")

// RunInTx runs fn against a snapshot of the store. The snapshot is kept when
// fn returns nil and discarded otherwise.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx ports.SectionTx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	saved := s.data.clone()
	if err := fn(ctx, &memTx{s: s}); err != nil {
		s.data = saved
		return err
	}
	if err := ctx.Err(); err != nil {
		s.data = saved
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// memTx runs with Store.mu held by RunInTx.
type memTx struct {
	s *Store
}

func (t *memTx) fail(method string) error {
	return t.s.injected(method)
}

func (t *memTx) LockSection(_ context.Context, classSN int) (*model.Class, error) {
	if err := t.fail("LockSection"); err != nil {
		return nil, err
	}
	c, ok := t.s.data.classes[classSN]
	if !ok {
		return nil, fmt.Errorf("lock section %d: %w", classSN, ports.ErrNotFound)
	}
	out := t.s.withCourse(c)
	return &out, nil
}

func (t *memTx) EnrolledStudentSNs(_ context.Context, classSN int) ([]int, error) {
	if err := t.fail("EnrolledStudentSNs"); err != nil {
		return nil, err
	}
	return t.s.enrolled(classSN), nil
}

func (t *memTx) RosterStudents(_ context.Context, classSN int) ([]model.Student, error) {
	if err := t.fail("RosterStudents"); err != nil {
		return nil, err
	}
	return t.s.roster(classSN), nil
}

func (t *memTx) MissingStudentSNs(_ context.Context, stuSNs []int) ([]int, error) {
	if err := t.fail("MissingStudentSNs"); err != nil {
		return nil, err
	}
	var missing []int
	for _, sn := range stuSNs {
		if _, ok := t.s.data.students[sn]; !ok {
			missing = append(missing, sn)
		}
	}
	sort.Ints(missing)
	return missing, nil
}

func (t *memTx) CrossSectionConflicts(_ context.Context, classSN, couSN int, stuSNs []int) ([]model.Conflict, error) {
	if err := t.fail("CrossSectionConflicts"); err != nil {
		return nil, err
	}
	return t.s.conflicts(classSN, couSN, stuSNs), nil
}

func (t *memTx) DeleteGrades(_ context.Context, classSN int, stuSNs []int) (int64, error) {
	if err := t.fail("DeleteGrades"); err != nil {
		return 0, err
	}
	var n int64
	for _, sn := range stuSNs {
		p := pair{classSN, sn}
		if _, ok := t.s.data.grades[p]; ok {
			delete(t.s.data.grades, p)
			n++
		}
	}
	return n, nil
}

func (t *memTx) DeleteEnrollments(_ context.Context, classSN int, stuSNs []int) (int64, error) {
	if err := t.fail("DeleteEnrollments"); err != nil {
		return 0, err
	}
	var n int64
	for _, sn := range stuSNs {
		p := pair{classSN, sn}
		if _, ok := t.s.data.enrollments[p]; ok {
			delete(t.s.data.enrollments, p)
			delete(t.s.data.grades, p)
			n++
		}
	}
	return n, nil
}

func (t *memTx) InsertEnrollments(_ context.Context, classSN, couSN int, stuSNs []int) (int64, error) {
	if err := t.fail("InsertEnrollments"); err != nil {
		return 0, err
	}
	var n int64
	for _, sn := range stuSNs {
		p := pair{classSN, sn}
		if _, ok := t.s.data.enrollments[p]; ok {
			continue
		}
		if _, ok := t.s.data.students[sn]; !ok {
			return 0, fmt.Errorf("insert enrollments: %w", errForeignKey)
		}
		for other, e := range t.s.data.enrollments {
			if other.stuSN == sn && e.couSN == couSN {
				return 0, fmt.Errorf("insert enrollments: %w", ports.ErrEnrollmentConflict)
			}
		}
		t.s.data.enrollments[p] = enrollment{couSN: couSN, createdAt: t.s.stamp()}
		n++
	}
	return n, nil
}

func (t *memTx) GradesFor(_ context.Context, classSN int) (map[int]model.Grade, error) {
	if err := t.fail("GradesFor"); err != nil {
		return nil, err
	}
	out := make(map[int]model.Grade)
	for p, g := range t.s.data.grades {
		if p.classSN == classSN {
			out[p.stuSN] = g
		}
	}
	return out, nil
}

func (t *memTx) StudentsByNo(_ context.Context, nos []string) (map[string]model.Student, error) {
	if err := t.fail("StudentsByNo"); err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(nos))
	for _, no := range nos {
		want[no] = true
	}
	out := make(map[string]model.Student)
	for _, stu := range t.s.data.students {
		if want[stu.No] {
			out[stu.No] = stu
		}
	}
	return out, nil
}

func (t *memTx) UpsertGrade(_ context.Context, classSN, stuSN int, value *float64) (int64, error) {
	if err := t.fail("UpsertGrade"); err != nil {
		return 0, err
	}
	p := pair{classSN, stuSN}
	if _, ok := t.s.data.enrollments[p]; !ok {
		return 0, fmt.Errorf("upsert grade (%d, %d): %w", classSN, stuSN, errForeignKey)
	}
	g, ok := t.s.data.grades[p]
	if !ok {
		t.s.data.nextGrade++
		g = model.Grade{ID: t.s.data.nextGrade, ClassSN: classSN, StuSN: stuSN}
	}
	if value != nil {
		v := *value
		g.Value = &v
	} else {
		g.Value = nil
	}
	g.UpdatedAt = t.s.stamp()
	t.s.data.grades[p] = g
	return g.ID, nil
}

func (t *memTx) AppendAudit(_ context.Context, entries []model.GradeAuditEntry) error {
	if err := t.fail("AppendAudit"); err != nil {
		return err
	}
	for _, e := range entries {
		t.s.data.nextAudit++
		e.ID = t.s.data.nextAudit
		e.CreatedAt = t.s.stamp()
		t.s.data.audit = append(t.s.data.audit, e)
	}
	return nil
}

func (t *memTx) BumpVersion(_ context.Context, classSN int) (time.Time, error) {
	if err := t.fail("BumpVersion"); err != nil {
		return time.Time{}, err
	}
	c, ok := t.s.data.classes[classSN]
	if !ok {
		return time.Time{}, fmt.Errorf("bump version: %w", ports.ErrNotFound)
	}
	next := t.s.stamp()
	if floor := c.UpdatedAt.Add(time.Microsecond); next.Before(floor) {
		next = floor
	}
	c.UpdatedAt = next
	t.s.data.classes[classSN] = c
	return next, nil
}

// ─── Shared reads (caller holds mu) ────────────────────────────────────

func (s *Store) enrolled(classSN int) []int {
	out := []int{}
	for p := range s.data.enrollments {
		if p.classSN == classSN {
			out = append(out, p.stuSN)
		}
	}
	sort.Ints(out)
	return out
}

func (s *Store) roster(classSN int) []model.Student {
	out := []model.Student{}
	for p := range s.data.enrollments {
		if p.classSN == classSN {
			out = append(out, s.data.students[p.stuSN])
		}
	}
	sortStudents(out)
	return out
}

func (s *Store) conflicts(classSN, couSN int, stuSNs []int) []model.Conflict {
	want := make(map[int]bool, len(stuSNs))
	for _, sn := range stuSNs {
		want[sn] = true
	}
	out := []model.Conflict{}
	for p, e := range s.data.enrollments {
		if !want[p.stuSN] || e.couSN != couSN || p.classSN == classSN {
			continue
		}
		stu := s.data.students[p.stuSN]
		out = append(out, model.Conflict{
			StuSN: stu.SN, StuNo: stu.No, StuName: stu.Name,
			ClassSN: p.classSN, ClassNo: s.data.classes[p.classSN].No,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StuSN < out[j].StuSN })
	return out
}
