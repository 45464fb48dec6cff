package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/VasantLong/cgms2025/internal/metrics"
	"github.com/VasantLong/cgms2025/internal/model"
	"github.com/VasantLong/cgms2025/internal/policy"
	"github.com/VasantLong/cgms2025/internal/ports"
	"github.com/VasantLong/cgms2025/internal/repository/memory"
)

// fixture wires the roster and grade services over one in-memory store.
type fixture struct {
	t       *testing.T
	ctx     context.Context
	store   *memory.Store
	pub     *memory.Publisher
	metrics *metrics.Metrics
	roster  *RosterService
	grades  *GradeService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	pub := &memory.Publisher{}
	m := metrics.New(prometheus.NewRegistry())
	log := zerolog.Nop()
	return &fixture{
		t:       t,
		ctx:     context.Background(),
		store:   store,
		pub:     pub,
		metrics: m,
		roster:  NewRosterService(store, store, store.Classes(), pub, m, log),
		grades:  NewGradeService(store, store, store, store.Classes(), policy.Default(), pub, m, log),
	}
}

func (f *fixture) course(no string) *model.Course {
	f.t.Helper()
	c := &model.Course{No: no, Name: "Course " + no}
	require.NoError(f.t, f.store.Courses().Create(f.ctx, c))
	return c
}

func (f *fixture) section(course *model.Course, seq int) *model.Class {
	f.t.Helper()
	c := &model.Class{
		No:       fmt.Sprintf("%s-2025S1-%02d", course.No, seq),
		Name:     fmt.Sprintf("%s section %d", course.Name, seq),
		Semester: "2025S1",
		CouSN:    course.SN,
	}
	require.NoError(f.t, f.store.Classes().Create(f.ctx, c))
	return c
}

// students creates n students numbered 0001.. and returns their ids.
func (f *fixture) students(n int) []int {
	f.t.Helper()
	sns := make([]int, 0, n)
	for i := 1; i <= n; i++ {
		s := &model.Student{No: fmt.Sprintf("%04d", i), Name: fmt.Sprintf("Student %d", i)}
		require.NoError(f.t, f.store.Students().Create(f.ctx, s))
		sns = append(sns, s.SN)
	}
	return sns
}

func (f *fixture) enroll(classSN int, stuSNs ...int) {
	f.t.Helper()
	_, err := f.roster.Reconcile(f.ctx, classSN, append(f.enrolled(classSN), stuSNs...))
	require.NoError(f.t, err)
}

func (f *fixture) enrolled(classSN int) []int {
	f.t.Helper()
	var out []int
	require.NoError(f.t, f.store.RunInTx(f.ctx, func(_ context.Context, tx ports.SectionTx) error {
		var err error
		out, err = tx.EnrolledStudentSNs(f.ctx, classSN)
		return err
	}))
	return out
}

func (f *fixture) gradesOf(classSN int) map[int]model.Grade {
	f.t.Helper()
	var out map[int]model.Grade
	require.NoError(f.t, f.store.RunInTx(f.ctx, func(_ context.Context, tx ports.SectionTx) error {
		var err error
		out, err = tx.GradesFor(f.ctx, classSN)
		return err
	}))
	return out
}

func (f *fixture) setGrade(classSN, stuSN int, v float64) {
	f.t.Helper()
	_, err := f.grades.BatchUpsert(f.ctx, model.BatchGradeRequest{
		ClassSN: classSN,
		Grades:  []model.GradeInput{{StuSN: stuSN, Grade: &v}},
	}, model.Operator{SN: 1, Name: "setup"})
	require.NoError(f.t, err)
}

func grade(v float64) *float64 { return &v }

func requireKind(t *testing.T, err error, kind Kind) *Error {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, KindOf(err), "error: %v", err)
	var se *Error
	errors.As(err, &se)
	return se
}
