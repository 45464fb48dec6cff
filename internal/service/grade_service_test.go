package service

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VasantLong/cgms2025/internal/model"
	"github.com/VasantLong/cgms2025/internal/response"
)

var operator = model.Operator{SN: 7, Name: "secretary01"}

func gradeFixture(t *testing.T) (*fixture, *model.Class) {
	t.Helper()
	f := newFixture(t)
	sec := f.section(f.course("10001"), 1)
	f.students(4)
	f.enroll(sec.SN, 1, 2, 3)
	return f, sec
}

func TestBatchUpsertPartialSuccess(t *testing.T) {
	f, sec := gradeFixture(t)
	before, err := f.grades.Version(f.ctx, sec.SN)
	require.NoError(t, err)
	auditBefore := f.store.AuditLen()

	res, err := f.grades.BatchUpsert(f.ctx, model.BatchGradeRequest{
		ClassSN: sec.SN,
		Grades: []model.GradeInput{
			{StuSN: 2, Grade: grade(95)},
			{StuSN: 99, Grade: grade(50)},
		},
	}, operator)

	require.NoError(t, err)
	assert.Equal(t, 1, res.UpdatedCount)
	assert.Equal(t, []model.GradeSkip{{StuSN: 99, Reason: model.SkipNotEnrolled}}, res.Skipped)
	assert.True(t, res.Version.After(before))
	assert.Equal(t, auditBefore+1, f.store.AuditLen())

	after, err := f.grades.Version(f.ctx, sec.SN)
	require.NoError(t, err)
	assert.Equal(t, res.Version, after)
	assert.Equal(t, 95.0, *f.gradesOf(sec.SN)[2].Value)
}

func TestBatchUpsertGradeBounds(t *testing.T) {
	f, sec := gradeFixture(t)

	res, err := f.grades.BatchUpsert(f.ctx, model.BatchGradeRequest{
		ClassSN: sec.SN,
		Grades: []model.GradeInput{
			{StuSN: 1, Grade: grade(100)},
			{StuSN: 2, Grade: grade(-0.04)},
			{StuSN: 2, Grade: grade(100.04)},
			{StuSN: 3, Grade: nil},
			{StuSN: 1, Grade: grade(0)},
		},
	}, operator)

	require.NoError(t, err)
	assert.Equal(t, []model.GradeSkip{
		{StuSN: 1, Reason: model.SkipSuperseded},
		{StuSN: 2, Reason: model.SkipOutOfRange},
		{StuSN: 2, Reason: model.SkipOutOfRange},
	}, res.Skipped)
	assert.Equal(t, 1, res.UpdatedCount, "only student 1 changes")
	assert.Equal(t, 1, res.UnchangedCount, "null on a missing grade is not a change")
	assert.Equal(t, 0.0, *f.gradesOf(sec.SN)[1].Value)
	assert.NotContains(t, f.gradesOf(sec.SN), 2)
}

func TestBatchUpsertDuplicateRowsLastWins(t *testing.T) {
	f, sec := gradeFixture(t)

	res, err := f.grades.BatchUpsert(f.ctx, model.BatchGradeRequest{
		ClassSN: sec.SN,
		Grades: []model.GradeInput{
			{StuSN: 1, Grade: grade(40)},
			{StuSN: 1, Grade: grade(65.25)},
		},
	}, operator)

	require.NoError(t, err)
	assert.Equal(t, 1, res.UpdatedCount)
	assert.Equal(t, []model.GradeSkip{{StuSN: 1, Reason: model.SkipSuperseded}}, res.Skipped)
	assert.Equal(t, 65.3, *f.gradesOf(sec.SN)[1].Value)
}

func TestBatchUpsertUnchangedKeepsVersion(t *testing.T) {
	f, sec := gradeFixture(t)
	f.setGrade(sec.SN, 1, 80)
	before, err := f.grades.Version(f.ctx, sec.SN)
	require.NoError(t, err)
	auditBefore := f.store.AuditLen()

	res, err := f.grades.BatchUpsert(f.ctx, model.BatchGradeRequest{
		ClassSN: sec.SN,
		Grades:  []model.GradeInput{{StuSN: 1, Grade: grade(80.02)}},
	}, operator)

	require.NoError(t, err)
	assert.Equal(t, 0, res.UpdatedCount)
	assert.Equal(t, 1, res.UnchangedCount)
	assert.Equal(t, before, res.Version)
	assert.Equal(t, auditBefore, f.store.AuditLen())
}

func TestVersionStrictlyIncreases(t *testing.T) {
	f, sec := gradeFixture(t)
	frozen := time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)
	f.store.SetClock(func() time.Time { return frozen })

	var last time.Time
	for i, v := range []float64{10, 20, 30} {
		res, err := f.grades.BatchUpsert(f.ctx, model.BatchGradeRequest{
			ClassSN: sec.SN,
			Grades:  []model.GradeInput{{StuSN: 1, Grade: grade(v)}},
		}, operator)
		require.NoError(t, err)
		if i > 0 {
			assert.True(t, res.Version.After(last), "write %d", i)
		}
		last = res.Version
	}
}

func TestBatchUpsertAuditRecordsOldAndNew(t *testing.T) {
	f, sec := gradeFixture(t)
	f.setGrade(sec.SN, 2, 70)

	_, err := f.grades.BatchUpsert(f.ctx, model.BatchGradeRequest{
		ClassSN: sec.SN,
		Grades:  []model.GradeInput{{StuSN: 2, Grade: grade(72)}},
	}, operator)
	require.NoError(t, err)

	trail, err := f.grades.AuditTrail(f.ctx, sec.SN, 2)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Nil(t, trail[0].OldGrade)
	assert.Equal(t, 70.0, *trail[1].OldGrade)
	assert.Equal(t, 72.0, *trail[1].NewGrade)
	assert.Equal(t, operator.SN, trail[1].OperatorSN)
	assert.Equal(t, model.GradeSourceBatch, trail[1].Source)
}

func TestBatchUpsertStoreFailureAbortsBatch(t *testing.T) {
	f, sec := gradeFixture(t)
	f.setGrade(sec.SN, 1, 50)
	before, err := f.grades.Version(f.ctx, sec.SN)
	require.NoError(t, err)
	auditBefore := f.store.AuditLen()
	f.store.FailNext("AppendAudit", errors.New("disk full"))

	_, err = f.grades.BatchUpsert(f.ctx, model.BatchGradeRequest{
		ClassSN: sec.SN,
		Grades: []model.GradeInput{
			{StuSN: 1, Grade: grade(60)},
			{StuSN: 2, Grade: grade(61)},
		},
	}, operator)

	requireKind(t, err, KindInternal)
	grades := f.gradesOf(sec.SN)
	assert.Equal(t, 50.0, *grades[1].Value)
	assert.NotContains(t, grades, 2)
	assert.Equal(t, auditBefore, f.store.AuditLen())
	after, err := f.grades.Version(f.ctx, sec.SN)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestBatchUpsertExpectedVersion(t *testing.T) {
	f, sec := gradeFixture(t)
	v0, err := f.grades.Version(f.ctx, sec.SN)
	require.NoError(t, err)
	f.setGrade(sec.SN, 1, 50)

	_, err = f.grades.BatchUpsert(f.ctx, model.BatchGradeRequest{
		ClassSN:         sec.SN,
		Grades:          []model.GradeInput{{StuSN: 2, Grade: grade(60)}},
		ExpectedVersion: &v0,
	}, operator)
	se := requireKind(t, err, KindConflict)
	assert.Equal(t, response.ErrVersionMismatch, se.Code)
	assert.NotContains(t, f.gradesOf(sec.SN), 2)

	current, err := f.grades.Version(f.ctx, sec.SN)
	require.NoError(t, err)
	res, err := f.grades.BatchUpsert(f.ctx, model.BatchGradeRequest{
		ClassSN:         sec.SN,
		Grades:          []model.GradeInput{{StuSN: 2, Grade: grade(60)}},
		ExpectedVersion: &current,
	}, operator)
	require.NoError(t, err)
	assert.Equal(t, 1, res.UpdatedCount)
}

func TestBatchUpsertMissingSection(t *testing.T) {
	f := newFixture(t)
	_, err := f.grades.BatchUpsert(f.ctx, model.BatchGradeRequest{ClassSN: 12}, operator)
	requireKind(t, err, KindNotFound)
}

func TestBatchUpsertPublishesOnlyOnChange(t *testing.T) {
	f, sec := gradeFixture(t)
	published := len(f.pub.Events())

	_, err := f.grades.BatchUpsert(f.ctx, model.BatchGradeRequest{
		ClassSN: sec.SN,
		Grades:  []model.GradeInput{{StuSN: 99, Grade: grade(10)}},
	}, operator)
	require.NoError(t, err)
	assert.Len(t, f.pub.Events(), published)

	f.setGrade(sec.SN, 1, 10)
	events := f.pub.Events()
	require.Len(t, events, published+1)
	assert.Equal(t, model.EventGradesChanged, events[published].Type)
	assert.Equal(t, 1, events[published].Updated)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.GradesSkipped.WithLabelValues(model.SkipNotEnrolled)))
}

func TestImportRowsClassification(t *testing.T) {
	f, sec := gradeFixture(t)
	before, err := f.grades.Version(f.ctx, sec.SN)
	require.NoError(t, err)

	res, err := f.grades.ImportRows(f.ctx, sec.SN, []model.ImportRow{
		{StuNo: "0001", Name: "Student 1", Grade: 88.0, Remark: "final"},
		{StuNo: "0002", Name: "Someone Else", Grade: " 71.5 "},
		{StuNo: "0003", Grade: "abc"},
		{StuNo: "0003", Grade: 101.0},
		{StuNo: "0004", Grade: 60.0},
		{StuNo: "9999", Grade: 60.0},
		{StuNo: "12", Grade: 60.0},
		{StuNo: "0003", Grade: ""},
		{StuNo: "0001", Grade: true},
	}, operator)

	require.NoError(t, err)
	assert.Equal(t, 3, res.Success)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, 4, res.Invalid)
	assert.True(t, res.Version.After(before))

	statuses := make([]string, len(res.Logs))
	for i, l := range res.Logs {
		statuses[i] = l.Status
		assert.Equal(t, i+1, l.Row)
	}
	assert.Equal(t, []string{
		model.ImportSuccess, model.ImportSuccess, model.ImportInvalid, model.ImportInvalid,
		model.ImportFailed, model.ImportFailed, model.ImportInvalid, model.ImportSuccess,
		model.ImportInvalid,
	}, statuses)
	assert.Contains(t, res.Logs[1].Message, "differs")
	assert.Equal(t, "student is not enrolled in this section", res.Logs[4].Message)
	assert.Equal(t, "student not found", res.Logs[5].Message)

	grades := f.gradesOf(sec.SN)
	assert.Equal(t, 88.0, *grades[1].Value)
	assert.Equal(t, 71.5, *grades[2].Value)

	trail, err := f.grades.AuditTrail(f.ctx, sec.SN, 1)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, model.GradeSourceImport, trail[0].Source)
	require.NotNil(t, trail[0].Remark)
	assert.Equal(t, "final", *trail[0].Remark)
}

func TestImportRowsRejectsNearBoundGrades(t *testing.T) {
	f, sec := gradeFixture(t)

	res, err := f.grades.ImportRows(f.ctx, sec.SN, []model.ImportRow{
		{StuNo: "0001", Grade: "100.03"},
		{StuNo: "0002", Grade: -0.01},
		{StuNo: "0003", Grade: "99.96"},
	}, operator)

	require.NoError(t, err)
	assert.Equal(t, 1, res.Success)
	assert.Equal(t, 2, res.Invalid)
	assert.Equal(t, model.ImportInvalid, res.Logs[0].Status)
	assert.Equal(t, model.ImportInvalid, res.Logs[1].Status)
	grades := f.gradesOf(sec.SN)
	assert.NotContains(t, grades, 1)
	assert.NotContains(t, grades, 2)
	assert.Equal(t, 100.0, *grades[3].Value)
}

func TestImportRowsDuplicateStudentNumber(t *testing.T) {
	f, sec := gradeFixture(t)

	res, err := f.grades.ImportRows(f.ctx, sec.SN, []model.ImportRow{
		{StuNo: "0001", Grade: 50.0},
		{StuNo: "0001", Grade: 55.0},
	}, operator)

	require.NoError(t, err)
	assert.Equal(t, 1, res.Success)
	assert.Equal(t, 1, res.Failed)
	assert.Contains(t, res.Logs[0].Message, "superseded by row 2")
	assert.Equal(t, 55.0, *f.gradesOf(sec.SN)[1].Value)
}

func TestImportRowsStoreFailureAbortsImport(t *testing.T) {
	f, sec := gradeFixture(t)
	f.store.FailNext("UpsertGrade", errors.New("deadlock detected"))

	_, err := f.grades.ImportRows(f.ctx, sec.SN, []model.ImportRow{
		{StuNo: "0001", Grade: 50.0},
	}, operator)

	requireKind(t, err, KindInternal)
	assert.Empty(t, f.gradesOf(sec.SN))
}

func TestListWithGrades(t *testing.T) {
	f, sec := gradeFixture(t)
	f.setGrade(sec.SN, 3, 99.5)

	entries, err := f.grades.ListWithGrades(f.ctx, sec.SN)

	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Nil(t, entries[0].Grade)
	require.NotNil(t, entries[2].Grade)
	assert.Equal(t, 99.5, *entries[2].Grade)

	_, err = f.grades.ListWithGrades(f.ctx, 404)
	requireKind(t, err, KindNotFound)
}

func TestParseGrade(t *testing.T) {
	tests := []struct {
		raw     any
		want    *float64
		wantErr bool
	}{
		{nil, nil, false},
		{"", nil, false},
		{"  ", nil, false},
		{85.0, grade(85), false},
		{"92.46", grade(92.46), false},
		{7, grade(7), false},
		{"NaN", nil, true},
		{"ninety", nil, true},
		{[]int{1}, nil, true},
	}
	for _, tt := range tests {
		got, err := parseGrade(tt.raw)
		if tt.wantErr {
			assert.Error(t, err, "%v", tt.raw)
			continue
		}
		require.NoError(t, err, "%v", tt.raw)
		assert.Equal(t, tt.want, got, "%v", tt.raw)
	}
}
