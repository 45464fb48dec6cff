package service

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VasantLong/cgms2025/internal/model"
)

func TestTranscriptStats(t *testing.T) {
	three, two := 3.0, 2.0
	lines := []model.TranscriptLine{
		{Grade: grade(95), Credit: &three}, // 4.0
		{Grade: grade(72), Credit: &two},   // 2.2
		{Grade: grade(40), Credit: &two},   // 0
		{Grade: nil, Credit: &three},
	}

	st := transcriptStats(lines)

	assert.Equal(t, 5.0, st.TotalCredits)
	assert.Equal(t, 2, st.Passed)
	assert.Equal(t, 1, st.Failed)
	assert.Equal(t, 1, st.Pending)
	assert.Equal(t, 2.34, st.GPA) // (12 + 4.4) / 7
}

func TestGradePoint(t *testing.T) {
	assert.Equal(t, 0.0, gradePoint(59.9))
	assert.Equal(t, 1.0, gradePoint(60))
	assert.Equal(t, 4.0, gradePoint(90))
	assert.Equal(t, 4.0, gradePoint(100))
}

func TestTranscript(t *testing.T) {
	f := newFixture(t)
	svc := NewReportService(f.store, f.store, f.store.Students(), f.store.Classes(), zerolog.Nop())
	sec := f.section(f.course("10001"), 1)
	f.students(1)
	f.enroll(sec.SN, 1)
	f.setGrade(sec.SN, 1, 80)

	tr, err := svc.Transcript(f.ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "0001", tr.Student.No)
	require.Len(t, tr.Grades, 1)
	assert.Equal(t, sec.No, tr.Grades[0].ClassNo)
	assert.Equal(t, 1, tr.Stats.Passed)

	_, err = svc.Transcript(f.ctx, 77)
	requireKind(t, err, KindNotFound)
}

func TestSummary(t *testing.T) {
	f := newFixture(t)
	svc := NewReportService(f.store, f.store, f.store.Students(), f.store.Classes(), zerolog.Nop())
	sec := f.section(f.course("10001"), 1)
	f.students(3)
	f.enroll(sec.SN, 1, 2, 3)
	f.setGrade(sec.SN, 1, 90)
	f.setGrade(sec.SN, 2, 50)

	sum, err := svc.Summary(f.ctx, sec.SN)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Enrolled)
	assert.Equal(t, 2, sum.Graded)
	assert.InDelta(t, 70.0, *sum.Mean, 1e-9)
	assert.Equal(t, 90.0, *sum.Max)
	assert.Equal(t, 50.0, *sum.Min)
	assert.InDelta(t, 0.5, *sum.PassRate, 1e-9)

	_, err = svc.Summary(f.ctx, 404)
	requireKind(t, err, KindNotFound)
}

func TestWriteGradeSheet(t *testing.T) {
	f := newFixture(t)
	svc := NewReportService(f.store, f.store, f.store.Students(), f.store.Classes(), zerolog.Nop())
	sec := f.section(f.course("10001"), 1)
	f.students(2)
	f.enroll(sec.SN, 1, 2)
	f.setGrade(sec.SN, 2, 66.5)

	var buf bytes.Buffer
	classNo, err := svc.WriteGradeSheet(f.ctx, sec.SN, &buf)

	require.NoError(t, err)
	assert.Equal(t, sec.No, classNo)
	assert.Equal(t, "stu_no,stu_name,grade\n0001,Student 1,\n0002,Student 2,66.5\n", buf.String())
}
