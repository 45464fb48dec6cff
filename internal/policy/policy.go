// Package policy holds the natural-key formats and value bounds that
// student, course and section records are checked against.
package policy

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/VasantLong/cgms2025/internal/config"
)

// DefaultClassNoPattern matches "{course_no}-{year}S{semester}-{sequence}", e.g. 10001-2024S1-01.
const DefaultClassNoPattern = `^(?P<course>\d{5})-(?P<year>\d{4})S(?P<semester>[1-3])-(?P<seq>\d{2})$`

const dateLayout = "2006-01-02"

// Policy validates natural keys and grade values.
type Policy struct {
	StudentNoLength int
	CourseNoLength  int
	ClassNo         *regexp.Regexp
	EnrollmentEpoch time.Time
	GradeMin        float64
	GradeMax        float64

	studentNo   *regexp.Regexp
	courseNo    *regexp.Regexp
	courseGroup int
}

// Default returns the policy used when nothing is configured.
func Default() *Policy {
	p, err := New(config.PolicyConfig{
		StudentNoLength: 4,
		CourseNoLength:  5,
		EnrollmentEpoch: "1900-01-01",
		GradeMin:        0,
		GradeMax:        100,
	})
	if err != nil {
		panic(err)
	}
	return p
}

// New builds a Policy from configuration. The class pattern must contain a
// named group "course" that captures the owning course number.
func New(cfg config.PolicyConfig) (*Policy, error) {
	if cfg.StudentNoLength < 1 {
		return nil, fmt.Errorf("student no length must be positive, got %d", cfg.StudentNoLength)
	}
	if cfg.CourseNoLength < 1 {
		return nil, fmt.Errorf("course no length must be positive, got %d", cfg.CourseNoLength)
	}
	if cfg.GradeMin > cfg.GradeMax {
		return nil, fmt.Errorf("grade bounds inverted: [%g, %g]", cfg.GradeMin, cfg.GradeMax)
	}

	pattern := cfg.ClassNoPattern
	if pattern == "" {
		pattern = strings.Replace(DefaultClassNoPattern, `\d{5}`, fmt.Sprintf(`\d{%d}`, cfg.CourseNoLength), 1)
	}
	classNo, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile class no pattern: %w", err)
	}
	group := classNo.SubexpIndex("course")
	if group < 0 {
		return nil, fmt.Errorf("class no pattern %q has no (?P<course>...) group", pattern)
	}

	epoch, err := time.Parse(dateLayout, cfg.EnrollmentEpoch)
	if err != nil {
		return nil, fmt.Errorf("parse enrollment epoch: %w", err)
	}

	return &Policy{
		StudentNoLength: cfg.StudentNoLength,
		CourseNoLength:  cfg.CourseNoLength,
		ClassNo:         classNo,
		EnrollmentEpoch: epoch,
		GradeMin:        cfg.GradeMin,
		GradeMax:        cfg.GradeMax,
		studentNo:       regexp.MustCompile(fmt.Sprintf(`^\d{%d}$`, cfg.StudentNoLength)),
		courseNo:        regexp.MustCompile(fmt.Sprintf(`^\d{%d}$`, cfg.CourseNoLength)),
		courseGroup:     group,
	}, nil
}

// ValidStudentNo reports whether no is a fixed-width numeric student number.
func (p *Policy) ValidStudentNo(no string) bool {
	return p.studentNo.MatchString(no)
}

// ValidCourseNo reports whether no is a fixed-width numeric course number.
func (p *Policy) ValidCourseNo(no string) bool {
	return p.courseNo.MatchString(no)
}

// ValidClassNo reports whether classNo matches the section code grammar.
func (p *Policy) ValidClassNo(classNo string) bool {
	return p.ClassNo.MatchString(classNo)
}

// CourseNoOf extracts the embedded course number from a section code.
func (p *Policy) CourseNoOf(classNo string) (string, bool) {
	m := p.ClassNo.FindStringSubmatch(classNo)
	if m == nil {
		return "", false
	}
	return m[p.courseGroup], true
}

// ValidEnrolled reports whether an enrollment date is on or after the epoch.
func (p *Policy) ValidEnrolled(t time.Time) bool {
	return !t.Before(p.EnrollmentEpoch)
}

// GradeInRange reports whether g lies inside the configured bounds.
func (p *Policy) GradeInRange(g float64) bool {
	return g >= p.GradeMin && g <= p.GradeMax
}
