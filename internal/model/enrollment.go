package model

import "time"

// AvailableScope selects which students count as available for a section.
type AvailableScope string

const (
	// ScopeSection lists students not enrolled in this section.
	ScopeSection AvailableScope = "section"
	// ScopeCourse lists students not enrolled in any section of the section's course.
	ScopeCourse AvailableScope = "course"
)

// Conflict names a student already enrolled in another section of the same course.
type Conflict struct {
	StuSN   int    `json:"stu_sn"`
	StuNo   string `json:"stu_no"`
	StuName string `json:"stu_name"`
	ClassSN int    `json:"class_sn"`
	ClassNo string `json:"class_no"`
}

// ReconcileRequest is the full desired roster of a section.
type ReconcileRequest struct {
	StudentSNs []int `json:"student_sns" binding:"required,dive,gt=0"`
}

// ReconcileResult reports the outcome of a roster reconciliation.
type ReconcileResult struct {
	TotalCount int        `json:"total_count"`
	Added      []int      `json:"added"`
	Removed    []int      `json:"removed"`
	Conflicts  []Conflict `json:"conflicts"`
	Students   []Student  `json:"students"`
	Timestamp  time.Time  `json:"timestamp"`
}
