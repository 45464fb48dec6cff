package model

import "time"

// GradeSource identifies the write path that produced a grade change.
type GradeSource string

const (
	GradeSourceBatch  GradeSource = "batch"
	GradeSourceImport GradeSource = "import"
)

// Skip reasons attached to grade rows that were not applied.
const (
	SkipOutOfRange  = "OUT_OF_RANGE"
	SkipNotEnrolled = "NOT_ENROLLED"
	SkipSuperseded  = "SUPERSEDED"
)

// Import row statuses.
const (
	ImportSuccess = "success"
	ImportFailed  = "failed"
	ImportInvalid = "invalid"
)

// Grade is a student's grade in one section. A nil Value means not yet entered.
type Grade struct {
	ID        int64     `json:"id"`
	ClassSN   int       `json:"class_sn"`
	StuSN     int       `json:"stu_sn"`
	Value     *float64  `json:"grade"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GradeAuditEntry is one append-only record of a grade change.
type GradeAuditEntry struct {
	ID           int64       `json:"id"`
	GradeID      *int64      `json:"grade_id"`
	ClassSN      int         `json:"class_sn"`
	StuSN        int         `json:"stu_sn"`
	OldGrade     *float64    `json:"old_grade"`
	NewGrade     *float64    `json:"new_grade"`
	Source       GradeSource `json:"source"`
	OperatorSN   int         `json:"operator_sn"`
	OperatorName string      `json:"operator_name"`
	Remark       *string     `json:"remark,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}

// Operator identifies who performed a write.
type Operator struct {
	SN   int
	Name string
}

// RosterEntry is an enrolled student together with their grade, if any.
type RosterEntry struct {
	Student
	Grade          *float64   `json:"grade"`
	GradeUpdatedAt *time.Time `json:"grade_updated_at,omitempty"`
}

// GradeListRow is one row of the cross-section grade listing.
type GradeListRow struct {
	StuSN   int      `json:"stu_sn"`
	StuNo   string   `json:"stu_no"`
	StuName string   `json:"stu_name"`
	ClassSN int      `json:"class_sn"`
	ClassNo string   `json:"class_no"`
	CouSN   int      `json:"cou_sn"`
	CouName string   `json:"cou_name"`
	Grade   *float64 `json:"grade"`
}

// GradeInput is one row of a batch grade write.
type GradeInput struct {
	StuSN int      `json:"stu_sn" binding:"required,gt=0"`
	Grade *float64 `json:"grade"`
}

// BatchGradeRequest is the payload of POST /api/grade/batch.
type BatchGradeRequest struct {
	ClassSN         int          `json:"class_sn" binding:"required,gt=0"`
	Grades          []GradeInput `json:"grades" binding:"required,dive"`
	ExpectedVersion *time.Time   `json:"expected_version"`
}

// GradeSkip explains why one batch row was not applied.
type GradeSkip struct {
	StuSN  int    `json:"stu_sn"`
	Reason string `json:"reason"`
}

// BatchResult reports the outcome of a batch grade write.
type BatchResult struct {
	UpdatedCount   int         `json:"updated_count"`
	UnchangedCount int         `json:"unchanged_count"`
	Skipped        []GradeSkip `json:"skipped"`
	Version        time.Time   `json:"version"`
}

// ImportRow is one raw row of a grade import. Grade is kept untyped so
// malformed values can be reported instead of rejected at decode time.
type ImportRow struct {
	StuNo  string `json:"stu_no"`
	Name   string `json:"name"`
	Grade  any    `json:"grade"`
	Remark string `json:"remark"`
}

// ImportRequest is the JSON form of POST /api/grade/import.
type ImportRequest struct {
	ClassSN int         `json:"class_sn" binding:"required,gt=0"`
	Rows    []ImportRow `json:"rows" binding:"required"`
}

// ImportLog records what happened to one import row.
type ImportLog struct {
	Row     int    `json:"row"`
	StuNo   string `json:"stu_no"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ImportResult reports the outcome of a grade import.
type ImportResult struct {
	Success int         `json:"success"`
	Failed  int         `json:"failed"`
	Invalid int         `json:"invalid"`
	Logs    []ImportLog `json:"logs"`
	Version time.Time   `json:"version"`
}
