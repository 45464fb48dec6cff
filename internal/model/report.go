package model

// TranscriptLine is one graded course on a student's transcript.
type TranscriptLine struct {
	ClassSN    int      `json:"class_sn"`
	ClassNo    string   `json:"class_no"`
	CourseName string   `json:"course_name"`
	Semester   string   `json:"semester"`
	Grade      *float64 `json:"grade"`
	Credit     *float64 `json:"credit"`
}

// TranscriptStats summarises a transcript.
type TranscriptStats struct {
	TotalCredits float64 `json:"total_credits"`
	GPA          float64 `json:"gpa"`
	Passed       int     `json:"passed"`
	Failed       int     `json:"failed"`
	Pending      int     `json:"pending"`
}

// Transcript is the per-student grade report.
type Transcript struct {
	Student Student          `json:"student"`
	Grades  []TranscriptLine `json:"grades"`
	Stats   TranscriptStats  `json:"stats"`
}

// SectionSummary aggregates the grades of one section.
type SectionSummary struct {
	ClassSN  int      `json:"class_sn"`
	ClassNo  string   `json:"class_no"`
	Enrolled int      `json:"enrolled"`
	Graded   int      `json:"graded"`
	Mean     *float64 `json:"mean"`
	Max      *float64 `json:"max"`
	Min      *float64 `json:"min"`
	PassRate *float64 `json:"pass_rate"`
}
