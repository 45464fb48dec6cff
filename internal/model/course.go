package model

// Course is an academic course; sections are taught against it.
type Course struct {
	SN     int      `json:"cou_sn"`
	No     string   `json:"cou_no"`
	Name   string   `json:"cou_name"`
	Credit *float64 `json:"credit"`
	Hours  *int     `json:"hours"`
}

// CourseRequest is the payload for creating or updating a course.
type CourseRequest struct {
	No     string   `json:"cou_no" binding:"required,course_no"`
	Name   string   `json:"cou_name" binding:"required,min=1,max=128"`
	Credit *float64 `json:"credit" binding:"omitempty,gt=0"`
	Hours  *int     `json:"hours" binding:"omitempty,gt=0"`
}
