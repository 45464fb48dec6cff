package model

import "time"

// Gender represents the student's gender.
type Gender string

const (
	GenderMale   Gender = "M"
	GenderFemale Gender = "F"
)

// Student represents an enrolled student record.
type Student struct {
	SN        int        `json:"stu_sn"`
	No        string     `json:"stu_no"`
	Name      string     `json:"stu_name"`
	Gender    *Gender    `json:"gender"`
	Enrolled  *time.Time `json:"enrolled"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// StudentRequest is the payload for creating or updating a student.
type StudentRequest struct {
	No       string  `json:"stu_no" binding:"required,stu_no"`
	Name     string  `json:"stu_name" binding:"required,min=1,max=64"`
	Gender   *Gender `json:"gender" binding:"omitempty,oneof=M F"`
	Enrolled string  `json:"enrolled" binding:"omitempty,datetime=2006-01-02"`
}
