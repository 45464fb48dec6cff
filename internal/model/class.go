package model

import "time"

// Class is a section: one offering of a course in a given semester.
// UpdatedAt doubles as the version stamp for grade edits.
type Class struct {
	SN         int       `json:"class_sn"`
	No         string    `json:"class_no"`
	Name       string    `json:"name"`
	Semester   string    `json:"semester"`
	Location   string    `json:"location"`
	CouSN      int       `json:"cou_sn"`
	CourseNo   string    `json:"cou_no,omitempty"`
	CourseName string    `json:"cou_name,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ClassRequest is the payload for creating or updating a section.
type ClassRequest struct {
	No       string `json:"class_no" binding:"required,class_no"`
	Name     string `json:"name" binding:"required,min=1,max=128"`
	Semester string `json:"semester" binding:"max=32"`
	Location string `json:"location" binding:"max=64"`
	CouSN    int    `json:"cou_sn" binding:"required,gt=0"`
}
