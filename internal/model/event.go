package model

import "time"

// Event types published on a section's channel.
const (
	EventRosterChanged = "roster.changed"
	EventGradesChanged = "grades.changed"
)

// ClassEvent announces a committed change to a section.
type ClassEvent struct {
	Type    string    `json:"type"`
	ClassSN int       `json:"class_sn"`
	Version time.Time `json:"version"`
	Added   []int     `json:"added,omitempty"`
	Removed []int     `json:"removed,omitempty"`
	Updated int       `json:"updated,omitempty"`
	At      time.Time `json:"at"`
}
