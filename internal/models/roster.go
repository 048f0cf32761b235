package models

import "time"

// RosterEntry associates a student with an assignment.
type RosterEntry struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	AssignmentID uint      `gorm:"not null;uniqueIndex:idx_roster_assignment_student" json:"assignment_id"`
	StudentID    uint      `gorm:"not null;uniqueIndex:idx_roster_assignment_student;index" json:"student_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName pins the roster table name.
func (RosterEntry) TableName() string {
	return "assignment_roster"
}
