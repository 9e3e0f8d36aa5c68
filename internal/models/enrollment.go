package models

import "time"

// Enrollment links a student to a class.
type Enrollment struct {
	ID         string    `db:"id" json:"id"`
	ClassID    string    `db:"class_id" json:"class_id"`
	StudentID  string    `db:"student_id" json:"student_id"`
	EnrolledAt time.Time `db:"enrolled_at" json:"enrolled_at"`
}

// EnrollRequest adds a student to a class.
type EnrollRequest struct {
	StudentID string `json:"student_id" validate:"required"`
}

// RemovalResult reports the outcome of removing a student from a class.
type RemovalResult struct {
	Removed bool          `json:"removed"`
	Report  CascadeReport `json:"report"`
}
