package models

import "time"

// Class groups enrolled students and the lessons taught to them.
type Class struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Lesson is an ordered unit of a class that owns assignments.
type Lesson struct {
	ID        string    `db:"id" json:"id"`
	ClassID   string    `db:"class_id" json:"class_id"`
	Title     string    `db:"title" json:"title"`
	Position  int       `db:"position" json:"position"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// CreateLessonRequest is the payload for adding a lesson to a class.
type CreateLessonRequest struct {
	Title string `json:"title" validate:"required,max=200"`
}
