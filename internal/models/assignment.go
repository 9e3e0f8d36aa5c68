package models

import "time"

// Assignment is teacher-authored work owned by a lesson.
type Assignment struct {
	ID           string    `db:"id" json:"id"`
	LessonID     string    `db:"lesson_id" json:"lesson_id"`
	InstructorID string    `db:"instructor_id" json:"instructor_id"`
	Blocks       BlockList `db:"blocks" json:"blocks"`
	FileURL      *string   `db:"file_url" json:"file_url,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Content returns the stored media references of the assignment.
func (a *Assignment) Content() ContentSource {
	return ContentSource{Blocks: a.Blocks, FileURL: a.FileURL}
}

// AssignmentView pairs the persisted block order with the display order.
type AssignmentView struct {
	Assignment
	Rendered BlockList `json:"rendered"`
}

// NewAssignmentView builds the read model for a.
func NewAssignmentView(a Assignment) AssignmentView {
	return AssignmentView{Assignment: a, Rendered: a.Blocks.RenderOrder()}
}

// AssignmentContentRequest carries a whole-list replacement of assignment content.
type AssignmentContentRequest struct {
	Blocks BlockList `json:"blocks" validate:"required,min=1,dive"`
}

// AssignmentUpdateResult reports an update and any media reclamation it triggered.
type AssignmentUpdateResult struct {
	Assignment AssignmentView `json:"assignment"`
	Reclaimed  CascadeReport  `json:"reclaimed"`
}
