package models

import "time"

// SubmissionStatus is the review state of a student's work.
type SubmissionStatus string

// NOT_STARTED is never stored; it describes an enrolled student without a row.
const (
	SubmissionNotStarted    SubmissionStatus = "NOT_STARTED"
	SubmissionPendingReview SubmissionStatus = "PENDING_REVIEW"
	SubmissionCompleted     SubmissionStatus = "COMPLETED"
)

// Submission is a student's work for an assignment, unique per (assignment, student).
type Submission struct {
	ID           string           `db:"id" json:"id,omitempty"`
	AssignmentID string           `db:"assignment_id" json:"assignment_id"`
	StudentID    string           `db:"student_id" json:"student_id"`
	Blocks       BlockList        `db:"blocks" json:"blocks"`
	FileURL      *string          `db:"file_url" json:"file_url,omitempty"`
	Status       SubmissionStatus `db:"status" json:"status"`
	SubmittedAt  *time.Time       `db:"submitted_at" json:"submitted_at,omitempty"`
	Feedback     *string          `db:"feedback" json:"feedback,omitempty"`
	ReviewedBy   *string          `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt   *time.Time       `db:"reviewed_at" json:"reviewed_at,omitempty"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
}

// NotStartedSubmission represents the virtual state of a student without a row.
func NotStartedSubmission(assignmentID, studentID string) Submission {
	return Submission{AssignmentID: assignmentID, StudentID: studentID, Status: SubmissionNotStarted}
}

// Persisted reports whether the submission has a backing row.
func (s *Submission) Persisted() bool {
	return s.ID != ""
}

// Content returns the stored media references of the submission.
func (s *Submission) Content() ContentSource {
	return ContentSource{Blocks: s.Blocks, FileURL: s.FileURL}
}

// StatusForFeedback derives the review state from the stored feedback.
func StatusForFeedback(feedback *string) SubmissionStatus {
	if feedback == nil || *feedback == "" {
		return SubmissionPendingReview
	}
	return SubmissionCompleted
}

// SubmitRequest is the student payload for submit and resubmit.
type SubmitRequest struct {
	Blocks BlockList `json:"blocks" validate:"required,min=1,dive"`
}

// ReviewRequest is the instructor payload for recording feedback.
type ReviewRequest struct {
	Feedback string `json:"feedback" validate:"max=10000"`
}

// SubmitResult reports a submit and the media it replaced.
type SubmitResult struct {
	Submission Submission    `json:"submission"`
	Reclaimed  CascadeReport `json:"reclaimed"`
}
