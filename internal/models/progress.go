package models

// AssignmentStats counts enrolled students by submission state for one assignment.
type AssignmentStats struct {
	AssignmentID  string `json:"assignment_id"`
	NotStarted    int    `json:"not_started"`
	PendingReview int    `json:"pending_review"`
	Completed     int    `json:"completed"`
}

// StatusCount is one row of a per-status aggregate.
type StatusCount struct {
	Status SubmissionStatus `db:"status"`
	Count  int              `db:"count"`
}

// StudentStatusCount is a per-student status aggregate.
type StudentStatusCount struct {
	StudentID string           `db:"student_id"`
	Status    SubmissionStatus `db:"status"`
	Count     int              `db:"count"`
}

// ClassProgress summarises one student's work across a class. Total counts every
// assignment; Completed and Pending count only the student's own rows.
type ClassProgress struct {
	StudentID string `json:"student_id"`
	Completed int    `json:"completed"`
	Pending   int    `json:"pending"`
	Total     int    `json:"total"`
}

// Remaining is the number of assignments the student has not submitted.
func (p ClassProgress) Remaining() int {
	if r := p.Total - p.Completed - p.Pending; r > 0 {
		return r
	}
	return 0
}

// RosterExport is a rendered class progress report.
type RosterExport struct {
	FileName    string
	ContentType string
	Data        []byte
}
