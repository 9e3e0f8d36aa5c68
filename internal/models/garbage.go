package models

import "time"

// Sources recorded for orphaned storage objects.
const (
	GarbageSourceAssignmentDelete = "assignment_delete"
	GarbageSourceEnrollmentRemove = "enrollment_remove"
	GarbageSourceLessonDelete     = "lesson_delete"
	GarbageSourceReplacedMedia    = "replaced_media"
)

// StorageGarbage is a storage path whose deletion failed and awaits a sweep.
type StorageGarbage struct {
	ID            string    `db:"id" json:"id"`
	Path          string    `db:"path" json:"path"`
	Source        string    `db:"source" json:"source"`
	Attempts      int       `db:"attempts" json:"attempts"`
	LastError     *string   `db:"last_error" json:"last_error,omitempty"`
	NextAttemptAt time.Time `db:"next_attempt_at" json:"next_attempt_at"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// SweepResult reports one sweep pass.
type SweepResult struct {
	Claimed     int      `json:"claimed"`
	Deleted     int      `json:"deleted"`
	Rescheduled int      `json:"rescheduled"`
	FailedPaths []string `json:"failed_paths,omitempty"`
}
