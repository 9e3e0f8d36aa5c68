package models

// CascadeReport summarises the relational and storage effects of a cascading delete.
type CascadeReport struct {
	DeletedSubmissions int      `json:"deleted_submissions"`
	StoragePaths       []string `json:"storage_paths,omitempty"`
	FailedPaths        []string `json:"failed_paths,omitempty"`
}

// Partial reports whether any storage deletion failed.
func (r CascadeReport) Partial() bool {
	return len(r.FailedPaths) > 0
}

// Merge folds other into r.
func (r *CascadeReport) Merge(other CascadeReport) {
	r.DeletedSubmissions += other.DeletedSubmissions
	r.StoragePaths = append(r.StoragePaths, other.StoragePaths...)
	r.FailedPaths = append(r.FailedPaths, other.FailedPaths...)
}
