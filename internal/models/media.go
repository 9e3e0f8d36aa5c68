package models

// MediaUploadResult is a ready-to-persist media block.
type MediaUploadResult struct {
	Block ContentBlock `json:"block"`
	Path  string       `json:"path"`
}
