package models

import "time"

// SystemMetrics is a JSON snapshot of process counters for the admin metrics endpoint.
type SystemMetrics struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CascadesTotal            uint64    `json:"cascades_total"`
	PartialCascades          uint64    `json:"partial_cascades"`
	StorageDeleteFailures    uint64    `json:"storage_delete_failures"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
