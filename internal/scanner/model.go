package scanner

import "time"

// ScanResult summarizes the outcome of a filesystem scan.
type ScanResult struct {
	ID               string     `json:"id"`
	Status           string     `json:"status"` // "running", "completed", "failed"
	StartedAt        time.Time  `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	NewItems         int        `json:"new_items"`
	UpdatedItems     int        `json:"updated_items"`
	OfflineItems     int        `json:"offline_items"`
	RemovedItems     int        `json:"removed_items"`
	TotalDirectories int        `json:"total_directories"`
	Error            string     `json:"error,omitempty"`
}
