package store

import (
	"time"
)

// RunRecord summarizes a completed benchmark run.
type RunRecord struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	StartedAt   time.Time `gorm:"not null;index" json:"started_at"`
	Queries     int       `gorm:"not null" json:"queries"`
	Succeeded   int       `gorm:"not null" json:"succeeded"`
	Failed      int       `gorm:"not null" json:"failed"`
	TotalTime   float64   `gorm:"not null" json:"total_time_seconds"`
	ReportPath  string    `json:"report_path,omitempty"`
	Interrupted bool      `json:"interrupted"`
	CreatedAt   time.Time `json:"created_at"`
}
