package history

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JobRecord is one finished job
type JobRecord struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	SessionID  string    `gorm:"size:36;index;not null" json:"sessionId"`
	Tool       string    `gorm:"size:32;index;not null" json:"tool"`
	Status     string    `gorm:"size:16;index;not null" json:"status"`
	Message    string    `gorm:"size:255" json:"message,omitempty"`
	InputCount int       `json:"inputCount"`
	OutputFile string    `gorm:"size:255" json:"outputFile,omitempty"`
	OutputSize int64     `json:"outputSize"`
	DurationMs int64     `json:"durationMs"`
	StartedAt  time.Time `gorm:"index;not null" json:"startedAt"`
	FinishedAt time.Time `gorm:"not null" json:"finishedAt"`
}

// TableName overrides the table name used by JobRecord
func (JobRecord) TableName() string {
	return "job_history"
}

// BeforeCreate assigns an id to new records
func (r *JobRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// StatsQuery filters the aggregates
type StatsQuery struct {
	Tool  string     `form:"tool"`
	Since *time.Time `form:"since" time_format:"2006-01-02"`
	// Days of daily activity to report, default 7
	Days int `form:"days"`
}

// JobStats aggregates the job history
type JobStats struct {
	TotalJobs         int64           `json:"totalJobs"`
	Completed         int64           `json:"completed"`
	Failed            int64           `json:"failed"`
	AverageDurationMs float64         `json:"averageDurationMs"`
	Tools             []ToolBreakdown `json:"tools"`
	RecentActivity    []DailyJobs     `json:"recentActivity"`
}

// ToolBreakdown holds per-tool counts
type ToolBreakdown struct {
	Tool              string  `json:"tool"`
	Total             int64   `json:"total"`
	Completed         int64   `json:"completed"`
	Failed            int64   `json:"failed"`
	AverageDurationMs float64 `json:"averageDurationMs"`
}

// DailyJobs represents the jobs finished on one day
type DailyJobs struct {
	Date string `json:"date"`
	Jobs int64  `json:"jobs"`
}
