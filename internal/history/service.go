package history

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Recorder receives every finished job
type Recorder interface {
	RecordJob(ctx context.Context, record *JobRecord) error
}

// NopRecorder discards records; used when history is disabled
type NopRecorder struct{}

// RecordJob does nothing
func (NopRecorder) RecordJob(context.Context, *JobRecord) error { return nil }

// Service stores and aggregates job history
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

// NewService creates a new history service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// AutoMigrate creates or updates the history table
func (s *Service) AutoMigrate() error {
	return s.db.AutoMigrate(&JobRecord{})
}

// RecordJob stores a finished job
func (s *Service) RecordJob(ctx context.Context, record *JobRecord) error {
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		log.Error().
			Err(err).
			Str("session_id", record.SessionID).
			Str("tool", record.Tool).
			Msg("Failed to record job")
		return fmt.Errorf("failed to record job: %w", err)
	}
	return nil
}

// RecentJobs returns the latest records, newest first
func (s *Service) RecentJobs(ctx context.Context, limit int) ([]JobRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var records []JobRecord
	if err := s.db.WithContext(ctx).Order("finished_at DESC").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return records, nil
}

// GetStats returns aggregates over the job history
func (s *Service) GetStats(ctx context.Context, query *StatsQuery) (*JobStats, error) {
	if query == nil {
		query = &StatsQuery{}
	}
	stats := &JobStats{}

	base := func() *gorm.DB {
		db := s.db.WithContext(ctx).Model(&JobRecord{})
		if query.Tool != "" {
			db = db.Where("tool = ?", query.Tool)
		}
		if query.Since != nil {
			db = db.Where("started_at >= ?", *query.Since)
		}
		return db
	}

	// Per tool and status breakdown
	var rows []struct {
		Tool        string
		Status      string
		Jobs        int64
		AvgDuration float64
	}
	if err := base().
		Select("tool, status, COUNT(*) AS jobs, AVG(duration_ms) AS avg_duration").
		Group("tool, status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate jobs: %w", err)
	}

	byTool := make(map[string]*ToolBreakdown)
	var totalDuration float64
	for _, row := range rows {
		b, ok := byTool[row.Tool]
		if !ok {
			b = &ToolBreakdown{Tool: row.Tool}
			byTool[row.Tool] = b
		}
		b.Total += row.Jobs
		b.AverageDurationMs += row.AvgDuration * float64(row.Jobs)
		switch row.Status {
		case "complete":
			b.Completed += row.Jobs
			stats.Completed += row.Jobs
		case "error":
			b.Failed += row.Jobs
			stats.Failed += row.Jobs
		}
		stats.TotalJobs += row.Jobs
		totalDuration += row.AvgDuration * float64(row.Jobs)
	}

	stats.Tools = make([]ToolBreakdown, 0, len(byTool))
	for _, b := range byTool {
		if b.Total > 0 {
			b.AverageDurationMs /= float64(b.Total)
		}
		stats.Tools = append(stats.Tools, *b)
	}
	sort.Slice(stats.Tools, func(i, j int) bool { return stats.Tools[i].Tool < stats.Tools[j].Tool })
	if stats.TotalJobs > 0 {
		stats.AverageDurationMs = totalDuration / float64(stats.TotalJobs)
	}

	activity, err := s.getRecentActivity(ctx, base, query.Days)
	if err != nil {
		return nil, err
	}
	stats.RecentActivity = activity

	return stats, nil
}

// getRecentActivity buckets jobs per UTC day. Bucketing happens here rather
// than in SQL because sqlite and postgres disagree on date functions.
func (s *Service) getRecentActivity(ctx context.Context, base func() *gorm.DB, days int) ([]DailyJobs, error) {
	if days <= 0 || days > 90 {
		days = 7
	}
	today := s.now().UTC().Truncate(24 * time.Hour)
	start := today.AddDate(0, 0, -(days - 1))

	var finished []time.Time
	if err := base().
		Where("finished_at >= ?", start).
		Pluck("finished_at", &finished).Error; err != nil {
		return nil, fmt.Errorf("failed to get recent activity: %w", err)
	}

	counts := make(map[string]int64, days)
	for _, t := range finished {
		counts[t.UTC().Format("2006-01-02")]++
	}

	activity := make([]DailyJobs, 0, days)
	for d := start; !d.After(today); d = d.AddDate(0, 0, 1) {
		key := d.Format("2006-01-02")
		activity = append(activity, DailyJobs{Date: key, Jobs: counts[key]})
	}
	return activity, nil
}
