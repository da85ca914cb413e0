package history

import (
	"context"
	"testing"
	"time"

	"github.com/lgulliver/docdesk/internal/common"
	"github.com/lgulliver/docdesk/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestService(t *testing.T) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	service := NewService(db)
	require.NoError(t, service.AutoMigrate())
	return service
}

func record(t *testing.T, s *Service, tool, status string, duration time.Duration, finished time.Time) {
	t.Helper()
	require.NoError(t, s.RecordJob(context.Background(), &JobRecord{
		SessionID:  "3f2a9c1b-0000-4000-8000-000000000000",
		Tool:       tool,
		Status:     status,
		InputCount: 1,
		DurationMs: duration.Milliseconds(),
		StartedAt:  finished.Add(-duration),
		FinishedAt: finished,
	}))
}

func TestService_RecordJobAssignsID(t *testing.T) {
	s := setupTestService(t)
	rec := &JobRecord{SessionID: "s", Tool: "merge", Status: "complete", StartedAt: time.Now(), FinishedAt: time.Now()}

	require.NoError(t, s.RecordJob(context.Background(), rec))
	assert.Len(t, rec.ID, 36)

	jobs, err := s.RecentJobs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "merge", jobs[0].Tool)
}

func TestService_GetStats(t *testing.T) {
	s := setupTestService(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	record(t, s, "merge", "complete", 2*time.Second, now)
	record(t, s, "merge", "complete", 4*time.Second, now.AddDate(0, 0, -1))
	record(t, s, "merge", "error", 3*time.Second, now.AddDate(0, 0, -1))
	record(t, s, "compress", "complete", time.Second, now.AddDate(0, 0, -30))

	stats, err := s.GetStats(context.Background(), &StatsQuery{Days: 3})
	require.NoError(t, err)

	assert.Equal(t, int64(4), stats.TotalJobs)
	assert.Equal(t, int64(3), stats.Completed)
	assert.Equal(t, int64(1), stats.Failed)
	assert.InDelta(t, 2500, stats.AverageDurationMs, 0.001)

	require.Len(t, stats.Tools, 2)
	assert.Equal(t, "compress", stats.Tools[0].Tool)
	merge := stats.Tools[1]
	assert.Equal(t, int64(3), merge.Total)
	assert.Equal(t, int64(1), merge.Failed)
	assert.InDelta(t, 3000, merge.AverageDurationMs, 0.001)

	assert.Equal(t, []DailyJobs{
		{Date: "2026-03-08", Jobs: 0},
		{Date: "2026-03-09", Jobs: 2},
		{Date: "2026-03-10", Jobs: 1},
	}, stats.RecentActivity)
}

func TestService_GetStatsFiltered(t *testing.T) {
	s := setupTestService(t)
	now := time.Now()
	record(t, s, "merge", "complete", time.Second, now)
	record(t, s, "split", "complete", time.Second, now)

	stats, err := s.GetStats(context.Background(), &StatsQuery{Tool: "split"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalJobs)
	require.Len(t, stats.Tools, 1)
	assert.Equal(t, "split", stats.Tools[0].Tool)
}

func TestNopRecorder(t *testing.T) {
	var r Recorder = NopRecorder{}
	assert.NoError(t, r.RecordJob(context.Background(), &JobRecord{}))
}

func TestNewDatabase_SQLite(t *testing.T) {
	db, err := common.NewDatabase(&config.HistoryConfig{Driver: "sqlite", DSN: ":memory:"}, &config.DatabaseConfig{})
	require.NoError(t, err)
	defer db.Close()

	service := NewService(db.DB)
	require.NoError(t, service.AutoMigrate())
	assert.True(t, db.Migrator().HasTable(&JobRecord{}))

	_, err = common.NewDatabase(&config.HistoryConfig{Driver: "mysql"}, &config.DatabaseConfig{})
	assert.Error(t, err)
}
