package routes

import (
	"context"

	"github.com/lgulliver/docdesk/internal/history"
	"github.com/lgulliver/docdesk/internal/jobs"
	"github.com/lgulliver/docdesk/internal/session"
	"github.com/lgulliver/docdesk/internal/tools"
)

// SessionServiceInterface defines the registry operations the handlers use
type SessionServiceInterface interface {
	Create(ctx context.Context) (*session.Session, error)
	Get(ctx context.Context, id string) (*session.Session, error)
	Reclaim(ctx context.Context, id string) error
}

// JobRunnerInterface starts tool runs in the background
type JobRunnerInterface interface {
	Execute(ctx context.Context, sessionID, tool string, files []jobs.FileRef, options map[string]any) error
	InFlight() int
}

// StatsProviderInterface serves job history aggregates
type StatsProviderInterface interface {
	GetStats(ctx context.Context, query *history.StatsQuery) (*history.JobStats, error)
}

// ToolProberInterface reports which external binaries are usable
type ToolProberInterface interface {
	Probe(ctx context.Context) []tools.ToolStatus
}
