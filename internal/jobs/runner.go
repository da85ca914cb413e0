package jobs

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/lgulliver/docdesk/internal/common"
	"github.com/lgulliver/docdesk/internal/history"
	"github.com/lgulliver/docdesk/internal/session"
	"github.com/lgulliver/docdesk/internal/tools"
	"github.com/lgulliver/docdesk/pkg/utils"
	"github.com/rs/zerolog/log"
)

// Runner validates execution requests and runs them in the background
type Runner struct {
	registry  *session.Registry
	executor  tools.Executor
	scheduler Scheduler
	recorder  history.Recorder
	timeout   time.Duration

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewRunner creates a job runner. A nil recorder disables history.
func NewRunner(registry *session.Registry, executor tools.Executor, scheduler Scheduler, recorder history.Recorder, timeout time.Duration) *Runner {
	if recorder == nil {
		recorder = history.NopRecorder{}
	}
	return &Runner{
		registry:  registry,
		executor:  executor,
		scheduler: scheduler,
		recorder:  recorder,
		timeout:   timeout,
		cancels:   make(map[string]context.CancelFunc),
	}
}

// Execute validates the request, moves the session to processing and hands
// the work to the scheduler. It returns once the job is submitted; the
// outcome is only visible through the session status.
func (r *Runner) Execute(ctx context.Context, sessionID, tool string, files []FileRef, options map[string]any) error {
	sess, err := r.registry.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	// a session runs at most one job
	if sess.Status != session.StatusCreated {
		return common.Conflict(fmt.Sprintf("session is already %s", sess.Status), session.ErrInvalidTransition)
	}
	if err := r.executor.Validate(tool, len(files), options); err != nil {
		return err
	}
	fileIDs, err := OrderFiles(files)
	if err != nil {
		return err
	}

	blobs := r.registry.Blobs()
	inputs := make([]string, len(fileIDs))
	for i, id := range fileIDs {
		if !utils.IsValidFileID(id) {
			return common.Validation(fmt.Sprintf("invalid file id %q", id))
		}
		exists, err := blobs.Exists(ctx, sessionID, id)
		if err != nil {
			return common.Storage("failed to check input file", err)
		}
		if !exists {
			return common.Validation(fmt.Sprintf("file %s not found in session", id))
		}
		if inputs[i], err = blobs.Resolve(sessionID, id); err != nil {
			return common.Validation(fmt.Sprintf("invalid file id %q", id))
		}
	}
	dir, err := blobs.Dir(sessionID)
	if err != nil {
		return common.Validation("invalid session id")
	}

	if _, err := r.registry.Transition(ctx, sessionID, session.StatusProcessing, session.Payload{Tool: tool}); err != nil {
		return err
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.cancels[sessionID] = cancel
	r.mu.Unlock()

	req := tools.Request{
		SessionID: sessionID,
		Dir:       dir,
		Tool:      tool,
		Inputs:    inputs,
		Options:   options,
	}
	err = r.scheduler.Submit(func(schedCtx context.Context) {
		if err := schedCtx.Err(); err != nil {
			r.abandon(req, fileIDs, err)
			return
		}
		stop := context.AfterFunc(schedCtx, cancel)
		defer stop()
		r.run(jobCtx, req, fileIDs)
	})
	if err != nil {
		r.abandon(req, fileIDs, err)
		return fmt.Errorf("failed to schedule job: %w", err)
	}

	log.Info().
		Str("session_id", sessionID).
		Str("tool", tool).
		Int("files", len(fileIDs)).
		Msg("job submitted")
	return nil
}

// Cancel stops the in-flight job of a session. It reports whether there was one.
func (r *Runner) Cancel(sessionID string) bool {
	r.mu.Lock()
	cancel, ok := r.cancels[sessionID]
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// InFlight returns the number of submitted jobs that have not finished
func (r *Runner) InFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cancels)
}

func (r *Runner) forget(sessionID string) {
	r.mu.Lock()
	cancel, ok := r.cancels[sessionID]
	delete(r.cancels, sessionID)
	r.mu.Unlock()
	if ok {
		cancel()
	}
}

// abandon ends a job that never started because the scheduler stopped
func (r *Runner) abandon(req tools.Request, fileIDs []string, cause error) {
	r.forget(req.SessionID)
	r.deleteInputs(req.SessionID, fileIDs)
	r.finish(context.Background(), req, "", common.ToolExecution("server is shutting down", cause), time.Now())
}

func (r *Runner) run(ctx context.Context, req tools.Request, fileIDs []string) {
	startTime := time.Now()
	defer r.forget(req.SessionID)

	var output string
	var err error
	defer func() {
		if p := recover(); p != nil {
			log.Error().
				Str("session_id", req.SessionID).
				Str("tool", req.Tool).
				Interface("panic", p).
				Msg("job panicked")
			output, err = "", common.ToolExecution("internal error while processing", fmt.Errorf("panic: %v", p))
		}
		r.deleteInputs(req.SessionID, fileIDs)
		r.finish(context.Background(), req, output, err, startTime)
	}()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	output, err = r.executor.Execute(ctx, req)
}

// finish records the outcome on the session and in the history
func (r *Runner) finish(ctx context.Context, req tools.Request, output string, runErr error, startTime time.Time) {
	rec := &history.JobRecord{
		SessionID:  req.SessionID,
		Tool:       req.Tool,
		InputCount: len(req.Inputs),
		StartedAt:  startTime,
		FinishedAt: time.Now(),
	}
	rec.DurationMs = rec.FinishedAt.Sub(startTime).Milliseconds()

	var err error
	if runErr == nil {
		rec.Status = string(session.StatusComplete)
		rec.OutputFile = output
		if path, rerr := r.registry.Blobs().Resolve(req.SessionID, output); rerr == nil {
			if info, serr := os.Stat(path); serr == nil {
				rec.OutputSize = info.Size()
			}
		}
		_, err = r.registry.Transition(ctx, req.SessionID, session.StatusComplete, session.Payload{
			OutputFile:  output,
			DownloadURL: "/download/" + req.SessionID + "/" + url.PathEscape(output),
		})
		log.Info().
			Str("session_id", req.SessionID).
			Str("tool", req.Tool).
			Str("output", output).
			Int64("duration_ms", rec.DurationMs).
			Msg("job complete")
	} else {
		rec.Status = string(session.StatusError)
		rec.Message = failureMessage(runErr)
		_, err = r.registry.Transition(ctx, req.SessionID, session.StatusError, session.Payload{Message: rec.Message})
		log.Warn().
			Err(runErr).
			Str("session_id", req.SessionID).
			Str("tool", req.Tool).
			Int64("duration_ms", rec.DurationMs).
			Msg("job failed")
	}

	if err != nil {
		if common.IsKind(err, common.KindNotFound) {
			log.Info().Str("session_id", req.SessionID).Msg("session reclaimed before job finished")
		} else {
			log.Error().Err(err).Str("session_id", req.SessionID).Msg("failed to record job outcome")
		}
	}

	if err := r.recorder.RecordJob(ctx, rec); err != nil {
		log.Warn().Err(err).Str("session_id", req.SessionID).Msg("failed to record job history")
	}
}

// deleteInputs removes consumed uploads. Failures are logged only.
func (r *Runner) deleteInputs(sessionID string, fileIDs []string) {
	ctx := context.Background()
	for _, id := range fileIDs {
		if err := r.registry.Blobs().Delete(ctx, sessionID, id); err != nil {
			log.Warn().Err(err).Str("session_id", sessionID).Str("file_id", id).Msg("failed to delete input file")
		}
	}
}

// failureMessage is the text stored on a failed session
func failureMessage(err error) string {
	var classified *common.Error
	if errors.As(err, &classified) && classified.Message != "" {
		return utils.SanitizeMessage(classified.Message)
	}
	return utils.SanitizeMessage(err.Error())
}
