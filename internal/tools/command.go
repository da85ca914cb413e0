package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/lgulliver/docdesk/internal/common"
	"github.com/lgulliver/docdesk/pkg/utils"
	"github.com/rs/zerolog/log"
)

// Commander runs external binaries
type Commander interface {
	// Run executes name with args and returns its stdout
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
	// LookPath reports the resolved path of name
	LookPath(name string) (string, error)
}

// CommandRunner executes binaries directly with an argument vector. No shell
// is involved, so file names are never interpreted.
type CommandRunner struct{}

// NewCommandRunner creates a command runner
func NewCommandRunner() *CommandRunner {
	return &CommandRunner{}
}

// LookPath resolves name through PATH unless it is already a path
func (CommandRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// Run executes name and maps failures to tool execution errors carrying the
// first meaningful stderr line.
func (CommandRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	startTime := time.Now()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = 5 * time.Second

	err := cmd.Run()
	duration := time.Since(startTime)
	if err == nil {
		log.Debug().Str("command", name).Dur("duration", duration).Msg("command finished")
		return stdout.Bytes(), nil
	}

	log.Error().
		Err(err).
		Str("command", name).
		Str("stderr", utils.SanitizeMessage(stderr.String())).
		Dur("duration", duration).
		Msg("command failed")

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return nil, common.ToolExecution(fmt.Sprintf("%s timed out after %s", name, duration.Round(time.Second)), ctx.Err())
	case errors.Is(ctx.Err(), context.Canceled):
		return nil, common.ToolExecution(fmt.Sprintf("%s was cancelled", name), ctx.Err())
	case errors.Is(err, exec.ErrNotFound):
		return nil, common.ToolExecution(fmt.Sprintf("%s is not installed", name), err)
	}

	detail := firstLine(stderr.String())
	if detail == "" {
		detail = firstLine(stdout.String())
	}
	msg := fmt.Sprintf("%s failed", name)
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		msg = fmt.Sprintf("%s failed (exit code %d)", name, exitErr.ExitCode())
	}
	if detail != "" {
		msg += ": " + detail
	}
	return nil, common.ToolExecution(utils.SanitizeMessage(msg), err)
}

// firstLine returns the first line mentioning an error, or the first non-empty line
func firstLine(output string) string {
	var first string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.Contains(strings.ToLower(line), "error") {
			return line
		}
		if first == "" {
			first = line
		}
	}
	return first
}
