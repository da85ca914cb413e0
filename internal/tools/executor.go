package tools

import (
	"context"
	"path/filepath"
	"strings"
)

// Request describes one tool invocation. Inputs are absolute paths inside Dir,
// in the order the tool must process them.
type Request struct {
	SessionID string
	Dir       string
	Tool      string
	Inputs    []string
	Options   map[string]any
}

// Executor runs document tools
type Executor interface {
	// Validate checks that tool exists and accepts fileCount inputs and options
	Validate(tool string, fileCount int, options map[string]any) error

	// Execute runs the tool and returns the name of the single output file it
	// left in req.Dir. On failure nothing is left behind.
	Execute(ctx context.Context, req Request) (string, error)
}

// Job is the working state handed to a tool implementation
type Job struct {
	Request
	// Scratch is a private directory removed after the run
	Scratch string
}

// Option returns a string option or def when absent
func (j *Job) Option(key, def string) string {
	if v, ok := j.Options[key].(string); ok && v != "" {
		return v
	}
	return def
}

// IntOption returns an integer option or def when absent
func (j *Job) IntOption(key string, def int) int {
	switch v := j.Options[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return def
}

// ScratchPath returns a path inside the scratch directory
func (j *Job) ScratchPath(name string) string {
	return filepath.Join(j.Scratch, name)
}

// inputBase returns the base name of an input without directory or extension
func inputBase(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}
