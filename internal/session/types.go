package session

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a session
type Status string

const (
	StatusCreated    Status = "created"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// ErrInvalidTransition is returned when a status change would move a session
// backwards or skip a state.
var ErrInvalidTransition = errors.New("invalid status transition")

// Terminal reports whether no further transition is possible
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

// CanTransitionTo reports whether s may move to next
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusCreated:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusComplete || next == StatusError
	default:
		return false
	}
}

// Session is the registry entry of one upload-process-download cycle
type Session struct {
	ID          string    `json:"sessionId"`
	Status      Status    `json:"status"`
	Tool        string    `json:"tool,omitempty"`
	DownloadURL string    `json:"downloadUrl,omitempty"`
	OutputFile  string    `json:"outputFile,omitempty"`
	Message     string    `json:"message,omitempty"`
	StartTime   time.Time `json:"startTime"`
	UpdatedTime time.Time `json:"updatedTime"`
}

// Clone returns a copy that shares no state with s
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// Age returns how long ago the session was created
func (s *Session) Age(now time.Time) time.Duration {
	return now.Sub(s.StartTime)
}

// Payload carries the fields that accompany a status change. Fields that do not
// belong to the target status are ignored.
type Payload struct {
	Tool        string
	DownloadURL string
	OutputFile  string
	Message     string
}

// apply moves s to next and rewrites the status dependent fields so that
// DownloadURL is set only when complete and Message only on error.
func (s *Session) apply(next Status, p Payload, now time.Time) {
	s.Status = next
	s.UpdatedTime = now
	if p.Tool != "" {
		s.Tool = p.Tool
	}
	s.DownloadURL, s.OutputFile, s.Message = "", "", ""
	switch next {
	case StatusComplete:
		s.DownloadURL = p.DownloadURL
		s.OutputFile = p.OutputFile
	case StatusError:
		s.Message = p.Message
	}
}
