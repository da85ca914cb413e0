package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrNotFound is returned when a session directory or file does not exist
	ErrNotFound = errors.New("not found")
	// ErrPathEscape is returned when a name would resolve outside its session directory
	ErrPathEscape = errors.New("path escapes session directory")
	// ErrTooLarge is returned by Store when the content exceeds the limit
	ErrTooLarge = errors.New("content exceeds size limit")
	// ErrInvalidSession is returned for session ids that cannot name a directory
	ErrInvalidSession = errors.New("invalid session id")
)

// SessionDir describes a session directory found on disk
type SessionDir struct {
	ID      string
	ModTime time.Time
}

// BlobStore keeps the files of each session in a directory of its own
type BlobStore interface {
	// CreateSession provisions the directory of a new session
	CreateSession(ctx context.Context, sessionID string) error

	// Store writes content under name inside the session directory. Writes are
	// atomic; content larger than limit bytes is rejected with ErrTooLarge and
	// leaves nothing behind. A limit <= 0 disables the check.
	Store(ctx context.Context, sessionID, name string, content io.Reader, limit int64) (int64, error)

	// Open returns the file together with its size
	Open(ctx context.Context, sessionID, name string) (io.ReadCloser, int64, error)

	// Resolve returns the absolute path of name inside the session directory
	Resolve(sessionID, name string) (string, error)

	// Dir returns the absolute path of the session directory
	Dir(sessionID string) (string, error)

	// Exists checks if name exists inside the session directory
	Exists(ctx context.Context, sessionID, name string) (bool, error)

	// Delete removes a single file. Missing files are not an error.
	Delete(ctx context.Context, sessionID, name string) error

	// List returns the file names stored in the session directory
	List(ctx context.Context, sessionID string) ([]string, error)

	// RemoveSession recursively removes the session directory
	RemoveSession(ctx context.Context, sessionID string) error

	// ListSessions returns every session directory under the root
	ListSessions(ctx context.Context) ([]SessionDir, error)
}
