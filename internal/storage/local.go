package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lgulliver/docdesk/pkg/utils"
	"github.com/rs/zerolog/log"
)

// LocalStorage implements BlobStore on the local filesystem. Each session owns
// the directory <basePath>/<sessionID>.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new local storage instance
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage path: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		log.Error().Err(err).Str("path", abs).Msg("failed to create storage directory")
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	log.Info().Str("path", abs).Msg("local storage initialized")
	return &LocalStorage{basePath: abs}, nil
}

// Root returns the absolute uploads root
func (ls *LocalStorage) Root() string {
	return ls.basePath
}

// Dir returns the absolute path of the session directory
func (ls *LocalStorage) Dir(sessionID string) (string, error) {
	if !validSessionID(sessionID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSession, sessionID)
	}
	return filepath.Join(ls.basePath, sessionID), nil
}

// Resolve joins name onto the session directory and verifies the result is a
// direct child of it.
func (ls *LocalStorage) Resolve(sessionID, name string) (string, error) {
	dir, err := ls.Dir(sessionID)
	if err != nil {
		return "", err
	}
	if name == "" || strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("%w: %q", ErrPathEscape, name)
	}

	fullPath := filepath.Join(dir, name)
	rel, err := filepath.Rel(dir, fullPath)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || strings.ContainsRune(rel, filepath.Separator) {
		return "", fmt.Errorf("%w: %q", ErrPathEscape, name)
	}
	return fullPath, nil
}

// CreateSession provisions the directory of a new session
func (ls *LocalStorage) CreateSession(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := ls.Dir(sessionID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("failed to create session directory")
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	return nil
}

// Store saves content with an atomic temp-file + rename write. The session
// directory must already exist.
func (ls *LocalStorage) Store(ctx context.Context, sessionID, name string, content io.Reader, limit int64) (int64, error) {
	startTime := time.Now()

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	fullPath, err := ls.Resolve(sessionID, name)
	if err != nil {
		return 0, err
	}
	dir := filepath.Dir(fullPath)
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
		}
		return 0, fmt.Errorf("failed to stat session directory: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, ".upload-*.tmp")
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("failed to create temporary file")
		return 0, fmt.Errorf("failed to create temporary file: %w", err)
	}
	tempPath := tempFile.Name()

	committed := false
	defer func() {
		tempFile.Close()
		if !committed {
			os.Remove(tempPath)
		}
	}()

	reader := content
	if limit > 0 {
		reader = io.LimitReader(content, limit+1)
	}

	hasher := sha256.New()
	bytesWritten, err := io.Copy(io.MultiWriter(tempFile, hasher), reader)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Str("name", name).Msg("failed to write content to temporary file")
		return 0, fmt.Errorf("failed to write content: %w", err)
	}
	if limit > 0 && bytesWritten > limit {
		log.Warn().
			Str("session_id", sessionID).
			Str("name", name).
			Str("limit", utils.FormatBytes(limit)).
			Msg("upload rejected: size limit exceeded")
		return 0, fmt.Errorf("%w: limit is %s", ErrTooLarge, utils.FormatBytes(limit))
	}

	if err := tempFile.Sync(); err != nil {
		return 0, fmt.Errorf("failed to sync temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return 0, fmt.Errorf("failed to close temporary file: %w", err)
	}

	if err := os.Rename(tempPath, fullPath); err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Str("name", name).Msg("failed to move temporary file to final location")
		return 0, fmt.Errorf("failed to move file to final location: %w", err)
	}
	committed = true

	log.Info().
		Str("session_id", sessionID).
		Str("name", name).
		Int64("bytes_written", bytesWritten).
		Str("checksum", hex.EncodeToString(hasher.Sum(nil))).
		Dur("duration", time.Since(startTime)).
		Msg("file stored successfully")

	return bytesWritten, nil
}

// Open returns the file and its size
func (ls *LocalStorage) Open(ctx context.Context, sessionID, name string) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	fullPath, err := ls.Resolve(sessionID, name)
	if err != nil {
		return nil, 0, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Debug().Str("session_id", sessionID).Str("name", name).Msg("file not found")
			return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, 0, fmt.Errorf("failed to open file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, 0, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		file.Close()
		return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	return file, info.Size(), nil
}

// Exists checks if a regular file named name exists in the session directory
func (ls *LocalStorage) Exists(ctx context.Context, sessionID, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	fullPath, err := ls.Resolve(sessionID, name)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check file existence: %w", err)
	}
	return info.Mode().IsRegular(), nil
}

// Delete removes a single file from the session directory
func (ls *LocalStorage) Delete(ctx context.Context, sessionID, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fullPath, err := ls.Resolve(sessionID, name)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		log.Error().Err(err).Str("session_id", sessionID).Str("name", name).Msg("failed to delete file")
		return fmt.Errorf("failed to delete file: %w", err)
	}

	log.Debug().Str("session_id", sessionID).Str("name", name).Msg("file deleted")
	return nil
}

// List returns the names of the files stored in the session directory,
// skipping in-flight temporary files.
func (ls *LocalStorage) List(ctx context.Context, sessionID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := ls.Dir(sessionID)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
		}
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// RemoveSession recursively removes the session directory
func (ls *LocalStorage) RemoveSession(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := ls.Dir(sessionID)
	if err != nil {
		return err
	}

	if err := os.RemoveAll(dir); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Error().Err(err).Str("session_id", sessionID).Msg("failed to remove session directory")
		return fmt.Errorf("failed to remove session directory: %w", err)
	}

	log.Info().Str("session_id", sessionID).Msg("session directory removed")
	return nil
}

// ListSessions returns every directory under the root that is named like a session
func (ls *LocalStorage) ListSessions(ctx context.Context) ([]SessionDir, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(ls.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to list session directories: %w", err)
	}

	dirs := make([]SessionDir, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if !validSessionID(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		dirs = append(dirs, SessionDir{ID: entry.Name(), ModTime: info.ModTime()})
	}
	return dirs, nil
}

// validSessionID accepts only the canonical 36 character UUID form
func validSessionID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}
