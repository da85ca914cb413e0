package utils

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

const maxNameLength = 100

var (
	unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
	fileIDPrefix    = regexp.MustCompile(`^\d{13}-`)
	outputMarker    = regexp.MustCompile(`_(merged|compressed|pdfa|split|converted|protected)_[a-f0-9]+(\.\w+)$`)
	validFileID     = regexp.MustCompile(`^\d{13}-[a-zA-Z0-9._-]{1,100}$`)
)

// SanitizeFileName maps a client supplied name onto the safe character set
// [A-Za-z0-9._-], capped at 100 bytes. Leading dots are dropped so the result
// can never name a hidden file or a parent directory.
func SanitizeFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = unsafeNameChars.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, ".")
	if len(name) > maxNameLength {
		ext := filepath.Ext(name)
		if len(ext) > 10 {
			ext = ""
		}
		name = name[:maxNameLength-len(ext)] + ext
	}
	if name == "" {
		return "file"
	}
	return name
}

// FileIDGenerator hands out file identifiers of the form
// <13 digit unix millis>-<sanitized name>. The millisecond prefix strictly
// increases across calls, so identifiers are never reused within a process.
type FileIDGenerator struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewFileIDGenerator creates a generator backed by the wall clock
func NewFileIDGenerator() *FileIDGenerator {
	return &FileIDGenerator{now: time.Now}
}

// Next returns a fresh identifier for originalName
func (g *FileIDGenerator) Next(originalName string) string {
	g.mu.Lock()
	stamp := g.now().UnixMilli()
	if stamp <= g.last {
		stamp = g.last + 1
	}
	g.last = stamp
	g.mu.Unlock()

	return fmt.Sprintf("%013d-%s", stamp, SanitizeFileName(originalName))
}

// IsValidFileID reports whether id has the shape produced by FileIDGenerator
func IsValidFileID(id string) bool {
	return validFileID.MatchString(id) && !strings.Contains(id, "..")
}

// OriginalName recovers the user-facing name of an uploaded or generated file
// by stripping the upload prefix and the tool output marker.
func OriginalName(fileName string) string {
	if fileName == "" {
		return ""
	}
	base := fileIDPrefix.ReplaceAllString(fileName, "")
	return outputMarker.ReplaceAllString(base, "$2")
}

// OutputName builds the name of a generated file:
// <original base>_<suffix>_<8 hex of sessionID>.<ext>
func OutputName(inputFileID, suffix, sessionID, ext string) string {
	base := strings.TrimSuffix(OriginalName(inputFileID), filepath.Ext(OriginalName(inputFileID)))
	if base == "" {
		base = "document"
	}
	tag := strings.ReplaceAll(sessionID, "-", "")
	if len(tag) > 8 {
		tag = tag[:8]
	}
	return fmt.Sprintf("%s_%s_%s.%s", base, suffix, strings.ToLower(tag), strings.TrimPrefix(ext, "."))
}

// FormatBytes formats byte size in human-readable format
func FormatBytes(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	return humanize.IBytes(uint64(bytes))
}
