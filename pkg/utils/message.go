package utils

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxMessageLength caps error messages stored on sessions
const MaxMessageLength = 200

var absolutePath = regexp.MustCompile(`(?:^|[\s'"(=])(?:[A-Za-z]:\\|/)[^\s'"():,;]+`)

// SanitizeMessage prepares an error message for clients. Absolute paths are
// reduced to their base name, whitespace is collapsed to a single line and the
// result is truncated to MaxMessageLength bytes on a rune boundary.
func SanitizeMessage(msg string) string {
	msg = absolutePath.ReplaceAllStringFunc(msg, func(p string) string {
		prefix := ""
		if strings.ContainsRune(" \t\n\r'\"(=", rune(p[0])) {
			prefix, p = p[:1], p[1:]
		}
		return prefix + filepath.Base(strings.ReplaceAll(p, `\`, "/"))
	})
	msg = strings.Join(strings.Fields(msg), " ")

	if len(msg) <= MaxMessageLength {
		return msg
	}
	cut := MaxMessageLength
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}
