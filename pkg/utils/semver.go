package utils

import (
	"fmt"
	"regexp"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog/log"
)

var versionPattern = regexp.MustCompile(`(\d+)\.(\d+)(?:\.(\d+))?`)

// ParseToolVersion extracts the first dotted version number from the output of
// an external binary's version flag ("GPL Ghostscript 10.02.1",
// "LibreOffice 7.6.4.1 ...") and returns it as a semantic version. Components
// beyond patch are ignored.
func ParseToolVersion(output string) (*semver.Version, error) {
	match := versionPattern.FindStringSubmatch(output)
	if match == nil {
		return nil, fmt.Errorf("no version number found")
	}
	patch := match[3]
	if patch == "" {
		patch = "0"
	}
	return semver.NewVersion(fmt.Sprintf("%s.%s.%s", match[1], match[2], patch))
}

// SatisfiesConstraint checks version against a constraint such as ">= 9.50".
// An empty constraint is always satisfied.
func SatisfiesConstraint(version *semver.Version, constraint string) bool {
	if constraint == "" {
		return true
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		log.Warn().Str("constraint", constraint).Err(err).Msg("invalid version constraint")
		return false
	}
	return c.Check(version)
}
