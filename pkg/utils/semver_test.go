package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseToolVersion(t *testing.T) {
	tests := []struct {
		name     string
		output   string
		expected string
	}{
		{"ghostscript", "10.02.1\n", "10.2.1"},
		{"libreoffice", "LibreOffice 7.6.4.1 e19e193f88cd6c0525a17fb7a176ed8e6a3e2aa1", "7.6.4"},
		{"imagemagick", "Version: ImageMagick 7.1.1-21 Q16-HDRI x86_64", "7.1.1"},
		{"chromium", "Chromium 120.0", "120.0.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ParseToolVersion(tt.output)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, v.String())
		})
	}
}

func TestParseToolVersion_NoVersion(t *testing.T) {
	_, err := ParseToolVersion("command not found")
	assert.Error(t, err)
}

func TestSatisfiesConstraint(t *testing.T) {
	v, err := ParseToolVersion("9.56.1")
	require.NoError(t, err)

	assert.True(t, SatisfiesConstraint(v, ""))
	assert.True(t, SatisfiesConstraint(v, ">= 9.50"))
	assert.False(t, SatisfiesConstraint(v, ">= 10"))
	assert.False(t, SatisfiesConstraint(v, "not a constraint"))
}
