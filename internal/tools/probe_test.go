package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbe(t *testing.T) {
	cmd := &fakeCommander{
		missing: map[string]bool{"chromium": true},
		handler: func(name string, args []string) ([]byte, error) {
			switch name {
			case "/usr/bin/gs":
				return []byte("10.02.1\n"), nil
			case "/usr/bin/soffice":
				return []byte("LibreOffice 6.4.7.2 40(Build:2)"), nil
			case "/usr/bin/magick":
				return nil, errors.New("exit status 1")
			}
			return nil, nil
		},
	}

	results := Probe(context.Background(), testToolsConfig(), cmd)
	require.Len(t, results, 4)

	byName := map[string]ToolStatus{}
	for _, r := range results {
		byName[r.Name] = r
	}

	gs := byName["ghostscript"]
	assert.True(t, gs.Available)
	assert.True(t, gs.Supported)
	assert.Equal(t, "10.2.1", gs.Version)

	lo := byName["libreoffice"]
	assert.True(t, lo.Available)
	assert.False(t, lo.Supported, "6.4 is older than the required 7.0")

	assert.False(t, byName["imagemagick"].Available)
	assert.NotEmpty(t, byName["imagemagick"].Error)

	assert.Equal(t, "not installed", byName["chromium"].Error)
	assert.Empty(t, byName["chromium"].Path)
}
