package tools

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/lgulliver/docdesk/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge_KeepsInputOrder(t *testing.T) {
	ts := setupToolset(t, &fakeCommander{})
	dir := t.TempDir()
	first := writeInput(t, dir, "1700000000002-c.pdf", buildSizedPDF(300, 300, 300))
	second := writeInput(t, dir, "1700000000000-a.pdf", buildSizedPDF(100))
	third := writeInput(t, dir, "1700000000001-b.pdf", buildSizedPDF(200, 210))

	name, err := ts.Execute(context.Background(), Request{
		SessionID: testSessionID,
		Dir:       dir,
		Tool:      "merge",
		Inputs:    []string{first, second, third},
	})
	require.NoError(t, err)

	assert.Equal(t, "c_merged_3f2a9c1b.pdf", name, "output is named after the first input")
	merged := filepath.Join(dir, name)
	pages, err := PageCount(context.Background(), merged)
	require.NoError(t, err)
	assert.Equal(t, 6, pages)
	assert.Equal(t, []int{300, 300, 300, 100, 200, 210}, pageWidths(t, merged))
}

func TestSplit_ZipsParts(t *testing.T) {
	ts := setupToolset(t, &fakeCommander{})
	dir := t.TempDir()
	in := writeInput(t, dir, "1700000000000-book.pdf", buildPDF(4))

	name, err := ts.Execute(context.Background(), Request{
		SessionID: testSessionID,
		Dir:       dir,
		Tool:      "split",
		Inputs:    []string{in},
		Options:   map[string]any{"span": float64(2)},
	})
	require.NoError(t, err)
	assert.Equal(t, "book_split_3f2a9c1b.zip", name)

	zr, err := zip.OpenReader(filepath.Join(dir, name))
	require.NoError(t, err)
	defer zr.Close()
	assert.Len(t, zr.File, 2)
}

func TestSplit_PartsInPageOrder(t *testing.T) {
	ts := setupToolset(t, &fakeCommander{})
	dir := t.TempDir()
	widths := make([]int, 12)
	for i := range widths {
		widths[i] = 101 + i
	}
	in := writeInput(t, dir, "1700000000000-book.pdf", buildSizedPDF(widths...))

	name, err := ts.Execute(context.Background(), Request{
		SessionID: testSessionID,
		Dir:       dir,
		Tool:      "split",
		Inputs:    []string{in},
	})
	require.NoError(t, err)

	zr, err := zip.OpenReader(filepath.Join(dir, name))
	require.NoError(t, err)
	defer zr.Close()
	require.Len(t, zr.File, 12)

	extracted := t.TempDir()
	for i, f := range zr.File {
		assert.Equal(t, fmt.Sprintf("book_%d.pdf", i+1), f.Name)

		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)

		part := writeInput(t, extracted, f.Name, data)
		assert.Equal(t, []int{101 + i}, pageWidths(t, part), f.Name)
	}
}

func TestSortParts(t *testing.T) {
	tests := []struct {
		name  string
		parts []string
		want  []string
	}{
		{
			name:  "single pages past nine",
			parts: []string{"/s/doc_1.pdf", "/s/doc_10.pdf", "/s/doc_11.pdf", "/s/doc_2.pdf", "/s/doc_9.pdf"},
			want:  []string{"/s/doc_1.pdf", "/s/doc_2.pdf", "/s/doc_9.pdf", "/s/doc_10.pdf", "/s/doc_11.pdf"},
		},
		{
			name:  "spans",
			parts: []string{"/s/doc_11-12.pdf", "/s/doc_1-2.pdf", "/s/doc_3-4.pdf"},
			want:  []string{"/s/doc_1-2.pdf", "/s/doc_3-4.pdf", "/s/doc_11-12.pdf"},
		},
		{
			name:  "base name with underscores and digits",
			parts: []string{"/s/scan_2024_10.pdf", "/s/scan_2024_3.pdf"},
			want:  []string{"/s/scan_2024_3.pdf", "/s/scan_2024_10.pdf"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts := append([]string(nil), tt.parts...)
			sortParts(parts)
			assert.Equal(t, tt.want, parts)
		})
	}
}

func TestProtect_EncryptsOutput(t *testing.T) {
	ts := setupToolset(t, &fakeCommander{})
	dir := t.TempDir()
	in := writeInput(t, dir, "1700000000000-secret.pdf", buildPDF(1))

	name, err := ts.Execute(context.Background(), Request{
		SessionID: testSessionID,
		Dir:       dir,
		Tool:      "protect",
		Inputs:    []string{in},
		Options:   map[string]any{"password": "hunter2"},
	})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.True(t, bytes.Contains(data, []byte("/Encrypt")))
}

func TestProtect_MissingPassword(t *testing.T) {
	ts := setupToolset(t, &fakeCommander{})
	dir := t.TempDir()
	in := writeInput(t, dir, "1700000000000-secret.pdf", buildPDF(1))

	_, err := ts.Execute(context.Background(), Request{
		SessionID: testSessionID,
		Dir:       dir,
		Tool:      "protect",
		Inputs:    []string{in},
	})
	assert.ErrorContains(t, err, "password is required")
}

func TestMerge_InvalidInput(t *testing.T) {
	ts := setupToolset(t, &fakeCommander{})
	dir := t.TempDir()
	a := writeInput(t, dir, "1700000000000-a.pdf", buildPDF(1))
	b := writeInput(t, dir, "1700000000001-b.pdf", []byte("plain text"))

	_, err := ts.Execute(context.Background(), Request{
		SessionID: testSessionID,
		Dir:       dir,
		Tool:      "merge",
		Inputs:    []string{a, b},
	})

	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindToolExecution))
	assert.NotContains(t, common.PublicMessage(err), dir, "absolute paths never reach the message")
	assert.ElementsMatch(t, []string{filepath.Base(a), filepath.Base(b)}, listDir(t, dir))
}
