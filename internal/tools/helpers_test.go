package tools

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/lgulliver/docdesk/pkg/config"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/require"
)

const testSessionID = "3f2a9c1b-0000-4000-8000-000000000000"

// fakeCommander records invocations and lets each test decide what a binary does
type fakeCommander struct {
	mu      sync.Mutex
	calls   [][]string
	missing map[string]bool
	handler func(name string, args []string) ([]byte, error)
}

func (f *fakeCommander) LookPath(name string) (string, error) {
	if f.missing[name] {
		return "", exec.ErrNotFound
	}
	return "/usr/bin/" + name, nil
}

func (f *fakeCommander) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{name}, args...))
	f.mu.Unlock()
	if f.handler == nil {
		return nil, nil
	}
	return f.handler(name, args)
}

func (f *fakeCommander) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.calls...)
}

// writesOutput emulates binaries by writing the file they would produce
func writesOutput(name string, args []string) ([]byte, error) {
	var out string
	switch {
	case hasArgPrefix(args, "-sOutputFile="):
		out = strings.TrimPrefix(argWithPrefix(args, "-sOutputFile="), "-sOutputFile=")
	case hasArgPrefix(args, "--print-to-pdf="):
		out = strings.TrimPrefix(argWithPrefix(args, "--print-to-pdf="), "--print-to-pdf=")
	case hasArgPrefix(args, "--outdir"):
		var outDir, to string
		for i, a := range args {
			switch a {
			case "--outdir":
				outDir = args[i+1]
			case "--convert-to":
				to = args[i+1]
			}
		}
		in := args[len(args)-1]
		out = filepath.Join(outDir, inputBase(in)+"."+to)
	default:
		out = args[len(args)-1]
	}
	return nil, os.WriteFile(out, []byte("output of "+name), 0644)
}

func hasArgPrefix(args []string, prefix string) bool {
	return argWithPrefix(args, prefix) != ""
}

func argWithPrefix(args []string, prefix string) string {
	for _, a := range args {
		if strings.HasPrefix(a, prefix) {
			return a
		}
	}
	return ""
}

func testToolsConfig() *config.ToolsConfig {
	return &config.ToolsConfig{
		Ghostscript: "gs",
		LibreOffice: "soffice",
		ImageMagick: "magick",
		Chromium:    "chromium",
	}
}

func setupToolset(t *testing.T, cmd *fakeCommander) *Toolset {
	t.Helper()
	ts, err := NewToolset(testToolsConfig(), cmd)
	require.NoError(t, err)
	return ts
}

// writeInput creates a file in dir and returns its path
func writeInput(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0644))
	return path
}

// buildPDF assembles a minimal PDF with the given number of blank pages
func buildPDF(pages int) []byte {
	widths := make([]int, pages)
	for i := range widths {
		widths[i] = 200
	}
	return buildSizedPDF(widths...)
}

// buildSizedPDF assembles a minimal PDF with one blank page per width. Pages
// are 200 points high.
func buildSizedPDF(widths ...int) []byte {
	var buf bytes.Buffer
	var offsets []int

	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	kids := make([]string, len(widths))
	for i := range kids {
		kids[i] = fmt.Sprintf("%d 0 R", i+3)
	}
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(widths)))
	for _, w := range widths {
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %d 200] /Resources << >> >>", w))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

// pageWidths reads the width of every page of the PDF at path
func pageWidths(t *testing.T, path string) []int {
	t.Helper()
	dims, err := api.PageDimsFile(path)
	require.NoError(t, err)
	widths := make([]int, len(dims))
	for i, d := range dims {
		widths[i] = int(d.Width)
	}
	return widths
}

// listDir returns the visible entries of dir
func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
