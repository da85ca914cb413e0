package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

func pdfConfig() *model.Configuration {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return cfg
}

// merge concatenates the inputs in the order given
func (t *Toolset) merge(ctx context.Context, job *Job) (string, error) {
	out := job.ScratchPath(inputBase(job.Inputs[0]) + ".pdf")
	err := runBlocking(ctx, func() error {
		return api.MergeCreateFile(job.Inputs, out, false, pdfConfig())
	})
	return out, err
}

// split cuts the input into parts of span pages and zips the parts
func (t *Toolset) split(ctx context.Context, job *Job) (string, error) {
	span := job.IntOption("span", 1)
	partsDir := job.ScratchPath("parts")
	if err := os.Mkdir(partsDir, 0755); err != nil {
		return "", fmt.Errorf("create parts directory: %w", err)
	}

	err := runBlocking(ctx, func() error {
		return api.SplitFile(job.Inputs[0], partsDir, span, pdfConfig())
	})
	if err != nil {
		return "", err
	}

	parts, err := filepath.Glob(filepath.Join(partsDir, "*.pdf"))
	if err != nil {
		return "", err
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("split produced no pages")
	}
	sortParts(parts)

	out := job.ScratchPath(inputBase(job.Inputs[0]) + ".zip")
	return out, zipFiles(out, parts)
}

// sortParts orders split output by first page. Parts are named
// <base>_<from>.pdf or <base>_<from>-<thru>.pdf.
func sortParts(parts []string) {
	sort.SliceStable(parts, func(i, j int) bool {
		return partStart(parts[i]) < partStart(parts[j])
	})
}

func partStart(part string) int {
	name := strings.TrimSuffix(filepath.Base(part), ".pdf")
	if i := strings.LastIndex(name, "_"); i >= 0 {
		name = name[i+1:]
	}
	from, _, _ := strings.Cut(name, "-")
	n, err := strconv.Atoi(from)
	if err != nil {
		return -1
	}
	return n
}

// protect encrypts the input with AES-256. The owner password defaults to the
// user password.
func (t *Toolset) protect(ctx context.Context, job *Job) (string, error) {
	password := job.Option("password", "")
	if password == "" {
		return "", fmt.Errorf("password is required")
	}
	owner := job.Option("ownerPassword", password)

	out := job.ScratchPath(inputBase(job.Inputs[0]) + ".pdf")
	err := runBlocking(ctx, func() error {
		conf := model.NewAESConfiguration(password, owner, 256)
		conf.ValidationMode = model.ValidationRelaxed
		return api.EncryptFile(job.Inputs[0], out, conf)
	})
	return out, err
}

// optimize rewrites the input with pdfcpu, dropping redundant objects
func optimize(ctx context.Context, in, out string) error {
	return runBlocking(ctx, func() error {
		return api.OptimizeFile(in, out, pdfConfig())
	})
}

// PageCount returns the number of pages of a PDF file
func PageCount(ctx context.Context, path string) (int, error) {
	var n int
	err := runBlocking(ctx, func() error {
		var err error
		n, err = api.PageCountFile(path)
		return err
	})
	return n, err
}
