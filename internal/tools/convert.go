package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lgulliver/docdesk/internal/common"
	"golang.org/x/sync/errgroup"
)

const maxParallelConversions = 4

var (
	imageExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}
	htmlExtensions  = map[string]bool{".html": true, ".htm": true}
)

// convert turns the inputs into the format named by the "to" option. A set of
// images converted to PDF becomes one document with a page per image; any
// other combination is converted file by file and zipped when there is more
// than one result.
func (t *Toolset) convert(ctx context.Context, job *Job) (string, error) {
	to := job.Option("to", "pdf")

	if to == "pdf" && allImages(job.Inputs) {
		out := job.ScratchPath(inputBase(job.Inputs[0]) + ".pdf")
		args := append(append([]string{}, job.Inputs...), out)
		_, err := t.cmd.Run(ctx, t.bins.ImageMagick, args...)
		return out, err
	}

	outputs := make([]string, len(job.Inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelConversions)

	for i, in := range job.Inputs {
		g.Go(func() error {
			outDir := job.ScratchPath(fmt.Sprintf("%03d", i))
			if err := os.Mkdir(outDir, 0755); err != nil {
				return fmt.Errorf("create output directory: %w", err)
			}
			out, err := t.convertOne(gctx, in, outDir, to)
			if err != nil {
				return err
			}
			outputs[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	if len(outputs) == 1 {
		return outputs[0], nil
	}
	out := job.ScratchPath(inputBase(job.Inputs[0]) + ".zip")
	return out, zipFiles(out, outputs)
}

func (t *Toolset) convertOne(ctx context.Context, in, outDir, to string) (string, error) {
	ext := strings.ToLower(filepath.Ext(in))
	out := filepath.Join(outDir, inputBase(in)+"."+to)

	switch {
	case to == "pdf" && imageExtensions[ext]:
		_, err := t.cmd.Run(ctx, t.bins.ImageMagick, in, out)
		return out, err

	case to == "pdf" && htmlExtensions[ext]:
		_, err := t.cmd.Run(ctx, t.bins.Chromium,
			"--headless",
			"--disable-gpu",
			"--no-sandbox",
			"--no-pdf-header-footer",
			"--print-to-pdf="+out,
			"file://"+in,
		)
		return out, err

	case ext == "."+to:
		return "", common.ToolExecution(fmt.Sprintf("%s is already %s", filepath.Base(in), to), nil)
	}

	// Each LibreOffice process needs its own profile to run concurrently
	args := []string{
		"-env:UserInstallation=file://" + filepath.Join(outDir, ".profile"),
		"--headless",
		"--norestore",
	}
	if ext == ".pdf" && (to == "docx" || to == "odt") {
		args = append(args, "--infilter=writer_pdf_import")
	}
	args = append(args, "--convert-to", to, "--outdir", outDir, in)

	if _, err := t.cmd.Run(ctx, t.bins.LibreOffice, args...); err != nil {
		return "", err
	}
	// soffice exits 0 when it cannot convert, so the output must be checked
	if _, err := os.Stat(out); err != nil {
		return "", common.ToolExecution(fmt.Sprintf("cannot convert %s to %s", filepath.Base(in), to), err)
	}
	return out, nil
}

func allImages(inputs []string) bool {
	for _, in := range inputs {
		if !imageExtensions[strings.ToLower(filepath.Ext(in))] {
			return false
		}
	}
	return len(inputs) > 0
}
