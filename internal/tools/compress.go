package tools

import (
	"context"

	"github.com/rs/zerolog/log"
)

// compress re-renders the input through Ghostscript's pdfwrite device. When
// Ghostscript is not installed the input is optimized with pdfcpu instead.
func (t *Toolset) compress(ctx context.Context, job *Job) (string, error) {
	level := job.Option("level", "ebook")
	out := job.ScratchPath(inputBase(job.Inputs[0]) + ".pdf")

	if _, err := t.cmd.LookPath(t.bins.Ghostscript); err != nil {
		log.Warn().
			Str("session_id", job.SessionID).
			Str("binary", t.bins.Ghostscript).
			Msg("ghostscript not available, falling back to pdfcpu optimize")
		return out, optimize(ctx, job.Inputs[0], out)
	}

	_, err := t.cmd.Run(ctx, t.bins.Ghostscript,
		"-sDEVICE=pdfwrite",
		"-dCompatibilityLevel=1.4",
		"-dPDFSETTINGS=/"+level,
		"-dNOPAUSE",
		"-dQUIET",
		"-dBATCH",
		"-sOutputFile="+out,
		job.Inputs[0],
	)
	return out, err
}

// pdfa converts the input to PDF/A-2b
func (t *Toolset) pdfa(ctx context.Context, job *Job) (string, error) {
	out := job.ScratchPath(inputBase(job.Inputs[0]) + ".pdf")

	_, err := t.cmd.Run(ctx, t.bins.Ghostscript,
		"-dPDFA=2",
		"-dPDFACompatibilityPolicy=1",
		"-dBATCH",
		"-dNOPAUSE",
		"-dNOOUTERSAVE",
		"-dQUIET",
		"-sColorConversionStrategy=RGB",
		"-sDEVICE=pdfwrite",
		"-sOutputFile="+out,
		job.Inputs[0],
	)
	return out, err
}
