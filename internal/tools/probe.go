package tools

import (
	"context"
	"time"

	"github.com/lgulliver/docdesk/pkg/config"
	"github.com/lgulliver/docdesk/pkg/utils"
	"golang.org/x/sync/errgroup"
)

const probeTimeout = 10 * time.Second

// ToolStatus is the result of probing one external binary
type ToolStatus struct {
	Name       string `json:"name"`
	Binary     string `json:"binary"`
	Path       string `json:"path,omitempty"`
	Version    string `json:"version,omitempty"`
	Constraint string `json:"constraint"`
	Available  bool   `json:"available"`
	Supported  bool   `json:"supported"`
	Error      string `json:"error,omitempty"`
}

type probeSpec struct {
	name       string
	binary     string
	args       []string
	constraint string
}

func probeSpecs(cfg *config.ToolsConfig) []probeSpec {
	return []probeSpec{
		{name: "ghostscript", binary: cfg.Ghostscript, args: []string{"--version"}, constraint: ">= 9.50"},
		{name: "libreoffice", binary: cfg.LibreOffice, args: []string{"--version"}, constraint: ">= 7.0"},
		{name: "imagemagick", binary: cfg.ImageMagick, args: []string{"-version"}, constraint: ">= 7.0"},
		{name: "chromium", binary: cfg.Chromium, args: []string{"--version"}, constraint: ">= 112"},
	}
}

// Probe runs the version flag of every configured binary and checks the
// reported version against the minimum the tools rely on.
func Probe(ctx context.Context, cfg *config.ToolsConfig, cmd Commander) []ToolStatus {
	specs := probeSpecs(cfg)
	results := make([]ToolStatus, len(specs))

	var g errgroup.Group
	for i, spec := range specs {
		g.Go(func() error {
			results[i] = probeOne(ctx, cmd, spec)
			return nil
		})
	}
	g.Wait()

	return results
}

func probeOne(ctx context.Context, cmd Commander, spec probeSpec) ToolStatus {
	status := ToolStatus{Name: spec.name, Binary: spec.binary, Constraint: spec.constraint}

	path, err := cmd.LookPath(spec.binary)
	if err != nil {
		status.Error = "not installed"
		return status
	}
	status.Path = path

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	out, err := cmd.Run(ctx, path, spec.args...)
	if err != nil {
		status.Error = utils.SanitizeMessage(err.Error())
		return status
	}
	status.Available = true

	version, err := utils.ParseToolVersion(string(out))
	if err != nil {
		status.Error = "unrecognized version output"
		return status
	}
	status.Version = version.String()
	status.Supported = utils.SatisfiesConstraint(version, spec.constraint)
	return status
}
