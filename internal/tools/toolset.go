package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/kaptinlin/jsonschema"
	"github.com/lgulliver/docdesk/internal/common"
	"github.com/lgulliver/docdesk/pkg/config"
	"github.com/lgulliver/docdesk/pkg/utils"
	"github.com/rs/zerolog/log"
)

// RunFunc performs the work of a tool. It writes only inside job.Scratch and
// returns the path of the single file it produced there.
type RunFunc func(ctx context.Context, job *Job) (string, error)

// Tool describes a named operation
type Tool struct {
	Name     string
	MinFiles int
	// MaxFiles of 0 means unbounded
	MaxFiles int
	// Suffix tags output names, e.g. report_merged_3f2a9c1b.pdf
	Suffix string
	// Schema is the JSON schema of the options object
	Schema string
	Run    RunFunc

	schema *jsonschema.Schema
}

// Toolset implements Executor over a fixed set of registered tools
type Toolset struct {
	tools map[string]*Tool
	cmd   Commander
	bins  config.ToolsConfig
}

// NewToolset creates a toolset with the built-in tools registered
func NewToolset(cfg *config.ToolsConfig, cmd Commander) (*Toolset, error) {
	t := &Toolset{
		tools: make(map[string]*Tool),
		cmd:   cmd,
		bins:  *cfg,
	}
	if err := t.registerTools(); err != nil {
		return nil, err
	}
	return t, nil
}

// registerTools registers all supported tools
func (t *Toolset) registerTools() error {
	builtin := []Tool{
		{Name: "merge", MinFiles: 2, Suffix: "merged", Schema: noOptionsSchema, Run: t.merge},
		{Name: "split", MinFiles: 1, MaxFiles: 1, Suffix: "split", Schema: splitSchema, Run: t.split},
		{Name: "protect", MinFiles: 1, MaxFiles: 1, Suffix: "protected", Schema: protectSchema, Run: t.protect},
		{Name: "compress", MinFiles: 1, MaxFiles: 1, Suffix: "compressed", Schema: compressSchema, Run: t.compress},
		{Name: "pdfa", MinFiles: 1, MaxFiles: 1, Suffix: "pdfa", Schema: noOptionsSchema, Run: t.pdfa},
		{Name: "convert", MinFiles: 1, Suffix: "converted", Schema: convertSchema, Run: t.convert},
	}

	for _, tool := range builtin {
		if err := t.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

// Register adds a tool, replacing any tool of the same name
func (t *Toolset) Register(tool Tool) error {
	if tool.Name == "" || tool.Run == nil {
		return fmt.Errorf("tool needs a name and a run function")
	}
	if tool.MinFiles < 1 {
		tool.MinFiles = 1
	}
	if tool.Suffix == "" {
		tool.Suffix = tool.Name
	}
	schema, err := compileSchema(tool.Name, tool.Schema)
	if err != nil {
		return err
	}
	tool.schema = schema
	t.tools[tool.Name] = &tool
	return nil
}

// Names returns the registered tool names in sorted order
func (t *Toolset) Names() []string {
	names := make([]string, 0, len(t.tools))
	for name := range t.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks, in order, that the tool exists, that it accepts fileCount
// inputs and that options satisfy its schema.
func (t *Toolset) Validate(name string, fileCount int, options map[string]any) error {
	tool, ok := t.tools[name]
	if !ok {
		return common.Validation(fmt.Sprintf("unknown tool %q", name))
	}
	if fileCount < tool.MinFiles {
		return common.Validation(fmt.Sprintf("%s needs at least %d file(s), got %d", name, tool.MinFiles, fileCount))
	}
	if tool.MaxFiles > 0 && fileCount > tool.MaxFiles {
		return common.Validation(fmt.Sprintf("%s accepts at most %d file(s), got %d", name, tool.MaxFiles, fileCount))
	}
	if err := validateOptions(tool.schema, options); err != nil {
		return common.Validation(utils.SanitizeMessage(err.Error()))
	}
	return nil
}

// Execute runs the tool inside a scratch directory and moves its product into
// the session directory under the output naming scheme. The scratch directory
// is always removed, so a failed or timed out run leaves no output behind.
func (t *Toolset) Execute(ctx context.Context, req Request) (string, error) {
	tool, ok := t.tools[req.Tool]
	if !ok {
		return "", common.Validation(fmt.Sprintf("unknown tool %q", req.Tool))
	}
	if len(req.Inputs) == 0 {
		return "", common.Validation("no input files")
	}

	startTime := time.Now()
	scratch, err := os.MkdirTemp(req.Dir, ".work-*")
	if err != nil {
		return "", common.Storage("failed to create scratch directory", err)
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			log.Warn().Err(err).Str("session_id", req.SessionID).Msg("failed to remove scratch directory")
		}
	}()

	job := &Job{Request: req, Scratch: scratch}
	produced, err := tool.Run(ctx, job)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return "", toolError(ctx, tool.Name, err)
	}

	info, err := os.Stat(produced)
	if err != nil || info.IsDir() || info.Size() == 0 {
		return "", common.ToolExecution(fmt.Sprintf("%s produced no output", tool.Name), err)
	}

	name := utils.OutputName(filepath.Base(req.Inputs[0]), tool.Suffix, req.SessionID, filepath.Ext(produced))
	if err := os.Rename(produced, filepath.Join(req.Dir, name)); err != nil {
		return "", common.Storage("failed to move output into place", err)
	}

	log.Info().
		Str("session_id", req.SessionID).
		Str("tool", tool.Name).
		Str("output", name).
		Str("size", utils.FormatBytes(info.Size())).
		Dur("duration", time.Since(startTime)).
		Msg("tool finished")

	return name, nil
}

// Probe reports the availability of the external binaries
func (t *Toolset) Probe(ctx context.Context) []ToolStatus {
	return Probe(ctx, &t.bins, t.cmd)
}

func toolError(ctx context.Context, tool string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return common.ToolExecution(fmt.Sprintf("%s timed out", tool), err)
	}
	var classified *common.Error
	if errors.As(err, &classified) {
		return err
	}
	return common.ToolExecution(utils.SanitizeMessage(fmt.Sprintf("%s failed: %s", tool, err.Error())), err)
}

// runBlocking runs fn, which cannot be interrupted, and returns early when ctx
// ends. A panic in fn is returned as an error.
func runBlocking(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
