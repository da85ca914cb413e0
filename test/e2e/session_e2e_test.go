// End-to-end tests driving the HTTP API through the Go client
package e2e_test

import (
	"bytes"
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lgulliver/docdesk/cmd/api-gateway/routes"
	"github.com/lgulliver/docdesk/internal/common"
	"github.com/lgulliver/docdesk/internal/history"
	"github.com/lgulliver/docdesk/internal/jobs"
	"github.com/lgulliver/docdesk/internal/session"
	"github.com/lgulliver/docdesk/internal/storage"
	"github.com/lgulliver/docdesk/internal/tools"
	"github.com/lgulliver/docdesk/pkg/client"
	"github.com/lgulliver/docdesk/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type environment struct {
	client   *client.Client
	registry *session.Registry
	history  *history.Service
	sweeper  *session.Sweeper
	uploads  string
}

func setupEnvironment(t *testing.T) *environment {
	t.Helper()
	gin.SetMode(gin.TestMode)

	uploads := t.TempDir()
	blobs, err := storage.NewLocalStorage(uploads)
	require.NoError(t, err)
	registry := session.NewRegistry(session.NewMemoryStore(), blobs)

	toolset, err := tools.NewToolset(&config.ToolsConfig{
		Ghostscript: "docdesk-missing-gs",
		LibreOffice: "docdesk-missing-soffice",
		ImageMagick: "docdesk-missing-magick",
		Chromium:    "docdesk-missing-chromium",
	}, tools.NewCommandRunner())
	require.NoError(t, err)

	db, err := common.NewDatabase(&config.HistoryConfig{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
	}, &config.DatabaseConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	service := history.NewService(db.DB)
	require.NoError(t, service.AutoMigrate())

	pool := jobs.NewPoolScheduler(2)
	t.Cleanup(func() { pool.Shutdown(context.Background()) })
	runner := jobs.NewRunner(registry, toolset, pool, service, time.Minute)

	router := gin.New()
	routes.Register(router, &routes.Dependencies{
		Sessions: registry,
		Blobs:    blobs,
		Runner:   runner,
		Prober:   toolset,
		Stats:    service,
		Uploads:  routes.NewUploadPolicy(&config.StorageConfig{MaxUploadSize: 1 << 20, AllowedTypes: config.DefaultAllowedTypes}),
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	c, err := client.New(srv.URL, client.WithPolling(20*time.Millisecond, 250))
	require.NoError(t, err)

	return &environment{
		client:   c,
		registry: registry,
		history:  service,
		sweeper: session.NewSweeper(registry, &config.SessionConfig{
			Timeout:            time.Hour,
			SweepInterval:      30 * time.Minute,
			TerminalMultiplier: 2,
		}, runner),
		uploads: uploads,
	}
}

// buildPDF assembles a minimal PDF with the given number of blank pages
func buildPDF(pages int) []byte {
	var buf bytes.Buffer
	var offsets []int

	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	kids := make([]string, pages)
	for i := range kids {
		kids[i] = fmt.Sprintf("%d 0 R", i+3)
	}
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), pages))
	for i := 0; i < pages; i++ {
		obj("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 200 200] /Resources << >> >>")
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

func writePDF(t *testing.T, dir, name string, pages int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buildPDF(pages), 0644))
	return path
}

func sessionDirs(t *testing.T, root string) []string {
	t.Helper()
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	return dirs
}

func TestMergeCycle(t *testing.T) {
	env := setupEnvironment(t)
	ctx := context.Background()
	in := t.TempDir()

	paths := []string{
		writePDF(t, in, "cover.pdf", 1),
		writePDF(t, in, "body.pdf", 3),
		writePDF(t, in, "appendix.pdf", 2),
	}

	var out bytes.Buffer
	name, err := env.client.Process(ctx, "merge", paths, nil, &out)
	require.NoError(t, err)
	assert.Equal(t, "cover.pdf", name)

	merged := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(merged, out.Bytes(), 0644))
	pages, err := tools.PageCount(ctx, merged)
	require.NoError(t, err)
	assert.Equal(t, 6, pages)

	// the download released the session and its directory
	assert.Empty(t, sessionDirs(t, env.uploads))
}

func TestFailedJobReportsMessage(t *testing.T) {
	env := setupEnvironment(t)
	ctx := context.Background()

	sessionID, err := env.client.CreateSession(ctx)
	require.NoError(t, err)
	uploaded, err := env.client.UploadFile(ctx, sessionID, writePDF(t, t.TempDir(), "scan.pdf", 1))
	require.NoError(t, err)

	require.NoError(t, env.client.Execute(ctx, sessionID, "pdfa", []string{uploaded.FileID}, nil))
	status, err := env.client.Poll(ctx, sessionID)

	var jobErr *client.JobError
	require.ErrorAs(t, err, &jobErr)
	assert.Equal(t, "error", status.Status)
	assert.Contains(t, jobErr.Message, "not installed")
	assert.NotContains(t, jobErr.Message, env.uploads, "server paths never reach the client")

	err = env.client.Execute(ctx, sessionID, "pdfa", []string{uploaded.FileID}, nil)
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 409, apiErr.StatusCode)
}

func TestHistoryAndSweep(t *testing.T) {
	env := setupEnvironment(t)
	ctx := context.Background()
	in := t.TempDir()

	// one finished job left undownloaded
	sessionID, err := env.client.CreateSession(ctx)
	require.NoError(t, err)
	first, err := env.client.UploadFile(ctx, sessionID, writePDF(t, in, "a.pdf", 1))
	require.NoError(t, err)
	second, err := env.client.UploadFile(ctx, sessionID, writePDF(t, in, "b.pdf", 1))
	require.NoError(t, err)
	require.NoError(t, env.client.Execute(ctx, sessionID, "merge", []string{first.FileID, second.FileID}, nil))
	_, err = env.client.Poll(ctx, sessionID)
	require.NoError(t, err)

	// and one session that never ran
	idle, err := env.client.CreateSession(ctx)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		stats, err := env.history.GetStats(ctx, &history.StatsQuery{})
		return err == nil && stats.TotalJobs == 1
	}, 5*time.Second, 20*time.Millisecond)

	stats, err := env.history.GetStats(ctx, &history.StatsQuery{Tool: "merge"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Completed)

	// the idle session expires after the timeout, the finished one only after twice that
	assert.Equal(t, 1, env.sweeper.SweepOnce(ctx, time.Now().Add(90*time.Minute)))
	_, err = env.client.Status(ctx, idle)
	assert.Error(t, err)
	_, err = env.client.Status(ctx, sessionID)
	assert.NoError(t, err)

	assert.Equal(t, 1, env.sweeper.SweepOnce(ctx, time.Now().Add(3*time.Hour)))
	assert.Empty(t, sessionDirs(t, env.uploads))
}
