package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

const (
	DefaultPollInterval = 3 * time.Second
	DefaultMaxPolls     = 60
	maxErrorBody        = 64 * 1024
)

// ErrPollLimit is returned by Poll when the session did not finish within the
// configured number of status checks. The job may still complete server-side.
var ErrPollLimit = errors.New("status polling limit reached")

// APIError is a non-success response from the server
type APIError struct {
	StatusCode int
	Message    string `json:"error"`
	Code       string `json:"code"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
}

// JobError reports a job that ended in the error state
type JobError struct {
	SessionID string
	Message   string
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job %s failed: %s", e.SessionID, e.Message)
}

// Status mirrors the status endpoint response
type Status struct {
	SessionID   string    `json:"sessionId"`
	Status      string    `json:"status"`
	Tool        string    `json:"tool,omitempty"`
	DownloadURL string    `json:"downloadUrl,omitempty"`
	Message     string    `json:"message,omitempty"`
	StartTime   time.Time `json:"startTime"`
}

// Terminal reports whether the session reached complete or error
func (s *Status) Terminal() bool {
	return s.Status == "complete" || s.Status == "error"
}

// UploadResult is the server's record of an uploaded file
type UploadResult struct {
	FileID       string `json:"fileId"`
	OriginalName string `json:"originalName"`
	Size         int64  `json:"size"`
}

// Client drives the create, upload, execute, poll and download cycle
type Client struct {
	baseURL      *url.URL
	httpClient   *http.Client
	pollInterval time.Duration
	maxPolls     int
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithPolling sets the delay between status checks and how many checks Poll makes
func WithPolling(interval time.Duration, maxPolls int) Option {
	return func(c *Client) {
		if interval > 0 {
			c.pollInterval = interval
		}
		if maxPolls > 0 {
			c.maxPolls = maxPolls
		}
	}
}

// New creates a client for the server at baseURL
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		baseURL:      u,
		httpClient:   &http.Client{Timeout: 10 * time.Minute},
		pollInterval: DefaultPollInterval,
		maxPolls:     DefaultMaxPolls,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) endpoint(p string) string {
	return c.baseURL.String() + p
}

// CreateSession opens a new session and returns its id
func (c *Client) CreateSession(ctx context.Context) (string, error) {
	var resp struct {
		SessionID string `json:"sessionId"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/session/create", nil, "", http.StatusCreated, &resp); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return resp.SessionID, nil
}

// Upload streams content as the "file" field of a multipart request
func (c *Client) Upload(ctx context.Context, sessionID, name string, content io.Reader) (*UploadResult, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile("file", name)
		if err == nil {
			_, err = io.Copy(part, content)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	var result UploadResult
	err := c.doJSON(ctx, http.MethodPost, "/session/upload/"+url.PathEscape(sessionID), pr, mw.FormDataContentType(), http.StatusOK, &result)
	pr.Close()
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", name, err)
	}
	return &result, nil
}

// UploadFile uploads a file from disk under its base name
func (c *Client) UploadFile(ctx context.Context, sessionID, filePath string) (*UploadResult, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filePath, err)
	}
	defer f.Close()
	return c.Upload(ctx, sessionID, filepath.Base(filePath), f)
}

// Execute starts tool on the files, processed in the order given
func (c *Client) Execute(ctx context.Context, sessionID, tool string, fileIDs []string, options map[string]any) error {
	body, err := json.Marshal(map[string]any{
		"tool":    tool,
		"files":   fileIDs,
		"options": options,
	})
	if err != nil {
		return fmt.Errorf("encode execute request: %w", err)
	}
	if err := c.doJSON(ctx, http.MethodPost, "/session/execute/"+url.PathEscape(sessionID), bytes.NewReader(body), "application/json", http.StatusAccepted, nil); err != nil {
		return fmt.Errorf("execute %s: %w", tool, err)
	}
	return nil
}

// Status returns the current session status
func (c *Client) Status(ctx context.Context, sessionID string) (*Status, error) {
	var status Status
	if err := c.doJSON(ctx, http.MethodGet, "/session/status/"+url.PathEscape(sessionID), nil, "", http.StatusOK, &status); err != nil {
		return nil, fmt.Errorf("session status: %w", err)
	}
	return &status, nil
}

// Poll checks the status until the session is terminal. A failed job is
// returned as *JobError; running out of checks returns ErrPollLimit.
func (c *Client) Poll(ctx context.Context, sessionID string) (*Status, error) {
	for attempt := 1; attempt <= c.maxPolls; attempt++ {
		status, err := c.Status(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		switch status.Status {
		case "complete":
			return status, nil
		case "error":
			return status, &JobError{SessionID: sessionID, Message: status.Message}
		}

		if attempt == c.maxPolls {
			break
		}
		timer := time.NewTimer(c.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("poll session: %w", ctx.Err())
		case <-timer.C:
		}
	}
	return nil, fmt.Errorf("%w after %d checks", ErrPollLimit, c.maxPolls)
}

// Download writes the result at downloadURL to w and returns the file name
// suggested by the server. The server forgets the session after a complete
// transfer.
func (c *Client) Download(ctx context.Context, downloadURL string, w io.Writer) (string, int64, error) {
	target := downloadURL
	if strings.HasPrefix(downloadURL, "/") {
		target = c.endpoint(downloadURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", 0, fmt.Errorf("build download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("download: %w", decodeError(resp))
	}

	name := downloadName(downloadURL)
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		name = params["filename"]
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return name, n, fmt.Errorf("download: %w", err)
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		return name, n, fmt.Errorf("download: short body, got %d of %d bytes", n, resp.ContentLength)
	}
	return name, n, nil
}

// Process runs the whole cycle for files on disk and writes the result to w
func (c *Client) Process(ctx context.Context, tool string, paths []string, options map[string]any, w io.Writer) (string, error) {
	sessionID, err := c.CreateSession(ctx)
	if err != nil {
		return "", err
	}

	fileIDs := make([]string, 0, len(paths))
	for _, p := range paths {
		uploaded, err := c.UploadFile(ctx, sessionID, p)
		if err != nil {
			return "", err
		}
		fileIDs = append(fileIDs, uploaded.FileID)
	}

	if err := c.Execute(ctx, sessionID, tool, fileIDs, options); err != nil {
		return "", err
	}
	status, err := c.Poll(ctx, sessionID)
	if err != nil {
		return "", err
	}

	name, _, err := c.Download(ctx, status.DownloadURL, w)
	return name, err
}

func (c *Client) doJSON(ctx context.Context, method, route string, body io.Reader, contentType string, want int, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(route), body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err == nil && len(raw) > 0 {
		_ = json.Unmarshal(raw, apiErr)
	}
	return apiErr
}

// downloadName returns the last element of a download URL
func downloadName(downloadURL string) string {
	if u, err := url.Parse(downloadURL); err == nil {
		return path.Base(u.Path)
	}
	return path.Base(downloadURL)
}
