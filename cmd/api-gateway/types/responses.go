package types

import (
	"time"

	"github.com/lgulliver/docdesk/internal/tools"
)

// Common HTTP response types used across all API handlers
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Code    string `json:"code,omitempty"`
}

type CreateSessionResponse struct {
	SessionID string `json:"sessionId"`
}

type UploadResponse struct {
	FileID       string `json:"fileId"`
	OriginalName string `json:"originalName"`
	Size         int64  `json:"size"`
}

// ExecuteRequest is the JSON form of an execute call. Files are processed in
// the order given.
type ExecuteRequest struct {
	Tool    string         `json:"tool"`
	Files   []string       `json:"files"`
	Options map[string]any `json:"options,omitempty"`
}

type ExecuteResponse struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
}

type StatusResponse struct {
	SessionID   string    `json:"sessionId"`
	Status      string    `json:"status"`
	Tool        string    `json:"tool,omitempty"`
	DownloadURL string    `json:"downloadUrl,omitempty"`
	Message     string    `json:"message,omitempty"`
	StartTime   time.Time `json:"startTime"`
}

// Health check types
type HealthStatus struct {
	Status   string             `json:"status"`
	Service  string             `json:"service"`
	Time     time.Time          `json:"time"`
	InFlight int                `json:"inFlight"`
	Tools    []tools.ToolStatus `json:"tools"`
}
