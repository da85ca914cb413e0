package routes

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/lgulliver/docdesk/cmd/api-gateway/types"
	"github.com/lgulliver/docdesk/internal/common"
	"github.com/lgulliver/docdesk/internal/jobs"
	"github.com/lgulliver/docdesk/internal/middleware"
	"github.com/lgulliver/docdesk/internal/session"
	"github.com/lgulliver/docdesk/internal/storage"
	"github.com/lgulliver/docdesk/pkg/config"
	"github.com/lgulliver/docdesk/pkg/utils"
	"github.com/rs/zerolog/log"
)

const (
	// sniffLen matches the amount of content mimetype inspects by default
	sniffLen = 3072
	// formOverhead leaves room for multipart boundaries and small fields
	formOverhead    = 1 << 20
	maxExecuteForm  = 1 << 20
	executeAccepted = "Processing started"
)

// UploadPolicy bounds what an upload may contain
type UploadPolicy struct {
	MaxSize      int64
	AllowedTypes []string
	IDs          *utils.FileIDGenerator
}

// NewUploadPolicy builds the policy from the storage configuration
func NewUploadPolicy(cfg *config.StorageConfig) *UploadPolicy {
	return &UploadPolicy{
		MaxSize:      cfg.MaxUploadSize,
		AllowedTypes: cfg.AllowedTypes,
		IDs:          utils.NewFileIDGenerator(),
	}
}

// SessionRoutes sets up the session lifecycle routes
func SessionRoutes(router gin.IRouter, sessions SessionServiceInterface, blobs storage.BlobStore, runner JobRunnerInterface, policy *UploadPolicy) {
	group := router.Group("/session")
	validate := middleware.SessionValidationMiddleware(sessions)

	group.POST("/create", handleCreateSession(sessions))
	group.POST("/upload/:sessionId", validate, handleUpload(blobs, policy))
	group.POST("/execute/:sessionId", validate, handleExecute(runner))
	group.GET("/status/:sessionId", validate, handleStatus())
}

func handleCreateSession(sessions SessionServiceInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := sessions.Create(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, types.CreateSessionResponse{SessionID: sess.ID})
	}
}

// handleUpload streams the multipart "file" field straight into the session
// directory. The blob store enforces the size limit while writing, so an
// oversized upload never leaves a file behind.
func handleUpload(blobs storage.BlobStore, policy *UploadPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, _ := middleware.SessionFromContext(c)
		if sess.Status != session.StatusCreated {
			respondError(c, common.Conflict(fmt.Sprintf("session is %s and no longer accepts uploads", sess.Status), nil))
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, policy.MaxSize+formOverhead)
		reader, err := c.Request.MultipartReader()
		if err != nil {
			respondError(c, common.Validation("expected a multipart/form-data upload"))
			return
		}

		for {
			part, err := reader.NextPart()
			if errors.Is(err, io.EOF) {
				respondError(c, common.Validation("no file uploaded"))
				return
			}
			if err != nil {
				respondError(c, uploadError(err, policy.MaxSize))
				return
			}
			if part.FormName() != "file" {
				part.Close()
				continue
			}

			storeUpload(c, blobs, policy, sess.ID, part.FileName(), part)
			part.Close()
			return
		}
	}
}

func storeUpload(c *gin.Context, blobs storage.BlobStore, policy *UploadPolicy, sessionID, fileName string, content io.Reader) {
	buffered := bufio.NewReaderSize(content, sniffLen)
	head, err := buffered.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) {
		respondError(c, uploadError(err, policy.MaxSize))
		return
	}
	if len(head) == 0 {
		respondError(c, common.Validation("uploaded file is empty"))
		return
	}

	detected := mimetype.Detect(head)
	if !allowedType(detected, policy.AllowedTypes) {
		log.Warn().
			Str("session_id", sessionID).
			Str("mime_type", detected.String()).
			Msg("upload rejected: type not allowed")
		respondError(c, common.Validation(fmt.Sprintf("file type %s is not allowed", baseType(detected.String()))))
		return
	}

	fileID := policy.IDs.Next(fileName)
	size, err := blobs.Store(c.Request.Context(), sessionID, fileID, buffered, policy.MaxSize)
	if err != nil {
		respondError(c, uploadError(err, policy.MaxSize))
		return
	}

	log.Info().
		Str("session_id", sessionID).
		Str("file_id", fileID).
		Str("mime_type", detected.String()).
		Str("size", utils.FormatBytes(size)).
		Msg("file uploaded")

	c.JSON(http.StatusOK, types.UploadResponse{
		FileID:       fileID,
		OriginalName: utils.OriginalName(fileID),
		Size:         size,
	})
}

func uploadError(err error, limit int64) error {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, storage.ErrTooLarge), errors.As(err, &maxBytes):
		return common.TooLarge(fmt.Sprintf("file exceeds the upload limit of %s", utils.FormatBytes(limit)))
	case errors.Is(err, storage.ErrNotFound):
		return common.NotFound("session directory missing")
	case errors.Is(err, storage.ErrPathEscape), errors.Is(err, storage.ErrInvalidSession):
		return common.Validation("invalid file name")
	default:
		return common.Storage("failed to store upload", err)
	}
}

func allowedType(detected *mimetype.MIME, allowed []string) bool {
	for _, candidate := range allowed {
		if detected.Is(candidate) {
			return true
		}
	}
	return false
}

func baseType(mimeType string) string {
	if media, _, err := mime.ParseMediaType(mimeType); err == nil {
		return media
	}
	return mimeType
}

// handleExecute accepts either a JSON body or form fields. In form mode the
// inputs come from "file-N" fields and their index decides the order; in JSON
// mode the order of the files array does.
func handleExecute(runner JobRunnerInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, _ := middleware.SessionFromContext(c)

		tool, files, options, err := bindExecute(c)
		if err != nil {
			respondError(c, err)
			return
		}

		if err := runner.Execute(c.Request.Context(), sess.ID, tool, files, options); err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusAccepted, types.ExecuteResponse{
			Message:   executeAccepted,
			SessionID: sess.ID,
			Status:    string(session.StatusProcessing),
		})
	}
}

func bindExecute(c *gin.Context) (string, []jobs.FileRef, map[string]any, error) {
	if strings.HasPrefix(c.ContentType(), "application/json") {
		var req types.ExecuteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			return "", nil, nil, common.Validation("invalid JSON body")
		}
		return req.Tool, jobs.FromList(req.Files), req.Options, nil
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxExecuteForm)
	if err := c.Request.ParseMultipartForm(maxExecuteForm); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return "", nil, nil, common.Validation("invalid form body")
	}

	files := jobs.FromForm(c.Request.PostForm)

	var options map[string]any
	if raw := c.PostForm("options"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &options); err != nil {
			return "", nil, nil, common.Validation("options must be a JSON object")
		}
	}

	return c.PostForm("tool"), files, options, nil
}

// handleStatus is a pure read of the session validated by the middleware
func handleStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, _ := middleware.SessionFromContext(c)
		c.JSON(http.StatusOK, types.StatusResponse{
			SessionID:   sess.ID,
			Status:      string(sess.Status),
			Tool:        sess.Tool,
			DownloadURL: sess.DownloadURL,
			Message:     sess.Message,
			StartTime:   sess.StartTime,
		})
	}
}

// respondError writes the classified error body. Details of server-side
// failures are logged, never returned.
func respondError(c *gin.Context, err error) {
	status := common.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Error().
			Err(err).
			Str("path", c.Request.URL.Path).
			Msg("request failed")
	}
	c.Error(err)
	c.AbortWithStatusJSON(status, types.ErrorResponse{
		Error: common.PublicMessage(err),
		Code:  string(common.KindOf(err)),
	})
}
