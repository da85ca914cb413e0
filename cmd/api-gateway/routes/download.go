package routes

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/lgulliver/docdesk/internal/common"
	"github.com/lgulliver/docdesk/internal/session"
	"github.com/lgulliver/docdesk/internal/storage"
	"github.com/lgulliver/docdesk/pkg/utils"
	"github.com/rs/zerolog/log"
)

// DownloadRoutes sets up the result download route
func DownloadRoutes(router gin.IRouter, sessions SessionServiceInterface, blobs storage.BlobStore) {
	router.GET("/download/:sessionId/:fileName", handleDownload(sessions, blobs))
}

// handleDownload streams the output of a complete session and reclaims the
// session once the whole file reached the client. An interrupted transfer
// leaves the session complete so the client can retry.
func handleDownload(sessions SessionServiceInterface, blobs storage.BlobStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		sessionID := c.Param("sessionId")
		fileName := c.Param("fileName")

		if _, err := blobs.Resolve(sessionID, fileName); err != nil {
			if errors.Is(err, storage.ErrPathEscape) {
				log.Warn().
					Str("session_id", sessionID).
					Str("file_name", fileName).
					Msg("download rejected: path escapes session directory")
				respondError(c, common.Validation("invalid file name"))
				return
			}
			respondError(c, common.NotFound("invalid session id"))
			return
		}

		sess, err := sessions.Get(ctx, sessionID)
		if err != nil {
			respondError(c, err)
			return
		}
		if sess.Status != session.StatusComplete || sess.OutputFile != fileName {
			respondError(c, common.NotFound("no downloadable output "+fileName))
			return
		}

		content, size, err := blobs.Open(ctx, sessionID, fileName)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				respondError(c, common.NotFound("output file missing"))
				return
			}
			respondError(c, common.Storage("failed to open output", err))
			return
		}
		defer content.Close()

		c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
			"filename": utils.OriginalName(fileName),
		}))
		c.Header("Content-Type", contentType(fileName))
		c.Header("Content-Length", strconv.FormatInt(size, 10))
		c.Status(http.StatusOK)

		written, err := io.Copy(c.Writer, content)
		if err != nil || written != size || ctx.Err() != nil {
			log.Warn().
				Err(err).
				Str("session_id", sessionID).
				Int64("written", written).
				Int64("size", size).
				Msg("download interrupted, keeping session for retry")
			return
		}

		if err := sessions.Reclaim(context.WithoutCancel(ctx), sessionID); err != nil {
			log.Error().
				Err(err).
				Str("session_id", sessionID).
				Msg("failed to reclaim session after download")
			return
		}

		log.Info().
			Str("session_id", sessionID).
			Str("file_name", fileName).
			Str("size", utils.FormatBytes(size)).
			Msg("download complete, session reclaimed")
	}
}

func contentType(fileName string) string {
	if ct := mime.TypeByExtension(filepath.Ext(fileName)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
