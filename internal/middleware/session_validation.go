package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lgulliver/docdesk/internal/common"
	"github.com/lgulliver/docdesk/internal/session"
	"github.com/rs/zerolog/log"
)

// SessionKey is the gin context key the validated session is stored under
const SessionKey = "session"

// SessionLookup reads a session by id
type SessionLookup interface {
	Get(ctx context.Context, id string) (*session.Session, error)
}

// SessionValidationMiddleware rejects requests whose :sessionId does not name a
// live session and stores the session on the context for the handler
func SessionValidationMiddleware(lookup SessionLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")
		if sessionID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "session id is required",
				"code":  string(common.KindValidation),
			})
			return
		}

		sess, err := lookup.Get(c.Request.Context(), sessionID)
		if err != nil {
			if !common.IsKind(err, common.KindNotFound) {
				log.Error().
					Err(err).
					Str("session_id", sessionID).
					Msg("failed to look up session")
			}
			c.JSON(common.HTTPStatus(err), gin.H{
				"error": common.PublicMessage(err),
				"code":  string(common.KindOf(err)),
			})
			c.Abort()
			return
		}

		c.Set(SessionKey, sess)
		c.Next()
	}
}

// SessionFromContext returns the session stored by SessionValidationMiddleware
func SessionFromContext(c *gin.Context) (*session.Session, bool) {
	value, ok := c.Get(SessionKey)
	if !ok {
		return nil, false
	}
	sess, ok := value.(*session.Session)
	return sess, ok
}
