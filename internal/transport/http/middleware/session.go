package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"eyecheck-web/internal/pkg/jwtutil"
	"eyecheck-web/internal/transport/http/response"
)

const ContextSessionIDKey = "session_id"

// Session attaches a session id to every request. The id travels in a signed
// cookie; a missing, tampered or expired cookie starts a new session. Tokens
// past half their lifetime are re-issued so active sessions do not lapse.
// onReplace, if set, receives the id of an expired session being replaced.
func Session(cookieName, secret string, ttl time.Duration, onReplace func(ctx context.Context, oldID string)) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := ""
		replacedID := ""
		renew := true

		if raw, err := c.Cookie(cookieName); err == nil && raw != "" {
			if claims, err := jwtutil.ParseToken(secret, raw); err == nil {
				sessionID = claims.SessionID
				renew = ttl > 0 && claims.ExpiresAt != nil && time.Until(claims.ExpiresAt.Time) < ttl/2
			} else if oldID, ok := jwtutil.ExpiredSessionID(secret, raw); ok {
				replacedID = oldID
			}
		}
		if sessionID == "" {
			sessionID = uuid.NewString()
		}
		if replacedID != "" && onReplace != nil {
			onReplace(c.Request.Context(), replacedID)
		}

		if renew {
			token, err := jwtutil.GenerateToken(secret, ttl, sessionID)
			if err != nil {
				response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "issue session failed")
				c.Abort()
				return
			}
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(cookieName, token, int(ttl.Seconds()), "/", "", false, true)
		}

		c.Set(ContextSessionIDKey, sessionID)
		c.Next()
	}
}

func SessionID(c *gin.Context) (string, bool) {
	v, exists := c.Get(ContextSessionIDKey)
	if !exists {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}
