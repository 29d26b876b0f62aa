package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"chat-realtime/internal/logging"
)

const DefaultSessionCookie = "auth-session"

// SessionValidator resolves a session token to a user id, "" when the
// session is unknown or expired.
type SessionValidator interface {
	Validate(ctx context.Context, token string) (string, error)
}

// SessionTokenFromCookie returns the value of cookie name in a raw Cookie
// header, "" when absent.
func SessionTokenFromCookie(header, name string) string {
	for _, part := range strings.Split(header, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if ok && key == name {
			return value
		}
	}
	return ""
}

// SessionAuth rejects requests without a valid session cookie and sets
// userID on the context for the rest.
func SessionAuth(validator SessionValidator, cookieName string) gin.HandlerFunc {
	if cookieName == "" {
		cookieName = DefaultSessionCookie
	}
	return func(c *gin.Context) {
		token := SessionTokenFromCookie(c.GetHeader("Cookie"), cookieName)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "no session cookie"})
			return
		}

		userID, err := validator.Validate(c.Request.Context(), token)
		if err != nil {
			logging.Error().Err(err).Msg("session validation failed")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
			return
		}
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
			return
		}

		c.Set("userID", userID)
		c.Next()
	}
}
