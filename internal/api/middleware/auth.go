package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/timmy/memehustle/internal/domain"
	"github.com/timmy/memehustle/internal/logger"
)

const identityKey = "identity"

// TokenVerifier validates bearer tokens. *auth.Service implements it.
type TokenVerifier interface {
	VerifyToken(token string) (domain.Identity, error)
}

// RequireAuth rejects requests without a valid bearer token and stores the
// caller's identity on the context.
func RequireAuth(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authorized, no token"})
			return
		}

		id, err := verifier.VerifyToken(strings.TrimSpace(token))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authorized, token failed"})
			return
		}

		c.Set(identityKey, id)
		c.Request = c.Request.WithContext(logger.SetUserID(c.Request.Context(), id.UserID))
		c.Next()
	}
}

// Identity returns the caller set by RequireAuth.
func Identity(c *gin.Context) (domain.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return domain.Identity{}, false
	}
	id, ok := v.(domain.Identity)
	return id, ok
}

// RequireAdmin allows only the named users through. It must run after
// RequireAuth. An empty list disables the guarded routes.
func RequireAdmin(usernames []string) gin.HandlerFunc {
	admins := make(map[string]struct{}, len(usernames))
	for _, name := range usernames {
		admins[name] = struct{}{}
	}
	return func(c *gin.Context) {
		id, ok := Identity(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authorized"})
			return
		}
		if _, ok := admins[id.DisplayName]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			return
		}
		c.Next()
	}
}
