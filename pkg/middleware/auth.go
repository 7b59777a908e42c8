package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/modelgate/modelgate-go/internal/sessions"
	"github.com/modelgate/modelgate-go/internal/tokens"
)

// AuthMiddleware returns a Gin middleware that verifies HS256 Bearer tokens
// signed with the given secret. Verified claims are stored on the context
// under "claims". Tokens revoked via the Redis blacklist are rejected even
// when their signature is still valid.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{"message": "missing Authorization header"}})
			return
		}
		// Expect 'Bearer <token>'
		var token string
		if n, _ := fmt.Sscanf(auth, "Bearer %s", &token); n != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{"message": "invalid Authorization header"}})
			return
		}

		if revoked, err := sessions.IsAccessTokenBlacklisted(c.Request.Context(), token); err == nil && revoked {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{"message": "token revoked"}})
			return
		}

		claims, err := tokens.VerifyAccessToken(secret, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{"message": "invalid token"}})
			return
		}

		c.Set("claims", map[string]interface{}(claims))
		c.Set("accessToken", token)
		c.Next()
	}
}
