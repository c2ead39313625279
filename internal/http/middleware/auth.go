// Package middleware holds the gin middleware chain: auth, request logging,
// panic recovery.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"wasil/internal/auth"
	"wasil/internal/types"
)

const identityKey = "identity"

// Auth verifies the bearer token and stores the caller identity on the
// request context. Requests without a valid token are rejected.
func Auth(verifier auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		identity, err := verifier.Verify(strings.TrimPrefix(h, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(identityKey, identity)
		c.Next()
	}
}

// RequireRole rejects callers whose role is not in the allowed set. Admins
// always pass.
func RequireRole(roles ...types.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := Identity(c)
		if id.IsAdmin() {
			c.Next()
			return
		}
		for _, r := range roles {
			if id.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	}
}

// Identity returns the authenticated caller set by Auth. The zero value means
// the middleware did not run.
func Identity(c *gin.Context) types.Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return types.Identity{}
	}
	id, _ := v.(types.Identity)
	return id
}
