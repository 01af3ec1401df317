// Package middleware provides Gin middleware for the Pulseboard API.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Identity is the caller identity resolved by the upstream auth
// collaborator. Token verification and RBAC happen there; this layer only
// consumes the forwarded result.
type Identity struct {
	UserID   string
	UserName string
	Role     string
}

const identityContextKey = "pulseboard.identity"

// Identify reads the identity headers forwarded by the auth layer into the
// request context. Requests without identity pass through; handlers that
// need one use RequireUser.
func Identify() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader("X-User-ID")
		if userID != "" {
			c.Set(identityContextKey, &Identity{
				UserID:   userID,
				UserName: c.GetHeader("X-User-Name"),
				Role:     c.GetHeader("X-User-Role"),
			})
		}
		c.Next()
	}
}

// GetIdentity retrieves the resolved identity, or nil.
func GetIdentity(c *gin.Context) *Identity {
	val, exists := c.Get(identityContextKey)
	if !exists {
		return nil
	}
	identity, ok := val.(*Identity)
	if !ok {
		return nil
	}
	return identity
}

// RequireUser retrieves the resolved identity or aborts with 401.
func RequireUser(c *gin.Context) *Identity {
	identity := GetIdentity(c)
	if identity == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return nil
	}
	return identity
}
