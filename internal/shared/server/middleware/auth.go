package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"disc-report/internal/shared/server/respond"
)

const (
	ownerIDKey    = "ownerId"
	ownerEmailKey = "ownerEmail"

	// OwnerIDHeader carries the caller's owner identity from the frontend.
	OwnerIDHeader = "X-Owner-Id"
	// OwnerEmailHeader optionally carries the owner's email address.
	OwnerEmailHeader = "X-Owner-Email"
)

// AuthConfig configures Auth.
type AuthConfig struct {
	ServiceToken string
	Env          string
	PublicPaths  []string
}

// Auth checks the service bearer token and stores the forwarded owner
// identity in context. Without a configured token only dev accepts requests.
func Auth(cfg AuthConfig) gin.HandlerFunc {
	public := make(map[string]struct{}, len(cfg.PublicPaths))
	for _, p := range cfg.PublicPaths {
		public[p] = struct{}{}
	}
	token := strings.TrimSpace(cfg.ServiceToken)

	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}
		if _, ok := public[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		switch {
		case token != "":
			authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
			if !strings.HasPrefix(authHeader, "Bearer ") {
				respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
				return
			}
			got := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
				return
			}
		case cfg.Env != "dev":
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "service token not configured", nil)
			return
		}

		ownerID := strings.TrimSpace(c.GetHeader(OwnerIDHeader))
		if ownerID == "" {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "Missing identity", nil)
			return
		}
		c.Set(ownerIDKey, ownerID)
		if email := strings.TrimSpace(c.GetHeader(OwnerEmailHeader)); email != "" {
			c.Set(ownerEmailKey, email)
		}
		c.Next()
	}
}

// OwnerIDFromContext fetches the owner ID set by the auth middleware.
func OwnerIDFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(ownerIDKey)
	if id, ok := val.(string); ok {
		return id
	}
	return ""
}

// OwnerEmailFromContext fetches the owner email set by the auth middleware.
func OwnerEmailFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(ownerEmailKey)
	if email, ok := val.(string); ok {
		return email
	}
	return ""
}
