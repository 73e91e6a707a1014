package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"disc-report/internal/shared/server/respond"
	"disc-report/internal/shared/telemetry"
)

// Recovery turns a handler panic into a 500 with the standard error body.
// The attempt stays whatever the lock left it in; a stale claim is
// reclaimed after its TTL.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			fields := map[string]any{
				"request_id": RequestIDFromContext(c),
				"error":      rec,
				"stack":      string(debug.Stack()),
				"path":       c.Request.URL.Path,
				"method":     c.Request.Method,
			}
			if owner := OwnerIDFromContext(c); owner != "" {
				fields["owner_id"] = owner
			}
			if attemptID := c.Param("id"); attemptID != "" {
				fields["attempt_id"] = attemptID
			}
			telemetry.Error("http.panic", fields)
			respond.Error(c, http.StatusInternalServerError, "internal", "Unexpected server error", nil)
		}()
		c.Next()
	}
}
