package respond

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"disc-report/internal/shared/util"
)

// JSON writes a JSON response with the given status.
func JSON(c *gin.Context, status int, payload any) {
	c.JSON(status, payload)
}

// OK writes a 200 OK JSON response.
func OK(c *gin.Context, payload any) {
	JSON(c, http.StatusOK, payload)
}

// Accepted writes 202 with a Retry-After hint in whole seconds.
func Accepted(c *gin.Context, retryAfterSeconds int, payload any) {
	if retryAfterSeconds < 1 {
		retryAfterSeconds = 1
	}
	c.Header("Retry-After", strconv.Itoa(retryAfterSeconds))
	JSON(c, http.StatusAccepted, payload)
}

// Attachment streams body as a download. Unsafe names fall back to fallback.
func Attachment(c *gin.Context, contentType, filename, fallback string, body io.Reader) {
	name, err := util.SafeFileName(filename)
	if err != nil {
		name = fallback
	}
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, body)
}
