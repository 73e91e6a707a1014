package respond

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zapcore"

	"disc-report/internal/shared/telemetry"
)

func serve(t *testing.T, h gin.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		c.Set("ownerId", "org-1")
		h(c)
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	return w
}

func TestErrorBodyAndLevel(t *testing.T) {
	var buf bytes.Buffer
	restore := telemetry.SetOutput(zapcore.AddSync(&buf))
	defer restore()

	w := serve(t, func(c *gin.Context) {
		Error(c, http.StatusNotFound, "not_found", "attempt not found", nil)
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	var body ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != "not_found" || body.Error.Message != "attempt not found" {
		t.Fatalf("unexpected body %+v", body)
	}
	line := buf.String()
	if !strings.Contains(line, `"level":"warn"`) || !strings.Contains(line, `"owner_id":"org-1"`) {
		t.Fatalf("unexpected log line %s", line)
	}

	buf.Reset()
	serve(t, func(c *gin.Context) { Error(c, http.StatusBadGateway, "render_failed", "x", nil) })
	if !strings.Contains(buf.String(), `"level":"error"`) {
		t.Fatalf("expected error level for 5xx, got %s", buf.String())
	}
}

func TestAccepted(t *testing.T) {
	w := serve(t, func(c *gin.Context) { Accepted(c, 0, gin.H{"status": "pending"}) })
	if w.Code != http.StatusAccepted || w.Header().Get("Retry-After") != "1" {
		t.Fatalf("unexpected response %d %q", w.Code, w.Header().Get("Retry-After"))
	}
	w = serve(t, func(c *gin.Context) { Accepted(c, 180, nil) })
	if w.Header().Get("Retry-After") != "180" {
		t.Fatalf("unexpected Retry-After %q", w.Header().Get("Retry-After"))
	}
}

func TestAttachment(t *testing.T) {
	w := serve(t, func(c *gin.Context) {
		Attachment(c, "application/pdf", `rapport "jan".pdf`, "fallback.pdf", strings.NewReader("%PDF"))
	})
	if got := w.Header().Get("Content-Disposition"); got != `attachment; filename="rapport _jan_.pdf"` {
		t.Fatalf("unexpected disposition %q", got)
	}
	if w.Body.String() != "%PDF" || w.Header().Get("Content-Type") != "application/pdf" {
		t.Fatalf("unexpected body or type")
	}

	w = serve(t, func(c *gin.Context) {
		Attachment(c, "application/pdf", "../secret", "fallback.pdf", strings.NewReader(""))
	})
	if got := w.Header().Get("Content-Disposition"); got != `attachment; filename="fallback.pdf"` {
		t.Fatalf("unexpected fallback disposition %q", got)
	}
}
