package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRequestIDReusesValidHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, RequestIDFromContext(c)) })

	tests := []struct {
		name   string
		header string
		reuse  bool
	}{
		{name: "valid", header: "req-123", reuse: true},
		{name: "empty", header: "", reuse: false},
		{name: "spaces inside", header: "a b", reuse: false},
		{name: "too long", header: strings.Repeat("a", 200), reuse: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			if tt.header != "" {
				req.Header.Set("X-Request-Id", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			got := w.Header().Get("X-Request-Id")
			if got == "" || got != w.Body.String() {
				t.Fatalf("header %q and context %q differ", got, w.Body.String())
			}
			if tt.reuse && got != tt.header {
				t.Fatalf("expected %q reused, got %q", tt.header, got)
			}
			if !tt.reuse && got == tt.header {
				t.Fatalf("expected a generated id, got %q", got)
			}
		})
	}
}
