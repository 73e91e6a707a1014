package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func corsRouter(origins ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(CORS(origins))
	router.POST("/api/v1/attempts/:id/finish", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return router
}

func corsRequest(router *gin.Engine, method, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/api/v1/attempts/123/finish", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestCORSPreflightAllowedOrigin(t *testing.T) {
	resp := corsRequest(corsRouter("http://localhost:5173/"), http.MethodOptions, "http://localhost:5173")

	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("expected Allow-Origin http://localhost:5173, got %q", got)
	}
	if got := resp.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Fatalf("expected credentials allowed, got %q", got)
	}
	if got := resp.Header().Get("Access-Control-Allow-Methods"); got != corsMethods {
		t.Fatalf("unexpected Allow-Methods %q", got)
	}
	if got := resp.Header().Get("Access-Control-Max-Age"); got != "600" {
		t.Fatalf("expected Max-Age 600, got %q", got)
	}
}

func TestCORSPreflightUnknownOrigin(t *testing.T) {
	resp := corsRequest(corsRouter("http://localhost:5173"), http.MethodOptions, "https://evil.example")

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no Allow-Origin, got %q", got)
	}
}

func TestCORSPostExposesRetryAfter(t *testing.T) {
	resp := corsRequest(corsRouter("http://localhost:5173"), http.MethodPost, "http://localhost:5173")

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if got := resp.Header().Get("Access-Control-Expose-Headers"); got != corsExposeHeaders {
		t.Fatalf("unexpected Expose-Headers %q", got)
	}
	if got := resp.Header().Get("Access-Control-Allow-Methods"); got != "" {
		t.Fatalf("expected no Allow-Methods outside preflight, got %q", got)
	}
}

func TestCORSWildcard(t *testing.T) {
	resp := corsRequest(corsRouter("*"), http.MethodPost, "https://any.example")

	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected wildcard origin, got %q", got)
	}
	if got := resp.Header().Get("Access-Control-Allow-Credentials"); got != "" {
		t.Fatalf("expected no credentials with wildcard, got %q", got)
	}
}

func TestCORSUnknownOriginStillServed(t *testing.T) {
	resp := corsRequest(corsRouter("http://localhost:5173"), http.MethodPost, "https://other.example")

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no Allow-Origin, got %q", got)
	}
}
