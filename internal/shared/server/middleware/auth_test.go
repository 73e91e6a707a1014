package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newAuthRouter(cfg AuthConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Auth(cfg))
	router.GET("/api/v1/attempts/:id", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"owner": OwnerIDFromContext(c), "email": OwnerEmailFromContext(c)})
	})
	router.GET("/api/v1/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	return router
}

func TestAuthAllowsOptionsWithoutIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Auth(AuthConfig{ServiceToken: "secret", Env: "production"}))
	router.OPTIONS("/api/v1/attempts/a1/finish", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/attempts/a1/finish", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
}

func TestAuthServiceToken(t *testing.T) {
	router := newAuthRouter(AuthConfig{ServiceToken: "secret", Env: "production", PublicPaths: []string{"/api/v1/health"}})

	tests := []struct {
		name   string
		path   string
		token  string
		owner  string
		status int
	}{
		{name: "valid", path: "/api/v1/attempts/a1", token: "Bearer secret", owner: "org-1", status: http.StatusOK},
		{name: "wrong token", path: "/api/v1/attempts/a1", token: "Bearer nope", owner: "org-1", status: http.StatusUnauthorized},
		{name: "missing scheme", path: "/api/v1/attempts/a1", token: "secret", owner: "org-1", status: http.StatusUnauthorized},
		{name: "missing owner", path: "/api/v1/attempts/a1", token: "Bearer secret", status: http.StatusUnauthorized},
		{name: "public path", path: "/api/v1/health", status: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", tt.token)
			}
			if tt.owner != "" {
				req.Header.Set(OwnerIDHeader, tt.owner)
				req.Header.Set(OwnerEmailHeader, "trainer@example.com")
			}
			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, req)
			if resp.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, resp.Code, resp.Body.String())
			}
		})
	}
}

func TestAuthWithoutTokenOnlyInDev(t *testing.T) {
	req := func() *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/attempts/a1", nil)
		r.Header.Set(OwnerIDHeader, "org-1")
		return r
	}

	resp := httptest.NewRecorder()
	newAuthRouter(AuthConfig{Env: "dev"}).ServeHTTP(resp, req())
	if resp.Code != http.StatusOK {
		t.Fatalf("dev: expected 200, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	newAuthRouter(AuthConfig{Env: "production"}).ServeHTTP(resp, req())
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("production: expected 401, got %d", resp.Code)
	}
}
