package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func newLimitedRouter(limiter *RateLimiter, rules map[string]RateLimitRule) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if owner := c.GetHeader(OwnerIDHeader); owner != "" {
			c.Set(ownerIDKey, owner)
		}
		c.Next()
	})
	r.Use(RateLimit(RateLimitConfig{GroupFor: ReportGroupFor, Limiter: limiter, Rules: rules}))
	ok := func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) }
	r.GET("/api/v1/attempts/:id", ok)
	r.POST("/api/v1/attempts/:id/finish", ok)
	r.POST("/api/v1/attempts", ok)
	return r
}

func hit(r *gin.Engine, method, path, owner string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if owner != "" {
		req.Header.Set(OwnerIDHeader, owner)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitGroupsAndOwners(t *testing.T) {
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	r := newLimitedRouter(NewRateLimiter(func() time.Time { return now }), map[string]RateLimitRule{
		RateGroupGenerate: {Rate: 1, Burst: 2},
		RateGroupPolling:  {Rate: 5, Burst: 10},
	})

	for i := 0; i < 3; i++ {
		if w := hit(r, http.MethodGet, "/api/v1/attempts/a1", "org-1"); w.Code != http.StatusOK {
			t.Fatalf("poll %d: expected 200, got %d", i+1, w.Code)
		}
	}
	for i := 0; i < 2; i++ {
		if w := hit(r, http.MethodPost, "/api/v1/attempts/a1/finish", "org-1"); w.Code != http.StatusOK {
			t.Fatalf("finish %d: expected 200, got %d", i+1, w.Code)
		}
	}
	if w := hit(r, http.MethodPost, "/api/v1/attempts/a1/finish", "org-1"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 for org-1, got %d", w.Code)
	}
	if w := hit(r, http.MethodPost, "/api/v1/attempts/a1/finish", "org-2"); w.Code != http.StatusOK {
		t.Fatalf("expected other owner unaffected, got %d", w.Code)
	}
	// No rule for the default group.
	for i := 0; i < 20; i++ {
		if w := hit(r, http.MethodPost, "/api/v1/attempts", "org-1"); w.Code != http.StatusOK {
			t.Fatalf("register %d: expected 200, got %d", i+1, w.Code)
		}
	}
}

func TestRateLimit429Body(t *testing.T) {
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	r := newLimitedRouter(NewRateLimiter(func() time.Time { return now }), map[string]RateLimitRule{
		RateGroupGenerate: {Rate: 0.5, Burst: 1},
	})

	hit(r, http.MethodPost, "/api/v1/attempts/a1/finish", "org-1")
	w := hit(r, http.MethodPost, "/api/v1/attempts/a1/finish", "org-1")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("expected Retry-After 2, got %q", got)
	}
	var body struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != ErrorCodeRateLimited || body.Error.Details["group"] != RateGroupGenerate {
		t.Fatalf("unexpected body %s", w.Body.String())
	}
	if ms, _ := body.Error.Details["retryAfterMs"].(float64); ms != 2000 {
		t.Fatalf("expected retryAfterMs 2000, got %v", body.Error.Details["retryAfterMs"])
	}
}

func TestRateLimiterRefillsAndSweeps(t *testing.T) {
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	l := NewRateLimiter(func() time.Time { return now })
	rule := RateLimitRule{Rate: 1, Burst: 1}

	if ok, _ := l.Allow("k", rule); !ok {
		t.Fatalf("expected first token")
	}
	ok, wait := l.Allow("k", rule)
	if ok || wait != time.Second {
		t.Fatalf("expected 1s wait, got %v %s", ok, wait)
	}
	now = now.Add(time.Second)
	if ok, _ := l.Allow("k", rule); !ok {
		t.Fatalf("expected refill after 1s")
	}

	for i := 0; i < sweepThreshold; i++ {
		l.Allow(fmt.Sprintf("owner-%d", i), rule)
	}
	now = now.Add(time.Minute)
	l.Allow("fresh", rule)
	if n := l.Len(); n != 1 {
		t.Fatalf("expected idle buckets swept, %d left", n)
	}
}
