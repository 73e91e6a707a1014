package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"disc-report/internal/shared/metrics"
	"disc-report/internal/shared/server/respond"
)

// Rate limit groups used by the report API.
const (
	defaultRateLimitGroup = "DEFAULT"
	RateGroupGenerate     = "GENERATE"
	RateGroupPolling      = "POLLING"

	// ErrorCodeRateLimited is returned with 429.
	ErrorCodeRateLimited = "rate_limited"

	// Past this many buckets, Allow drops buckets that have refilled.
	sweepThreshold = 4096
)

// RateLimitRule is a token bucket: Rate tokens per second up to Burst.
type RateLimitRule struct {
	Rate  float64
	Burst int
}

// full reports how long an idle bucket takes to refill from empty.
func (r RateLimitRule) full() time.Duration {
	return time.Duration(float64(r.Burst) / r.Rate * float64(time.Second))
}

// RateLimitConfig selects a rule per request group.
type RateLimitConfig struct {
	Rules        map[string]RateLimitRule
	DefaultGroup string
	GroupFor     func(*gin.Context) string
	Limiter      *RateLimiter
}

// RateLimiter holds one bucket per owner and group.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rateBucket
	now     func() time.Time
}

type rateBucket struct {
	tokens float64
	last   time.Time
	refill time.Duration
}

// NewRateLimiter constructs a RateLimiter; now defaults to time.Now.
func NewRateLimiter(now func() time.Time) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{buckets: make(map[string]*rateBucket), now: now}
}

// Len returns the number of live buckets.
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// RateLimit rejects requests over the group's rule with 429 and Retry-After.
// The principal is the owner, or the client IP before authentication.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.Limiter == nil {
		cfg.Limiter = NewRateLimiter(nil)
	}
	if cfg.DefaultGroup == "" {
		cfg.DefaultGroup = defaultRateLimitGroup
	}
	return func(c *gin.Context) {
		group := cfg.DefaultGroup
		if cfg.GroupFor != nil {
			if g := strings.TrimSpace(cfg.GroupFor(c)); g != "" {
				group = g
			}
		}
		rule, ok := cfg.Rules[group]
		if !ok {
			c.Next()
			return
		}
		principal := strings.TrimSpace(OwnerIDFromContext(c))
		if principal == "" {
			principal = "ip:" + c.ClientIP()
		}
		allowed, wait := cfg.Limiter.Allow(principal+"|"+group, rule)
		if allowed {
			c.Next()
			return
		}
		metrics.IncRateLimited()
		ms := max(wait.Milliseconds(), 1)
		c.Header("Retry-After", strconv.FormatInt(int64(math.Ceil(float64(ms)/1000)), 10))
		respond.Error(c, http.StatusTooManyRequests, ErrorCodeRateLimited, "too many requests", gin.H{
			"group":        group,
			"retryAfterMs": ms,
		})
	}
}

// Allow takes a token for key, or reports how long until one is available.
func (l *RateLimiter) Allow(key string, rule RateLimitRule) (bool, time.Duration) {
	if l == nil || rule.Rate <= 0 || rule.Burst <= 0 {
		return true, 0
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	bucket, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) >= sweepThreshold {
			l.sweep(now)
		}
		bucket = &rateBucket{tokens: float64(rule.Burst), last: now, refill: rule.full()}
		l.buckets[key] = bucket
	}
	if elapsed := now.Sub(bucket.last).Seconds(); elapsed > 0 {
		bucket.tokens = math.Min(float64(rule.Burst), bucket.tokens+elapsed*rule.Rate)
		bucket.last = now
	}
	if bucket.tokens >= 1 {
		bucket.tokens--
		return true, 0
	}
	wait := (1 - bucket.tokens) / rule.Rate
	return false, time.Duration(math.Ceil(wait*1000)) * time.Millisecond
}

// sweep drops buckets idle long enough to be full again; recreating them
// gives the same answer.
func (l *RateLimiter) sweep(now time.Time) {
	for k, b := range l.buckets {
		if now.Sub(b.last) >= b.refill {
			delete(l.buckets, k)
		}
	}
}

// ReportGroupFor puts finish and resend in the generate group and attempt
// reads in the polling group.
func ReportGroupFor(c *gin.Context) string {
	switch c.FullPath() {
	case "/api/v1/attempts/:id/finish", "/api/v1/attempts/:id/resend":
		if c.Request.Method == http.MethodPost {
			return RateGroupGenerate
		}
	case "/api/v1/attempts/:id", "/api/v1/attempts/:id/document":
		if c.Request.Method == http.MethodGet {
			return RateGroupPolling
		}
	}
	return defaultRateLimitGroup
}
