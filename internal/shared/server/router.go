package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"disc-report/internal/generation"
	"disc-report/internal/services/health"
	"disc-report/internal/shared/config"
	"disc-report/internal/shared/metrics"
	"disc-report/internal/shared/server/middleware"
	"disc-report/internal/shared/server/respond"
)

const (
	healthPath  = "/api/v1/health"
	metricsPath = "/metrics"
)

// RouterDeps holds dependencies for building the HTTP router.
type RouterDeps struct {
	Config            config.Config
	Health            *health.Service
	GenerationHandler *generation.Handler
	RateLimiter       *middleware.RateLimiter
}

// DefaultRateLimits bounds generation per owner; polling is generous since
// clients follow Retry-After.
var DefaultRateLimits = map[string]middleware.RateLimitRule{
	middleware.RateGroupGenerate: {Rate: 1, Burst: 10},
	middleware.RateGroupPolling:  {Rate: 5, Burst: 30},
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	cfg := deps.Config
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(cfg.CORSAllowOrigin),
		middleware.Auth(middleware.AuthConfig{
			ServiceToken: cfg.ServiceToken,
			Env:          cfg.Env,
			PublicPaths:  []string{healthPath, metricsPath},
		}),
		middleware.RateLimit(middleware.RateLimitConfig{
			Rules:    DefaultRateLimits,
			GroupFor: middleware.ReportGroupFor,
			Limiter:  deps.RateLimiter,
		}),
	)

	r.GET(metricsPath, metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		if deps.Health == nil {
			respond.OK(c, gin.H{"ok": true})
			return
		}
		status := deps.Health.Status(c.Request.Context())
		code := http.StatusOK
		if ok, _ := status["ok"].(bool); !ok {
			code = http.StatusServiceUnavailable
		}
		respond.JSON(c, code, status)
	})
	if deps.GenerationHandler != nil {
		deps.GenerationHandler.RegisterRoutes(api)
	}

	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
