package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"narrate-backend/internal/conversions"
	"narrate-backend/internal/services/health"
	"narrate-backend/internal/shared/config"
	"narrate-backend/internal/shared/metrics"
	"narrate-backend/internal/shared/server/middleware"
	"narrate-backend/internal/shared/server/respond"
	"narrate-backend/internal/subscriptions"
	"narrate-backend/internal/tokens"
)

// RouterDeps are the handlers mounted under /api/v1. Nil handlers are skipped.
type RouterDeps struct {
	Config              config.Config
	Health              *health.Service
	ConversionHandler   *conversions.Handler
	TokenHandler        *tokens.Handler
	SubscriptionHandler *subscriptions.Handler
	RateLimiter         *middleware.RateLimiter
	Verifier            middleware.TokenVerifier
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
		middleware.Auth(deps.Verifier),
		middleware.RateLimit(middleware.RateLimitConfig{
			Rules:    middleware.DefaultRules(),
			GroupFor: middleware.ConversionGroup,
			Limiter:  deps.RateLimiter,
		}),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		report := deps.Health.Status(c.Request.Context())
		status := http.StatusOK
		if !report.OK {
			status = http.StatusServiceUnavailable
		}
		respond.JSON(c, status, report)
	})
	registerMeRoutes(api)

	if deps.SubscriptionHandler != nil {
		deps.SubscriptionHandler.RegisterRoutes(api)
	}
	if deps.TokenHandler != nil {
		deps.TokenHandler.RegisterRoutes(api)
	}
	if deps.ConversionHandler != nil {
		deps.ConversionHandler.RegisterRoutes(api)
	}
	if deps.Config.Env == "dev" {
		dev := api.Group("/dev")
		if deps.TokenHandler != nil {
			deps.TokenHandler.RegisterDevRoutes(dev)
		}
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
