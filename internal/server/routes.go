package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aesthetiq/ratelimiter/internal/handlers"
	"github.com/aesthetiq/ratelimiter/internal/middleware"
	"github.com/aesthetiq/ratelimiter/internal/ratelimit"
)

const serviceName = "ratelimiter"

func (s *Server) setupRoutes() (*gin.Engine, error) {
	gin.SetMode(s.cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(s.logger, s.collector))
	r.Use(middleware.InFlight(s.load))
	if s.protection != nil {
		r.Use(s.protection.Middleware())
	}

	health := handlers.NewHealthHandler(s.store, s.storeStatus)
	r.GET("/health", health.Health)

	if s.registry != nil {
		r.GET(s.cfg.Metrics.Path, handlers.MetricsHandler(s.registry))
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service": serviceName,
			"version": Version,
			"status":  "running",
			"storage": s.storeStatus.Active,
		})
	})

	rateLimitHandler := handlers.NewRateLimitHandler(s.limiter)
	r.POST("/rate-limit/check", rateLimitHandler.RateLimit)
	r.POST("/rate-limit/reset", rateLimitHandler.ResetRateLimit)
	r.GET("/rate-limit/status", rateLimitHandler.Status)

	admin := handlers.NewAdminHandler(s.limiter, s.recorder, s.cfg.Admin.Token, s.logger)
	adminGroup := r.Group("/rate-limit", admin.RequireToken())
	adminGroup.GET("/config", admin.GetConfig)
	adminGroup.POST("/config", admin.UpdateConfig)
	adminGroup.GET("/analytics", admin.Analytics)

	demo := handlers.NewDemoHandler()
	r.GET("/unrestricted", demo.UnrestrictedResource)

	api := r.Group("/api")
	api.GET("/users", s.limiter.APIRateLimit(), demo.Resource(middleware.CategoryAPI))
	api.POST("/auth/login", s.limiter.AuthRateLimit(), demo.Resource(middleware.CategoryAuth))
	api.POST("/upload/image", s.limiter.UploadRateLimit(), demo.Resource(middleware.CategoryUpload))
	api.POST("/ai/analysis", s.limiter.AIRateLimit(), demo.Resource(middleware.CategoryAI))
	api.GET("/db/query", s.limiter.DatabaseRateLimit(), demo.Resource(middleware.CategoryDatabase))

	tiered, err := s.limiter.TieredRateLimit(nil, nil)
	if err != nil {
		return nil, err
	}
	tieredChain := []gin.HandlerFunc{tiered, demo.Resource("tiered")}
	if s.cfg.Server.Mode != gin.ReleaseMode {
		tieredChain = append([]gin.HandlerFunc{tierFromHeader}, tieredChain...)
	}
	api.GET("/tiered", tieredChain...)
	api.GET("/search", s.limiter.DynamicRateLimit(ratelimit.PresetSearchGeneral, s.selector), demo.Resource("search"))

	return r, nil
}

// tierFromHeader lets the caller pick its own tier. Demo only: it stands in
// for an authentication layer and is not mounted in release mode.
func tierFromHeader(c *gin.Context) {
	if tier := c.GetHeader("X-User-Tier"); tier != "" {
		c.Set(middleware.TierContextKey, tier)
	}
	c.Next()
}
