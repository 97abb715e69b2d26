package handlers

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aesthetiq/ratelimiter/internal/config"
	"github.com/aesthetiq/ratelimiter/internal/eventlog"
	"github.com/aesthetiq/ratelimiter/internal/logging"
	"github.com/aesthetiq/ratelimiter/internal/middleware"
)

const (
	AdminTokenHeader = "X-Admin-Token"
	defaultTimeRange = "24h"
)

// CategoryConfig is the wire form of a route category.
type CategoryConfig struct {
	WindowMs         int64  `json:"windowMs" binding:"gt=0"`
	Max              int64  `json:"max" binding:"gte=1"`
	Strategy         string `json:"strategy,omitempty"`
	Message          string `json:"message,omitempty"`
	ReleaseOnSuccess bool   `json:"releaseOnSuccess,omitempty"`
}

func (cc CategoryConfig) route() config.RouteConfig {
	return config.RouteConfig{
		Window:           time.Duration(cc.WindowMs) * time.Millisecond,
		Max:              cc.Max,
		Strategy:         cc.Strategy,
		Message:          cc.Message,
		ReleaseOnSuccess: cc.ReleaseOnSuccess,
	}
}

func categoryConfigOf(route config.RouteConfig) CategoryConfig {
	return CategoryConfig{
		WindowMs:         route.Window.Milliseconds(),
		Max:              route.Max,
		Strategy:         route.Strategy,
		Message:          route.Message,
		ReleaseOnSuccess: route.ReleaseOnSuccess,
	}
}

type UpdateConfigRequest struct {
	Configs map[string]CategoryConfig `json:"configs" binding:"required,min=1,dive"`
}

// AdminHandler serves the category table and event analytics behind a
// shared token.
type AdminHandler struct {
	limiter  *middleware.Limiter
	recorder *eventlog.Recorder
	token    string
	logger   *slog.Logger
}

func NewAdminHandler(limiter *middleware.Limiter, recorder *eventlog.Recorder, token string, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		limiter:  limiter,
		recorder: recorder,
		token:    token,
		logger:   logging.Component(logger, "handlers.admin"),
	}
}

// RequireToken refuses every request while no token is configured.
func (h *AdminHandler) RequireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.token == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   "Admin API disabled",
			})
			return
		}

		given := c.GetHeader(AdminTokenHeader)
		if subtle.ConstantTimeCompare([]byte(given), []byte(h.token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Unauthorized",
			})
			return
		}
		c.Next()
	}
}

func (h *AdminHandler) GetConfig(c *gin.Context) {
	routes := h.limiter.Routes()
	configs := make(map[string]CategoryConfig, len(routes))
	for category, route := range routes {
		configs[category] = categoryConfigOf(route)
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"configs":    configs,
		"strategies": h.limiter.Strategies(),
	})
}

func (h *AdminHandler) UpdateConfig(c *gin.Context) {
	var req UpdateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid configuration",
			"message": err.Error(),
		})
		return
	}

	routes := make(map[string]config.RouteConfig, len(req.Configs))
	for category, cc := range req.Configs {
		routes[category] = cc.route()
	}

	if err := h.limiter.UpdateCategories(routes); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid configuration",
			"message": err.Error(),
		})
		return
	}

	h.logger.Info("rate limit configuration updated", "categories", h.limiter.Categories())
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"categories": h.limiter.Categories(),
	})
}

func (h *AdminHandler) Analytics(c *gin.Context) {
	if h.recorder == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error":   "Event log disabled",
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	analytics, err := h.recorder.Analytics(ctx, c.DefaultQuery("timeRange", defaultTimeRange))
	if err != nil {
		h.logger.Error("analytics failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to get analytics",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"analytics": analytics,
	})
}
