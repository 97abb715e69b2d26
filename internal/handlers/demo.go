package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aesthetiq/ratelimiter/internal/middleware"
)

type DemoHandler struct{}

func NewDemoHandler() *DemoHandler {
	return &DemoHandler{}
}

func (d *DemoHandler) UnrestrictedResource(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":    "Access granted to unrestricted resource",
		"timestamp":  time.Now().UTC(),
		"path":       c.Request.URL.Path,
		"client_ip":  middleware.ClientIP(c),
		"user_agent": c.GetHeader("User-Agent"),
		"data": gin.H{
			"resource_id":  "unrestricted-001",
			"content":      "This resource has no rate limiting applied",
			"access_count": "unlimited",
		},
	})
}

// Resource answers for a resource protected by the limits of category.
func (d *DemoHandler) Resource(category string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message":    "Access granted to restricted resource",
			"timestamp":  time.Now().UTC(),
			"path":       c.Request.URL.Path,
			"client_ip":  middleware.ClientIP(c),
			"user_agent": c.GetHeader("User-Agent"),
			"category":   category,
			"data": gin.H{
				"resource_id":  category + "-001",
				"content":      "This resource is protected by the " + category + " rate limit",
				"access_count": "limited by rate limiter",
			},
		})
	}
}
