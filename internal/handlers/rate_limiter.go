package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aesthetiq/ratelimiter/internal/middleware"
)

const (
	defaultCategory = middleware.CategoryAPI
	requestTimeout  = 5 * time.Second
)

// RateLimitHandler exposes the limiter of each category for explicit
// checks. The caller is identified by X-Client-ID or its IP.
type RateLimitHandler struct {
	limiter *middleware.Limiter
}

func NewRateLimitHandler(limiter *middleware.Limiter) *RateLimitHandler {
	return &RateLimitHandler{
		limiter: limiter,
	}
}

func categoryOf(c *gin.Context) string {
	return c.DefaultQuery("category", defaultCategory)
}

func (rlh *RateLimitHandler) RateLimit(c *gin.Context) {
	category := categoryOf(c)
	clientID := middleware.Identity(c)

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	response, _, err := rlh.limiter.Check(ctx, category, clientID)
	if errors.Is(err, middleware.ErrUnknownCategory) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":    "Unknown category",
			"category": category,
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Rate limiter error",
			"message": err.Error(),
		})
		return
	}

	middleware.SetRateLimitHeaders(c, response)

	status := http.StatusOK
	if !response.Allowed {
		status = http.StatusTooManyRequests
	}
	c.JSON(status, gin.H{
		"allowed":   response.Allowed,
		"category":  category,
		"limit":     response.Limit,
		"remaining": response.Remaining,
		"resetTime": response.ResetTime.UnixMilli(),
		"metadata":  response.Metadata,
	})
}

func (rlh *RateLimitHandler) ResetRateLimit(c *gin.Context) {
	category := categoryOf(c)
	clientID := middleware.Identity(c)

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	err := rlh.limiter.Reset(ctx, category, clientID)
	if errors.Is(err, middleware.ErrUnknownCategory) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":    "Unknown category",
			"category": category,
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Reset error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "Rate limit reset successfully",
		"client_id": clientID,
		"category":  category,
	})
}

// Status reports the last decision the middleware stored for the caller,
// or the category defaults when there is none.
func (rlh *RateLimitHandler) Status(c *gin.Context) {
	category := categoryOf(c)

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	status, err := rlh.limiter.LoadStatus(ctx, middleware.Identity(c), category)
	if errors.Is(err, middleware.ErrUnknownCategory) {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "Unknown category",
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to get rate limit status",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"category": category,
		"status":   status,
	})
}
