package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aesthetiq/ratelimiter/internal/storage"
)

const healthTimeout = 2 * time.Second

type HealthHandler struct {
	store  storage.Storage
	status storage.Status
}

func NewHealthHandler(store storage.Storage, status storage.Status) *HealthHandler {
	return &HealthHandler{store: store, status: status}
}

// Health is ok when storage answers, degraded when it answers but the
// requested backend fell back, and unhealthy otherwise.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "unhealthy",
			"storage":   h.status,
			"error":     err.Error(),
			"timestamp": time.Now().UTC(),
		})
		return
	}

	state := "ok"
	if h.status.Degraded {
		state = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    state,
		"storage":   h.status,
		"timestamp": time.Now().UTC(),
	})
}
