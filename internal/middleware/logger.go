package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aesthetiq/ratelimiter/internal/logging"
	"github.com/aesthetiq/ratelimiter/internal/metrics"
	"github.com/aesthetiq/ratelimiter/internal/ratelimit"
)

const (
	RequestIDHeader = "X-Request-ID"
	// RequestIDKey is the gin context key holding the request id.
	RequestIDKey = "request_id"
)

// RequestLogger assigns a request id, writes one access log line per
// request and records its duration. A client supplied X-Request-ID is kept.
func RequestLogger(logger *slog.Logger, collector metrics.Collector) gin.HandlerFunc {
	logger = logging.Component(logger, "http")
	if collector == nil {
		collector = metrics.NewNoopCollector()
	}

	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(RequestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()
		collector.RecordHTTPRequest(c.FullPath(), status, duration)

		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status == 429 || status == 403:
			level = slog.LevelWarn
		}

		logger.LogAttrs(c.Request.Context(), level, "request",
			slog.String("request_id", requestID),
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", status),
			slog.Duration("duration", duration),
			slog.String("ip", ClientIP(c)),
		)
	}
}

// InFlight counts requests being served so the adaptive strategy can see
// the current load.
func InFlight(load *ratelimit.InFlightLoad) gin.HandlerFunc {
	return func(c *gin.Context) {
		load.Begin()
		defer load.End()
		c.Next()
	}
}
