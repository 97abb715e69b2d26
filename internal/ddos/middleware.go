package ddos

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aesthetiq/ratelimiter/internal/middleware"
)

const (
	errorType           = "DDOS_PROTECTION"
	blockedMessage      = "Access temporarily blocked due to suspicious activity"
	newlyBlockedMessage = "Access blocked due to suspicious activity"
)

// Middleware refuses requests from blocked IPs with 403 and from newly
// blocked IPs with 429.
func (p *Protection) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		verdict := p.Check(middleware.ClientIP(c), c.Request.UserAgent(), p.now())
		if !verdict.Blocked {
			c.Next()
			return
		}

		status, message := http.StatusForbidden, blockedMessage
		if verdict.NewlyBlocked {
			status, message = http.StatusTooManyRequests, newlyBlockedMessage
		}

		c.AbortWithStatusJSON(status, gin.H{
			"success": false,
			"error": gin.H{
				"type":    errorType,
				"message": message,
			},
		})
	}
}
