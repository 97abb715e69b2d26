package middleware

import (
	"net"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/gin-gonic/gin"
)

const clientIDHeader = "X-Client-ID"

var forwardedForHeaders = []string{"X-Vercel-Forwarded-For", "X-Forwarded-For"}

var clientIPHeaders = []string{
	"X-Real-IP",
	"True-Client-IP",
	"CF-Connecting-IP",
	"Fastly-Client-IP",
	"X-Client-IP",
}

// ClientIP resolves the caller address from proxy headers, then the
// connection, then "unknown".
func ClientIP(c *gin.Context) string {
	for _, h := range forwardedForHeaders {
		if v := c.GetHeader(h); v != "" {
			if first := strings.TrimSpace(strings.Split(v, ",")[0]); first != "" {
				return first
			}
		}
	}

	for _, h := range clientIPHeaders {
		if v := strings.TrimSpace(c.GetHeader(h)); v != "" {
			return v
		}
	}

	if c.Request != nil && c.Request.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(c.Request.RemoteAddr); err == nil && host != "" {
			return host
		}
		return c.Request.RemoteAddr
	}
	return "unknown"
}

// Identity is the caller as the status and check APIs see it: the
// X-Client-ID header when present, otherwise the client IP.
func Identity(c *gin.Context) string {
	if id := c.GetHeader(clientIDHeader); id != "" {
		return id
	}
	return ClientIP(c)
}

// DefaultKey identifies the caller per path by a hash of IP and user agent.
func DefaultKey(c *gin.Context) string {
	return "rate_limit:" + c.Request.URL.Path + ":" + HashIdentity(ClientIP(c)+":"+c.Request.UserAgent())
}

// HashIdentity returns a short base36 digest of s.
func HashIdentity(s string) string {
	return strconv.FormatUint(xxhash.Sum64String(s), 36)
}
