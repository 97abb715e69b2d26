package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aesthetiq/ratelimiter/internal/ratelimit"
)

const (
	CategoryGeneral  = "general"
	CategoryAuth     = "auth"
	CategoryAPI      = "api"
	CategoryUpload   = "upload"
	CategoryAI       = "ai"
	CategoryDatabase = "database"
	CategoryAdmin    = "admin"

	// TierContextKey is the gin context key read for the caller's tier.
	TierContextKey = "user_tier"
	// UserIDContextKey is the gin context key read for the caller's id.
	UserIDContextKey = "user_id"
	DefaultTier      = "default"
)

func (l *Limiter) AuthRateLimit() gin.HandlerFunc     { return l.Handler(CategoryAuth) }
func (l *Limiter) APIRateLimit() gin.HandlerFunc      { return l.Handler(CategoryAPI) }
func (l *Limiter) UploadRateLimit() gin.HandlerFunc   { return l.Handler(CategoryUpload) }
func (l *Limiter) AIRateLimit() gin.HandlerFunc       { return l.Handler(CategoryAI) }
func (l *Limiter) DatabaseRateLimit() gin.HandlerFunc { return l.Handler(CategoryDatabase) }

// CategoryForPath maps a request path to its route category.
func CategoryForPath(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/auth"):
		return CategoryAuth
	case strings.HasPrefix(path, "/api/upload"):
		return CategoryUpload
	case strings.HasPrefix(path, "/api/ai"), strings.Contains(path, "analysis"):
		return CategoryAI
	case strings.HasPrefix(path, "/api/admin"):
		return CategoryAdmin
	case strings.HasPrefix(path, "/api/"):
		return CategoryAPI
	default:
		return CategoryGeneral
	}
}

var staticSuffixes = []string{".ico", ".png", ".jpg", ".svg"}

// skipAuto reports static assets and health checks.
func skipAuto(path string) bool {
	if strings.HasPrefix(path, "/_next") || strings.HasPrefix(path, "/api/health") || path == "/health" {
		return true
	}
	for _, suffix := range staticSuffixes {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}
	return false
}

// Auto picks the category from the request path.
func (l *Limiter) Auto() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if skipAuto(path) {
			c.Next()
			return
		}
		l.serve(c, CategoryForPath(path))
	}
}

func tierFromContext(c *gin.Context) string {
	if tier := c.GetString(TierContextKey); tier != "" {
		return tier
	}
	return DefaultTier
}

// TieredRateLimit limits each caller by the config of its tier. A nil
// tiers map uses the built-in tier table with the general API preset as
// the default tier, and a nil tierOf reads TierContextKey. Callers whose
// tier has no config fall back to DefaultTier, or pass through when that
// is missing too.
func (l *Limiter) TieredRateLimit(tiers map[string]ratelimit.Config, tierOf func(*gin.Context) string) (gin.HandlerFunc, error) {
	if tiers == nil {
		tiers = ratelimit.TierLimits()
		tiers[DefaultTier], _ = ratelimit.Preset(ratelimit.PresetAPIGeneral)
	}
	if tierOf == nil {
		tierOf = tierFromContext
	}

	limiters := make(map[string]ratelimit.RateLimiter, len(tiers))
	for tier, cfg := range tiers {
		limiter, err := l.factory.CreateRateLimiter(cfg)
		if err != nil {
			return nil, err
		}
		limiters[tier] = limiter
	}

	return func(c *gin.Context) {
		tier := tierOf(c)
		limiter, ok := limiters[tier]
		if !ok {
			tier = DefaultTier
			if limiter, ok = limiters[tier]; !ok {
				c.Next()
				return
			}
		}

		l.enforce(c, check{
			category: "tier:" + tier,
			key:      tier + ":" + DefaultKey(c),
			limiter:  limiter,
			config:   tiers[tier],
		})
	}, nil
}

// DynamicRateLimit adjusts the endpoint preset per request with selector.
// Limiters are cached per adjusted config so state survives between
// requests that resolve to the same limit.
func (l *Limiter) DynamicRateLimit(endpoint string, selector *ratelimit.Selector) gin.HandlerFunc {
	if selector == nil {
		selector = ratelimit.NewSelector()
	}

	return func(c *gin.Context) {
		ip := ClientIP(c)
		cfg := selector.Select(c.Request.Context(), endpoint, ratelimit.SelectionContext{
			UserID:    c.GetString(UserIDContextKey),
			UserTier:  c.GetString(TierContextKey),
			IP:        ip,
			UserAgent: c.Request.UserAgent(),
		})

		limiter, err := l.dynamicLimiter(cfg)
		if err != nil {
			l.logger.Error("dynamic rate limiter unavailable, allowing request", "endpoint", endpoint, "error", err)
			l.metrics.RecordFailOpen(endpoint)
			c.Next()
			return
		}

		l.enforce(c, check{
			category: endpoint,
			key:      "rate_limit:dynamic:" + endpoint + ":" + HashIdentity(ip+":"+c.Request.UserAgent()),
			limiter:  limiter,
			config:   cfg,
		})
	}
}

func (l *Limiter) dynamicLimiter(cfg ratelimit.Config) (ratelimit.RateLimiter, error) {
	l.dynamicMu.Lock()
	defer l.dynamicMu.Unlock()

	if limiter, ok := l.dynamic[cfg]; ok {
		return limiter, nil
	}
	limiter, err := l.factory.CreateRateLimiter(cfg)
	if err != nil {
		return nil, err
	}
	l.dynamic[cfg] = limiter
	return limiter, nil
}

// Check runs the limiter of category for key outside of a request chain.
func (l *Limiter) Check(ctx context.Context, category, key string) (ratelimit.RateLimitResult, ratelimit.Config, error) {
	limiter, cfg, ok := l.manager.Limiter(category)
	if !ok {
		return ratelimit.RateLimitResult{}, cfg, ErrUnknownCategory
	}
	result, err := limiter.IsAllowed(ctx, key, l.now())
	return result, cfg, err
}

// Reset clears the state of category for key.
func (l *Limiter) Reset(ctx context.Context, category, key string) error {
	limiter, _, ok := l.manager.Limiter(category)
	if !ok {
		return ErrUnknownCategory
	}
	return limiter.Reset(ctx, key)
}
