package middleware

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aesthetiq/ratelimiter/internal/config"
	"github.com/aesthetiq/ratelimiter/internal/ratelimit"
)

func TestCategoryForPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/auth/login", CategoryAuth},
		{"/api/upload/image", CategoryUpload},
		{"/api/ai/chat", CategoryAI},
		{"/api/skin-analysis", CategoryAI},
		{"/api/admin/config", CategoryAdmin},
		{"/api/users", CategoryAPI},
		{"/", CategoryGeneral},
		{"/about", CategoryGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, CategoryForPath(tt.path))
		})
	}
}

func TestSkipAuto(t *testing.T) {
	tests := map[string]bool{
		"/_next/static/app.js": true,
		"/api/health":          true,
		"/health":              true,
		"/favicon.ico":         true,
		"/images/logo.png":     true,
		"/photo.jpg":           true,
		"/icon.svg":            true,
		"/api/users":           false,
		"/healthz":             false,
	}
	for path, want := range tests {
		assert.Equal(t, want, skipAuto(path), path)
	}
}

func TestAuto(t *testing.T) {
	l := newTestLimiter(t, map[string]config.RouteConfig{
		CategoryAuth:    {Window: time.Minute, Max: 1},
		CategoryAPI:     {Window: time.Minute, Max: 1},
		CategoryGeneral: {Window: time.Minute, Max: 1},
	})

	router := gin.New()
	router.Use(l.Auto())
	router.GET("/*path", okHandler)

	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/api/auth/login", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(router, http.MethodGet, "/api/auth/login", nil).Code)

	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/api/users", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(router, http.MethodGet, "/api/users", nil).Code)

	// upload has no configured limit
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/api/upload/a", nil).Code)
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/api/upload/a", nil).Code)

	for i := 0; i < 3; i++ {
		w := serve(router, http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}
}

func TestTieredRateLimit(t *testing.T) {
	l := newTestLimiter(t, testRoutes())

	handler, err := l.TieredRateLimit(map[string]ratelimit.Config{
		"free":    {Window: time.Minute, Max: 1, Strategy: ratelimit.FixedWindowStrategy},
		"premium": {Window: time.Minute, Max: 3, Strategy: ratelimit.FixedWindowStrategy},
	}, func(c *gin.Context) string { return c.GetHeader("X-Tier") })
	require.NoError(t, err)

	router := gin.New()
	router.GET("/api/data", handler, okHandler)

	free := map[string]string{"X-Tier": "free"}
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/api/data", free).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(router, http.MethodGet, "/api/data", free).Code)

	premium := map[string]string{"X-Tier": "premium"}
	for i := 0; i < 3; i++ {
		w := serve(router, http.MethodGet, "/api/data", premium)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))
	}
	assert.Equal(t, http.StatusTooManyRequests, serve(router, http.MethodGet, "/api/data", premium).Code)

	// no default tier configured
	gold := map[string]string{"X-Tier": "gold"}
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/api/data", gold).Code)
	}
}

func TestTieredRateLimit_BuiltinTiers(t *testing.T) {
	l := newTestLimiter(t, testRoutes())

	handler, err := l.TieredRateLimit(nil, nil)
	require.NoError(t, err)

	router := gin.New()
	router.GET("/api/data",
		func(c *gin.Context) {
			if tier := c.GetHeader("X-Tier"); tier != "" {
				c.Set(TierContextKey, tier)
			}
		},
		handler, okHandler)

	w := serve(router, http.MethodGet, "/api/data", map[string]string{"X-Tier": ratelimit.TierEnterprise})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "500", w.Header().Get("X-RateLimit-Limit"))

	general, _ := ratelimit.Preset(ratelimit.PresetAPIGeneral)
	w = serve(router, http.MethodGet, "/api/data", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "60", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, int64(60), general.Max)
}

func TestDynamicRateLimit(t *testing.T) {
	l := newTestLimiter(t, testRoutes())

	selector := ratelimit.NewSelector(
		ratelimit.WithSelectorClock(func() time.Time { return fixedNow }),
		ratelimit.WithBusinessHours(ratelimit.BusinessHours{Location: time.UTC, StartHour: 9, EndHour: 18}),
	)

	router := gin.New()
	router.POST("/api/auth/login", l.DynamicRateLimit(ratelimit.PresetAuthLogin, selector), okHandler)

	for i := 0; i < 5; i++ {
		w := serve(router, http.MethodPost, "/api/auth/login", nil)
		require.Equal(t, http.StatusOK, w.Code, "request %d", i)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
	}

	w := serve(router, http.MethodPost, "/api/auth/login", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "Too many login attempts. Please try again later.")

	// another caller has its own history under the same cached limiter
	w = serve(router, http.MethodPost, "/api/auth/login", map[string]string{"X-Forwarded-For": "198.51.100.7"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, l.dynamic, 1)
}

func TestDynamicRateLimit_HighRiskRegion(t *testing.T) {
	l := newTestLimiter(t, testRoutes())

	selector := ratelimit.NewSelector(
		ratelimit.WithSelectorClock(func() time.Time { return fixedNow }),
		ratelimit.WithBusinessHours(ratelimit.BusinessHours{Location: time.UTC, StartHour: 9, EndHour: 18}),
		ratelimit.WithGeoResolver(ratelimit.StaticGeoResolver(ratelimit.RiskHigh)),
	)

	router := gin.New()
	router.POST("/login", l.DynamicRateLimit(ratelimit.PresetAuthLogin, selector), okHandler)

	w := serve(router, http.MethodPost, "/login", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
}
