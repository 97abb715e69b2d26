package ratelimit

import "time"

const (
	PresetAPIGeneral          = "api_general"
	PresetAPIHeavy            = "api_heavy"
	PresetAuthLogin           = "auth_login"
	PresetAuthRegister        = "auth_register"
	PresetAuthPasswordReset   = "auth_password_reset"
	PresetUploadImage         = "upload_image"
	PresetUploadVideo         = "upload_video"
	PresetAIAnalysis          = "ai_analysis"
	PresetAIChat              = "ai_chat"
	PresetAIGeneration        = "ai_generation"
	PresetDBQuery             = "db_query"
	PresetDBWrite             = "db_write"
	PresetEmailSend           = "email_send"
	PresetSearchGeneral       = "search_general"
	PresetSearchAdvanced      = "search_advanced"
	PresetWebsocketConnect    = "websocket_connect"
	PresetAdminExport         = "admin_export"
	PresetAdminBulkOperations = "admin_bulk_operations"
)

var presets = map[string]Config{
	PresetAPIGeneral: {
		Window: time.Minute, Max: 60, Strategy: TokenBucketStrategy,
		Message: "API rate limit exceeded. Please try again later.",
	},
	PresetAPIHeavy: {
		Window: time.Minute, Max: 30, Strategy: LeakyBucketStrategy,
		Message: "Heavy API rate limit exceeded. Please try again later.",
	},
	PresetAuthLogin: {
		Window: 15 * time.Minute, Max: 5, Strategy: SlidingWindowStrategy,
		Message: "Too many login attempts. Please try again later.",
	},
	PresetAuthRegister: {
		Window: time.Hour, Max: 3, Strategy: FixedWindowStrategy,
		Message: "Too many registration attempts. Please try again later.",
	},
	PresetAuthPasswordReset: {
		Window: time.Hour, Max: 3, Strategy: FixedWindowStrategy,
		Message: "Too many password reset attempts. Please try again later.",
	},
	PresetUploadImage: {
		Window: time.Hour, Max: 20, Strategy: TokenBucketStrategy,
		Message: "Image upload limit exceeded. Please try again later.",
	},
	PresetUploadVideo: {
		Window: time.Hour, Max: 5, Strategy: FixedWindowStrategy,
		Message: "Video upload limit exceeded. Please try again later.",
	},
	PresetAIAnalysis: {
		Window: time.Minute, Max: 10, Strategy: TokenBucketStrategy,
		Message: "AI analysis rate limit exceeded. Please try again later.",
	},
	PresetAIChat: {
		Window: time.Minute, Max: 20, Strategy: LeakyBucketStrategy,
		Message: "AI chat rate limit exceeded. Please try again later.",
	},
	PresetAIGeneration: {
		Window: 5 * time.Minute, Max: 5, Strategy: FixedWindowStrategy,
		Message: "AI generation rate limit exceeded. Please try again later.",
	},
	PresetDBQuery: {
		Window: time.Minute, Max: 100, Strategy: LeakyBucketStrategy,
		Message: "Database query limit exceeded. Please try again later.",
	},
	PresetDBWrite: {
		Window: time.Minute, Max: 50, Strategy: TokenBucketStrategy,
		Message: "Database write limit exceeded. Please try again later.",
	},
	PresetEmailSend: {
		Window: time.Hour, Max: 10, Strategy: FixedWindowStrategy,
		Message: "Email sending limit exceeded. Please try again later.",
	},
	PresetSearchGeneral: {
		Window: time.Minute, Max: 30, Strategy: SlidingWindowStrategy,
		Message: "Search rate limit exceeded. Please try again later.",
	},
	PresetSearchAdvanced: {
		Window: time.Minute, Max: 10, Strategy: TokenBucketStrategy,
		Message: "Advanced search rate limit exceeded. Please try again later.",
	},
	PresetWebsocketConnect: {
		Window: time.Minute, Max: 10, Strategy: SlidingWindowStrategy,
		Message: "WebSocket connection limit exceeded. Please try again later.",
	},
	PresetAdminExport: {
		Window: time.Hour, Max: 5, Strategy: FixedWindowStrategy,
		Message: "Export limit exceeded. Please try again later.",
	},
	PresetAdminBulkOperations: {
		Window: 30 * time.Minute, Max: 3, Strategy: FixedWindowStrategy,
		Message: "Bulk operation limit exceeded. Please try again later.",
	},
}

const (
	TierFree       = "free"
	TierBasic      = "basic"
	TierPremium    = "premium"
	TierEnterprise = "enterprise"
)

var tierLimits = map[string]Config{
	TierFree: {
		Window: time.Minute, Max: 20, Strategy: TokenBucketStrategy,
		Message: "Free tier rate limit exceeded. Upgrade your plan for higher limits.",
	},
	TierBasic: {
		Window: time.Minute, Max: 50, Strategy: TokenBucketStrategy,
		Message: "Basic tier rate limit exceeded. Please try again later.",
	},
	TierPremium: {
		Window: time.Minute, Max: 100, Strategy: LeakyBucketStrategy,
		Message: "Premium tier rate limit exceeded. Please try again later.",
	},
	TierEnterprise: {
		Window: time.Minute, Max: 500, Strategy: LeakyBucketStrategy,
		Message: "Enterprise tier rate limit exceeded. Please try again later.",
	},
}

type RiskLevel string

const (
	RiskHigh   RiskLevel = "high"
	RiskMedium RiskLevel = "medium"
	RiskLow    RiskLevel = "low"
)

var geographicLimits = map[RiskLevel]Config{
	RiskHigh: {
		Window: time.Minute, Max: 10, Strategy: SlidingWindowStrategy,
		Message: "Rate limit exceeded for your region.",
	},
	RiskMedium: {
		Window: time.Minute, Max: 30, Strategy: SlidingWindowStrategy,
		Message: "Rate limit exceeded. Please try again later.",
	},
	RiskLow: {
		Window: time.Minute, Max: 60, Strategy: TokenBucketStrategy,
		Message: "Rate limit exceeded. Please try again later.",
	},
}

const (
	PeriodBusinessHours = "business_hours"
	PeriodOffHours      = "off_hours"
)

var timeBasedLimits = map[string]Config{
	PeriodBusinessHours: {
		Window: time.Minute, Max: 100, Strategy: TokenBucketStrategy,
		Message: "Rate limit exceeded during business hours.",
	},
	PeriodOffHours: {
		Window: time.Minute, Max: 50, Strategy: SlidingWindowStrategy,
		Message: "Rate limit exceeded during off hours.",
	},
}

// Preset returns the named endpoint preset.
func Preset(name string) (Config, bool) {
	cfg, ok := presets[name]
	return cfg, ok
}

func PresetNames() []string {
	return sortedKeys(presets)
}

func TierLimit(tier string) (Config, bool) {
	cfg, ok := tierLimits[tier]
	return cfg, ok
}

// TierLimits returns a copy of the tier table.
func TierLimits() map[string]Config {
	out := make(map[string]Config, len(tierLimits))
	for k, v := range tierLimits {
		out[k] = v
	}
	return out
}

func GeographicLimit(risk RiskLevel) (Config, bool) {
	cfg, ok := geographicLimits[risk]
	return cfg, ok
}

func TimeBasedLimit(period string) (Config, bool) {
	cfg, ok := timeBasedLimits[period]
	return cfg, ok
}
