package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func reputation(v float64) *float64 {
	return &v
}

func TestDynamicCalculator_Calculate(t *testing.T) {
	base, _ := Preset(PresetAPIGeneral)

	tests := []struct {
		name       string
		base       Config
		factors    Factors
		wantMax    int64
		wantWindow time.Duration
	}{
		{name: "no adjustments", base: base, factors: Factors{}, wantMax: 60, wantWindow: time.Minute},
		{name: "low risk", base: base, factors: Factors{GeographicRisk: RiskLow}, wantMax: 60, wantWindow: time.Minute},
		{name: "medium risk", base: base, factors: Factors{GeographicRisk: RiskMedium}, wantMax: 45, wantWindow: time.Minute},
		{name: "high risk", base: base, factors: Factors{GeographicRisk: RiskHigh}, wantMax: 30, wantWindow: time.Minute},
		{name: "off hours", base: base, factors: Factors{OffHours: true}, wantMax: 42, wantWindow: time.Minute},
		{name: "high load", base: base, factors: Factors{SystemLoad: 0.9}, wantMax: 30, wantWindow: time.Minute},
		{name: "load at threshold", base: base, factors: Factors{SystemLoad: 0.8}, wantMax: 60, wantWindow: time.Minute},
		{name: "poor reputation", base: base, factors: Factors{Reputation: reputation(0.2)}, wantMax: 18, wantWindow: time.Minute},
		{name: "neutral reputation", base: base, factors: Factors{Reputation: reputation(0.5)}, wantMax: 60, wantWindow: time.Minute},
		{name: "good reputation", base: base, factors: Factors{Reputation: reputation(0.9)}, wantMax: 90, wantWindow: time.Minute},
		{name: "premium tier", base: base, factors: Factors{UserTier: TierPremium}, wantMax: 100, wantWindow: time.Minute},
		{name: "unknown tier keeps base", base: base, factors: Factors{UserTier: "platinum"}, wantMax: 60, wantWindow: time.Minute},
		{
			name:       "tier with risk and load",
			base:       Config{Window: time.Hour, Max: 1000},
			factors:    Factors{UserTier: TierFree, GeographicRisk: RiskMedium, SystemLoad: 0.95},
			wantMax:    7,
			wantWindow: time.Minute,
		},
		{
			name:       "never below one",
			base:       Config{Window: time.Minute, Max: 1},
			factors:    Factors{GeographicRisk: RiskHigh, Reputation: reputation(0.1)},
			wantMax:    1,
			wantWindow: time.Minute,
		},
	}

	var calc DynamicCalculator
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calc.Calculate(tt.base, tt.factors)
			assert.Equal(t, tt.wantMax, got.Max)
			assert.Equal(t, tt.wantWindow, got.Window)
		})
	}
}

func TestDynamicCalculator_KeepsStrategyAndMessage(t *testing.T) {
	base, _ := Preset(PresetAuthLogin)
	got := DynamicCalculator{}.Calculate(base, Factors{GeographicRisk: RiskHigh})

	assert.Equal(t, base.Strategy, got.Strategy)
	assert.Equal(t, base.Message, got.Message)
	assert.Equal(t, int64(2), got.Max)
}

func TestBusinessHours_Contains(t *testing.T) {
	utc := BusinessHours{Location: time.UTC, StartHour: 9, EndHour: 18}
	est := BusinessHours{Location: time.FixedZone("EST", -5*60*60), StartHour: 9, EndHour: 18}

	tests := []struct {
		name  string
		hours BusinessHours
		at    time.Time
		want  bool
	}{
		{"monday opening", utc, time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC), true},
		{"monday last hour", utc, time.Date(2024, 3, 4, 18, 59, 0, 0, time.UTC), true},
		{"monday evening", utc, time.Date(2024, 3, 4, 19, 0, 0, 0, time.UTC), false},
		{"monday early", utc, time.Date(2024, 3, 4, 8, 59, 0, 0, time.UTC), false},
		{"friday afternoon", utc, time.Date(2024, 3, 8, 15, 0, 0, 0, time.UTC), true},
		{"saturday", utc, time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC), false},
		{"sunday", utc, time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC), false},
		{"converted to zone", est, time.Date(2024, 3, 4, 14, 0, 0, 0, time.UTC), true},
		{"before opening in zone", est, time.Date(2024, 3, 4, 13, 0, 0, 0, time.UTC), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.hours.Contains(tt.at))
		})
	}
}

func TestSelector_Select(t *testing.T) {
	ctx := context.Background()
	monday := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	saturday := time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)
	utcHours := BusinessHours{Location: time.UTC, StartHour: 9, EndHour: 18}

	tests := []struct {
		name     string
		opts     []SelectorOption
		endpoint string
		sc       SelectionContext
		wantMax  int64
	}{
		{
			name:     "business hours defaults",
			opts:     []SelectorOption{WithSelectorClock(func() time.Time { return monday })},
			endpoint: PresetAIChat,
			wantMax:  20,
		},
		{
			name:     "unknown endpoint falls back to general api",
			opts:     []SelectorOption{WithSelectorClock(func() time.Time { return monday })},
			endpoint: "does_not_exist",
			wantMax:  60,
		},
		{
			name:     "weekend is off hours",
			opts:     []SelectorOption{WithSelectorClock(func() time.Time { return saturday })},
			endpoint: PresetAPIGeneral,
			wantMax:  42,
		},
		{
			name: "high risk ip",
			opts: []SelectorOption{
				WithSelectorClock(func() time.Time { return monday }),
				WithGeoResolver(StaticGeoResolver(RiskHigh)),
			},
			endpoint: PresetAPIGeneral,
			sc:       SelectionContext{IP: "203.0.113.9"},
			wantMax:  30,
		},
		{
			name: "risk ignored without ip",
			opts: []SelectorOption{
				WithSelectorClock(func() time.Time { return monday }),
				WithGeoResolver(StaticGeoResolver(RiskHigh)),
			},
			endpoint: PresetAPIGeneral,
			wantMax:  60,
		},
		{
			name: "reputation applies to known users",
			opts: []SelectorOption{
				WithSelectorClock(func() time.Time { return monday }),
				WithReputationSource(StaticReputation(0.9)),
			},
			endpoint: PresetAPIGeneral,
			sc:       SelectionContext{UserID: "u-1"},
			wantMax:  90,
		},
		{
			name: "reputation skipped for anonymous callers",
			opts: []SelectorOption{
				WithSelectorClock(func() time.Time { return monday }),
				WithReputationSource(StaticReputation(0.1)),
			},
			endpoint: PresetAPIGeneral,
			wantMax:  60,
		},
		{
			name: "load halves the limit",
			opts: []SelectorOption{
				WithSelectorClock(func() time.Time { return monday }),
				WithSelectorLoad(StaticLoad(0.9)),
			},
			endpoint: PresetAPIGeneral,
			wantMax:  30,
		},
		{
			name:     "tier overrides endpoint",
			opts:     []SelectorOption{WithSelectorClock(func() time.Time { return monday })},
			endpoint: PresetAPIGeneral,
			sc:       SelectionContext{UserTier: TierEnterprise},
			wantMax:  500,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := append([]SelectorOption{WithBusinessHours(utcHours)}, tt.opts...)
			got := NewSelector(opts...).Select(ctx, tt.endpoint, tt.sc)
			assert.Equal(t, tt.wantMax, got.Max)
		})
	}
}
