package ratelimit

import (
	"context"
	"math"
	"time"
)

// Factors are the per-request inputs to the dynamic calculation. A nil
// Reputation skips the reputation adjustment.
type Factors struct {
	UserTier       string
	GeographicRisk RiskLevel
	OffHours       bool
	SystemLoad     float64
	Reputation     *float64
}

var riskMultipliers = map[RiskLevel]float64{
	RiskHigh:   0.5,
	RiskMedium: 0.75,
	RiskLow:    1,
}

type DynamicCalculator struct{}

// Calculate derives the effective config from base. A known tier replaces
// max and window before the multipliers are applied, and the result never
// drops below one request.
func (DynamicCalculator) Calculate(base Config, f Factors) Config {
	cfg := base
	multiplier := 1.0

	if tier, ok := tierLimits[f.UserTier]; ok {
		cfg.Max = tier.Max
		cfg.Window = tier.Window
	}

	if m, ok := riskMultipliers[f.GeographicRisk]; ok {
		multiplier *= m
	}

	if f.OffHours {
		multiplier *= 0.7
	}

	if f.SystemLoad > DefaultLoadThreshold {
		multiplier *= 0.5
	}

	if f.Reputation != nil {
		switch r := *f.Reputation; {
		case r < 0.3:
			multiplier *= 0.3
		case r > 0.8:
			multiplier *= 1.5
		}
	}

	cfg.Max = maxInt64(1, int64(math.Floor(float64(cfg.Max)*multiplier)))
	return cfg
}

// BusinessHours is Monday to Friday between StartHour and EndHour
// inclusive, in Location.
type BusinessHours struct {
	Location  *time.Location
	StartHour int
	EndHour   int
}

func DefaultBusinessHours() BusinessHours {
	return BusinessHours{Location: time.Local, StartHour: 9, EndHour: 18}
}

func (b BusinessHours) Contains(t time.Time) bool {
	if b.Location != nil {
		t = t.In(b.Location)
	}
	if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	h := t.Hour()
	return h >= b.StartHour && h <= b.EndHour
}

func IsBusinessHours(t time.Time) bool {
	return DefaultBusinessHours().Contains(t)
}

type GeoResolver interface {
	Risk(ctx context.Context, ip string) RiskLevel
}

// StaticGeoResolver reports the same risk for every address.
type StaticGeoResolver RiskLevel

func (s StaticGeoResolver) Risk(context.Context, string) RiskLevel {
	return RiskLevel(s)
}

type ReputationSource interface {
	Reputation(ctx context.Context, userID string) (float64, error)
}

// StaticReputation reports the same score for every user.
type StaticReputation float64

func (s StaticReputation) Reputation(context.Context, string) (float64, error) {
	return float64(s), nil
}

type SelectionContext struct {
	UserID    string
	UserTier  string
	IP        string
	UserAgent string
}

// Selector picks an endpoint preset and adjusts it for the caller.
type Selector struct {
	calculator DynamicCalculator
	geo        GeoResolver
	reputation ReputationSource
	load       LoadProvider
	hours      BusinessHours
	now        func() time.Time
}

type SelectorOption func(*Selector)

func WithGeoResolver(g GeoResolver) SelectorOption {
	return func(s *Selector) { s.geo = g }
}

func WithReputationSource(r ReputationSource) SelectorOption {
	return func(s *Selector) { s.reputation = r }
}

func WithSelectorLoad(l LoadProvider) SelectorOption {
	return func(s *Selector) { s.load = l }
}

func WithBusinessHours(b BusinessHours) SelectorOption {
	return func(s *Selector) { s.hours = b }
}

func WithSelectorClock(now func() time.Time) SelectorOption {
	return func(s *Selector) { s.now = now }
}

func NewSelector(opts ...SelectorOption) *Selector {
	s := &Selector{
		geo:        StaticGeoResolver(RiskLow),
		reputation: StaticReputation(0.7),
		load:       StaticLoad(0),
		hours:      DefaultBusinessHours(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select returns the adjusted config for endpoint, falling back to the
// general API preset for unknown endpoints.
func (s *Selector) Select(ctx context.Context, endpoint string, sc SelectionContext) Config {
	base, ok := presets[endpoint]
	if !ok {
		base = presets[PresetAPIGeneral]
	}

	f := Factors{
		UserTier:       sc.UserTier,
		GeographicRisk: RiskLow,
		OffHours:       !s.hours.Contains(s.now()),
	}

	if sc.IP != "" {
		f.GeographicRisk = s.geo.Risk(ctx, sc.IP)
	}

	if load, err := s.load.SystemLoad(ctx); err == nil {
		f.SystemLoad = load
	}

	if sc.UserID != "" {
		if r, err := s.reputation.Reputation(ctx, sc.UserID); err == nil {
			f.Reputation = &r
		}
	}

	return s.calculator.Calculate(base, f)
}
