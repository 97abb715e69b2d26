package ratelimit

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aesthetiq/ratelimiter/internal/metrics"
)

const tracerName = "github.com/aesthetiq/ratelimiter/internal/ratelimit"

type MetricsDecorator struct {
	rateLimiter RateLimiter
	collector   metrics.Collector
	strategy    string
	tracer      trace.Tracer
}

func NewMetricsDecorator(rateLimiter RateLimiter, collector metrics.Collector, strategy string) *MetricsDecorator {
	return &MetricsDecorator{
		rateLimiter: rateLimiter,
		collector:   collector,
		strategy:    strategy,
		tracer:      otel.Tracer(tracerName),
	}
}

func (m *MetricsDecorator) Unwrap() RateLimiter {
	return m.rateLimiter
}

func (m *MetricsDecorator) IsAllowed(ctx context.Context, key string, timestamp time.Time) (RateLimitResult, error) {
	return m.observe(ctx, func(ctx context.Context) (RateLimitResult, error) {
		return m.rateLimiter.IsAllowed(ctx, key, timestamp)
	})
}

func (m *MetricsDecorator) IsAllowedN(ctx context.Context, key string, timestamp time.Time, tokens int64) (RateLimitResult, error) {
	inner, ok := AsTokenLimiter(m.rateLimiter)
	if !ok {
		return RateLimitResult{}, ErrUnsupportedTokens
	}
	return m.observe(ctx, func(ctx context.Context) (RateLimitResult, error) {
		return inner.IsAllowedN(ctx, key, timestamp, tokens)
	})
}

func (m *MetricsDecorator) observe(ctx context.Context, check func(context.Context) (RateLimitResult, error)) (RateLimitResult, error) {
	ctx, span := m.tracer.Start(ctx, "ratelimit.check",
		trace.WithAttributes(attribute.String("ratelimit.strategy", m.strategy)))
	defer span.End()

	start := time.Now()
	response, err := check(ctx)
	m.collector.RecordRateLimitDuration(m.strategy, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return response, err
	}

	m.collector.RecordRateLimitDecision(m.strategy, response.Allowed)
	span.SetAttributes(
		attribute.Bool("ratelimit.allowed", response.Allowed),
		attribute.Int64("ratelimit.remaining", response.Remaining),
		attribute.Int64("ratelimit.limit", response.Limit),
	)
	return response, nil
}

func (m *MetricsDecorator) Reset(ctx context.Context, key string) error {
	return m.rateLimiter.Reset(ctx, key)
}
