package metrics

import "time"

// NoopCollector is a no-operation metrics collector for testing or when metrics are disabled
type NoopCollector struct{}

func NewNoopCollector() *NoopCollector {
	return &NoopCollector{}
}

func (n *NoopCollector) RecordRateLimitDecision(strategy string, allowed bool) {}

func (n *NoopCollector) RecordRateLimitDuration(strategy string, duration time.Duration) {}

func (n *NoopCollector) RecordFailOpen(category string) {}

func (n *NoopCollector) RecordStorageOperation(backend, operation string, duration time.Duration, err error) {
}

func (n *NoopCollector) SetStorageFallback(requested, active string, degraded bool) {}

func (n *NoopCollector) RecordDDoSBlock(reason string) {}

func (n *NoopCollector) RecordHTTPRequest(route string, status int, duration time.Duration) {}
