package metrics

import "time"

type Collector interface {
	RecordRateLimitDecision(strategy string, allowed bool)
	RecordRateLimitDuration(strategy string, duration time.Duration)
	// RecordFailOpen counts checks that errored and let the request through.
	RecordFailOpen(category string)
	RecordStorageOperation(backend, operation string, duration time.Duration, err error)
	SetStorageFallback(requested, active string, degraded bool)
	RecordDDoSBlock(reason string)
	RecordHTTPRequest(route string, status int, duration time.Duration)
}
