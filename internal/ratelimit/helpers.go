package ratelimit

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// perSecond is the refill or leak rate for max units per window.
func perSecond(max int64, window time.Duration) float64 {
	return float64(max) / window.Seconds()
}

// durationForUnits is how long units take at rate per second, rounded up
// to the millisecond.
func durationForUnits(units, rate float64) time.Duration {
	ms := math.Ceil(units / rate * millisecondsPerSecond)
	return time.Duration(ms) * time.Millisecond
}

func elapsedSeconds(fromMs, toMs int64) float64 {
	if toMs <= fromMs {
		return 0
	}
	return float64(toMs-fromMs) / millisecondsPerSecond
}

func remainingOf(max, used int64) int64 {
	return maxInt64(0, max-used)
}

func retryAfterUntil(reset, now time.Time) *time.Duration {
	d := reset.Sub(now)
	if d < 0 {
		d = 0
	}
	return &d
}

const lockShards = 64

// keyLocks serialises read-modify-write cycles on bucket state within one
// process.
type keyLocks struct {
	shards [lockShards]sync.Mutex
}

func (k *keyLocks) lock(key string) func() {
	m := &k.shards[xxhash.Sum64String(key)%lockShards]
	m.Lock()
	return m.Unlock
}

func sortedKeys(m map[string]Config) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
