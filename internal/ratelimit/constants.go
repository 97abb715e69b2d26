package ratelimit

const (
	slidingKeySuffix = ":sliding"
	bucketKeySuffix  = ":bucket"
	leakyKeySuffix   = ":leaky"

	// DefaultLoadThreshold is the system load above which the adaptive
	// strategy scales its limit down.
	DefaultLoadThreshold = 0.8
	DefaultScaleFactor   = 0.5

	millisecondsPerSecond = 1000
)
