package ratelimit

import (
	"context"
	"sync/atomic"
)

// StaticLoad always reports the same load.
type StaticLoad float64

func (s StaticLoad) SystemLoad(context.Context) (float64, error) {
	return float64(s), nil
}

// InFlightLoad reports in-flight requests as a fraction of capacity.
type InFlightLoad struct {
	capacity int64
	inFlight atomic.Int64
}

func NewInFlightLoad(capacity int64) *InFlightLoad {
	if capacity < 1 {
		capacity = 1
	}
	return &InFlightLoad{capacity: capacity}
}

func (l *InFlightLoad) Begin() {
	l.inFlight.Add(1)
}

func (l *InFlightLoad) End() {
	l.inFlight.Add(-1)
}

func (l *InFlightLoad) InFlight() int64 {
	return l.inFlight.Load()
}

func (l *InFlightLoad) SystemLoad(context.Context) (float64, error) {
	load := float64(l.inFlight.Load()) / float64(l.capacity)
	switch {
	case load < 0:
		return 0, nil
	case load > 1:
		return 1, nil
	}
	return load, nil
}
