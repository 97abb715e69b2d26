package eventlog

import (
	"sort"
	"time"
)

const topN = 10

type Violator struct {
	IP    string `json:"ip"`
	Count int64  `json:"count"`
}

type EndpointViolations struct {
	Endpoint   string `json:"endpoint"`
	Violations int64  `json:"violations"`
}

type Analytics struct {
	TotalRequests   int64                `json:"totalRequests"`
	BlockedRequests int64                `json:"blockedRequests"`
	TopViolators    []Violator           `json:"topViolators"`
	Endpoints       []EndpointViolations `json:"endpoints"`
	TimeRange       string               `json:"timeRange"`
	GeneratedAt     time.Time            `json:"generatedAt"`
}

var timeRanges = map[string]time.Duration{
	"1h":  time.Hour,
	"6h":  6 * time.Hour,
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

// TimeRangeCutoff returns the start of the named range ending at now.
// Unknown ranges mean the last hour.
func TimeRangeCutoff(now time.Time, timeRange string) time.Time {
	d, ok := timeRanges[timeRange]
	if !ok {
		d = time.Hour
	}
	return now.Add(-d)
}

// summarize computes analytics for entries at or after since.
func summarize(entries []Entry, since time.Time) Analytics {
	var a Analytics
	ips := make(map[string]int64)
	paths := make(map[string]int64)

	for _, e := range entries {
		if e.Timestamp.Before(since) {
			continue
		}
		a.TotalRequests++
		if e.Level != LevelWarn {
			continue
		}
		a.BlockedRequests++
		if e.IP != "" {
			ips[e.IP]++
		}
		if e.Path != "" {
			paths[e.Path]++
		}
	}

	a.TopViolators = topViolators(ips)
	a.Endpoints = topEndpoints(paths)
	return a
}

func topViolators(counts map[string]int64) []Violator {
	out := make([]Violator, 0, len(counts))
	for ip, n := range counts {
		out = append(out, Violator{IP: ip, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].IP < out[j].IP
	})
	if len(out) > topN {
		out = out[:topN]
	}
	return out
}

func topEndpoints(counts map[string]int64) []EndpointViolations {
	out := make([]EndpointViolations, 0, len(counts))
	for path, n := range counts {
		out = append(out, EndpointViolations{Endpoint: path, Violations: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Violations != out[j].Violations {
			return out[i].Violations > out[j].Violations
		}
		return out[i].Endpoint < out[j].Endpoint
	})
	if len(out) > topN {
		out = out[:topN]
	}
	return out
}
