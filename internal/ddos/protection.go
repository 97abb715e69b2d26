package ddos

import (
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/aesthetiq/ratelimiter/internal/logging"
	"github.com/aesthetiq/ratelimiter/internal/metrics"
)

const (
	ReasonBlocked   = "blocked"
	ReasonUserAgent = "user_agent"
	ReasonBurst     = "burst"

	DefaultBlockDuration = time.Hour
	defaultSweepInterval = time.Minute
	visitorIdleTTL       = 15 * time.Minute
)

var DefaultUserAgentPatterns = []string{"bot", "crawler", "scraper"}

type Config struct {
	// UserAgentPatterns are regular expressions matched case-insensitively.
	UserAgentPatterns []string
	BlockDuration     time.Duration
	// RequestsPerSecond enables per-IP burst detection when positive.
	RequestsPerSecond float64
	Burst             int
	SweepInterval     time.Duration
	Logger            *slog.Logger
	Metrics           metrics.Collector
	Clock             func() time.Time
}

// Verdict is the outcome of Check. NewlyBlocked is set only on the
// request that caused the block.
type Verdict struct {
	Blocked      bool
	NewlyBlocked bool
	Reason       string
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Protection blocks IPs that send suspicious user agents or exceed the
// burst budget. Blocks expire after BlockDuration.
type Protection struct {
	patterns      []*regexp.Regexp
	blockDuration time.Duration
	limit         rate.Limit
	burst         int
	logger        *slog.Logger
	metrics       metrics.Collector
	now           func() time.Time

	mu       sync.Mutex
	blocked  map[string]time.Time
	visitors map[string]*visitor

	done      chan struct{}
	closeOnce sync.Once
}

func New(cfg Config) (*Protection, error) {
	if cfg.UserAgentPatterns == nil {
		cfg.UserAgentPatterns = DefaultUserAgentPatterns
	}
	if cfg.BlockDuration <= 0 {
		cfg.BlockDuration = DefaultBlockDuration
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoopCollector()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	patterns := make([]*regexp.Regexp, 0, len(cfg.UserAgentPatterns))
	for _, p := range cfg.UserAgentPatterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("invalid user agent pattern %q: %w", p, err)
		}
		patterns = append(patterns, re)
	}

	burst := cfg.Burst
	if cfg.RequestsPerSecond > 0 && burst < 1 {
		burst = int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
	}

	p := &Protection{
		patterns:      patterns,
		blockDuration: cfg.BlockDuration,
		limit:         rate.Limit(cfg.RequestsPerSecond),
		burst:         burst,
		logger:        logging.Component(cfg.Logger, "ddos"),
		metrics:       cfg.Metrics,
		now:           cfg.Clock,
		blocked:       make(map[string]time.Time),
		visitors:      make(map[string]*visitor),
		done:          make(chan struct{}),
	}

	go p.sweepLoop(cfg.SweepInterval)
	return p, nil
}

// Check decides whether a request from ip should be refused.
func (p *Protection) Check(ip, userAgent string, now time.Time) Verdict {
	p.mu.Lock()
	defer p.mu.Unlock()

	if until, ok := p.blocked[ip]; ok {
		if now.Before(until) {
			return Verdict{Blocked: true, Reason: ReasonBlocked}
		}
		delete(p.blocked, ip)
	}

	reason := p.suspicious(ip, userAgent, now)
	if reason == "" {
		return Verdict{}
	}

	p.blocked[ip] = now.Add(p.blockDuration)
	p.metrics.RecordDDoSBlock(reason)
	p.logger.Warn("ip blocked", "ip", ip, "reason", reason, "until", now.Add(p.blockDuration))
	return Verdict{Blocked: true, NewlyBlocked: true, Reason: reason}
}

func (p *Protection) suspicious(ip, userAgent string, now time.Time) string {
	for _, re := range p.patterns {
		if re.MatchString(userAgent) {
			return ReasonUserAgent
		}
	}

	if p.limit <= 0 {
		return ""
	}

	v, ok := p.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(p.limit, p.burst)}
		p.visitors[ip] = v
	}
	v.lastSeen = now
	if !v.limiter.AllowN(now, 1) {
		return ReasonBurst
	}
	return ""
}

func (p *Protection) IsBlocked(ip string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	until, ok := p.blocked[ip]
	return ok && p.now().Before(until)
}

func (p *Protection) Unblock(ip string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.blocked, ip)
	delete(p.visitors, ip)
}

func (p *Protection) BlockedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.blocked)
}

// Sweep drops expired blocks and visitors idle for longer than
// visitorIdleTTL.
func (p *Protection) Sweep(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for ip, until := range p.blocked {
		if !now.Before(until) {
			delete(p.blocked, ip)
		}
	}
	for ip, v := range p.visitors {
		if now.Sub(v.lastSeen) > visitorIdleTTL {
			delete(p.visitors, ip)
		}
	}
}

func (p *Protection) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.Sweep(p.now())
		case <-p.done:
			return
		}
	}
}

func (p *Protection) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
	})
}
