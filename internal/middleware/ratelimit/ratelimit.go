// Package ratelimit throttles clients with a fixed one-minute window.
package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

const (
	window   = time.Minute
	idleTTL  = 10 * time.Minute
	fallback = 120
)

type Config struct {
	RequestsPerMinute int
	// CleanupInterval is how often idle clients are forgotten.
	CleanupInterval time.Duration
}

func DefaultConfig() Config {
	return Config{RequestsPerMinute: fallback, CleanupInterval: 5 * time.Minute}
}

type counter struct {
	start time.Time
	seen  time.Time
	n     int
}

// Limiter counts requests per client key. Stop must be called to end the
// background sweep.
type Limiter struct {
	limit int
	now   func() time.Time

	mu       sync.Mutex
	counters map[string]*counter

	rejected atomic.Int64
	done     chan struct{}
	stopOnce sync.Once
}

func NewLimiter(cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = def.RequestsPerMinute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}

	l := &Limiter{
		limit:    cfg.RequestsPerMinute,
		now:      time.Now,
		counters: make(map[string]*counter),
		done:     make(chan struct{}),
	}
	go l.sweep(cfg.CleanupInterval)
	return l
}

func (l *Limiter) Allow(key string) bool {
	ok, _ := l.take(key)
	return ok
}

// take records one request for key. When the request is rejected it also
// reports how long until the client's window resets.
func (l *Limiter) take(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c := l.counters[key]
	if c == nil || now.Sub(c.start) >= window {
		c = &counter{start: now}
		l.counters[key] = c
	}
	c.seen = now
	c.n++

	if c.n <= l.limit {
		return true, 0
	}
	l.rejected.Add(1)
	return false, c.start.Add(window).Sub(now)
}

func (l *Limiter) sweep(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-t.C:
			l.cleanupStaleEntries()
		}
	}
}

func (l *Limiter) cleanupStaleEntries() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-idleTTL)
	for key, c := range l.counters {
		if c.seen.Before(cutoff) {
			delete(l.counters, key)
		}
	}
}

func (l *Limiter) ActiveClients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.counters)
}

// Stop is safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.done) })
}

type Metrics struct {
	TotalHits   int64
	ClientCount int64
}

func (l *Limiter) GetMetrics() Metrics {
	return Metrics{
		TotalHits:   l.rejected.Load(),
		ClientCount: int64(l.ActiveClients()),
	}
}

// Middleware keys clients with clientKey. Rejected requests get a Retry-After
// header and are passed to onLimit, or a plain 429 when onLimit is nil.
func (l *Limiter) Middleware(clientKey func(*http.Request) string, onLimit func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, wait := l.take(clientKey(r))
			if ok {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Retry-After", strconv.Itoa(retrySeconds(wait)))
			if onLimit == nil {
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}
			onLimit(w, r)
		})
	}
}

func retrySeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}
