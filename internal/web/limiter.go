package web

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterIdle    = 10 * time.Minute
	limiterMaxKeys = 10000
)

type limiterEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

// limiterPool holds one token bucket per client key.
type limiterPool struct {
	mu    sync.Mutex
	m     map[string]*limiterEntry
	rps   float64
	burst int
}

func newLimiterPool(rps float64, burst int) *limiterPool {
	if rps <= 0 {
		rps = 2
	}
	if burst <= 0 {
		burst = 10
	}
	return &limiterPool{m: make(map[string]*limiterEntry), rps: rps, burst: burst}
}

func (p *limiterPool) get(key string, now time.Time) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.m[key]; ok {
		e.seen = now
		return e.lim
	}
	if len(p.m) >= limiterMaxKeys {
		p.prune(now)
	}
	e := &limiterEntry{lim: rate.NewLimiter(rate.Limit(p.rps), p.burst), seen: now}
	p.m[key] = e
	return e.lim
}

// prune drops idle entries. Caller holds mu.
func (p *limiterPool) prune(now time.Time) {
	for k, e := range p.m {
		if now.Sub(e.seen) > limiterIdle {
			delete(p.m, k)
		}
	}
}

func (p *limiterPool) Allow(key string) bool {
	return p.get(key, time.Now()).Allow()
}

// clientIP returns the remote host without port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
