// Package ratelimit keeps one token bucket per client key.
package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	DefaultRPS   = 5
	DefaultBurst = 10
)

type entry struct {
	l        *rate.Limiter
	lastSeen time.Time
}

// Pool hands out per-key limiters and forgets keys idle longer than the TTL
type Pool struct {
	rps   float64
	burst int

	mu            sync.Mutex
	m             map[string]*entry
	ttl           time.Duration
	cleanupPeriod time.Duration
	startCleanup  sync.Once
	stopOnce      sync.Once
	stopCh        chan struct{}
	now           func() time.Time
}

// NewPool creates a pool. Non-positive values fall back to the defaults.
func NewPool(rps float64, burst int) *Pool {
	if rps <= 0 {
		rps = DefaultRPS
	}
	if burst <= 0 {
		burst = DefaultBurst
	}
	return &Pool{
		rps:           rps,
		burst:         burst,
		m:             make(map[string]*entry),
		ttl:           10 * time.Minute,
		cleanupPeriod: time.Minute,
		stopCh:        make(chan struct{}),
		now:           time.Now,
	}
}

func (p *Pool) get(key string) *rate.Limiter {
	p.startCleanup.Do(func() {
		go p.cleanupLoop()
	})

	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.m[key]; ok {
		e.lastSeen = p.now()
		return e.l
	}

	l := rate.NewLimiter(rate.Limit(p.rps), p.burst)
	p.m[key] = &entry{l: l, lastSeen: p.now()}
	return l
}

// Allow reports whether a request for key may proceed now
func (p *Pool) Allow(key string) bool {
	return p.get(key).Allow()
}

// Len is the number of tracked keys
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}

// Shutdown stops the cleanup goroutine
func (p *Pool) Shutdown() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

func (p *Pool) cleanupLoop() {
	ticker := time.NewTicker(p.cleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.prune()
		case <-p.stopCh:
			return
		}
	}
}

// prune removes limiters unused for longer than the TTL
func (p *Pool) prune() {
	cutoff := p.now().Add(-p.ttl)
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, e := range p.m {
		if e.lastSeen.Before(cutoff) {
			delete(p.m, k)
		}
	}
}

// Middleware rejects requests over the per-client-IP rate with 429.
// onReject may be nil.
func Middleware(p *Pool, onReject func()) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !p.Allow(c.ClientIP()) {
			if onReject != nil {
				onReject()
			}
			c.Header("Retry-After", "1")
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			c.Abort()
			return
		}
		c.Next()
	}
}
