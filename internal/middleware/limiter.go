package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"checkout-proxy/internal/auth"
	"checkout-proxy/internal/utils"

	"golang.org/x/time/rate"
)

// Rate Limit Tiers
const (
	// Provider webhooks, card charges (Strict)
	limitStrict = rate.Limit(2)
	burstStrict = 5

	// General (Default)
	limitGeneral = rate.Limit(10)
	burstGeneral = 20

	// Signed service-to-service calls
	limitInternal = rate.Limit(100)
	burstInternal = 200
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter keeps one token bucket per identity and tier.
type Limiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor

	strictPaths   map[string]bool
	internalPaths map[string]bool
	now           func() time.Time
}

func NewLimiter(strictPaths, internalPaths []string) *Limiter {
	l := &Limiter{
		visitors:      make(map[string]*visitor),
		strictPaths:   make(map[string]bool),
		internalPaths: make(map[string]bool),
		now:           time.Now,
	}
	for _, p := range strictPaths {
		l.strictPaths[p] = true
	}
	for _, p := range internalPaths {
		l.internalPaths[p] = true
	}
	return l
}

func (l *Limiter) getVisitor(key string, r rate.Limit, b int) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, exists := l.visitors[key]
	if !exists {
		limiter := rate.NewLimiter(r, b)
		l.visitors[key] = &visitor{limiter, l.now()}
		return limiter
	}

	v.lastSeen = l.now()
	return v.limiter
}

// Cleanup drops idle visitors until ctx is done.
func (l *Limiter) Cleanup(ctx context.Context, every, idle time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.evict(idle)
		}
	}
}

func (l *Limiter) evict(idle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, v := range l.visitors {
		if now.Sub(v.lastSeen) > idle {
			delete(l.visitors, key)
		}
	}
}

func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit, burst, tier := l.resolveRateTier(r)

		var identity string
		if claims, ok := auth.FrameClaimsFrom(r.Context()); ok {
			identity = fmt.Sprintf("entry:%d", claims.EntryID)
		} else {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}
			identity = "ip:" + ip
		}

		// same identity gets separate quotas per tier
		key := fmt.Sprintf("%s:%s", identity, tier)

		if !l.getVisitor(key, limit, burst).Allow() {
			utils.WriteJSONError(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (l *Limiter) resolveRateTier(r *http.Request) (rate.Limit, int, string) {
	if l.internalPaths[r.URL.Path] {
		return limitInternal, burstInternal, "internal"
	}
	if l.strictPaths[r.URL.Path] {
		return limitStrict, burstStrict, "strict"
	}
	return limitGeneral, burstGeneral, "general"
}
