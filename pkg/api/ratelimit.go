package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterPurgeInterval = 5 * time.Minute
	limiterIdleTTL       = 10 * time.Minute
)

// visitorLimiters holds one token bucket per client IP. Idle entries are
// purged in the background until close is called.
type visitorLimiters struct {
	mu      sync.Mutex
	entries map[string]*visitorEntry
	limit   rate.Limit
	burst   int
	done    chan struct{}
}

type visitorEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newVisitorLimiters(requestsPerMinute int) *visitorLimiters {
	l := &visitorLimiters{
		entries: make(map[string]*visitorEntry, 64),
		limit:   rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:   requestsPerMinute, // Allow burst up to the per-minute limit.
		done:    make(chan struct{}),
	}

	go l.purgeLoop()

	return l
}

// allow reports whether the given client may make another request now.
func (l *visitorLimiters) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[ip]
	if !ok {
		entry = &visitorEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[ip] = entry
	}

	entry.lastSeen = time.Now()

	return entry.limiter.Allow()
}

// close terminates the purge goroutine. Must be called at most once.
func (l *visitorLimiters) close() {
	close(l.done)
}

func (l *visitorLimiters) purgeLoop() {
	ticker := time.NewTicker(limiterPurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.purgeIdle()
		}
	}
}

func (l *visitorLimiters) purgeIdle() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for ip, entry := range l.entries {
		if time.Since(entry.lastSeen) > limiterIdleTTL {
			delete(l.entries, ip)
		}
	}
}

// rateLimitMiddleware rejects clients that exceed the per-IP request rate.
func (s *server) rateLimitMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !s.limiters.allow(clientIP(r)) {
				writeJSON(w, http.StatusTooManyRequests,
					errorResponse{"rate limit exceeded"})

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP resolves the caller's address, honoring X-Forwarded-For set by
// reverse proxies.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}

		return xff
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}
