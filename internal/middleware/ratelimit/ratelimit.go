// Package ratelimit bounds how many requests a single client can make per
// minute.
package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter keeps a token bucket per client key. Each bucket holds a minute's
// budget and refills at RequestsPerMinute.
type Limiter struct {
	mu           sync.Mutex
	clients      map[string]*clientInfo
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
	now          func() time.Time

	limit           rate.Limit
	burst           int
	cleanupInterval time.Duration
}

type clientInfo struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type Config struct {
	RequestsPerMinute int
	CleanupInterval   time.Duration
}

func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 600,
		CleanupInterval:   5 * time.Minute,
	}
}

// NewLimiter starts a limiter and its cleanup goroutine. Call Stop to
// release it.
func NewLimiter(config Config) *Limiter {
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = DefaultConfig().RequestsPerMinute
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultConfig().CleanupInterval
	}

	rl := &Limiter{
		clients:         make(map[string]*clientInfo),
		stopCleanup:     make(chan struct{}),
		now:             time.Now,
		limit:           rate.Every(time.Minute / time.Duration(config.RequestsPerMinute)),
		burst:           config.RequestsPerMinute,
		cleanupInterval: config.CleanupInterval,
	}
	go rl.startCleanup()
	return rl
}

// Allow consumes one request from key's budget. When the budget is spent it
// reports false and how long until a request would be allowed.
func (rl *Limiter) Allow(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	client, ok := rl.clients[key]
	if !ok {
		client = &clientInfo{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[key] = client
	}
	client.lastSeen = now

	r := client.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Minute
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

func (rl *Limiter) startCleanup() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanupStaleEntries drops clients idle for a minute or more. Their bucket
// has refilled by then, so a fresh one is equivalent.
func (rl *Limiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-time.Minute)
	for key, client := range rl.clients {
		if !client.lastSeen.After(cutoff) {
			delete(rl.clients, key)
		}
	}
}

// ActiveClients returns the number of currently tracked clients.
func (rl *Limiter) ActiveClients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

func (rl *Limiter) Stop() {
	rl.shutdownOnce.Do(func() {
		close(rl.stopCleanup)
	})
}

// Middleware rejects requests over budget with a Retry-After header. key
// extracts the client key; onLimit writes the rejection and defaults to a
// plain 429.
func (rl *Limiter) Middleware(key func(*http.Request) string, onLimit func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, wait := rl.Allow(key(r))
			if ok {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Retry-After", strconv.Itoa(max(1, int(wait.Round(time.Second)/time.Second))))
			if onLimit != nil {
				onLimit(w, r)
				return
			}
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
		})
	}
}
