package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestLimiter(t *testing.T, perMinute int) (*Limiter, *time.Time) {
	t.Helper()
	rl := NewLimiter(Config{RequestsPerMinute: perMinute, CleanupInterval: time.Hour})
	t.Cleanup(rl.Stop)

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	return rl, &now
}

func TestLimiter_Allow(t *testing.T) {
	rl, now := newTestLimiter(t, 2)

	ok, _ := rl.Allow("a")
	assert.True(t, ok)
	ok, _ = rl.Allow("a")
	assert.True(t, ok)
	ok, wait := rl.Allow("a")
	assert.False(t, ok)
	assert.InDelta(t, float64(30*time.Second), float64(wait), float64(time.Millisecond))

	ok, _ = rl.Allow("b")
	assert.True(t, ok, "clients are counted separately")

	*now = now.Add(30 * time.Second)
	ok, _ = rl.Allow("a")
	assert.True(t, ok, "one request refills every 30s")
	ok, _ = rl.Allow("a")
	assert.False(t, ok, "the refilled request is already spent")
}

func TestLimiter_Cleanup(t *testing.T) {
	rl, now := newTestLimiter(t, 5)
	rl.Allow("a")
	rl.Allow("b")
	assert.Equal(t, 2, rl.ActiveClients())

	*now = now.Add(30 * time.Second)
	rl.Allow("b")
	*now = now.Add(40 * time.Second)
	rl.cleanupStaleEntries()
	assert.Equal(t, 1, rl.ActiveClients(), "only the idle client is dropped")
}

func TestLimiter_Middleware(t *testing.T) {
	rl, now := newTestLimiter(t, 1)
	h := rl.Middleware(func(r *http.Request) string { return r.RemoteAddr }, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) }))

	req := httptest.NewRequest(http.MethodPost, "/api/events", nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	*now = now.Add(20 * time.Second)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "40", rec.Header().Get("Retry-After"))
}

func TestLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewLimiter(Config{})
	rl.Stop()
	rl.Stop()
	assert.Equal(t, DefaultConfig().RequestsPerMinute, rl.burst)
}
