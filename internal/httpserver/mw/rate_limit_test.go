package mw

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func hit(h http.Handler, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/sync", nil)
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimit_BurstAndRefill(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	h := RateLimit(RateLimitConfig{Burst: 2, RefillPerIPPerMin: 6, Now: clock.Now})(okHandler)

	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1").Code)
	rec := hit(h, "10.0.0.1:1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = hit(h, "10.0.0.1:1")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "10", rec.Header().Get("Retry-After"))

	// other clients have their own bucket
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.2:1").Code)

	clock.Advance(10 * time.Second)
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.1:1").Code)
}

func TestRateLimit_SweepsIdleBuckets(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := newLimiter(RateLimitConfig{Burst: 1, RefillPerIPPerMin: 1, IdleTTL: time.Minute, Now: clock.Now})

	ok, _, _ := l.allow("a", clock.Now())
	require.True(t, ok)
	require.Len(t, l.clients, 1)

	// the next request after the sweep interval evicts idle clients
	clock.Advance(2 * time.Minute)
	_, _, _ = l.allow("b", clock.Now())
	assert.Len(t, l.clients, 1)
	assert.Contains(t, l.clients, "b")
}
