package utils

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// maxRetryAfter bounds how long a server can ask us to wait.
const maxRetryAfter = time.Minute

// RetryPolicy is a bounded exponential backoff.
type RetryPolicy struct {
	MaxAttempts    int // total attempts including the first, <= 0 means 1
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// FloorBackOff is a backoff.BackOff whose next wait can be raised once,
// typically from a Retry-After header.
type FloorBackOff struct {
	backoff.BackOff
	floor time.Duration
}

// RaiseNext makes the next wait at least d.
func (b *FloorBackOff) RaiseNext(d time.Duration) {
	if d > maxRetryAfter {
		d = maxRetryAfter
	}
	if d > b.floor {
		b.floor = d
	}
}

func (b *FloorBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	if b.floor > next {
		next = b.floor
	}
	b.floor = 0
	return next
}

// NewBackOff builds a fresh backoff for p. BackOff values are stateful, so
// each retried operation needs its own.
func (p RetryPolicy) NewBackOff() *FloorBackOff {
	exp := backoff.NewExponentialBackOff()
	if p.InitialBackoff > 0 {
		exp.InitialInterval = p.InitialBackoff
	}
	if p.MaxBackoff > 0 {
		exp.MaxInterval = p.MaxBackoff
	}
	exp.MaxElapsedTime = 0

	retries := p.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	return &FloorBackOff{BackOff: backoff.WithMaxRetries(exp, uint64(retries))}
}

// IsTransientStatus reports whether an HTTP status is worth retrying.
func IsTransientStatus(code int) bool {
	return code == http.StatusTooManyRequests || (code >= 500 && code <= 599)
}

// ParseRetryAfter reads a Retry-After header given in seconds or as an HTTP date.
func ParseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if ts, err := http.ParseTime(header); err == nil {
		if delta := time.Until(ts); delta > 0 {
			return delta
		}
	}
	return 0
}
