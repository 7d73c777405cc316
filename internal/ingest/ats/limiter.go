package ats

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// HostLimiter keeps one token bucket per vendor host (boards-api.greenhouse.io,
// api.lever.co, ...) so a burst against one vendor never starves another.
type HostLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	perSec  rate.Limit
	burst   int
}

func NewHostLimiter(reqPerSec float64, burst int) *HostLimiter {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(reqPerSec)
	if reqPerSec <= 0 {
		limit = rate.Inf
	}
	return &HostLimiter{
		buckets: make(map[string]*rate.Limiter),
		perSec:  limit,
		burst:   burst,
	}
}

func (hl *HostLimiter) bucket(host string) *rate.Limiter {
	host = strings.ToLower(host)

	hl.mu.Lock()
	defer hl.mu.Unlock()
	if lim, ok := hl.buckets[host]; ok {
		return lim
	}
	lim := rate.NewLimiter(hl.perSec, hl.burst)
	hl.buckets[host] = lim
	return lim
}

// Wait blocks until a request to raw's host is allowed or ctx ends.
func (hl *HostLimiter) Wait(ctx context.Context, raw string) error {
	if hl == nil {
		return nil
	}
	host := "_"
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		host = u.Host
	}
	return hl.bucket(host).Wait(ctx)
}
