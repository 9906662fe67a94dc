package fetch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/latamwire/news-crawler/pkg/utils"
)

// hostSlot tracks a single host's semaphore and its usage state.
type hostSlot struct {
	sem         *semaphore.Weighted
	users       int64     // held + waiting permits
	lastRelease time.Time // zero if never released
}

// RequestLimiter bounds network concurrency: a global cap across all hosts
// plus a per-host cap, and spaces requests to one host by a politeness delay.
// One limiter is shared by page fetches and robots.txt lookups.
type RequestLimiter struct {
	global         *semaphore.Weighted
	hosts          map[string]*hostSlot
	mu             sync.Mutex
	perHost        int64
	acquireTimeout time.Duration
	delay          *RateLimiter
	hostDelay      time.Duration
	log            *logrus.Entry
}

// NewRequestLimiter creates a limiter. Non-positive limits fall back to 10
// global and 2 per host.
func NewRequestLimiter(maxRequests, maxPerHost int, acquireTimeout, hostDelay time.Duration, log *logrus.Entry) *RequestLimiter {
	if maxRequests <= 0 {
		maxRequests = 10
	}
	if maxPerHost <= 0 {
		maxPerHost = 2
	}
	return &RequestLimiter{
		global:         semaphore.NewWeighted(int64(maxRequests)),
		hosts:          make(map[string]*hostSlot),
		perHost:        int64(maxPerHost),
		acquireTimeout: acquireTimeout,
		delay:          NewRateLimiter(hostDelay, log),
		hostDelay:      hostDelay,
		log:            log,
	}
}

// Acquire takes a global permit and a permit for host, then waits out the
// politeness delay. The returned release func must be called exactly once,
// after the request completes. Waiting for permits is bounded by the
// configured acquire timeout.
func (l *RequestLimiter) Acquire(ctx context.Context, host string) (release func(), err error) {
	acquireCtx := ctx
	if l.acquireTimeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, l.acquireTimeout)
		defer cancel()
	}

	if err := l.global.Acquire(acquireCtx, 1); err != nil {
		return nil, l.acquireErr(ctx, "global", err)
	}
	slot := l.slotFor(host)
	if err := slot.sem.Acquire(acquireCtx, 1); err != nil {
		l.mu.Lock()
		slot.users--
		l.mu.Unlock()
		l.global.Release(1)
		return nil, l.acquireErr(ctx, "host "+host, err)
	}

	l.delay.ApplyDelay(ctx, host, l.hostDelay)

	var once sync.Once
	return func() {
		once.Do(func() {
			l.delay.UpdateLastRequestTime(host)
			l.mu.Lock()
			slot.users--
			slot.lastRelease = time.Now()
			l.mu.Unlock()
			slot.sem.Release(1)
			l.global.Release(1)
		})
	}, nil
}

// acquireErr keeps a caller cancellation distinct from our own acquire timeout
func (l *RequestLimiter) acquireErr(parent context.Context, which string, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	return fmt.Errorf("%w: %s semaphore: %w", utils.ErrSemaphoreTimeout, which, err)
}

func (l *RequestLimiter) slotFor(host string) *hostSlot {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.hosts[host]
	if !ok {
		slot = &hostSlot{sem: semaphore.NewWeighted(l.perHost)}
		l.hosts[host] = slot
		l.log.WithFields(logrus.Fields{"host": host, "limit": l.perHost}).Debug("Created host semaphore")
	}
	slot.users++
	return slot
}

// RunEviction periodically drops idle host slots until ctx is done.
// Should be run in a goroutine.
func (l *RequestLimiter) RunEviction(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.evictIdle(interval)
		case <-ctx.Done():
			return
		}
	}
}

func (l *RequestLimiter) evictIdle(maxIdle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	evicted := 0
	for host, slot := range l.hosts {
		if slot.users == 0 && !slot.lastRelease.IsZero() && now.Sub(slot.lastRelease) >= maxIdle {
			delete(l.hosts, host)
			evicted++
		}
	}
	if evicted > 0 {
		l.log.Debugf("Evicted %d idle host semaphores, %d remain", evicted, len(l.hosts))
	}
}

// Hosts returns the number of tracked hosts.
func (l *RequestLimiter) Hosts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hosts)
}
