package classifier

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/latamwire/news-crawler/pkg/utils"
)

// window is the trailing interval the per-minute cap applies to
const window = time.Minute

// Quota is a sliding-window call limiter with a daily cap.
// It records the timestamp of every reserved call; at most perMinute of them
// fall in any trailing 60s window and at most perDay in any UTC calendar day.
// Reservations happen under the mutex; any required wait happens after the
// slot is reserved, outside the lock, so other callers are never blocked
// behind a sleeping one.
type Quota struct {
	mu         sync.Mutex
	perMinute  int
	perDay     int
	callsToday int
	day        string      // UTC date the counters belong to, "2006-01-02"
	recent     []time.Time // Reserved slot times, ascending; may contain future slots

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	log   *logrus.Entry
}

// NewQuota creates a limiter allowing perMinute calls per trailing minute and
// perDay calls per UTC day.
func NewQuota(perMinute, perDay int, log *logrus.Entry) *Quota {
	return &Quota{
		perMinute: perMinute,
		perDay:    perDay,
		now:       time.Now,
		sleep:     sleepCtx,
		log:       log,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reserve claims one call slot. It refuses immediately with
// utils.ErrQuotaExhausted once the daily cap is reached; otherwise it blocks
// until the slot's time arrives. A reserved slot is never refunded, even if
// ctx ends during the wait or the call later fails.
func (q *Quota) Reserve(ctx context.Context) error {
	q.mu.Lock()
	now := q.now()
	q.rollover(now)

	if q.callsToday >= q.perDay {
		q.mu.Unlock()
		q.log.WithField("calls_today", q.perDay).Warn("Classifier daily limit reached, skipping call")
		return utils.ErrQuotaExhausted
	}

	q.prune(now)
	slot := now
	if n := len(q.recent); n >= q.perMinute {
		// Earliest time at which the window holds fewer than perMinute calls
		if earliest := q.recent[n-q.perMinute].Add(window); earliest.After(slot) {
			slot = earliest
		}
	}
	if n := len(q.recent); n > 0 && q.recent[n-1].After(slot) {
		slot = q.recent[n-1]
	}
	q.recent = append(q.recent, slot)
	q.callsToday++
	q.mu.Unlock()

	if wait := slot.Sub(now); wait > 0 {
		q.log.WithField("wait", wait.Round(time.Millisecond)).Info("Classifier rate limit hit, waiting for a free slot")
		if err := q.sleep(ctx, wait); err != nil {
			return err
		}
	}
	return nil
}

// check reports, without reserving anything, how long a Reserve call made
// now would wait. Returns utils.ErrQuotaExhausted if it would be refused.
func (q *Quota) check() (time.Duration, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	q.rollover(now)
	if q.callsToday >= q.perDay {
		return 0, utils.ErrQuotaExhausted
	}
	q.prune(now)
	n := len(q.recent)
	if n < q.perMinute {
		return 0, nil
	}
	wait := q.recent[n-q.perMinute].Add(window).Sub(now)
	if wait < 0 {
		wait = 0
	}
	return wait, nil
}

// Usage returns the calls reserved today and those inside the trailing window.
func (q *Quota) Usage() (today, inWindow int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	q.rollover(now)
	q.prune(now)
	return q.callsToday, len(q.recent)
}

// rollover resets both counters when the UTC date has advanced. Caller holds mu.
func (q *Quota) rollover(now time.Time) {
	today := now.UTC().Format(time.DateOnly)
	if today == q.day {
		return
	}
	if q.day != "" {
		q.log.WithFields(logrus.Fields{"previous_day": q.day, "calls": q.callsToday}).Info("Classifier quota day rolled over")
	}
	q.day = today
	q.callsToday = 0
	q.recent = q.recent[:0]
}

// prune drops slots that have aged out of the trailing window. Caller holds mu.
func (q *Quota) prune(now time.Time) {
	cutoff := now.Add(-window)
	i := 0
	for i < len(q.recent) && !q.recent[i].After(cutoff) {
		i++
	}
	if i > 0 {
		q.recent = append(q.recent[:0], q.recent[i:]...)
	}
}
