package advisory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Clock is the time source for the limiter so tests never touch the wall clock
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the real clock
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Limiter enforces a minimum spacing between calls, a per-minute ceiling
// and a daily quota. Callers block instead of being dropped, except when
// the daily quota is gone.
type Limiter struct {
	clock   Clock
	spacing *rate.Limiter
	minute  *rate.Limiter

	mu    sync.Mutex
	quota int
	day   string
	used  int
}

// NewLimiter builds the token buckets from cfg. A zero DailyQuota means unlimited
func NewLimiter(cfg Config, clock Clock) *Limiter {
	if clock == nil {
		clock = SystemClock{}
	}
	spacing := rate.Inf
	if cfg.MinSpacing > 0 {
		spacing = rate.Every(cfg.MinSpacing)
	}
	perMinute := cfg.PerMinute
	minute := rate.Inf
	if perMinute > 0 {
		minute = rate.Every(time.Minute / time.Duration(perMinute))
	} else {
		perMinute = 1
	}
	return &Limiter{
		clock:   clock,
		spacing: rate.NewLimiter(spacing, 1),
		minute:  rate.NewLimiter(minute, perMinute),
		quota:   cfg.DailyQuota,
	}
}

// Wait blocks until a call is allowed
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.takeQuota(); err != nil {
		return err
	}
	now := l.clock.Now()
	spaced := l.spacing.ReserveN(now, 1)
	ceiling := l.minute.ReserveN(now, 1)
	if !spaced.OK() || !ceiling.OK() {
		l.refundQuota()
		return fmt.Errorf("advisory limiter cannot admit a call")
	}

	delay := max(spaced.DelayFrom(now), ceiling.DelayFrom(now))
	if delay <= 0 {
		return nil
	}
	if err := l.clock.Sleep(ctx, delay); err != nil {
		spaced.CancelAt(now)
		ceiling.CancelAt(now)
		l.refundQuota()
		return err
	}
	return nil
}

// Backoff sleeps for the throttle interval on the limiter's clock
func (l *Limiter) Backoff(ctx context.Context, d time.Duration) error {
	return l.clock.Sleep(ctx, d)
}

// Remaining is the number of calls left today, -1 when unlimited
func (l *Limiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.quota <= 0 {
		return -1
	}
	l.rollDay()
	return l.quota - l.used
}

func (l *Limiter) takeQuota() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.quota <= 0 {
		return nil
	}
	l.rollDay()
	if l.used >= l.quota {
		return ErrQuotaExhausted
	}
	l.used++
	return nil
}

func (l *Limiter) refundQuota() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.quota > 0 && l.used > 0 {
		l.used--
	}
}

// rollDay resets the counter at UTC midnight, callers hold mu
func (l *Limiter) rollDay() {
	day := l.clock.Now().UTC().Format(time.DateOnly)
	if day != l.day {
		l.day = day
		l.used = 0
	}
}
