package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/tryon-backend/internal/plans"
	"github.com/angelmondragon/tryon-backend/pkg/logger"
	"github.com/angelmondragon/tryon-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/tryon-backend/pkg/redis"
)

const (
	defaultTimeout = 250 * time.Millisecond
	// keyGrace keeps a counter alive slightly past its window so late
	// increments never recreate a key without a TTL.
	keyGrace = 10 * time.Second
)

// Outcome is the typed result of a quota check.
type Outcome string

const (
	OutcomeAllowed Outcome = "allowed"
	OutcomeDenied  Outcome = "denied"
	// OutcomeDegraded means the counter store failed and the request was let through.
	OutcomeDegraded Outcome = "degraded"
)

// Window is a counting granularity.
type Window string

const (
	WindowMinute Window = "minute"
	WindowHour   Window = "hour"
)

func (w Window) size() time.Duration {
	if w == WindowHour {
		return time.Hour
	}
	return time.Minute
}

// Decision describes the window the client should see in quota headers.
// Reset is the Unix second at which Window rolls over.
type Decision struct {
	Outcome   Outcome
	Window    Window
	Limit     int64
	Remaining int64
	Reset     int64
}

// Allowed reports whether the request may proceed. Degraded decisions proceed.
func (d Decision) Allowed() bool {
	return d.Outcome != OutcomeDenied
}

// Store increments counters for several windows in one round trip.
type Store interface {
	RateLimitKey(tenantID, granularity string, windowIndex int64) string
	IncrWindows(ctx context.Context, incs ...pkgredis.WindowIncrement) ([]int64, error)
}

type Params struct {
	Store   Store
	Plans   *plans.Catalog
	Logger  *logger.Logger
	Metrics *metrics.BillingMetrics
	Timeout time.Duration
	Now     func() time.Time
}

// Limiter enforces per-tenant minute and hour quotas.
type Limiter struct {
	store   Store
	plans   *plans.Catalog
	logg    *logger.Logger
	metrics *metrics.BillingMetrics
	timeout time.Duration
	now     func() time.Time
}

func NewLimiter(params Params) (*Limiter, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("rate limit store required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	catalog := params.Plans
	if catalog == nil {
		catalog = plans.Default()
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Limiter{
		store:   params.Store,
		plans:   catalog,
		logg:    params.Logger,
		metrics: params.Metrics,
		timeout: timeout,
		now:     now,
	}, nil
}

type windowState struct {
	window Window
	index  int64
	limit  int64
}

func newWindowState(w Window, now time.Time, limit int64) windowState {
	return windowState{window: w, index: now.Unix() / int64(w.size()/time.Second), limit: limit}
}

func (s windowState) reset() int64 {
	return (s.index + 1) * int64(s.window.size()/time.Second)
}

// Check counts one request against both windows of the tenant's tier. It never
// returns an error: store failures yield OutcomeDegraded.
func (l *Limiter) Check(ctx context.Context, tenantID, tier string) Decision {
	plan := l.plans.ForTier(tier)
	now := l.now()
	minute := newWindowState(WindowMinute, now, plan.PerMinute)
	hour := newWindowState(WindowHour, now, plan.PerHour)

	callCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	counts, err := l.store.IncrWindows(callCtx,
		pkgredis.WindowIncrement{
			Key: l.store.RateLimitKey(tenantID, string(minute.window), minute.index),
			TTL: minute.window.size() + keyGrace,
		},
		pkgredis.WindowIncrement{
			Key: l.store.RateLimitKey(tenantID, string(hour.window), hour.index),
			TTL: hour.window.size() + keyGrace,
		},
	)
	if err == nil && len(counts) != 2 {
		err = fmt.Errorf("expected 2 counters, got %d", len(counts))
	}
	if err != nil {
		logCtx := l.logg.WithFields(ctx, map[string]any{
			"event":     "ratelimit.degraded",
			"tenant_id": tenantID,
			"tier":      plan.Tier,
			"error":     err.Error(),
		})
		l.logg.Warn(logCtx, "rate limit store unavailable; allowing request")
		l.metrics.RateLimitDecision(string(OutcomeDegraded), string(WindowMinute))
		return Decision{
			Outcome:   OutcomeDegraded,
			Window:    WindowMinute,
			Limit:     minute.limit,
			Remaining: minute.limit,
			Reset:     minute.reset(),
		}
	}

	minuteCount, hourCount := counts[0], counts[1]
	switch {
	case hourCount > hour.limit:
		return l.deny(hour)
	case minuteCount > minute.limit:
		return l.deny(minute)
	}

	l.metrics.RateLimitDecision(string(OutcomeAllowed), string(WindowMinute))
	return Decision{
		Outcome:   OutcomeAllowed,
		Window:    WindowMinute,
		Limit:     minute.limit,
		Remaining: minute.limit - minuteCount,
		Reset:     minute.reset(),
	}
}

func (l *Limiter) deny(s windowState) Decision {
	l.metrics.RateLimitDecision(string(OutcomeDenied), string(s.window))
	return Decision{
		Outcome:   OutcomeDenied,
		Window:    s.window,
		Limit:     s.limit,
		Remaining: 0,
		Reset:     s.reset(),
	}
}
