package ratelimit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/tryon-backend/internal/plans"
	"github.com/angelmondragon/tryon-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/tryon-backend/pkg/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu     sync.Mutex
	counts map[string]int64
	ttls   map[string]time.Duration
	calls  int
	err    error
	block  bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{counts: map[string]int64{}, ttls: map[string]time.Duration{}}
}

func (f *fakeStore) RateLimitKey(tenantID, granularity string, windowIndex int64) string {
	return fmt.Sprintf("tryon:rate_limit:%s:%s:%d", tenantID, granularity, windowIndex)
}

func (f *fakeStore) IncrWindows(ctx context.Context, incs ...pkgredis.WindowIncrement) ([]int64, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]int64, len(incs))
	for i, inc := range incs {
		f.counts[inc.Key]++
		if _, ok := f.ttls[inc.Key]; !ok {
			f.ttls[inc.Key] = inc.TTL
		}
		out[i] = f.counts[inc.Key]
	}
	return out, nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newLimiter(t *testing.T, store Store, c *clock, catalog *plans.Catalog, buf *bytes.Buffer) *Limiter {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Output: buf})
	l, err := NewLimiter(Params{Store: store, Plans: catalog, Logger: logg, Now: c.now, Timeout: 20 * time.Millisecond})
	require.NoError(t, err)
	return l
}

func TestCheck_StarterEleventhRequestRejected(t *testing.T) {
	store := newFakeStore()
	c := &clock{t: time.Unix(1_700_000_050, 0)}
	l := newLimiter(t, store, c, plans.Default(), &bytes.Buffer{})

	windowStart := c.t.Unix() - c.t.Unix()%60
	for i := 1; i <= 10; i++ {
		d := l.Check(context.Background(), "tenant-a", "starter")
		require.Equal(t, OutcomeAllowed, d.Outcome, "request %d", i)
		assert.Equal(t, int64(10), d.Limit)
		assert.Equal(t, int64(10-i), d.Remaining)
		assert.Equal(t, windowStart+60, d.Reset)
	}

	d := l.Check(context.Background(), "tenant-a", "starter")
	assert.Equal(t, OutcomeDenied, d.Outcome)
	assert.False(t, d.Allowed())
	assert.Equal(t, WindowMinute, d.Window)
	assert.Equal(t, int64(0), d.Remaining)
	assert.Equal(t, windowStart+60, d.Reset, "reset is the start of the next minute window")
	assert.Equal(t, 11, store.calls, "one round trip per check")
}

func TestCheck_NewWindowResetsCounter(t *testing.T) {
	store := newFakeStore()
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	l := newLimiter(t, store, c, plans.Default(), &bytes.Buffer{})

	for i := 0; i < 5; i++ {
		require.True(t, l.Check(context.Background(), "t", "").Allowed())
	}
	assert.False(t, l.Check(context.Background(), "t", "").Allowed(), "default tier allows 5 per minute")

	c.t = c.t.Add(time.Minute)
	d := l.Check(context.Background(), "t", "")
	assert.Equal(t, OutcomeAllowed, d.Outcome)
	assert.Equal(t, int64(4), d.Remaining)
}

func TestCheck_SetsWindowTTLs(t *testing.T) {
	store := newFakeStore()
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	l := newLimiter(t, store, c, plans.Default(), &bytes.Buffer{})

	l.Check(context.Background(), "t", "growth")

	minuteKey := store.RateLimitKey("t", "minute", c.t.Unix()/60)
	hourKey := store.RateLimitKey("t", "hour", c.t.Unix()/3600)
	assert.Equal(t, 70*time.Second, store.ttls[minuteKey])
	assert.Equal(t, time.Hour+10*time.Second, store.ttls[hourKey])
}

func TestCheck_HourViolationTakesPriority(t *testing.T) {
	catalog, err := plans.NewCatalog(plans.Options{RateLimits: "starter:1/1"})
	require.NoError(t, err)
	store := newFakeStore()
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	l := newLimiter(t, store, c, catalog, &bytes.Buffer{})

	require.True(t, l.Check(context.Background(), "t", "starter").Allowed())
	d := l.Check(context.Background(), "t", "starter")
	assert.Equal(t, OutcomeDenied, d.Outcome)
	assert.Equal(t, WindowHour, d.Window)
	assert.Equal(t, int64(1), d.Limit)
	assert.Equal(t, (c.t.Unix()/3600+1)*3600, d.Reset)
}

func TestCheck_HourLimitAloneRejects(t *testing.T) {
	catalog, err := plans.NewCatalog(plans.Options{RateLimits: "pro:100/2"})
	require.NoError(t, err)
	store := newFakeStore()
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	l := newLimiter(t, store, c, catalog, &bytes.Buffer{})

	require.True(t, l.Check(context.Background(), "t", "pro").Allowed())
	c.t = c.t.Add(time.Minute)
	require.True(t, l.Check(context.Background(), "t", "pro").Allowed())
	c.t = c.t.Add(time.Minute)
	d := l.Check(context.Background(), "t", "pro")
	assert.Equal(t, OutcomeDenied, d.Outcome)
	assert.Equal(t, WindowHour, d.Window)
}

func TestCheck_StoreErrorFailsOpen(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("dial tcp: connection refused")
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	buf := &bytes.Buffer{}
	l := newLimiter(t, store, c, plans.Default(), buf)

	d := l.Check(context.Background(), "t", "starter")
	assert.Equal(t, OutcomeDegraded, d.Outcome)
	assert.True(t, d.Allowed())
	assert.Equal(t, int64(10), d.Limit)
	assert.Equal(t, int64(10), d.Remaining, "degraded requests report full quota")
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), "ratelimit.degraded")
	assert.NotContains(t, buf.String(), `"level":"error"`)
}

func TestCheck_StoreTimeoutFailsOpen(t *testing.T) {
	store := newFakeStore()
	store.block = true
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	l := newLimiter(t, store, c, plans.Default(), &bytes.Buffer{})

	start := time.Now()
	d := l.Check(context.Background(), "t", "growth")
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, OutcomeDegraded, d.Outcome)
	assert.Equal(t, int64(30), d.Remaining)
}

func TestCheck_ConcurrentRequestsCountExactly(t *testing.T) {
	store := newFakeStore()
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	l := newLimiter(t, store, c, plans.Default(), &bytes.Buffer{})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Check(context.Background(), "t", "growth").Allowed() {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 30, allowed)
}

func TestNewLimiterRequiresDependencies(t *testing.T) {
	_, err := NewLimiter(Params{})
	assert.Error(t, err)
	_, err = NewLimiter(Params{Store: newFakeStore()})
	assert.Error(t, err)
}
