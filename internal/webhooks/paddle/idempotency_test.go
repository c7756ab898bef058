package paddlewebhook

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryClaimStore struct {
	mu   sync.Mutex
	data map[string]string
	ttl  map[string]time.Duration
	err  error
}

func newMemoryClaimStore() *memoryClaimStore {
	return &memoryClaimStore{data: make(map[string]string), ttl: make(map[string]time.Duration)}
}

func (m *memoryClaimStore) IdempotencyKey(scope, id string) string {
	return "idempotency:" + scope + ":" + id
}

func (m *memoryClaimStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	m.ttl[key] = ttl
	return true, nil
}

func (m *memoryClaimStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.data[key] = fmt.Sprint(value)
	m.ttl[key] = ttl
	return nil
}

func (m *memoryClaimStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memoryClaimStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for _, key := range keys {
		delete(m.data, key)
		delete(m.ttl, key)
	}
	return nil
}

func TestIdempotencyGuardLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newMemoryClaimStore()
	guard, err := NewIdempotencyGuard(store, time.Minute, time.Hour)
	require.NoError(t, err)

	state, err := guard.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, ClaimAcquired, state)
	assert.Equal(t, time.Minute, store.ttl["idempotency:paddle:evt_1"])

	state, err = guard.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, ClaimInFlight, state)

	require.NoError(t, guard.Complete(ctx, "evt_1"))
	assert.Equal(t, time.Hour, store.ttl["idempotency:paddle:evt_1"])

	state, err = guard.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, ClaimCompleted, state)
}

func TestIdempotencyGuardReleaseAllowsRetry(t *testing.T) {
	ctx := context.Background()
	guard, err := NewIdempotencyGuard(newMemoryClaimStore(), 0, 0)
	require.NoError(t, err)

	_, err = guard.Claim(ctx, "evt_2")
	require.NoError(t, err)
	require.NoError(t, guard.Release(ctx, "evt_2"))

	state, err := guard.Claim(ctx, "evt_2")
	require.NoError(t, err)
	assert.Equal(t, ClaimAcquired, state)
}

func TestIdempotencyGuardValidation(t *testing.T) {
	_, err := NewIdempotencyGuard(nil, 0, 0)
	assert.Error(t, err)

	guard, err := NewIdempotencyGuard(newMemoryClaimStore(), 0, 0)
	require.NoError(t, err)
	_, err = guard.Claim(context.Background(), "")
	assert.Error(t, err)
}
