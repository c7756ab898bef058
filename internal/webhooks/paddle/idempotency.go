package paddlewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	claimScope         = "paddle"
	claimPending       = "pending"
	claimDone          = "done"
	defaultPendingTTL  = 10 * time.Minute
	defaultCompleteTTL = 72 * time.Hour
)

// ClaimState is the outcome of claiming an event id.
type ClaimState string

const (
	ClaimAcquired  ClaimState = "acquired"
	ClaimInFlight  ClaimState = "in_flight"
	ClaimCompleted ClaimState = "completed"
)

type claimStore interface {
	IdempotencyKey(scope, id string) string
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// IdempotencyGuard serializes deliveries of one event id. A claim is pending
// while its holder applies the event and done once the effects are committed.
// Pending claims expire so a crashed holder never blocks retries for long.
type IdempotencyGuard struct {
	store       claimStore
	pendingTTL  time.Duration
	completeTTL time.Duration
}

func NewIdempotencyGuard(store claimStore, pendingTTL, completeTTL time.Duration) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if pendingTTL <= 0 {
		pendingTTL = defaultPendingTTL
	}
	if completeTTL <= 0 {
		completeTTL = defaultCompleteTTL
	}
	return &IdempotencyGuard{store: store, pendingTTL: pendingTTL, completeTTL: completeTTL}, nil
}

// Claim marks eventID pending. Only the caller that gets ClaimAcquired may
// apply the event.
func (g *IdempotencyGuard) Claim(ctx context.Context, eventID string) (ClaimState, error) {
	if eventID == "" {
		return "", errors.New("event id is required")
	}
	key := g.store.IdempotencyKey(claimScope, eventID)
	set, err := g.store.SetNX(ctx, key, claimPending, g.pendingTTL)
	if err != nil {
		return "", fmt.Errorf("set idempotency key: %w", err)
	}
	if set {
		return ClaimAcquired, nil
	}

	current, err := g.store.Get(ctx, key)
	switch {
	case errors.Is(err, redis.Nil):
		// released or expired between the two calls; the sender retries
		return ClaimInFlight, nil
	case err != nil:
		return "", fmt.Errorf("read idempotency key: %w", err)
	case current == claimDone:
		return ClaimCompleted, nil
	default:
		return ClaimInFlight, nil
	}
}

// Complete records that the event's effects are committed.
func (g *IdempotencyGuard) Complete(ctx context.Context, eventID string) error {
	return g.store.Set(ctx, g.store.IdempotencyKey(claimScope, eventID), claimDone, g.completeTTL)
}

// Release drops a pending claim after a failed apply so the next delivery can retry.
func (g *IdempotencyGuard) Release(ctx context.Context, eventID string) error {
	return g.store.Del(ctx, g.store.IdempotencyKey(claimScope, eventID))
}
