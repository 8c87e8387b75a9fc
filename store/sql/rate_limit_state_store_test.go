package sqlstore_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/goliatone/go-crmbridge/core"
	"github.com/goliatone/go-crmbridge/ratelimit"
	sqlstore "github.com/goliatone/go-crmbridge/store/sql"
)

func newSQLiteRateLimitStore(t *testing.T) *sqlstore.RateLimitStateStore {
	t.Helper()
	dsn := fmt.Sprintf("file:crmbridge-ratelimit-%d?mode=memory&cache=shared", time.Now().UnixNano())
	client, err := sqlstore.Open(context.Background(), dsn)
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	store, err := sqlstore.NewRateLimitStateStoreFromPersistence(client)
	if err != nil {
		t.Fatalf("new rate-limit state store: %v", err)
	}
	return store
}

func TestRateLimitStateStore_GetMissingBucket(t *testing.T) {
	store := newSQLiteRateLimitStore(t)
	_, err := store.Get(context.Background(), "crm")
	if !errors.Is(err, ratelimit.ErrStateNotFound) {
		t.Fatalf("expected ErrStateNotFound, got %v", err)
	}
}

func TestRateLimitStateStore_UpsertRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteRateLimitStore(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	resetAt := now.Add(time.Minute)
	until := now.Add(30 * time.Second)
	retryAfter := 30 * time.Second

	err := store.Upsert(ctx, ratelimit.State{
		Bucket:         " CRM ",
		Limit:          100,
		Remaining:      0,
		ResetAt:        &resetAt,
		RetryAfter:     &retryAfter,
		ThrottledUntil: &until,
		LastStatus:     429,
		Attempts:       2,
		UpdatedAt:      now,
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	state, err := store.Get(ctx, "crm")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if state.Bucket != "crm" || state.Limit != 100 || state.LastStatus != 429 || state.Attempts != 2 {
		t.Fatalf("unexpected state: %+v", state)
	}
	if state.RetryAfter == nil || *state.RetryAfter != retryAfter {
		t.Fatalf("expected retry after %s, got %v", retryAfter, state.RetryAfter)
	}
	if state.ThrottledUntil == nil || !state.ThrottledUntil.Equal(until) {
		t.Fatalf("expected throttled until %s, got %v", until, state.ThrottledUntil)
	}
	if state.ResetAt == nil || !state.ResetAt.Equal(resetAt) {
		t.Fatalf("expected reset at %s, got %v", resetAt, state.ResetAt)
	}
}

func TestRateLimitStateStore_UpsertUpdatesExistingBucket(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteRateLimitStore(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	until := now.Add(time.Minute)

	if err := store.Upsert(ctx, ratelimit.State{Bucket: "crm", LastStatus: 429, Attempts: 1, ThrottledUntil: &until, UpdatedAt: now}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := store.Upsert(ctx, ratelimit.State{Bucket: "crm", LastStatus: 200, Remaining: 99, UpdatedAt: now.Add(time.Second)}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	state, err := store.Get(ctx, "crm")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if state.LastStatus != 200 || state.Remaining != 99 || state.Attempts != 0 {
		t.Fatalf("expected latest state, got %+v", state)
	}
	if state.ThrottledUntil != nil || state.RetryAfter != nil {
		t.Fatalf("expected cleared throttle, got %+v", state)
	}
}

func TestRateLimitStateStore_RequiresBucket(t *testing.T) {
	store := newSQLiteRateLimitStore(t)
	if err := store.Upsert(context.Background(), ratelimit.State{Bucket: "  "}); err == nil {
		t.Fatalf("expected error for empty bucket")
	}
}

func TestRateLimitStateStore_PersistsAdaptivePolicyThrottle(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteRateLimitStore(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	writer := ratelimit.NewAdaptivePolicy(store, 0, 0)
	writer.Now = func() time.Time { return now }
	err := writer.AfterCall(ctx, "crm", core.RawResponse{
		StatusCode: 429,
		Headers:    map[string]string{"Retry-After": "5"},
	})
	if err != nil {
		t.Fatalf("after call: %v", err)
	}

	var slept time.Duration
	reader := ratelimit.NewAdaptivePolicy(store, 0, 0)
	reader.Now = func() time.Time { return now.Add(time.Second) }
	reader.Sleep = func(_ context.Context, d time.Duration) error {
		slept = d
		return nil
	}
	if err := reader.BeforeCall(ctx, "crm"); err != nil {
		t.Fatalf("before call: %v", err)
	}
	if slept != 4*time.Second {
		t.Fatalf("expected a fresh policy to wait 4s, got %s", slept)
	}
}
