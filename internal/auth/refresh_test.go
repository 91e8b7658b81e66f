package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) *RefreshStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRefreshStore(client, time.Hour)
}

func TestRefreshStoreSaveValidateRevoke(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Validate(ctx, "unknown"); !errors.Is(err, ErrRefreshRevoked) {
		t.Fatalf("unknown token: got %v, want ErrRefreshRevoked", err)
	}

	if err := store.Save(ctx, 1, "tok-a"); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if err := store.Validate(ctx, "tok-a"); err != nil {
		t.Fatalf("Validate after Save returned error: %v", err)
	}

	if err := store.Revoke(ctx, "tok-a"); err != nil {
		t.Fatalf("Revoke returned error: %v", err)
	}
	if err := store.Validate(ctx, "tok-a"); !errors.Is(err, ErrRefreshRevoked) {
		t.Fatalf("revoked token: got %v, want ErrRefreshRevoked", err)
	}

	// Idempotent revoke.
	if err := store.Revoke(ctx, "tok-a"); err != nil {
		t.Fatalf("second Revoke returned error: %v", err)
	}
}

func TestRefreshStoreRotate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, 1, "old"); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if err := store.Rotate(ctx, 1, "old", "new"); err != nil {
		t.Fatalf("Rotate returned error: %v", err)
	}
	if err := store.Validate(ctx, "old"); !errors.Is(err, ErrRefreshRevoked) {
		t.Fatal("rotated-out token must be revoked")
	}
	if err := store.Validate(ctx, "new"); err != nil {
		t.Fatalf("rotated-in token must validate: %v", err)
	}
}
