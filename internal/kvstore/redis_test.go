package kvstore

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	store, err := NewRedisStore("redis://"+mr.Addr(), ttl)
	if err != nil {
		t.Fatalf("NewRedisStore error: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestRedisStore_SetGet(t *testing.T) {
	store, _ := newTestRedisStore(t, 0)
	ctx := context.Background()

	if err := store.Set(ctx, "gf:accounts:u1", []byte(`[]`)); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	got, err := store.Get(ctx, "gf:accounts:u1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if !bytes.Equal(got, []byte(`[]`)) {
		t.Errorf("Get = %q, want %q", got, `[]`)
	}
}

func TestRedisStore_Get_MissingKey_ReturnsNilNil(t *testing.T) {
	store, _ := newTestRedisStore(t, 0)

	got, err := store.Get(context.Background(), "no-such-key")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got != nil {
		t.Errorf("Get = %q, want nil", got)
	}
}

func TestRedisStore_Delete(t *testing.T) {
	store, _ := newTestRedisStore(t, 0)
	ctx := context.Background()

	if err := store.Set(ctx, "key", []byte("value")); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if err := store.Delete(ctx, "key"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}

	got, err := store.Get(ctx, "key")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got != nil {
		t.Errorf("Get after Delete = %q, want nil", got)
	}
}

func TestRedisStore_Delete_MissingKey_Succeeds(t *testing.T) {
	store, _ := newTestRedisStore(t, 0)

	if err := store.Delete(context.Background(), "no-such-key"); err != nil {
		t.Errorf("Delete of missing key = %v, want nil", err)
	}
}

func TestRedisStore_TTL_ExpiresKeys(t *testing.T) {
	store, mr := newTestRedisStore(t, 10*time.Second)
	ctx := context.Background()

	if err := store.Set(ctx, "key", []byte("value")); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	// TTL経過前は取得できる
	got, err := store.Get(ctx, "key")
	if err != nil || got == nil {
		t.Fatalf("Get before expiry = (%q, %v), want value", got, err)
	}

	mr.FastForward(11 * time.Second)

	got, err = store.Get(ctx, "key")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got != nil {
		t.Errorf("Get after expiry = %q, want nil", got)
	}
}

func TestNewRedisStore_InvalidURL_Fails(t *testing.T) {
	if _, err := NewRedisStore("not-a-redis-url", 0); err == nil {
		t.Error("expected error for invalid redis URL")
	}
}
