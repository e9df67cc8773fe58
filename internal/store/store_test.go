package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type doc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newRedisTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	s := NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	s, _ := newRedisTestStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, "device:abc", doc{Name: "x", Count: 2}, 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	var got doc
	if err := s.Get(ctx, "device:abc", &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "x" || got.Count != 2 {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	if err := s.Delete(ctx, "device:abc"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Get(ctx, "device:abc", &got); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestRedisStoreTTL(t *testing.T) {
	s, mr := newRedisTestStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, "device:ttl", doc{Name: "t"}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	var got doc
	if err := s.Get(ctx, "device:ttl", &got); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestRedisStoreKeys(t *testing.T) {
	s, _ := newRedisTestStore(t)
	ctx := context.Background()

	for _, k := range []string{"device:a", "device:b", "game:c"} {
		if err := s.Set(ctx, k, doc{}, 0); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}
	keys, err := s.Keys(ctx, "device:*")
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 device keys, got %v", keys)
	}
}

func TestMemoryStoreBehavesLikeRedis(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Set(ctx, "device:a", doc{Name: "m"}, 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	var got doc
	if err := s.Get(ctx, "device:a", &got); err != nil || got.Name != "m" {
		t.Fatalf("get: %+v %v", got, err)
	}
	if err := s.Get(ctx, "device:missing", &got); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	keys, err := s.Keys(ctx, "device:*")
	if err != nil || len(keys) != 1 {
		t.Fatalf("keys: %v %v", keys, err)
	}
}
