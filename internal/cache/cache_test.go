package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := New(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := Connect(context.Background(), "redis://"+mr.Addr()+"/0")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()

	if _, err := Connect(context.Background(), "not a url"); err == nil {
		t.Error("expected error for bad url")
	}
}

func TestGet_Miss(t *testing.T) {
	c, _ := newTestCache(t)
	if _, err := c.Get(context.Background(), "nope"); !errors.Is(err, ErrMiss) {
		t.Errorf("expected ErrMiss, got %v", err)
	}
}

func TestSetJSON_RoundTripWithTTL(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	in := map[string]any{"title": "Learn Go"}
	if err := c.SetJSON(ctx, "chat_data:s1", in, time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}

	var out map[string]any
	if err := c.GetJSON(ctx, "chat_data:s1", &out); err != nil {
		t.Fatalf("get: %v", err)
	}
	if out["title"] != "Learn Go" {
		t.Errorf("unexpected value: %v", out)
	}
	if mr.TTL("chat_data:s1") != time.Hour {
		t.Errorf("unexpected ttl %v", mr.TTL("chat_data:s1"))
	}
}

func TestGetJSON_BadPayload(t *testing.T) {
	c, mr := newTestCache(t)
	mr.Set("k", "{broken")
	var out map[string]any
	if err := c.GetJSON(context.Background(), "k", &out); err == nil || errors.Is(err, ErrMiss) {
		t.Errorf("expected decode error, got %v", err)
	}
}

func TestLock_ExclusiveUntilReleased(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	token, err := c.AcquireLock(ctx, "lock:s1", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := c.AcquireLock(ctx, "lock:s1", time.Minute); !errors.Is(err, ErrLockHeld) {
		t.Fatalf("expected ErrLockHeld, got %v", err)
	}

	if err := c.ReleaseLock(ctx, "lock:s1", "someone-else"); err != nil {
		t.Fatalf("release foreign: %v", err)
	}
	if _, err := c.AcquireLock(ctx, "lock:s1", time.Minute); !errors.Is(err, ErrLockHeld) {
		t.Fatal("foreign release must not free the lock")
	}

	if err := c.ReleaseLock(ctx, "lock:s1", token); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := c.AcquireLock(ctx, "lock:s1", time.Minute); err != nil {
		t.Errorf("expected lock to be free, got %v", err)
	}
}

func TestLock_Expires(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	if _, err := c.AcquireLock(ctx, "lock:s1", time.Second); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	mr.FastForward(2 * time.Second)
	if _, err := c.AcquireLock(ctx, "lock:s1", time.Second); err != nil {
		t.Errorf("expected expired lock to be free, got %v", err)
	}
}
