package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	locker, err := NewRedisLocker("redis://"+s.Addr(), time.Second, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("failed to create redis locker: %v", err)
	}
	return locker, s
}

func TestNewRedisLocker(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	locker, err := NewRedisLocker("redis://"+s.Addr(), 0, 0)
	if err != nil {
		t.Fatalf("NewRedisLocker failed: %v", err)
	}
	defer locker.Close()

	if err := locker.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNewRedisLocker_BadURL(t *testing.T) {
	if _, err := NewRedisLocker("not-a-url", time.Second, time.Millisecond); err == nil {
		t.Fatal("expected error for invalid url")
	}
}

func TestRedisLockAndUnlock(t *testing.T) {
	locker, s := setupTestRedis(t)
	defer locker.Close()

	ctx := context.Background()
	unlock, err := locker.Lock(ctx, "list:1")
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}

	if !s.Exists("order-lock:list:1") {
		t.Fatal("expected lock key to exist")
	}
	if ttl := s.TTL("order-lock:list:1"); ttl <= 0 {
		t.Errorf("expected positive ttl, got %v", ttl)
	}

	if err := unlock(); err != nil {
		t.Fatalf("unlock failed: %v", err)
	}
	if s.Exists("order-lock:list:1") {
		t.Error("expected lock key to be removed")
	}
}

func TestRedisLockBlocksSameKey(t *testing.T) {
	locker, _ := setupTestRedis(t)
	defer locker.Close()

	unlock, err := locker.Lock(context.Background(), "list:1")
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := locker.Lock(ctx, "list:1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestRedisLockDifferentKeysDoNotContend(t *testing.T) {
	locker, _ := setupTestRedis(t)
	defer locker.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	unlockA, err := locker.Lock(ctx, "list:a")
	if err != nil {
		t.Fatalf("Lock a failed: %v", err)
	}
	defer unlockA()

	unlockB, err := locker.Lock(ctx, "list:b")
	if err != nil {
		t.Fatalf("Lock b failed: %v", err)
	}
	defer unlockB()
}

func TestRedisLockWaitsForRelease(t *testing.T) {
	locker, _ := setupTestRedis(t)
	defer locker.Close()

	unlock, err := locker.Lock(context.Background(), "board:1")
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}

	acquired := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		second, err := locker.Lock(ctx, "board:1")
		if err == nil {
			err = second()
		}
		acquired <- err
	}()

	time.Sleep(20 * time.Millisecond)
	if err := unlock(); err != nil {
		t.Fatalf("unlock failed: %v", err)
	}
	if err := <-acquired; err != nil {
		t.Fatalf("second lock failed: %v", err)
	}
}

func TestRedisUnlockAfterExpiry(t *testing.T) {
	locker, s := setupTestRedis(t)
	defer locker.Close()

	ctx := context.Background()
	unlock, err := locker.Lock(ctx, "list:1")
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}

	// The lock expires and another owner takes it over.
	s.FastForward(2 * time.Second)
	takeover, err := locker.Lock(ctx, "list:1")
	if err != nil {
		t.Fatalf("takeover Lock failed: %v", err)
	}

	if err := unlock(); !errors.Is(err, ErrNotHeld) {
		t.Fatalf("expected ErrNotHeld from stale unlock, got %v", err)
	}
	if !s.Exists("order-lock:list:1") {
		t.Fatal("stale unlock must not remove the new owner's key")
	}
	if err := takeover(); err != nil {
		t.Fatalf("takeover unlock failed: %v", err)
	}
}

func TestRedisLockRenewsLeaseWhileHeld(t *testing.T) {
	s := miniredis.RunT(t)
	locker, err := NewRedisLocker("redis://"+s.Addr(), 300*time.Millisecond, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("failed to create redis locker: %v", err)
	}
	defer locker.Close()

	unlock, err := locker.Lock(context.Background(), "list:slow")
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}

	// Most of the lease is used up by a slow write.
	s.FastForward(250 * time.Millisecond)
	time.Sleep(250 * time.Millisecond)

	if ttl := s.TTL("order-lock:list:slow"); ttl != 300*time.Millisecond {
		t.Fatalf("expected lease renewed to 300ms, got %v", ttl)
	}

	s.FastForward(250 * time.Millisecond)
	if !s.Exists("order-lock:list:slow") {
		t.Fatal("lock expired while still held")
	}

	if err := unlock(); err != nil {
		t.Fatalf("unlock failed: %v", err)
	}
	if s.Exists("order-lock:list:slow") {
		t.Error("expected lock key to be removed")
	}
}
