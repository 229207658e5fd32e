package ratelimit

import (
	"errors"
	"testing"
	"time"
)

func TestLimiter_Unlimited(t *testing.T) {
	l := NewLimiter(Config{})
	for i := 0; i < 100; i++ {
		if err := l.Allow("alice"); err != nil {
			t.Fatalf("Allow() error in unlimited mode: %v", err)
		}
	}
}

func TestLimiter_BurstExhaustion(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 60, BurstSize: 3})

	for i := 0; i < 3; i++ {
		if err := l.Allow("alice"); err != nil {
			t.Fatalf("Allow() #%d error: %v", i+1, err)
		}
	}
	if err := l.Allow("alice"); !errors.Is(err, ErrRateLimited) {
		t.Errorf("Allow() after burst = %v, want ErrRateLimited", err)
	}
}

func TestLimiter_UserIsolation(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 60, BurstSize: 1})

	if err := l.Allow("alice"); err != nil {
		t.Fatalf("Allow(alice) error: %v", err)
	}
	if err := l.Allow("alice"); !errors.Is(err, ErrRateLimited) {
		t.Errorf("Allow(alice) = %v, want ErrRateLimited", err)
	}
	// Bob's bucket is independent.
	if err := l.Allow("bob"); err != nil {
		t.Errorf("Allow(bob) error: %v", err)
	}
}

func TestLimiter_Refill(t *testing.T) {
	// 6000 rpm = 100 tokens/second, so a drained bucket refills quickly.
	l := NewLimiter(Config{RequestsPerMinute: 6000, BurstSize: 1})

	if err := l.Allow("alice"); err != nil {
		t.Fatalf("Allow() error: %v", err)
	}
	if err := l.Allow("alice"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("Allow() = %v, want ErrRateLimited", err)
	}

	time.Sleep(20 * time.Millisecond)

	if err := l.Allow("alice"); err != nil {
		t.Errorf("Allow() after refill window = %v, want nil", err)
	}
}

func TestLimiter_BurstDefaultsToRate(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 2})
	if l.burst != 2 {
		t.Errorf("burst = %v, want 2", l.burst)
	}
}

func TestLimiter_Prune(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 60, BurstSize: 5})
	if err := l.Allow("alice"); err != nil {
		t.Fatalf("Allow() error: %v", err)
	}

	l.mu.Lock()
	l.users["alice"].lastFill = time.Now().Add(-time.Hour)
	l.pruneLocked(time.Now())
	_, ok := l.users["alice"]
	l.mu.Unlock()

	if ok {
		t.Error("expected idle bucket to be pruned")
	}
}
