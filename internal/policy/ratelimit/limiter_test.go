package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JakeFAU/paid-chapter-feed/internal/metrics"
)

func TestLimiter_Wait(t *testing.T) {
	metrics.Init()
	l := New(Config{
		DefaultRPS:   10, // 10 requests per second = 100ms interval
		DefaultBurst: 1,
	})

	ctx := context.Background()

	// Consume initial token
	if err := l.Wait(ctx, "https://dragonholic.com/novel/a/"); err != nil {
		t.Fatal(err)
	}

	// Next one should wait ~100ms
	start := time.Now()
	if err := l.Wait(ctx, "https://dragonholic.com/novel/b/"); err != nil {
		t.Fatal(err)
	}
	if dur := time.Since(start); dur < 80*time.Millisecond {
		t.Errorf("expected wait ~100ms, got %v", dur)
	}
}

func TestLimiter_DifferentDomains(t *testing.T) {
	metrics.Init()
	l := New(Config{
		DefaultRPS:   1, // 1 RPS = 1s interval
		DefaultBurst: 1,
	})

	ctx := context.Background()

	if err := l.Wait(ctx, "https://a.com/1"); err != nil {
		t.Fatal(err)
	}

	// Domain B should not be blocked by A
	start := time.Now()
	if err := l.Wait(ctx, "https://b.com/1"); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) > 10*time.Millisecond {
		t.Errorf("domain B blocked unexpectedly")
	}
}

func TestLimiter_Unlimited(t *testing.T) {
	metrics.Init()
	l := New(Config{})

	start := time.Now()
	for i := 0; i < 50; i++ {
		if err := l.Wait(context.Background(), "https://dragonholic.com/"); err != nil {
			t.Fatal(err)
		}
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Errorf("unlimited limiter should not pace, took %v", time.Since(start))
	}
}

func TestLimiter_CanceledContext(t *testing.T) {
	metrics.Init()
	l := New(Config{DefaultRPS: 0.1, DefaultBurst: 1})
	ctx, cancel := context.WithCancel(context.Background())

	if err := l.Wait(ctx, "https://dragonholic.com/"); err != nil {
		t.Fatal(err)
	}
	cancel()
	err := l.Wait(ctx, "https://dragonholic.com/")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled error, got %v", err)
	}
}

func TestDomainOf(t *testing.T) {
	if got := domainOf("https://dragonholic.com/novel/x/"); got != "dragonholic.com" {
		t.Errorf("unexpected domain %q", got)
	}
	if got := domainOf("::not a url"); got != "unknown" {
		t.Errorf("expected unknown, got %q", got)
	}
}
