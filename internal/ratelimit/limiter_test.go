package ratelimit

import (
	"context"
	"testing"
	"time"

	"yaad/internal/config"
)

func testRateConfig() config.RateLimit {
	return config.RateLimit{
		MinIntervalMS: 50,
		Sources: map[string]config.SourceBudget{
			"tmdb": {PerSecond: 100, Burst: 10},
		},
	}
}

func TestWaitEnforcesIntervalFloor(t *testing.T) {
	limiter := New(testRateConfig())

	current := time.Unix(1000, 0)
	limiter.now = func() time.Time { return current }

	var slept time.Duration
	limiter.sleep = func(_ context.Context, d time.Duration) error {
		slept += d
		current = current.Add(d)
		return nil
	}

	ctx := context.Background()
	if err := limiter.Wait(ctx, "tmdb"); err != nil {
		t.Fatalf("first Wait failed: %v", err)
	}
	if slept != 0 {
		t.Fatalf("first call should not sleep, slept %v", slept)
	}

	// Second call lands immediately after the first and must honor the floor.
	if err := limiter.Wait(ctx, "tmdb"); err != nil {
		t.Fatalf("second Wait failed: %v", err)
	}
	if slept != 50*time.Millisecond {
		t.Fatalf("expected 50ms floor sleep, got %v", slept)
	}
}

func TestWaitRespectsCancellation(t *testing.T) {
	limiter := New(testRateConfig())
	limiter.now = func() time.Time { return time.Unix(1000, 0) }

	ctx, cancel := context.WithCancel(context.Background())
	if err := limiter.Wait(ctx, "tmdb"); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	cancel()
	if err := limiter.Wait(ctx, "tmdb"); err == nil {
		t.Fatal("expected context error after cancellation")
	}
}

func TestSourcesIsolated(t *testing.T) {
	cfg := testRateConfig()
	cfg.MinIntervalMS = 0
	limiter := New(cfg)

	ctx := context.Background()
	if err := limiter.Wait(ctx, "tmdb"); err != nil {
		t.Fatalf("tmdb Wait failed: %v", err)
	}
	// A different source gets its own bucket and never contends with tmdb.
	if !limiter.Allow("open_library") {
		t.Fatal("expected fresh bucket to admit a call")
	}
}

func TestAllowDrainsBurst(t *testing.T) {
	cfg := config.RateLimit{Sources: map[string]config.SourceBudget{
		"letterboxd": {PerSecond: 0.001, Burst: 2},
	}}
	limiter := New(cfg)

	if !limiter.Allow("letterboxd") || !limiter.Allow("letterboxd") {
		t.Fatal("expected burst of 2 to be admitted")
	}
	if limiter.Allow("letterboxd") {
		t.Fatal("expected third immediate call to be rejected")
	}
}

func TestNilLimiterIsPermissive(t *testing.T) {
	var limiter *Limiter
	if err := limiter.Wait(context.Background(), "tmdb"); err != nil {
		t.Fatalf("nil limiter Wait failed: %v", err)
	}
	if !limiter.Allow("tmdb") {
		t.Fatal("nil limiter must allow")
	}
}
