package dispatch

import (
	"testing"
	"time"
)

func TestBackoffDelayGrowth(t *testing.T) {
	policy := normalizeBackoffPolicy(BackoffPolicy{
		Base:   100 * time.Millisecond,
		Max:    time.Second,
		Jitter: -1,
	})

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second}, // capped
		{9, time.Second},
	}

	for _, tt := range tests {
		if got := policy.delay(tt.attempt); got != tt.want {
			t.Fatalf("delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestBackoffDelayClampsAttempt(t *testing.T) {
	policy := normalizeBackoffPolicy(BackoffPolicy{
		Base:   100 * time.Millisecond,
		Max:    time.Second,
		Jitter: -1,
	})
	if got := policy.delay(0); got != 100*time.Millisecond {
		t.Fatalf("delay(0) = %v, want base", got)
	}
	if got := policy.delay(-3); got != 100*time.Millisecond {
		t.Fatalf("delay(-3) = %v, want base", got)
	}
}

func TestBackoffJitterBounds(t *testing.T) {
	policy := normalizeBackoffPolicy(BackoffPolicy{
		Base:   100 * time.Millisecond,
		Max:    time.Second,
		Jitter: 50 * time.Millisecond,
	})

	for i := 0; i < 100; i++ {
		got := policy.delay(1)
		if got < 100*time.Millisecond || got >= 150*time.Millisecond {
			t.Fatalf("delay(1) = %v, want in [100ms, 150ms)", got)
		}
	}
}

func TestNormalizeBackoffPolicyDefaults(t *testing.T) {
	policy := normalizeBackoffPolicy(BackoffPolicy{})
	if policy.Base != defaultBackoffBase {
		t.Fatalf("Base = %v, want %v", policy.Base, defaultBackoffBase)
	}
	if policy.Max != defaultBackoffMax {
		t.Fatalf("Max = %v, want %v", policy.Max, defaultBackoffMax)
	}
	if policy.Jitter != defaultBackoffJitter {
		t.Fatalf("Jitter = %v, want %v", policy.Jitter, defaultBackoffJitter)
	}
}

func TestNormalizeBackoffPolicyMaxBelowBase(t *testing.T) {
	policy := normalizeBackoffPolicy(BackoffPolicy{
		Base: time.Second,
		Max:  time.Millisecond,
	})
	if policy.Max != time.Second {
		t.Fatalf("Max = %v, want raised to base %v", policy.Max, time.Second)
	}
}
