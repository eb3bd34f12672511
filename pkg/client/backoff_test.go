package client

import (
	"testing"
	"time"
)

func TestBackoffPolicy_BaseGrowthAndCap(t *testing.T) {
	p := BackoffPolicy{
		InitialWait: 1 * time.Second,
		MaxWait:     8 * time.Second,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 8 * time.Second},  // capped
		{10, 8 * time.Second}, // still capped
	}

	for _, tt := range tests {
		got := p.base(tt.attempt, ErrorClassServer)
		if got != tt.expected {
			t.Errorf("base(%d, server) = %v, want %v", tt.attempt, got, tt.expected)
		}
	}
}

func TestBackoffPolicy_BaseMonotonic(t *testing.T) {
	p := BackoffPolicy{
		InitialWait: 500 * time.Millisecond,
		MaxWait:     30 * time.Second,
	}

	prev := time.Duration(0)
	for attempt := 1; attempt <= 12; attempt++ {
		got := p.base(attempt, ErrorClassServer)
		if got < prev {
			t.Errorf("base(%d) = %v, smaller than base(%d) = %v", attempt, got, attempt-1, prev)
		}
		prev = got
	}
}

func TestBackoffPolicy_RateLimitDominatesServer(t *testing.T) {
	p := BackoffPolicy{
		InitialWait: 1 * time.Second,
		MaxWait:     4 * time.Second,
		jitter:      func() float64 { return 0.5 },
	}

	// Rate limit backoff must strictly dominate server backoff for the
	// same attempt and jitter draw, including attempts past the cap.
	for attempt := 1; attempt <= 8; attempt++ {
		server := p.Wait(attempt, ErrorClassServer)
		rateLimit := p.Wait(attempt, ErrorClassRateLimit)
		if server >= rateLimit {
			t.Errorf("attempt %d: Wait(server) = %v not < Wait(rate_limit) = %v", attempt, server, rateLimit)
		}
	}
}

func TestBackoffPolicy_JitterRange(t *testing.T) {
	p := BackoffPolicy{
		InitialWait: 1 * time.Second,
		MaxWait:     30 * time.Second,
	}

	// Jitter is uniform in [0, base), so the total wait lies in [base, 2*base).
	base := p.base(3, ErrorClassServer)
	for i := 0; i < 100; i++ {
		wait := p.Wait(3, ErrorClassServer)
		if wait < base || wait >= 2*base {
			t.Fatalf("Wait(3, server) = %v outside [%v, %v)", wait, base, 2*base)
		}
	}
}

func TestBackoffPolicy_JitterBoundaries(t *testing.T) {
	p := BackoffPolicy{
		InitialWait: 2 * time.Second,
		MaxWait:     30 * time.Second,
	}

	p.jitter = func() float64 { return 0 }
	if got := p.Wait(1, ErrorClassServer); got != 2*time.Second {
		t.Errorf("Wait with zero jitter = %v, want 2s", got)
	}

	p.jitter = func() float64 { return 0.999 }
	got := p.Wait(1, ErrorClassServer)
	if got < 2*time.Second || got >= 4*time.Second {
		t.Errorf("Wait with near-max jitter = %v, want in [2s, 4s)", got)
	}
}

func TestBackoffPolicy_UnsetMaxWaitIsUncapped(t *testing.T) {
	// Setting only InitialWait must still back off; an unset MaxWait
	// means no cap, never a zero wait.
	p := BackoffPolicy{InitialWait: 1 * time.Second}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{5, 16 * time.Second},
	}

	for _, tt := range tests {
		got := p.base(tt.attempt, ErrorClassServer)
		if got != tt.expected {
			t.Errorf("base(%d, server) = %v, want %v", tt.attempt, got, tt.expected)
		}
	}

	if got := p.Wait(1, ErrorClassServer); got < 1*time.Second {
		t.Errorf("Wait(1, server) = %v, want >= 1s with MaxWait unset", got)
	}
}

func TestBackoffPolicy_AttemptFloor(t *testing.T) {
	p := BackoffPolicy{
		InitialWait: 1 * time.Second,
		MaxWait:     30 * time.Second,
	}

	// Attempts below 1 are treated as the first attempt.
	if got, want := p.base(0, ErrorClassServer), p.base(1, ErrorClassServer); got != want {
		t.Errorf("base(0) = %v, want %v", got, want)
	}
}

func TestDefaultBackoffPolicy(t *testing.T) {
	p := DefaultBackoffPolicy()

	if p.InitialWait != 1*time.Second {
		t.Errorf("InitialWait = %v, want 1s", p.InitialWait)
	}
	if p.MaxWait != 30*time.Second {
		t.Errorf("MaxWait = %v, want 30s", p.MaxWait)
	}
}
