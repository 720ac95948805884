package backoff

import (
	"testing"
	"time"
)

func TestPolicy_DelayBounds(t *testing.T) {
	p := DefaultPolicy()

	for attempt := 0; attempt < 20; attempt++ {
		d := p.Delay(attempt)

		if d < p.BaseDelay {
			t.Errorf("attempt %d: delay %v below base %v", attempt, d, p.BaseDelay)
		}
		if d > p.MaxDelay+p.JitterMax {
			t.Errorf("attempt %d: delay %v above max+jitter %v", attempt, d, p.MaxDelay+p.JitterMax)
		}
	}
}

func TestPolicy_DelayGrowth(t *testing.T) {
	// Jitter disabled so the exponential term is exact.
	p := Policy{
		BaseDelay: 100 * time.Millisecond,
		MaxDelay:  3200 * time.Millisecond,
		Factor:    2.0,
	}

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		1600 * time.Millisecond,
		3200 * time.Millisecond,
		3200 * time.Millisecond, // capped
		3200 * time.Millisecond,
	}

	for attempt, w := range want {
		if got := p.Delay(attempt); got != w {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, w)
		}
	}
}

func TestPolicy_DelayMonotonic(t *testing.T) {
	p := Policy{
		BaseDelay: 50 * time.Millisecond,
		MaxDelay:  10 * time.Second,
		Factor:    2.0,
	}

	prev := time.Duration(0)
	for attempt := 0; attempt < 12; attempt++ {
		d := p.Delay(attempt)
		if d < prev {
			t.Errorf("Delay(%d) = %v decreased from %v", attempt, d, prev)
		}
		prev = d
	}
}

func TestPolicy_NegativeAttempt(t *testing.T) {
	p := Policy{BaseDelay: time.Second, MaxDelay: time.Minute, Factor: 2.0}

	if got := p.Delay(-5); got != time.Second {
		t.Errorf("Delay(-5) = %v, want %v", got, time.Second)
	}
}

func TestPolicy_ShouldRetry(t *testing.T) {
	p := Policy{MaxAttempts: 3}

	for attempt := 0; attempt < 3; attempt++ {
		if !p.ShouldRetry(attempt) {
			t.Errorf("ShouldRetry(%d) = false, want true", attempt)
		}
	}
	if p.ShouldRetry(3) {
		t.Error("ShouldRetry(3) = true, want false")
	}

	unlimited := Policy{MaxAttempts: 0}
	if !unlimited.ShouldRetry(1000) {
		t.Error("unlimited policy should always retry")
	}
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()

	if p.BaseDelay != time.Second {
		t.Errorf("BaseDelay = %v, want 1s", p.BaseDelay)
	}
	if p.MaxDelay != 30*time.Second {
		t.Errorf("MaxDelay = %v, want 30s", p.MaxDelay)
	}
	if p.Factor != 2.0 {
		t.Errorf("Factor = %v, want 2.0", p.Factor)
	}
	if p.MaxAttempts != 10 {
		t.Errorf("MaxAttempts = %d, want 10", p.MaxAttempts)
	}
}
