package connection

import (
	"testing"
	"time"
)

func TestRetryState_Doubling(t *testing.T) {
	r := NewRetryState(time.Second, 30*time.Second)

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}

	for i, w := range want {
		if r.Delay != w {
			t.Errorf("step %d: Delay = %v, want %v", i, r.Delay, w)
		}
		if r.Attempt != i {
			t.Errorf("step %d: Attempt = %d, want %d", i, r.Attempt, i)
		}
		r.Advance()
	}
}

func TestRetryState_Reset(t *testing.T) {
	r := NewRetryState(100*time.Millisecond, time.Second)
	for i := 0; i < 10; i++ {
		r.Advance()
	}
	if r.Delay != time.Second {
		t.Fatalf("Delay = %v, want capped 1s", r.Delay)
	}

	r.Reset()

	if r.Delay != 100*time.Millisecond {
		t.Errorf("Delay after reset = %v, want 100ms", r.Delay)
	}
	if r.Attempt != 0 {
		t.Errorf("Attempt after reset = %d, want 0", r.Attempt)
	}
}

func TestRetryState_MaxBelowInitial(t *testing.T) {
	r := NewRetryState(5*time.Second, time.Second)
	r.Advance()
	if r.Delay != 5*time.Second {
		t.Errorf("Delay = %v, want 5s (never below initial)", r.Delay)
	}
}
