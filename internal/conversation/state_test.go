package conversation

import (
	"testing"
	"time"
)

func TestStageDefaultsAndAdvance(t *testing.T) {
	s := New(0)
	if got := s.Stage("t1"); got != StageInitial {
		t.Fatalf("Stage() = %d, want %d", got, StageInitial)
	}
	s.Advance("t1", StageAwaitingFollowUp)
	if got := s.Stage("t1"); got != StageAwaitingFollowUp {
		t.Fatalf("Stage() = %d, want %d", got, StageAwaitingFollowUp)
	}
	if got := s.Stage("t2"); got != StageInitial {
		t.Fatalf("other thread Stage() = %d", got)
	}
	s.Advance("t1", StageInitial)
	if got := s.Stage("t1"); got != StageInitial {
		t.Fatalf("Stage() after reset = %d", got)
	}
}

func TestShouldDebounce(t *testing.T) {
	s := New(1500 * time.Millisecond)
	base := time.Unix(1700000000, 0)

	if s.ShouldDebounce("t1", base) {
		t.Fatalf("first reply must not be debounced")
	}
	if !s.ShouldDebounce("t1", base.Add(1499*time.Millisecond)) {
		t.Fatalf("reply inside window must be debounced")
	}
	// The debounced call did not move the window, so 1500ms after base passes.
	if s.ShouldDebounce("t1", base.Add(1500*time.Millisecond)) {
		t.Fatalf("reply at window edge must pass")
	}
	if s.ShouldDebounce("t2", base.Add(1600*time.Millisecond)) {
		t.Fatalf("threads must debounce independently")
	}
}

func TestDefaultWindow(t *testing.T) {
	if got := New(-1).Window(); got != DefaultDebounceWindow {
		t.Fatalf("Window() = %v, want %v", got, DefaultDebounceWindow)
	}
}
