// Package conversation tracks the transient per-thread dialogue stage and the
// time of the last automatic reply. Nothing here is persisted.
package conversation

import (
	"sync"
	"time"
)

const DefaultDebounceWindow = 1500 * time.Millisecond

const (
	StageInitial = 0
	// StageAwaitingFollowUp is entered after the greeting reply.
	StageAwaitingFollowUp = 1
)

type State struct {
	mu        sync.Mutex
	window    time.Duration
	stages    map[string]int
	lastReply map[string]time.Time
}

// New returns an empty State. A non-positive window uses
// DefaultDebounceWindow.
func New(window time.Duration) *State {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	return &State{
		window:    window,
		stages:    map[string]int{},
		lastReply: map[string]time.Time{},
	}
}

func (s *State) Stage(threadID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stages[threadID]
}

func (s *State) Advance(threadID string, next int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if next == StageInitial {
		delete(s.stages, threadID)
		return
	}
	s.stages[threadID] = next
}

// ShouldDebounce reports whether a reply at now falls inside the window of
// the previous one. A debounced call leaves the recorded time untouched.
func (s *State) ShouldDebounce(threadID string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.lastReply[threadID]; ok && now.Sub(last) < s.window {
		return true
	}
	s.lastReply[threadID] = now
	return false
}

func (s *State) Window() time.Duration { return s.window }
