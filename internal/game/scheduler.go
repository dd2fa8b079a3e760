package game

import (
	"sync"
	"time"
)

// ActionScheduler arms at most one one-shot timer per session. Completions
// are not executed here; the fire callback runs on the timer goroutine and
// is expected to hand off into the room's event queue, so a fire that loses
// the race against Cancel or a replacing Start is swallowed.
type ActionScheduler struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	seqs   map[string]uint64
}

func NewActionScheduler() *ActionScheduler {
	return &ActionScheduler{
		timers: make(map[string]*time.Timer),
		seqs:   make(map[string]uint64),
	}
}

// Start replaces any outstanding timer for the session.
func (s *ActionScheduler) Start(sessionID string, d time.Duration, fire func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[sessionID]; ok {
		t.Stop()
	}

	s.seqs[sessionID]++
	seq := s.seqs[sessionID]

	s.timers[sessionID] = time.AfterFunc(d, func() {
		s.mu.Lock()
		stale := s.seqs[sessionID] != seq
		if !stale {
			delete(s.timers, sessionID)
		}
		s.mu.Unlock()

		if !stale {
			fire()
		}
	})
}

// Cancel stops the outstanding timer, if any, without firing it. A timer
// already past Stop still finds its sequence stale and drops itself.
func (s *ActionScheduler) Cancel(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[sessionID]; ok {
		t.Stop()
		delete(s.timers, sessionID)
	}
	s.seqs[sessionID]++
}

// StopAll cancels every outstanding timer.
func (s *ActionScheduler) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
		s.seqs[id]++
	}
}
