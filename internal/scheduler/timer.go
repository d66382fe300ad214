package scheduler

import (
	"sync"
	"time"
)

// Timers holds at most one single-shot timer per match. Every callback runs
// on its own goroutine, so a slow settlement never delays another match.
type Timers struct {
	mu     sync.Mutex
	seq    uint64
	timers map[string]*entry
}

type entry struct {
	t   *time.Timer
	gen uint64
}

// Handle cancels the timer it was returned for and nothing else: once the
// match is re-armed, an old handle becomes inert.
type Handle struct {
	s       *Timers
	matchID string
	gen     uint64
}

func NewTimers() *Timers {
	return &Timers{timers: make(map[string]*entry)}
}

// Arm schedules fn after d for matchID, replacing any timer already armed
// for it.
func (s *Timers) Arm(matchID string, d time.Duration, fn func()) *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.timers[matchID]; ok {
		old.t.Stop()
	}

	s.seq++
	gen := s.seq
	e := &entry{gen: gen}
	e.t = time.AfterFunc(d, func() {
		// a fire that lost the race against Cancel or a re-arm is dropped
		if !s.take(matchID, gen) {
			return
		}
		fn()
	})
	s.timers[matchID] = e

	return &Handle{s: s, matchID: matchID, gen: gen}
}

// take removes the entry if it is still generation gen.
func (s *Timers) take(matchID string, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.timers[matchID]
	if !ok || cur.gen != gen {
		return false
	}
	delete(s.timers, matchID)
	return true
}

// Cancel disarms the timer for matchID. Safe to call any number of times,
// including after the timer already fired.
func (s *Timers) Cancel(matchID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.timers[matchID]
	if !ok {
		return false
	}
	delete(s.timers, matchID)
	e.t.Stop()
	return true
}

// Armed reports whether a timer for matchID is pending.
func (s *Timers) Armed(matchID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[matchID]
	return ok
}

func (s *Timers) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop disarms everything, used on shutdown.
func (s *Timers) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.timers {
		e.t.Stop()
		delete(s.timers, id)
	}
}

// Cancel disarms this handle's timer if it is still the armed one.
func (h *Handle) Cancel() bool {
	if h == nil {
		return false
	}
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	e, ok := h.s.timers[h.matchID]
	if !ok || e.gen != h.gen {
		return false
	}
	delete(h.s.timers, h.matchID)
	e.t.Stop()
	return true
}
