package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"rps_wager/internal/domain"
	"rps_wager/internal/repository"
	"rps_wager/internal/scheduler"
)

type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func newMockClock(t time.Time) *mockClock { return &mockClock{now: t} }

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// seqRandom returns queued values, then zeros.
type seqRandom struct {
	mu   sync.Mutex
	vals []int
}

func (r *seqRandom) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.vals) == 0 {
		return 0
	}
	v := r.vals[0]
	r.vals = r.vals[1:]
	return v % n
}

func (r *seqRandom) queue(vals ...int) {
	r.mu.Lock()
	r.vals = append(r.vals, vals...)
	r.mu.Unlock()
}

// fakeTimers records armed callbacks and fires them only on request.
type fakeTimers struct {
	mu     sync.Mutex
	armed  map[string]func()
	delays map[string]time.Duration
}

func newFakeTimers() *fakeTimers {
	return &fakeTimers{armed: make(map[string]func()), delays: make(map[string]time.Duration)}
}

func (f *fakeTimers) Arm(matchID string, d time.Duration, fn func()) *scheduler.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.armed[matchID] = fn
	f.delays[matchID] = d
	return nil
}

func (f *fakeTimers) Cancel(matchID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.armed[matchID]
	delete(f.armed, matchID)
	return ok
}

func (f *fakeTimers) Armed(matchID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.armed[matchID]
	return ok
}

func (f *fakeTimers) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.armed)
}

func (f *fakeTimers) delay(matchID string) time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.delays[matchID]
}

// fire runs the callback the way a real timer would: the entry is removed
// first, then fn runs.
func (f *fakeTimers) fire(matchID string) error {
	f.mu.Lock()
	fn, ok := f.armed[matchID]
	delete(f.armed, matchID)
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("no timer armed for %s", matchID)
	}
	fn()
	return nil
}

var errStorageDown = errors.New("storage down")

// flakyStore fails the next n units of work.
type flakyStore struct {
	repository.Store
	fails atomic.Int32
}

func (s *flakyStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if s.fails.Load() > 0 {
		s.fails.Add(-1)
		return errStorageDown
	}
	return s.Store.RunInTx(ctx, fn)
}

// staleListStore serves a fixed listing of Playing matches, as if the
// listing was read before another node settled them.
type staleListStore struct {
	repository.Store
	playing []*domain.Match
}

func (s *staleListStore) ListMatches(ctx context.Context, status domain.Status) ([]*domain.Match, error) {
	if status == domain.StatusPlaying {
		return s.playing, nil
	}
	return s.Store.ListMatches(ctx, status)
}

func seqIDs(prefix string) func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("%s-%d", prefix, n.Add(1)) }
}
