package service

import (
	"sort"
	"sync"
)

// keyedLocker serializes work per key (a match or a player) while unrelated
// keys proceed in parallel. Keys are always taken in sorted order.
type keyedLocker struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedLocker() *keyedLocker {
	return &keyedLocker{locks: make(map[string]*refLock)}
}

func (l *keyedLocker) Lock(keys ...string) (unlock func()) {
	keys = dedupSorted(keys)

	held := make([]*refLock, 0, len(keys))
	for _, k := range keys {
		l.mu.Lock()
		rl, ok := l.locks[k]
		if !ok {
			rl = &refLock{}
			l.locks[k] = rl
		}
		rl.refs++
		l.mu.Unlock()

		rl.mu.Lock()
		held = append(held, rl)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			l.mu.Lock()
			held[i].refs--
			if held[i].refs == 0 {
				delete(l.locks, keys[i])
			}
			l.mu.Unlock()
		}
	}
}

func (l *keyedLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func dedupSorted(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	n := 0
	for i, k := range out {
		if i == 0 || k != out[n-1] {
			out[n] = k
			n++
		}
	}
	return out[:n]
}

func matchKey(id string) string  { return "match:" + id }
func playerKey(id string) string { return "player:" + id }
