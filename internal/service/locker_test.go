package service

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyedLockerSerializesSameKey(t *testing.T) {
	l := newKeyedLocker()
	var mu sync.Mutex
	inside, maxInside := 0, 0

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock(matchKey("m1"), playerKey("p1"))
			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInside)
	assert.Equal(t, 0, l.size(), "released locks are forgotten")
}

func TestKeyedLockerDifferentKeysDoNotBlock(t *testing.T) {
	l := newKeyedLocker()
	unlock := l.Lock(matchKey("a"))
	defer unlock()

	done := make(chan struct{})
	go func() {
		l.Lock(matchKey("b"), matchKey("b"))()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on another key blocked")
	}
}

func TestDedupSorted(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, dedupSorted([]string{"b", "", "a", "b"}))
}
