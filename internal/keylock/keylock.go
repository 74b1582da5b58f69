// Package keylock provides per-key mutual exclusion for the in-memory stores,
// standing in for the row locks Postgres takes with SELECT ... FOR UPDATE.
package keylock

import (
	"context"
	"sync"
)

type Set struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func New() *Set {
	return &Set{slots: make(map[string]*slot)}
}

// Lock blocks until key is free or ctx is done. The returned func releases it.
func (s *Set) Lock(ctx context.Context, key string) (func(), error) {
	s.mu.Lock()
	sl, ok := s.slots[key]
	if !ok {
		sl = &slot{ch: make(chan struct{}, 1)}
		s.slots[key] = sl
	}
	sl.refs++
	s.mu.Unlock()

	select {
	case sl.ch <- struct{}{}:
	case <-ctx.Done():
		s.drop(key, sl)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-sl.ch
			s.drop(key, sl)
		})
	}, nil
}

func (s *Set) drop(key string, sl *slot) {
	s.mu.Lock()
	sl.refs--
	if sl.refs == 0 {
		delete(s.slots, key)
	}
	s.mu.Unlock()
}
