// Package state holds observable snapshots for the session and domain stores.
//
// A Container owns one value. Every Update publishes a copy of the snapshot to
// all subscribers in update order. Publishing never blocks: a subscriber that
// falls behind loses its oldest pending snapshot.
package state

import (
	"sync"

	apperrors "github.com/R3E-Network/payflow/internal/errors"
)

// Status is the coarse lifecycle of a container.
type Status int

const (
	NotLoaded Status = iota
	Loading
	Loaded
	LoadedWithError
)

func (s Status) String() string {
	switch s {
	case NotLoaded:
		return "not-loaded"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case LoadedWithError:
		return "loaded-with-error"
	default:
		return "unknown"
	}
}

// Snapshot is an immutable view of a container's state.
type Snapshot[T any] struct {
	Data         T
	Loaded       bool
	IsLoading    bool
	IsProcessing bool
	Err          *apperrors.Details
	Version      uint64
}

// Status derives the lifecycle from the flags. An error never implies that
// Data was discarded.
func (s Snapshot[T]) Status() Status {
	switch {
	case s.IsLoading:
		return Loading
	case s.Err != nil:
		return LoadedWithError
	case s.Loaded:
		return Loaded
	default:
		return NotLoaded
	}
}

// Container guards one Snapshot.
type Container[T any] struct {
	mu      sync.Mutex
	snap    Snapshot[T]
	initial T
	subs    map[int]chan Snapshot[T]
	nextSub int
}

// New creates a container whose Data starts as initial.
func New[T any](initial T) *Container[T] {
	return &Container[T]{
		snap:    Snapshot[T]{Data: initial},
		initial: initial,
		subs:    make(map[int]chan Snapshot[T]),
	}
}

// Snapshot returns the current state.
func (c *Container[T]) Snapshot() Snapshot[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Update applies fn under the lock, bumps the version and publishes.
// fn must not block and must replace, not mutate, shared slices and maps.
func (c *Container[T]) Update(fn func(s *Snapshot[T])) Snapshot[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.snap)
	c.snap.Version++
	c.publish()
	return c.snap
}

// Reset restores the initial state and publishes it.
func (c *Container[T]) Reset() Snapshot[T] {
	return c.Update(func(s *Snapshot[T]) {
		version := s.Version
		*s = Snapshot[T]{Data: c.initial, Version: version}
	})
}

// Subscribe returns a channel receiving every subsequent snapshot and a
// cancel func that closes it. buf below 1 is treated as 1.
func (c *Container[T]) Subscribe(buf int) (<-chan Snapshot[T], func()) {
	if buf < 1 {
		buf = 1
	}
	ch := make(chan Snapshot[T], buf)

	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
			close(ch)
		})
	}
}

func (c *Container[T]) publish() {
	for _, ch := range c.subs {
		for {
			select {
			case ch <- c.snap:
			default:
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}
