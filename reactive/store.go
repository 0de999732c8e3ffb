package reactive

import (
	"sync"
)

// Readable is a value container that notifies subscribers of changes.
//
// Contract:
//   - Subscribe calls the listener once with the current value before it
//     returns, then once per change, in emission order.
//   - The returned function stops notifications; calling it more than once is safe.
type Readable[T any] interface {
	Get() T
	Subscribe(listener func(T)) (unsubscribe func())
}

// Binding is a Readable whose value can be replaced by its holder.
type Binding[T any] interface {
	Readable[T]
	Set(value T)
	Update(fn func(T) T)
}

// Source is the type-erased view of a Readable. The namespace proxy uses it
// to recognise reactive inputs regardless of their element type.
type Source interface {
	Snapshot() any
	Observe(listener func(any)) (unsubscribe func())
}

// StartFunc runs when a store gains its first subscriber. It may call set to
// push values and returns a function that runs when the last subscriber leaves.
type StartFunc[T any] func(set func(T)) (stop func())

type subscriber[T any] struct {
	id uint64
	fn func(T)
}

// Store is the default Binding implementation.
//
// Notifications are serialized through a queue: a Set issued from inside a
// listener, or concurrently from another goroutine, is delivered after the
// current round finishes, so every subscriber sees values in the order they
// were set.
type Store[T any] struct {
	mu       sync.Mutex
	value    T
	subs     []subscriber[T]
	nextID   uint64
	pending  []T
	draining bool
	start    StartFunc[T]
	stop     func()
}

// Writable creates a Store holding initial. An optional StartFunc is invoked
// lazily on first subscription.
func Writable[T any](initial T, start ...StartFunc[T]) *Store[T] {
	s := &Store[T]{value: initial}
	if len(start) > 0 {
		s.start = start[0]
	}
	return s
}

// Get returns the current value. Stores with a StartFunc and no subscribers
// are started and stopped once so the returned value is current.
func (s *Store[T]) Get() T {
	s.mu.Lock()
	lazy := s.start != nil && len(s.subs) == 0
	s.mu.Unlock()

	if lazy {
		unsubscribe := s.Subscribe(func(T) {})
		unsubscribe()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Set replaces the value and notifies subscribers.
func (s *Store[T]) Set(value T) {
	s.mu.Lock()
	s.value = value
	if len(s.subs) == 0 && !s.draining {
		s.mu.Unlock()
		return
	}
	s.pending = append(s.pending, value)
	if s.draining {
		s.mu.Unlock()
		return
	}

	s.draining = true
	for len(s.pending) > 0 {
		next := s.pending[0]
		s.pending = s.pending[1:]
		subs := make([]subscriber[T], len(s.subs))
		copy(subs, s.subs)
		s.mu.Unlock()

		for _, sub := range subs {
			sub.fn(next)
		}

		s.mu.Lock()
	}
	s.draining = false
	s.mu.Unlock()
}

// Update replaces the value with fn applied to the current one.
func (s *Store[T]) Update(fn func(T) T) {
	s.mu.Lock()
	current := s.value
	s.mu.Unlock()
	s.Set(fn(current))
}

// Subscribe registers listener and calls it immediately with the current value.
func (s *Store[T]) Subscribe(listener func(T)) func() {
	s.mu.Lock()
	first := len(s.subs) == 0 && s.start != nil && s.stop == nil
	s.mu.Unlock()

	if first {
		stop := s.start(s.Set)
		if stop == nil {
			stop = func() {}
		}
		s.mu.Lock()
		s.stop = stop
		s.mu.Unlock()
	}

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs = append(s.subs, subscriber[T]{id: id, fn: listener})
	current := s.value
	s.mu.Unlock()

	listener(current)

	var once sync.Once
	return func() {
		once.Do(func() { s.unsubscribe(id) })
	}
}

func (s *Store[T]) unsubscribe(id uint64) {
	s.mu.Lock()
	for i, sub := range s.subs {
		if sub.id == id {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			break
		}
	}
	var stop func()
	if len(s.subs) == 0 && s.stop != nil {
		stop = s.stop
		s.stop = nil
	}
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
}

// Subscribers returns the number of active subscribers.
func (s *Store[T]) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Snapshot implements Source.
func (s *Store[T]) Snapshot() any {
	return s.Get()
}

// Observe implements Source.
func (s *Store[T]) Observe(listener func(any)) func() {
	return s.Subscribe(func(v T) { listener(v) })
}

var (
	_ Binding[any] = (*Store[any])(nil)
	_ Source       = (*Store[any])(nil)
)
