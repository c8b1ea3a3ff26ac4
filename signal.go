package entitygraph

import "sync"

// watcher is either a "watch" subscriber (fires only on future changes) or
// a "use" subscriber (fires immediately with the current value, then on
// every change); useFn additionally may return a per-fire cleanup that
// runs before the next fire and at unsubscribe/disposal.
type watcher[T any] struct {
	id      uint64
	fn      func(newVal, oldVal T)
	cleanup Cleanup
}

// Signal is a mutable reactive cell with equal-value write suppression:
// Set only notifies watchers when the new value differs from the old one.
// Signal embeds Disposable, so disposing a Signal detaches all watchers.
type Signal[T any] struct {
	Disposable

	mu       sync.Mutex
	value    T
	watchers []*watcher[T]
	nextID   uint64
	equal    func(a, b T) bool
}

// NewSignal creates a Signal holding initial. eq, if non-nil, overrides
// the default equality check (comparable-by-value via reflect-free
// closures for non-comparable T); a nil eq falls back to treating every
// Set as a change (safe default for non-comparable payloads such as
// slices/maps/funcs).
func NewSignal[T any](initial T, eq func(a, b T) bool) *Signal[T] {
	return &Signal[T]{value: initial, equal: eq}
}

// Get returns the current value.
func (s *Signal[T]) Get() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Set assigns v. If v is distinct from the previous value (per the
// equality function, or always-distinct if none was supplied), every
// watcher is invoked synchronously, in registration order, with
// (new, old). Per-fire cleanups from "use" subscribers run first.
func (s *Signal[T]) Set(v T) {
	s.mu.Lock()
	old := s.value
	if s.equal != nil && s.equal(old, v) {
		s.mu.Unlock()
		return
	}
	s.value = v
	watchers := make([]*watcher[T], len(s.watchers))
	copy(watchers, s.watchers)
	s.mu.Unlock()

	for _, w := range watchers {
		s.fire(w, v, old)
	}
}

func (s *Signal[T]) fire(w *watcher[T], newVal, oldVal T) {
	if w.cleanup != nil {
		cleanup := w.cleanup
		w.cleanup = nil
		safeCall("watcher-cleanup", cleanup)
	}
	safeCall("watcher", func() { w.fn(newVal, oldVal) })
}

// Watch subscribes fn to future changes only; it does not fire for the
// current value. Returns an unsubscribe Cleanup.
func (s *Signal[T]) Watch(fn func(newVal, oldVal T)) Cleanup {
	return s.subscribe(fn, false)
}

// Use subscribes fn and fires it immediately with the current value (old
// == new on that first call), then again on every future change. If fn
// returns a non-nil func(), that function is treated as a per-fire cleanup
// invoked before the next fire and at unsubscribe/disposal.
func (s *Signal[T]) Use(fn func(newVal, oldVal T) Cleanup) Cleanup {
	var w *watcher[T]
	call := func(newVal, oldVal T) {
		w.cleanup = fn(newVal, oldVal)
	}

	s.mu.Lock()
	s.nextID++
	w = &watcher[T]{id: s.nextID, fn: call}
	s.watchers = append(s.watchers, w)
	current := s.value
	s.mu.Unlock()

	safeCall("watcher", func() { w.fn(current, current) })

	return s.unsubscribeFn(w)
}

func (s *Signal[T]) subscribe(fn func(newVal, oldVal T), immediate bool) Cleanup {
	s.mu.Lock()
	s.nextID++
	w := &watcher[T]{id: s.nextID, fn: fn}
	s.watchers = append(s.watchers, w)
	current := s.value
	s.mu.Unlock()

	if immediate {
		safeCall("watcher", func() { fn(current, current) })
	}

	return s.unsubscribeFn(w)
}

func (s *Signal[T]) unsubscribeFn(w *watcher[T]) Cleanup {
	var once sync.Once
	unsub := func() {
		once.Do(func() {
			s.mu.Lock()
			for i, existing := range s.watchers {
				if existing == w {
					s.watchers = append(s.watchers[:i], s.watchers[i+1:]...)
					break
				}
			}
			s.mu.Unlock()
			if w.cleanup != nil {
				cleanup := w.cleanup
				w.cleanup = nil
				safeCall("watcher-cleanup", cleanup)
			}
		})
	}
	s.OnDispose(unsub)
	return unsub
}
