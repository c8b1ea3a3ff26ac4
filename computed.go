package entitygraph

// AnySignal is the minimal interface Computed needs from a dependency: a
// way to get notified of future changes, and to read the current value
// without knowing its type parameter. *Signal[T] and *Computed[T] both
// satisfy it for any T. Exported (rather than the narrower internal
// watchAny) because pkg/store's indexes need to watch and read
// Signal-valued index keys from outside this package.
type AnySignal interface {
	WatchAny(fn func()) Cleanup
	GetAny() any
}

func (s *Signal[T]) WatchAny(fn func()) Cleanup {
	return s.Watch(func(T, T) { fn() })
}

func (c *Computed[T]) WatchAny(fn func()) Cleanup {
	return c.Watch(func(T, T) { fn() })
}

// Computed is a read-only Signal whose value is a pure function of an
// explicit list of dependency signals — no implicit tracking; the
// dependency list is supplied at construction. It recomputes and
// republishes (subject to the same equal-value suppression as Signal)
// whenever any dependency changes.
type Computed[T any] struct {
	inner  *Signal[T]
	compute func() T
	unsubs []Cleanup
}

// NewComputed creates a Computed whose value is compute(), re-evaluated
// whenever any of deps changes. eq overrides equality the same way
// NewSignal's does.
func NewComputed[T any](compute func() T, eq func(a, b T) bool, deps ...AnySignal) *Computed[T] {
	c := &Computed[T]{
		inner:   NewSignal(compute(), eq),
		compute: compute,
	}

	for _, dep := range deps {
		unsub := dep.WatchAny(c.recompute)
		c.unsubs = append(c.unsubs, unsub)
	}

	c.inner.OnDispose(func() {
		for _, u := range c.unsubs {
			safeCall("computed-unsub", u)
		}
	})

	return c
}

// Disposable exposes the embedded lifecycle handle; Computed does not
// embed Disposable directly because it forwards to an inner Signal that
// already carries the value/watcher bookkeeping.
func (c *Computed[T]) Disposable() *Disposable {
	return &c.inner.Disposable
}

func (c *Computed[T]) recompute() {
	safeCall("computed-recompute", func() {
		c.inner.Set(c.compute())
	})
}

// Get returns the most recently computed value.
func (c *Computed[T]) Get() T { return c.inner.Get() }

// Watch subscribes to future recomputations only.
func (c *Computed[T]) Watch(fn func(newVal, oldVal T)) Cleanup { return c.inner.Watch(fn) }

// Use subscribes and fires immediately with the current value, then on
// every recomputation.
func (c *Computed[T]) Use(fn func(newVal, oldVal T) Cleanup) Cleanup { return c.inner.Use(fn) }

// Dispose releases all dependency subscriptions and detaches watchers.
func (c *Computed[T]) Dispose() { c.inner.Dispose() }

// IsDisposed reports whether Dispose has already run.
func (c *Computed[T]) IsDisposed() bool { return c.inner.IsDisposed() }
