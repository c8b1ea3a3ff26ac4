// Package entitygraph provides the lifecycle and reactive primitives that
// back a typed entity graph: disposables with cascading ownership, signals
// and computed values, and the ordered/indexed collections built on top of
// them. Higher-level pieces — the entity store, views, the path-aware
// traversal engine, and the async primitive — live in sibling packages
// under pkg/.
package entitygraph

import "sync"

// Cleanup is a function registered with a Disposable's onDispose list.
type Cleanup func()

// Disposable is a lifecycle handle with an ordered (LIFO) list of cleanup
// callbacks, an optional parent, and a set of children. Disposing it runs
// its own cleanups first, then cascades to its children, then detaches
// from its parent. It is embedded by value into every owning type (Signal,
// Collection, the entity store, traversal collections, promises) so they
// all get the same parenting and disposal semantics for free.
type Disposable struct {
	mu       sync.Mutex
	cleanups []Cleanup
	parent   *Disposable
	children []*Disposable
	disposed bool
}

// OnDispose appends a cleanup callback, run in LIFO order when the
// Disposable is disposed. Calling OnDispose on an already-disposed
// Disposable runs fn immediately.
func (d *Disposable) OnDispose(fn Cleanup) {
	d.mu.Lock()
	if d.disposed {
		d.mu.Unlock()
		safeCall("onDispose", fn)
		return
	}
	d.cleanups = append(d.cleanups, fn)
	d.mu.Unlock()
}

// IsDisposed reports whether Dispose has already run.
func (d *Disposable) IsDisposed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.disposed
}

// SetParent links d to a new parent, cascading the parent's disposal to d.
// Any previous parent relationship is detached first.
func (d *Disposable) SetParent(parent *Disposable) {
	d.detachFromParent()

	if parent == nil {
		return
	}

	parent.mu.Lock()
	if parent.disposed {
		parent.mu.Unlock()
		d.Dispose()
		return
	}
	parent.children = append(parent.children, d)
	parent.mu.Unlock()

	d.mu.Lock()
	d.parent = parent
	d.mu.Unlock()
}

func (d *Disposable) detachFromParent() {
	d.mu.Lock()
	parent := d.parent
	d.parent = nil
	d.mu.Unlock()

	if parent == nil {
		return
	}

	parent.mu.Lock()
	for i, child := range parent.children {
		if child == d {
			parent.children = append(parent.children[:i], parent.children[i+1:]...)
			break
		}
	}
	parent.mu.Unlock()
}

// Dispose is idempotent: the first call runs cleanups (LIFO), then
// disposes children (reverse-insertion order), then detaches from the
// parent. Subsequent calls are no-ops. A failing cleanup or child
// disposal is caught and does not prevent the rest from running.
func (d *Disposable) Dispose() {
	d.mu.Lock()
	if d.disposed {
		d.mu.Unlock()
		return
	}
	d.disposed = true
	cleanups := d.cleanups
	d.cleanups = nil
	children := d.children
	d.children = nil
	d.mu.Unlock()

	for i := len(cleanups) - 1; i >= 0; i-- {
		safeCall("dispose-cleanup", cleanups[i])
	}

	for i := len(children) - 1; i >= 0; i-- {
		children[i].Dispose()
	}

	d.detachFromParent()
}
