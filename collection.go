package entitygraph

import "sync"

// Item is the constraint Collection elements must satisfy: every element
// is itself a Disposable, ordered and deduplicated by the Collection that
// holds it.
type Item interface {
	Disposer() *Disposable
}

// listener is one registered callback plus a stable id used for
// unsubscription. Go func values aren't comparable, so identity is
// tracked explicitly via id rather than by value.
type listener[T any] struct {
	id uint64
	fn func(T)
}

// indexEntry is one reactively-maintained index on a Collection: a getter
// producing either a static key or a Signal[key], and the resulting
// key -> set-of-items map.
type indexEntry[T Item] struct {
	getter  func(T) any // returns either a plain comparable key, or an AnySignal
	buckets map[any][]T
	watches map[*Disposable]Cleanup // per-item signal unsubscribe
	onMove  []*listener[T]          // fired with item whenever its bucket changes
}

// Collection is an ordered, deduplicating container of Disposables. Add
// rejects duplicates by Disposable pointer identity. Deleting an item
// disposes it; Extract removes it without disposing (for moves between
// collections). AddIndex installs a reactively maintained index; Where
// returns a live, read-only child Collection tracking one bucket.
type Collection[T Item] struct {
	Disposable

	mu      sync.Mutex
	items   []T
	byDisp  map[*Disposable]bool
	indexes map[string]*indexEntry[T]

	onAdded   []*listener[T]
	onRemoved []*listener[T]
	nextID    uint64
}

// NewCollection creates an empty Collection.
func NewCollection[T Item]() *Collection[T] {
	return &Collection[T]{
		byDisp:  make(map[*Disposable]bool),
		indexes: make(map[string]*indexEntry[T]),
	}
}

// Add appends item, rejecting it (without adding) if an item with the
// same Disposable identity is already present. Equivalent to Adopt; both
// names are kept as the pair of entry points into a Collection.
func (c *Collection[T]) Add(item T) bool { return c.Adopt(item) }

// Adopt takes ownership of item: parents it to the collection, indexes
// it, and fires on_added listeners. Returns false, leaving the existing
// member in place, if item is already a member.
func (c *Collection[T]) Adopt(item T) bool {
	disp := item.Disposer()

	c.mu.Lock()
	if c.byDisp[disp] {
		c.mu.Unlock()
		return false
	}
	c.byDisp[disp] = true
	c.items = append(c.items, item)
	for name, idx := range c.indexes {
		c.installIndexWatch(name, idx, item)
	}
	listeners := append([]*listener[T]{}, c.onAdded...)
	c.mu.Unlock()

	disp.SetParent(&c.Disposable)
	disp.OnDispose(func() { c.remove(item, false) })

	for _, l := range listeners {
		l2 := l
		safeCall("on_added", func() { l2.fn(item) })
	}
	return true
}

// Delete removes every item matching pred and disposes each of them.
// Returns the number removed.
func (c *Collection[T]) Delete(pred func(T) bool) int {
	matches := c.match(pred)
	for _, item := range matches {
		item.Disposer().Dispose()
	}
	return len(matches)
}

// Extract removes every item matching pred WITHOUT disposing them (for
// moving an item to another Collection) and returns them.
func (c *Collection[T]) Extract(pred func(T) bool) []T {
	matches := c.match(pred)
	for _, item := range matches {
		c.remove(item, true)
	}
	return matches
}

func (c *Collection[T]) match(pred func(T) bool) []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []T
	for _, item := range c.items {
		if pred(item) {
			out = append(out, item)
		}
	}
	return out
}

// remove drops item from bookkeeping. detach additionally severs the
// parent link (used by Extract, where the item survives).
func (c *Collection[T]) remove(item T, detach bool) {
	disp := item.Disposer()

	c.mu.Lock()
	if !c.byDisp[disp] {
		c.mu.Unlock()
		return
	}
	delete(c.byDisp, disp)
	for i, existing := range c.items {
		if existing.Disposer() == disp {
			c.items = append(c.items[:i], c.items[i+1:]...)
			break
		}
	}
	for _, idx := range c.indexes {
		c.uninstallIndexWatch(idx, item)
	}
	listeners := append([]*listener[T]{}, c.onRemoved...)
	c.mu.Unlock()

	if detach {
		disp.detachFromParent()
	}

	for _, l := range listeners {
		l2 := l
		safeCall("on_removed", func() { l2.fn(item) })
	}
}

// Iter returns a snapshot slice of current items in insertion order.
func (c *Collection[T]) Iter() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

// Len returns the current item count.
func (c *Collection[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Collection[T]) addListener(list *[]*listener[T], fn func(T)) Cleanup {
	c.mu.Lock()
	c.nextID++
	l := &listener[T]{id: c.nextID, fn: fn}
	*list = append(*list, l)
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, existing := range *list {
			if existing.id == l.id {
				*list = append((*list)[:i], (*list)[i+1:]...)
				return
			}
		}
	}
}

// OnAdded registers fn to run after every future Add/Adopt.
func (c *Collection[T]) OnAdded(fn func(T)) Cleanup { return c.addListener(&c.onAdded, fn) }

// OnRemoved registers fn to run after every future removal.
func (c *Collection[T]) OnRemoved(fn func(T)) Cleanup { return c.addListener(&c.onRemoved, fn) }

// AddIndex installs a reactively maintained index on the collection.
// getter(item) must return either a comparable key or an AnySignal for
// some comparable key type; a Signal-valued getter is watched for the
// lifetime of the item, moving it between buckets as the signal changes.
func (c *Collection[T]) AddIndex(name string, getter func(T) any) {
	c.mu.Lock()
	idx := &indexEntry[T]{
		getter:  getter,
		buckets: make(map[any][]T),
		watches: make(map[*Disposable]Cleanup),
	}
	c.indexes[name] = idx
	items := append([]T{}, c.items...)
	for _, item := range items {
		c.installIndexWatch(name, idx, item)
	}
	c.mu.Unlock()
}

// installIndexWatch must be called with c.mu held.
func (c *Collection[T]) installIndexWatch(name string, idx *indexEntry[T], item T) {
	key, sig := resolveIndexKey(idx.getter(item))
	idx.buckets[key] = append(idx.buckets[key], item)

	if sig == nil {
		return
	}
	disp := item.Disposer()
	unsub := sig.WatchAny(func() {
		c.mu.Lock()
		newKey, _ := resolveIndexKey(idx.getter(item))
		c.moveIndexBucket(idx, item, newKey)
		c.mu.Unlock()
	})
	idx.watches[disp] = unsub
}

// moveIndexBucket must be called with c.mu held. It releases c.mu while
// the onMove listeners run (they read the collection's indexes) and
// holds it again on return.
func (c *Collection[T]) moveIndexBucket(idx *indexEntry[T], item T, newKey any) {
	for k, bucket := range idx.buckets {
		for i, existing := range bucket {
			if existing.Disposer() == item.Disposer() {
				idx.buckets[k] = append(bucket[:i], bucket[i+1:]...)
				if k == newKey {
					idx.buckets[k] = append(idx.buckets[k], item)
					return
				}
				break
			}
		}
	}
	idx.buckets[newKey] = append(idx.buckets[newKey], item)

	listeners := append([]*listener[T]{}, idx.onMove...)
	c.mu.Unlock()
	defer c.mu.Lock()
	for _, l := range listeners {
		if l == nil {
			continue
		}
		l2 := l
		safeCall("index-move", func() { l2.fn(item) })
	}
}

// uninstallIndexWatch must be called with c.mu held.
func (c *Collection[T]) uninstallIndexWatch(idx *indexEntry[T], item T) {
	disp := item.Disposer()
	if unsub, ok := idx.watches[disp]; ok {
		safeCall("index-unwatch", unsub)
		delete(idx.watches, disp)
	}
	for k, bucket := range idx.buckets {
		for i, existing := range bucket {
			if existing.Disposer() == disp {
				idx.buckets[k] = append(bucket[:i], bucket[i+1:]...)
				break
			}
		}
	}
}

func resolveIndexKey(raw any) (any, AnySignal) {
	if v, ok := raw.(AnySignal); ok {
		return v.GetAny(), v
	}
	return raw, nil
}

// GetAny exposes a Signal's value as an any, so index getters can return
// a *Signal[K] for arbitrary comparable K and still be read generically.
func (s *Signal[T]) GetAny() any { return s.Get() }

// GetAny is Computed's counterpart to Signal.GetAny.
func (c *Computed[T]) GetAny() any { return c.Get() }

// Where returns a live child Collection tracking the items currently in
// bucket key of index name. It subscribes to the parent's add/remove
// traffic and to direct index-key changes, and disposes with the parent.
// The child does not guard its own Add/Adopt: an item added directly to
// it is kept without being checked against the bucket.
func (c *Collection[T]) Where(name string, key any) *Collection[T] {
	child := NewCollection[T]()
	child.SetParent(&c.Disposable)

	belongs := func(item T) bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		idx, ok := c.indexes[name]
		if !ok {
			return false
		}
		k, _ := resolveIndexKey(idx.getter(item))
		return k == key
	}

	for _, item := range c.Iter() {
		if belongs(item) {
			child.adoptShared(item)
		}
	}

	unsubAdd := c.OnAdded(func(item T) {
		if belongs(item) {
			child.adoptShared(item)
		}
	})
	unsubRemove := c.OnRemoved(func(item T) {
		child.dropShared(item)
	})

	c.mu.Lock()
	idx, hasIdx := c.indexes[name]
	c.mu.Unlock()

	var unsubMove Cleanup
	if hasIdx {
		unsubMove = c.watchIndexMoves(idx, func(item T) {
			if belongs(item) {
				child.adoptShared(item)
			} else {
				child.dropShared(item)
			}
		})
	}

	child.OnDispose(func() {
		safeCall("where-unsub", unsubAdd)
		safeCall("where-unsub", unsubRemove)
		if unsubMove != nil {
			safeCall("where-unsub", unsubMove)
		}
	})

	return child
}

// watchIndexMoves registers fn to run whenever any item's bucket under
// idx changes (a reindex triggered by a Signal-valued getter firing).
func (c *Collection[T]) watchIndexMoves(idx *indexEntry[T], fn func(T)) Cleanup {
	c.mu.Lock()
	l := &listener[T]{fn: fn}
	idx.onMove = append(idx.onMove, l)
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, existing := range idx.onMove {
			if existing == l {
				idx.onMove[i] = nil
				return
			}
		}
	}
}

// adoptShared adds item to a Where child collection without taking
// ownership: the child is a read-only view, so it does not re-parent the
// item or register a disposal-triggered removal — the source Collection
// already owns both.
func (c *Collection[T]) adoptShared(item T) {
	disp := item.Disposer()
	c.mu.Lock()
	if c.byDisp[disp] {
		c.mu.Unlock()
		return
	}
	c.byDisp[disp] = true
	c.items = append(c.items, item)
	listeners := append([]*listener[T]{}, c.onAdded...)
	c.mu.Unlock()

	for _, l := range listeners {
		l2 := l
		safeCall("on_added", func() { l2.fn(item) })
	}
}

func (c *Collection[T]) dropShared(item T) {
	disp := item.Disposer()
	c.mu.Lock()
	if !c.byDisp[disp] {
		c.mu.Unlock()
		return
	}
	delete(c.byDisp, disp)
	for i, existing := range c.items {
		if existing.Disposer() == disp {
			c.items = append(c.items[:i], c.items[i+1:]...)
			break
		}
	}
	listeners := append([]*listener[T]{}, c.onRemoved...)
	c.mu.Unlock()

	for _, l := range listeners {
		l2 := l
		safeCall("on_removed", func() { l2.fn(item) })
	}
}
