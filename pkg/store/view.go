package store

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/pathgraph/entitygraph"
)

// Filter narrows a View to entities whose value at an installed index
// equals Key. A View is a read-only, ref-counted cache keyed by
// (type, sorted filters).
type Filter struct {
	Index string
	Key   any
}

// queryCache is the ref-counted, reactively maintained membership set
// backing one or more Views that share the same (type, filters) key.
type queryCache struct {
	mu sync.Mutex

	typ      string
	filters  []Filter
	refCount int

	uris         map[string]bool
	lastAddedURI string

	onAdded   []*listener[Entity]
	onRemoved []*listener[Entity]
	nextID    uint64
}

func canonicalCacheKey(typ string, filters []Filter) string {
	sorted := append([]Filter{}, filters...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })
	key := typ
	for _, f := range sorted {
		key += fmt.Sprintf("|%s=%v", f.Index, f.Key)
	}
	return key
}

// matches reports whether entity (already known to be of c.typ) satisfies
// every filter, by reading straight from each referenced index's current
// bucket membership.
func (c *queryCache) matches(s *EntityStore, entity Entity) bool {
	uri := entity.URI()
	for _, f := range c.filters {
		idx, ok := s.indexes[c.typ+":"+f.Index]
		if !ok {
			panic(fmt.Errorf("%w: %s:%s", entitygraph.ErrUnknownIndex, c.typ, f.Index))
		}
		if !idx.buckets[f.Key][uri] {
			return false
		}
	}
	return true
}

// applyMembership updates c's membership for entity to shouldMatch,
// firing onAdded/onRemoved if membership actually changes. Shared by the
// index-driven rules below (reconsider, addOrRemove) and by the
// custom-membership derived Views (WhereIn, Follow), which compute
// shouldMatch their own way instead of via c.matches.
func (c *queryCache) applyMembership(entity Entity, shouldMatch bool) {
	uri := entity.URI()
	c.mu.Lock()
	already := c.uris[uri]
	if shouldMatch == already {
		c.mu.Unlock()
		return
	}
	var listeners []*listener[Entity]
	if shouldMatch {
		c.uris[uri] = true
		c.lastAddedURI = uri
		listeners = append([]*listener[Entity]{}, c.onAdded...)
	} else {
		delete(c.uris, uri)
		listeners = append([]*listener[Entity]{}, c.onRemoved...)
	}
	c.mu.Unlock()

	role := "view-added"
	if !shouldMatch {
		role = "view-removed"
	}
	for _, l := range listeners {
		l2 := l
		entitygraph.SafeCall(role, func() { l2.fn(entity) })
	}
}

// reconsider re-evaluates membership for one entity (called after an
// index-watch fires a key change) and fires onAdded/onRemoved as needed.
func (c *queryCache) reconsider(s *EntityStore, entity Entity) {
	s.mu.RLock()
	nowMatches := c.matches(s, entity)
	s.mu.RUnlock()
	c.applyMembership(entity, nowMatches)
}

func (c *queryCache) addOrRemove(s *EntityStore, typ string, entity Entity, added bool) {
	if typ != c.typ {
		return
	}
	if !added {
		c.applyMembership(entity, false)
		return
	}
	s.mu.RLock()
	doesMatch := c.matches(s, entity)
	s.mu.RUnlock()
	c.applyMembership(entity, doesMatch)
}

func (s *EntityStore) updateCachesOnAdd(typ string, entity Entity) {
	s.mu.RLock()
	caches := make([]*queryCache, 0, len(s.caches))
	for _, c := range s.caches {
		caches = append(caches, c)
	}
	s.mu.RUnlock()
	for _, c := range caches {
		c.addOrRemove(s, typ, entity, true)
	}
}

func (s *EntityStore) updateCachesOnRemove(typ string, entity Entity) {
	s.mu.RLock()
	caches := make([]*queryCache, 0, len(s.caches))
	for _, c := range s.caches {
		caches = append(caches, c)
	}
	s.mu.RUnlock()
	for _, c := range caches {
		c.addOrRemove(s, typ, entity, false)
	}
}

// View is a read-only, live query over entities of one type, optionally
// narrowed by one or more index Filters. Multiple Views over the same
// (type, filters) share one underlying queryCache, ref-counted so the
// cache is torn down once the last View disposes.
type View struct {
	entitygraph.Disposable

	store    *EntityStore
	cache    *queryCache
	cacheKey string
}

// View returns a live, read-only query over every entity of typ that
// matches every filter (no filters: every entity of typ). Filters
// reference indexes installed with EntityStore.AddIndex.
func (s *EntityStore) View(typ string, filters ...Filter) *View {
	key := canonicalCacheKey(typ, filters)

	s.mu.Lock()
	c, ok := s.caches[key]
	if !ok {
		c = &queryCache{typ: typ, filters: filters, uris: make(map[string]bool)}
		for _, entity := range s.entities {
			if s.types[entity.URI()] == typ && c.matches(s, entity) {
				c.uris[entity.URI()] = true
			}
		}
		s.caches[key] = c
	}
	c.refCount++
	s.mu.Unlock()

	v := &View{store: s, cache: c, cacheKey: key}
	v.SetParent(&s.Disposable)
	v.OnDispose(func() { s.releaseView(key) })
	return v
}

// Where is shorthand for View(typ, Filter{Index: name, Key: key}).
func (s *EntityStore) Where(typ, name string, key any) *View {
	return s.View(typ, Filter{Index: name, Key: key})
}

func (s *EntityStore) releaseView(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.caches[key]
	if !ok {
		return
	}
	c.refCount--
	if c.refCount <= 0 {
		delete(s.caches, key)
	}
}

// Iter returns a snapshot of every entity currently matching the view.
func (v *View) Iter() []Entity {
	v.cache.mu.Lock()
	uris := make([]string, 0, len(v.cache.uris))
	for uri := range v.cache.uris {
		uris = append(uris, uri)
	}
	v.cache.mu.Unlock()

	sort.Strings(uris)
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()
	out := make([]Entity, 0, len(uris))
	for _, uri := range uris {
		if e, ok := v.store.entities[uri]; ok {
			out = append(out, e)
		}
	}
	return out
}

// Count returns the number of entities currently matching the view.
func (v *View) Count() int {
	v.cache.mu.Lock()
	defer v.cache.mu.Unlock()
	return len(v.cache.uris)
}

// Find returns every matching entity for which pred returns true.
func (v *View) Find(pred func(Entity) bool) []Entity {
	var out []Entity
	for _, e := range v.Iter() {
		if pred(e) {
			out = append(out, e)
		}
	}
	return out
}

// First returns the first matching entity for which pred returns true.
func (v *View) First(pred func(Entity) bool) (Entity, bool) {
	for _, e := range v.Iter() {
		if pred(e) {
			return e, true
		}
	}
	var zero Entity
	return zero, false
}

// Each calls fn for every entity currently matching the view, and again
// for every later addition. If fn returns a non-nil Cleanup, it runs
// when that entity stops matching the view (removed or disposed) or
// when Each's own subscription is disposed, whichever comes first — the
// same "fire now, fire on change, optional per-fire cleanup" shape as
// Signal.Use, applied to view membership instead of a single value.
func (v *View) Each(fn func(Entity) entitygraph.Cleanup) entitygraph.Cleanup {
	var mu sync.Mutex
	cleanups := make(map[string]entitygraph.Cleanup)

	run := func(e Entity) {
		c := fn(e)
		if c == nil {
			return
		}
		mu.Lock()
		cleanups[e.URI()] = c
		mu.Unlock()
	}

	teardown := func(e Entity) {
		mu.Lock()
		c, ok := cleanups[e.URI()]
		delete(cleanups, e.URI())
		mu.Unlock()
		if ok {
			entitygraph.SafeCall("each-cleanup", c)
		}
	}

	for _, e := range v.Iter() {
		run(e)
	}
	unAdd := v.OnAdded(run)
	unRem := v.OnRemoved(teardown)

	return func() {
		unAdd()
		unRem()
		mu.Lock()
		remaining := make([]entitygraph.Cleanup, 0, len(cleanups))
		for _, c := range cleanups {
			remaining = append(remaining, c)
		}
		cleanups = make(map[string]entitygraph.Cleanup)
		mu.Unlock()
		for _, c := range remaining {
			entitygraph.SafeCall("each-cleanup", c)
		}
	}
}

// asBool coerces a pred/signalGetter result to bool; a non-bool (or nil)
// value is treated as false.
func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

// entitySignalWatchSet tracks at most one per-entity Signal subscription
// per URI, letting Some/Every/Aggregate rebuild their watch list every
// recompute without leaking or double-subscribing.
type entitySignalWatchSet struct {
	mu    sync.Mutex
	byURI map[string]entitygraph.Cleanup
}

func newEntitySignalWatchSet() *entitySignalWatchSet {
	return &entitySignalWatchSet{byURI: make(map[string]entitygraph.Cleanup)}
}

// watch replaces uri's subscription (if any) with one on sig.
func (w *entitySignalWatchSet) watch(uri string, sig entitygraph.AnySignal, fn func()) {
	w.mu.Lock()
	old, hadOld := w.byURI[uri]
	w.mu.Unlock()
	if hadOld {
		old()
	}
	cleanup := sig.WatchAny(fn)
	w.mu.Lock()
	w.byURI[uri] = cleanup
	w.mu.Unlock()
}

// unwatch drops uri's subscription, if any.
func (w *entitySignalWatchSet) unwatch(uri string) {
	w.mu.Lock()
	c, ok := w.byURI[uri]
	delete(w.byURI, uri)
	w.mu.Unlock()
	if ok {
		c()
	}
}

// prune drops every subscription whose uri is not in keep.
func (w *entitySignalWatchSet) prune(keep map[string]bool) {
	w.mu.Lock()
	var stale []entitygraph.Cleanup
	for uri, c := range w.byURI {
		if !keep[uri] {
			stale = append(stale, c)
			delete(w.byURI, uri)
		}
	}
	w.mu.Unlock()
	for _, c := range stale {
		c()
	}
}

func (w *entitySignalWatchSet) disposeAll() {
	w.mu.Lock()
	all := make([]entitygraph.Cleanup, 0, len(w.byURI))
	for _, c := range w.byURI {
		all = append(all, c)
	}
	w.byURI = make(map[string]entitygraph.Cleanup)
	w.mu.Unlock()
	for _, c := range all {
		c()
	}
}

// reactiveBool backs Some/Every: a Signal[bool] recomputed from combine
// over pred's current results, watching per-entity Signals pred returns
// (via the resolveKey convention AddIndex's getter already establishes)
// as well as the view's own membership.
func (v *View) reactiveBool(pred func(Entity) any, combine func([]bool) bool) *entitygraph.Signal[bool] {
	watches := newEntitySignalWatchSet()
	var sig *entitygraph.Signal[bool]
	var compute func() bool
	notify := func() { sig.Set(compute()) }

	compute = func() bool {
		entities := v.Iter()
		seen := make(map[string]bool, len(entities))
		vals := make([]bool, len(entities))
		for i, e := range entities {
			uri := e.URI()
			seen[uri] = true
			val, asig := resolveKey(pred(e))
			vals[i] = asBool(val)
			if asig != nil {
				watches.watch(uri, asig, notify)
			} else {
				watches.unwatch(uri)
			}
		}
		watches.prune(seen)
		return combine(vals)
	}

	sig = entitygraph.NewSignal(compute(), func(a, b bool) bool { return a == b })

	unAdd := v.OnAdded(func(Entity) { notify() })
	unRem := v.OnRemoved(func(Entity) { notify() })
	sig.OnDispose(func() {
		unAdd()
		unRem()
		watches.disposeAll()
	})
	return sig
}

// Some returns a Signal reporting whether pred holds for at least one
// matching entity, recomputing on view changes and on any Signal pred
// returns.
func (v *View) Some(pred func(Entity) any) *entitygraph.Signal[bool] {
	return v.reactiveBool(pred, func(vals []bool) bool {
		for _, b := range vals {
			if b {
				return true
			}
		}
		return false
	})
}

// Every returns a Signal reporting whether pred holds for every matching
// entity (vacuously true for an empty view), recomputing the same way
// Some does.
func (v *View) Every(pred func(Entity) any) *entitygraph.Signal[bool] {
	return v.reactiveBool(pred, func(vals []bool) bool {
		for _, b := range vals {
			if !b {
				return false
			}
		}
		return true
	})
}

// Aggregate folds every matching entity into a single reactive value, in
// URI order, via reduce(accumulator, entity). signalGetter, if non-nil,
// lets the fold also depend on a per-entity Signal (e.g. a status
// field): the result recomputes whenever that Signal changes, not just
// on view membership change.
func (v *View) Aggregate(initial any, reduce func(acc any, e Entity) any, signalGetter func(Entity) entitygraph.AnySignal) *entitygraph.Signal[any] {
	watches := newEntitySignalWatchSet()
	var sig *entitygraph.Signal[any]
	var compute func() any
	notify := func() { sig.Set(compute()) }

	compute = func() any {
		entities := v.Iter()
		seen := make(map[string]bool, len(entities))
		acc := initial
		for _, e := range entities {
			uri := e.URI()
			seen[uri] = true
			acc = reduce(acc, e)
			if signalGetter != nil {
				if s := signalGetter(e); s != nil {
					watches.watch(uri, s, notify)
					continue
				}
			}
			watches.unwatch(uri)
		}
		watches.prune(seen)
		return acc
	}

	sig = entitygraph.NewSignal[any](compute(), nil)

	unAdd := v.OnAdded(func(Entity) { notify() })
	unRem := v.OnRemoved(func(Entity) { notify() })
	sig.OnDispose(func() {
		unAdd()
		unRem()
		watches.disposeAll()
	})
	return sig
}

// Latest returns a Signal of the most recently added matching entity —
// "most recent" means most recently matched, not necessarily most
// recently inserted into the store. Holds the zero Entity until the
// first match.
func (v *View) Latest() *entitygraph.Signal[Entity] {
	v.cache.mu.Lock()
	lastURI := v.cache.lastAddedURI
	v.cache.mu.Unlock()

	var initial Entity
	if lastURI != "" {
		v.store.mu.RLock()
		initial = v.store.entities[lastURI]
		v.store.mu.RUnlock()
	}

	sig := entitygraph.NewSignal[Entity](initial, nil)
	un := v.OnAdded(func(e Entity) { sig.Set(e) })
	sig.OnDispose(un)
	return sig
}

// OnAdded registers fn to run whenever an entity starts matching the
// view (either newly inserted, or moved into a matching index bucket).
func (v *View) OnAdded(fn func(Entity)) entitygraph.Cleanup {
	v.cache.mu.Lock()
	v.cache.nextID++
	l := &listener[Entity]{id: v.cache.nextID, fn: fn}
	v.cache.onAdded = append(v.cache.onAdded, l)
	v.cache.mu.Unlock()
	return func() {
		v.cache.mu.Lock()
		defer v.cache.mu.Unlock()
		for i, existing := range v.cache.onAdded {
			if existing.id == l.id {
				v.cache.onAdded = append(v.cache.onAdded[:i], v.cache.onAdded[i+1:]...)
				return
			}
		}
	}
}

// OnRemoved registers fn to run whenever an entity stops matching the
// view (either removed from the store, or moved out of a matching
// index bucket).
func (v *View) OnRemoved(fn func(Entity)) entitygraph.Cleanup {
	v.cache.mu.Lock()
	v.cache.nextID++
	l := &listener[Entity]{id: v.cache.nextID, fn: fn}
	v.cache.onRemoved = append(v.cache.onRemoved, l)
	v.cache.mu.Unlock()
	return func() {
		v.cache.mu.Lock()
		defer v.cache.mu.Unlock()
		for i, existing := range v.cache.onRemoved {
			if existing.id == l.id {
				v.cache.onRemoved = append(v.cache.onRemoved[:i], v.cache.onRemoved[i+1:]...)
				return
			}
		}
	}
}

// Where derives a new View narrowed by one additional (index, key)
// filter, sharing or creating the query cache for the combined filter
// set the same way EntityStore.View ref-counts at the top level.
func (v *View) Where(name string, key any) *View {
	filters := append(append([]Filter{}, v.cache.filters...), Filter{Index: name, Key: key})
	return v.store.View(v.cache.typ, filters...)
}

// Subscribe calls fn(e, true) for every entity currently matching the
// view, then fn(e, added) for every future addition or removal — a
// single-callback convenience over OnAdded/OnRemoved.
func (v *View) Subscribe(fn func(e Entity, added bool)) entitygraph.Cleanup {
	for _, e := range v.Iter() {
		fn(e, true)
	}
	unAdd := v.OnAdded(func(e Entity) { fn(e, true) })
	unRem := v.OnRemoved(func(e Entity) { fn(e, false) })
	return func() {
		unAdd()
		unRem()
	}
}

// GetOne returns an arbitrary currently matching entity.
func (v *View) GetOne() (Entity, bool) {
	items := v.Iter()
	if len(items) == 0 {
		var zero Entity
		return zero, false
	}
	return items[0], true
}

// Call dispatches to one of View's own methods by name, the same
// reflection idiom traversal.Wrapper.Field uses for entity field access
// — useful for a scripting or debugger-console front end working from
// method-name strings rather than static calls.
func (v *View) Call(method string, args ...any) ([]any, error) {
	m := reflect.ValueOf(v).MethodByName(method)
	if !m.IsValid() {
		return nil, fmt.Errorf("%w: View.%s", entitygraph.ErrUnknownMethod, method)
	}
	mt := m.Type()
	minArgs := mt.NumIn()
	if mt.IsVariadic() {
		minArgs--
	}
	if len(args) < minArgs || (!mt.IsVariadic() && len(args) != mt.NumIn()) {
		return nil, fmt.Errorf("%w: View.%s wants %d args, got %d", entitygraph.ErrArgMismatch, method, minArgs, len(args))
	}

	in := make([]reflect.Value, len(args))
	for i, a := range args {
		in[i] = reflect.ValueOf(a)
	}
	out := m.Call(in)
	result := make([]any, len(out))
	for i, o := range out {
		result[i] = o.Interface()
	}
	return result, nil
}

// WhereIn narrows v to entities whose value at index name equals the
// URI of some entity currently in sourceView — a reactive membership
// filter maintaining an explicit valid-ids set, distinct from the
// value-equality Filters Where composes. Reacts to v's own membership,
// sourceView's membership, and (if name's getter returns a Signal) the
// matched entity's own index value.
func (v *View) WhereIn(name string, sourceView *View) *View {
	v.store.mu.RLock()
	idx, ok := v.store.indexes[v.cache.typ+":"+name]
	v.store.mu.RUnlock()
	if !ok {
		panic(fmt.Errorf("%w: %s:%s", entitygraph.ErrUnknownIndex, v.cache.typ, name))
	}

	out := &View{store: v.store, cache: &queryCache{typ: v.cache.typ, uris: make(map[string]bool)}}

	var vmu sync.Mutex
	validIDs := make(map[string]bool)
	for _, e := range sourceView.Iter() {
		validIDs[e.URI()] = true
	}

	watches := newEntitySignalWatchSet()
	var evalOne func(e Entity)

	matches := func(e Entity) bool {
		v.store.mu.RLock()
		raw := idx.getter(e)
		v.store.mu.RUnlock()
		key, sig := resolveKey(raw)
		if sig != nil {
			watches.watch(e.URI(), sig, func() { evalOne(e) })
		} else {
			watches.unwatch(e.URI())
		}
		id, ok := key.(string)
		if !ok {
			return false
		}
		vmu.Lock()
		defer vmu.Unlock()
		return validIDs[id]
	}

	evalOne = func(e Entity) {
		out.cache.applyMembership(e, matches(e))
	}

	evalAll := func() {
		for _, e := range v.Iter() {
			evalOne(e)
		}
	}

	for _, e := range v.Iter() {
		evalOne(e)
	}

	unParentAdd := v.OnAdded(func(e Entity) { evalOne(e) })
	unParentRemove := v.OnRemoved(func(e Entity) {
		watches.unwatch(e.URI())
		out.cache.applyMembership(e, false)
	})
	unSourceAdd := sourceView.OnAdded(func(e Entity) {
		vmu.Lock()
		validIDs[e.URI()] = true
		vmu.Unlock()
		evalAll()
	})
	unSourceRemove := sourceView.OnRemoved(func(e Entity) {
		vmu.Lock()
		delete(validIDs, e.URI())
		vmu.Unlock()
		evalAll()
	})

	out.SetParent(&v.Disposable)
	out.OnDispose(func() {
		unParentAdd()
		unParentRemove()
		unSourceAdd()
		unSourceRemove()
		watches.disposeAll()
	})
	return out
}

// Follow derives a live, ref-counted View of entities reached by one hop
// along edgeType from entities currently in v, optionally restricted to
// targetType (empty: any type). A target stays in the derived view as
// long as at least one matching source entity still holds an edge to
// it — targets are ref-counted by distinct edges, not by source entity,
// so two sources sharing one target keep it present until both edges
// are gone.
func (v *View) Follow(edgeType string, targetType string) *View {
	out := &View{store: v.store, cache: &queryCache{typ: targetType, uris: make(map[string]bool)}}

	var mu sync.Mutex
	refs := make(map[string]int)

	wantsTarget := func(to string) bool {
		if targetType == "" {
			return true
		}
		t, ok := v.store.TypeOf(to)
		return ok && t == targetType
	}

	incr := func(to string) {
		if !wantsTarget(to) {
			return
		}
		mu.Lock()
		refs[to]++
		n := refs[to]
		mu.Unlock()
		if n != 1 {
			return
		}
		if target, ok := v.store.Get(to); ok {
			out.cache.applyMembership(target, true)
		}
	}

	decr := func(to string) {
		if !wantsTarget(to) {
			return
		}
		mu.Lock()
		refs[to]--
		n := refs[to]
		if n <= 0 {
			delete(refs, to)
		}
		mu.Unlock()
		if n != 0 {
			return
		}
		if target, ok := v.store.Get(to); ok {
			out.cache.applyMembership(target, false)
		}
	}

	isMember := func(uri string) bool {
		v.cache.mu.Lock()
		defer v.cache.mu.Unlock()
		return v.cache.uris[uri]
	}

	followEdges := func(uri string, fn func(to string)) {
		for _, edge := range v.store.EdgesFrom(uri) {
			if edge.Type == edgeType {
				fn(edge.To)
			}
		}
	}

	for _, e := range v.Iter() {
		followEdges(e.URI(), incr)
	}

	unParentAdd := v.OnAdded(func(e Entity) { followEdges(e.URI(), incr) })
	unParentRemove := v.OnRemoved(func(e Entity) { followEdges(e.URI(), decr) })
	unEdgeAdded := v.store.OnEdgeAdded(edgeType, func(edge Edge) {
		if isMember(edge.From) {
			incr(edge.To)
		}
	})
	unEdgeRemoved := v.store.OnEdgeRemoved(edgeType, func(edge Edge) {
		if isMember(edge.From) {
			decr(edge.To)
		}
	})

	out.SetParent(&v.Disposable)
	out.OnDispose(func() {
		unParentAdd()
		unParentRemove()
		unEdgeAdded()
		unEdgeRemoved()
	})
	return out
}
