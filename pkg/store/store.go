package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/pathgraph/entitygraph"
)

type listener[T any] struct {
	id uint64
	fn func(T)
}

type groupKey struct {
	anchor string
	kind   string
}

type storeIndex struct {
	typ        string
	name       string
	getter     func(Entity) any
	buckets    map[any]map[string]bool
	watchUnsub map[string]entitygraph.Cleanup
}

// StoreOption configures an EntityStore at construction time via the
// functional-options idiom.
type StoreOption func(*EntityStore)

// WithIDGenerator overrides the URI generator used by NewURI (default:
// uuid.NewString).
func WithIDGenerator(gen func() string) StoreOption {
	return func(s *EntityStore) { s.idGen = gen }
}

// EntityStore holds entities, typed directed edges, and reactive indexes,
// and emits add/remove/edge events. It embeds entitygraph.Disposable:
// disposing the store disposes every remaining entity in sorted URI
// order, cascading per entity exactly as DisposeEntity does.
type EntityStore struct {
	entitygraph.Disposable

	mu sync.RWMutex

	entities map[string]Entity
	types    map[string]string
	byType   map[string]map[string]bool

	outgoing map[string][]Edge
	incoming map[string][]Edge

	outSiblings map[groupKey]*siblingList // anchor=from, ordered "to" uris
	inSiblings  map[groupKey]*siblingList // anchor=to, ordered "from" uris

	indexes map[string]*storeIndex // "type:name"

	onAddedType     map[string][]*listener[Entity]
	onRemovedType   map[string][]*listener[Entity]
	onEdgeAddedType map[string][]*listener[Edge]
	onEdgeRemovedType map[string][]*listener[Edge]
	nextListenerID  uint64

	entityCleanups map[string][]entitygraph.Cleanup

	caches map[string]*queryCache

	idGen func() string
}

// NewEntityStore creates an empty store.
func NewEntityStore(opts ...StoreOption) *EntityStore {
	s := &EntityStore{
		entities:          make(map[string]Entity),
		types:             make(map[string]string),
		byType:            make(map[string]map[string]bool),
		outgoing:          make(map[string][]Edge),
		incoming:          make(map[string][]Edge),
		outSiblings:       make(map[groupKey]*siblingList),
		inSiblings:        make(map[groupKey]*siblingList),
		indexes:           make(map[string]*storeIndex),
		onAddedType:       make(map[string][]*listener[Entity]),
		onRemovedType:     make(map[string][]*listener[Entity]),
		onEdgeAddedType:   make(map[string][]*listener[Edge]),
		onEdgeRemovedType: make(map[string][]*listener[Edge]),
		entityCleanups:    make(map[string][]entitygraph.Cleanup),
		caches:            make(map[string]*queryCache),
		idGen:             uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.OnDispose(s.disposeAll)
	return s
}

// NewURI generates a collision-resistant synthetic URI under prefix,
// e.g. NewURI("session") -> "session/3f29...".
func (s *EntityStore) NewURI(prefix string) string {
	return fmt.Sprintf("%s/%s", prefix, s.idGen())
}

// EdgeSpec describes one edge to create from a newly added entity as
// part of Add.
type EdgeSpec struct {
	Type    string
	To      string
	Prepend bool
}

// Add inserts entity under typ (assigning its immutable _type), installs
// any indexes already registered for typ, creates the given edges from
// entity to their targets, and fires add listeners/cache updates.
// Duplicate URIs are a contract violation: Add panics rather than
// returning an error for that case, as with any precondition failure
// that must be caught before any state mutates.
func (s *EntityStore) Add(entity Entity, typ string, edges ...EdgeSpec) {
	uri := entity.URI()

	s.mu.Lock()
	if _, exists := s.entities[uri]; exists {
		s.mu.Unlock()
		panic(fmt.Errorf("%w: %s", entitygraph.ErrDuplicateURI, uri))
	}

	s.entities[uri] = entity
	s.types[uri] = typ
	if s.byType[typ] == nil {
		s.byType[typ] = make(map[string]bool)
	}
	s.byType[typ][uri] = true

	for name, idx := range s.indexes {
		if idx.typ == typ {
			s.installIndexWatch(name, idx, entity)
		}
	}
	s.mu.Unlock()

	entity.Disposer().SetParent(&s.Disposable)
	entity.Disposer().OnDispose(func() { s.DisposeEntity(uri) })

	for _, spec := range edges {
		if spec.Prepend {
			s.PrependEdge(uri, spec.Type, spec.To)
		} else {
			s.AddEdge(uri, spec.Type, spec.To)
		}
	}

	s.fireAdded(typ, entity)
	s.updateCachesOnAdd(typ, entity)
}

func (s *EntityStore) fireAdded(typ string, entity Entity) {
	s.mu.RLock()
	typeListeners := append([]*listener[Entity]{}, s.onAddedType[typ]...)
	globalListeners := append([]*listener[Entity]{}, s.onAddedType[""]...)
	s.mu.RUnlock()

	for _, l := range typeListeners {
		l2 := l
		entitygraph.SafeCall("on_added", func() { l2.fn(entity) })
	}
	for _, l := range globalListeners {
		l2 := l
		entitygraph.SafeCall("on_added", func() { l2.fn(entity) })
	}
}

// Get returns the entity at uri, if present.
func (s *EntityStore) Get(uri string) (Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[uri]
	return e, ok
}

// Has reports whether uri exists in the store.
func (s *EntityStore) Has(uri string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entities[uri]
	return ok
}

// TypeOf returns the type assigned to uri at insertion.
func (s *EntityStore) TypeOf(uri string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.types[uri]
	return t, ok
}

// Count returns the total number of entities in the store.
func (s *EntityStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities)
}

// OfType returns the number of entities of the given type.
func (s *EntityStore) OfType(typ string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byType[typ])
}

// Iter returns a snapshot of every entity currently in the store.
func (s *EntityStore) Iter() []Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entity, 0, len(s.entities))
	for _, e := range s.entities {
		out = append(out, e)
	}
	return out
}

// IterType returns a snapshot of every entity of the given type.
func (s *EntityStore) IterType(typ string) []Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	uris := s.byType[typ]
	out := make([]Entity, 0, len(uris))
	for uri := range uris {
		out = append(out, s.entities[uri])
	}
	return out
}

// --- Edges -----------------------------------------------------------

// AddEdge creates a directed edge (from, typ, to), appending it to the
// outgoing/incoming/sibling structures. from and to must already exist.
func (s *EntityStore) AddEdge(from, typ, to string) {
	s.insertEdge(from, typ, to, false)
}

// PrependEdge is AddEdge but inserts at the front of both sibling
// orderings instead of the back.
func (s *EntityStore) PrependEdge(from, typ, to string) {
	s.insertEdge(from, typ, to, true)
}

func (s *EntityStore) insertEdge(from, typ, to string, prepend bool) {
	s.mu.Lock()
	if _, ok := s.entities[from]; !ok {
		s.mu.Unlock()
		panic(fmt.Errorf("%w: %s", entitygraph.ErrUnknownSource, from))
	}
	if _, ok := s.entities[to]; !ok {
		s.mu.Unlock()
		panic(fmt.Errorf("%w: %s", entitygraph.ErrUnknownTarget, to))
	}

	e := Edge{From: from, Type: typ, To: to}
	s.outgoing[from] = append(s.outgoing[from], e)
	s.incoming[to] = append(s.incoming[to], e)

	outKey := groupKey{anchor: from, kind: typ}
	if s.outSiblings[outKey] == nil {
		s.outSiblings[outKey] = newSiblingList()
	}
	inKey := groupKey{anchor: to, kind: typ}
	if s.inSiblings[inKey] == nil {
		s.inSiblings[inKey] = newSiblingList()
	}
	if prepend {
		s.outSiblings[outKey].prepend(to)
		s.inSiblings[inKey].prepend(from)
	} else {
		s.outSiblings[outKey].append(to)
		s.inSiblings[inKey].append(from)
	}
	s.mu.Unlock()

	s.fireEdge(typ, e, true)
}

// RemoveEdge removes the matching edge, unlinking it from outgoing,
// incoming, and sibling structures. A no-op if no such edge exists.
func (s *EntityStore) RemoveEdge(from, typ, to string) {
	s.mu.Lock()
	removed := removeEdgeFromSlice(s.outgoing, from, typ, to)
	removeEdgeFromSlice(s.incoming, to, typ, from)
	if list := s.outSiblings[groupKey{anchor: from, kind: typ}]; list != nil {
		list.remove(to)
	}
	if list := s.inSiblings[groupKey{anchor: to, kind: typ}]; list != nil {
		list.remove(from)
	}
	s.mu.Unlock()

	if removed {
		s.fireEdge(typ, Edge{From: from, Type: typ, To: to}, false)
	}
}

func removeEdgeFromSlice(m map[string][]Edge, key, typ, other string) bool {
	list := m[key]
	for i, e := range list {
		matchOther := e.From == other || e.To == other
		if e.Type == typ && matchOther {
			m[key] = append(list[:i], list[i+1:]...)
			return true
		}
	}
	return false
}

func (s *EntityStore) fireEdge(typ string, e Edge, added bool) {
	s.mu.RLock()
	var typeListeners, globalListeners []*listener[Edge]
	if added {
		typeListeners = append([]*listener[Edge]{}, s.onEdgeAddedType[typ]...)
		globalListeners = append([]*listener[Edge]{}, s.onEdgeAddedType[""]...)
	} else {
		typeListeners = append([]*listener[Edge]{}, s.onEdgeRemovedType[typ]...)
		globalListeners = append([]*listener[Edge]{}, s.onEdgeRemovedType[""]...)
	}
	s.mu.RUnlock()

	role := "on_edge_added"
	if !added {
		role = "on_edge_removed"
	}
	for _, l := range typeListeners {
		l2 := l
		entitygraph.SafeCall(role, func() { l2.fn(e) })
	}
	for _, l := range globalListeners {
		l2 := l
		entitygraph.SafeCall(role, func() { l2.fn(e) })
	}
}

// EdgesFrom returns a snapshot of outgoing edges from uri.
func (s *EntityStore) EdgesFrom(uri string) []Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Edge, len(s.outgoing[uri]))
	copy(out, s.outgoing[uri])
	return out
}

// EdgesTo returns a snapshot of incoming edges to uri.
func (s *EntityStore) EdgesTo(uri string) []Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Edge, len(s.incoming[uri]))
	copy(out, s.incoming[uri])
	return out
}

// --- Listeners ---------------------------------------------------------

func (s *EntityStore) addListener(m map[string][]*listener[Entity], key string, fn func(Entity)) entitygraph.Cleanup {
	s.mu.Lock()
	s.nextListenerID++
	l := &listener[Entity]{id: s.nextListenerID, fn: fn}
	m[key] = append(m[key], l)
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		list := m[key]
		for i, existing := range list {
			if existing.id == l.id {
				m[key] = append(list[:i], list[i+1:]...)
				return
			}
		}
	}
}

func (s *EntityStore) addEdgeListener(m map[string][]*listener[Edge], key string, fn func(Edge)) entitygraph.Cleanup {
	s.mu.Lock()
	s.nextListenerID++
	l := &listener[Edge]{id: s.nextListenerID, fn: fn}
	m[key] = append(m[key], l)
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		list := m[key]
		for i, existing := range list {
			if existing.id == l.id {
				m[key] = append(list[:i], list[i+1:]...)
				return
			}
		}
	}
}

// OnAdded registers fn to run after an entity of typ is added. typ == ""
// subscribes to every type (a "global" listener, which always fires
// after type-specific listeners).
func (s *EntityStore) OnAdded(typ string, fn func(Entity)) entitygraph.Cleanup {
	return s.addListener(s.onAddedType, typ, fn)
}

// OnRemoved registers fn to run after an entity of typ is removed.
func (s *EntityStore) OnRemoved(typ string, fn func(Entity)) entitygraph.Cleanup {
	return s.addListener(s.onRemovedType, typ, fn)
}

// OnEdgeAdded registers fn to run after an edge of edgeType is added.
func (s *EntityStore) OnEdgeAdded(edgeType string, fn func(Edge)) entitygraph.Cleanup {
	return s.addEdgeListener(s.onEdgeAddedType, edgeType, fn)
}

// OnEdgeRemoved registers fn to run after an edge of edgeType is removed.
func (s *EntityStore) OnEdgeRemoved(edgeType string, fn func(Edge)) entitygraph.Cleanup {
	return s.addEdgeListener(s.onEdgeRemovedType, edgeType, fn)
}

// --- Indexes -------------------------------------------------------

// AddIndex installs a reactively maintained index over all entities of
// typ. getter returns either a comparable key or an entitygraph.AnySignal
// producing one; unknown-index lookups later panic (§7.1 contract
// violation).
func (s *EntityStore) AddIndex(typ, name string, getter func(Entity) any) {
	key := typ + ":" + name
	s.mu.Lock()
	idx := &storeIndex{
		typ:        typ,
		name:       name,
		getter:     getter,
		buckets:    make(map[any]map[string]bool),
		watchUnsub: make(map[string]entitygraph.Cleanup),
	}
	s.indexes[key] = idx
	for uri := range s.byType[typ] {
		s.installIndexWatch(key, idx, s.entities[uri])
	}
	s.mu.Unlock()
}

// installIndexWatch must be called with s.mu held.
func (s *EntityStore) installIndexWatch(indexKey string, idx *storeIndex, entity Entity) {
	k, sig := resolveKey(idx.getter(entity))
	s.addToBucket(idx, k, entity.URI())

	if sig == nil {
		return
	}
	uri := entity.URI()
	unsub := sig.WatchAny(func() {
		s.mu.Lock()
		newKey, _ := resolveKey(idx.getter(entity))
		oldKey := s.bucketKeyOf(idx, uri)
		if oldKey == newKey {
			s.mu.Unlock()
			return
		}
		s.removeFromBucket(idx, oldKey, uri)
		s.addToBucket(idx, newKey, uri)
		s.mu.Unlock()

		s.onIndexChange(indexKey, idx, entity, oldKey, newKey)
	})
	idx.watchUnsub[uri] = unsub
	s.entityCleanups[uri] = append(s.entityCleanups[uri], unsub)
}

func (s *EntityStore) bucketKeyOf(idx *storeIndex, uri string) any {
	for k, set := range idx.buckets {
		if set[uri] {
			return k
		}
	}
	return nil
}

func (s *EntityStore) addToBucket(idx *storeIndex, key any, uri string) {
	if idx.buckets[key] == nil {
		idx.buckets[key] = make(map[string]bool)
	}
	idx.buckets[key][uri] = true
}

func (s *EntityStore) removeFromBucket(idx *storeIndex, key any, uri string) {
	if set := idx.buckets[key]; set != nil {
		delete(set, uri)
	}
}

// onIndexChange notifies every query cache whose filter references this
// index that uri may need to move in or out.
func (s *EntityStore) onIndexChange(indexKey string, idx *storeIndex, entity Entity, oldKey, newKey any) {
	s.mu.RLock()
	caches := make([]*queryCache, 0, len(s.caches))
	for _, c := range s.caches {
		if c.typ == idx.typ {
			caches = append(caches, c)
		}
	}
	s.mu.RUnlock()

	for _, c := range caches {
		c.reconsider(s, entity)
	}
}

// GetBy returns a snapshot of entities of typ whose index value equals
// key. Unknown index is a contract violation.
func (s *EntityStore) GetBy(typ, name string, key any) []Entity {
	s.mu.RLock()
	idx, ok := s.indexes[typ+":"+name]
	if !ok {
		s.mu.RUnlock()
		panic(fmt.Errorf("%w: %s:%s", entitygraph.ErrUnknownIndex, typ, name))
	}
	uris := idx.buckets[key]
	out := make([]Entity, 0, len(uris))
	for uri := range uris {
		out = append(out, s.entities[uri])
	}
	s.mu.RUnlock()
	return out
}

// GetOne returns one entity matching GetBy's criteria, if any.
func (s *EntityStore) GetOne(typ, name string, key any) (Entity, bool) {
	matches := s.GetBy(typ, name, key)
	if len(matches) == 0 {
		var zero Entity
		return zero, false
	}
	return matches[0], true
}

func resolveKey(raw any) (any, entitygraph.AnySignal) {
	if sig, ok := raw.(entitygraph.AnySignal); ok {
		return sig.GetAny(), sig
	}
	return raw, nil
}

// --- Navigation ----------------------------------------------------

// GetParent returns the URI reached by following uri's first outgoing
// edge of edgeType (uri -> parent). Entities normally carry at most one
// outgoing edge per edgeType, so "first" is also "only" in practice.
func (s *EntityStore) GetParent(uri, edgeType string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.outSiblings[groupKey{anchor: uri, kind: edgeType}]
	if list == nil || list.head == nil {
		return "", false
	}
	return list.head.from, true // siblingNode.from holds the "to" uri in outSiblings
}

// SiblingsBefore returns the ordered from-uris preceding uri in the
// (to, edgeType) sibling group, nearest-first.
func (s *EntityStore) SiblingsBefore(to, edgeType, uri string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.inSiblings[groupKey{anchor: to, kind: edgeType}]
	if list == nil {
		return nil
	}
	return list.orderedFrom(uri, false, true)
}

// SiblingsAfter returns the ordered from-uris following uri in the
// (to, edgeType) sibling group, nearest-first.
func (s *EntityStore) SiblingsAfter(to, edgeType, uri string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.inSiblings[groupKey{anchor: to, kind: edgeType}]
	if list == nil {
		return nil
	}
	return list.orderedFrom(uri, false, false)
}

// PathToRoot follows each node's first outgoing edge of edgeType (in
// edge insertion order) repeatedly, returning [uri, parent, grandparent,
// ...] up to the first node with no such edge, or the first node already
// on the path.
func (s *EntityStore) PathToRoot(uri, edgeType string) []string {
	path := []string{uri}
	seen := map[string]bool{uri: true}
	current := uri
	for {
		parent, ok := s.parentOf(current, edgeType)
		if !ok || seen[parent] {
			return path
		}
		path = append(path, parent)
		seen[parent] = true
		current = parent
	}
}

func (s *EntityStore) parentOf(uri, edgeType string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.outgoing[uri] {
		if e.Type == edgeType {
			return e.To, true
		}
	}
	return "", false
}

// --- Disposal ----------------------------------------------------

// DisposeEntity removes uri from the store: cascades to every entity
// reachable via incoming ParentEdgeType edges (LIFO), runs per-entity
// cleanups, removes all edges in both directions, updates query caches,
// fires type/global remove listeners, then disposes the entity itself.
// Disposing an already-absent URI is a no-op.
func (s *EntityStore) DisposeEntity(uri string) {
	s.mu.RLock()
	_, exists := s.entities[uri]
	s.mu.RUnlock()
	if !exists {
		return
	}

	children := s.childrenOf(uri)
	for i := len(children) - 1; i >= 0; i-- {
		s.DisposeEntity(children[i])
	}

	s.mu.Lock()
	entity, exists := s.entities[uri]
	if !exists {
		s.mu.Unlock()
		return
	}
	cleanups := s.entityCleanups[uri]
	delete(s.entityCleanups, uri)
	typ := s.types[uri]
	s.mu.Unlock()

	for i := len(cleanups) - 1; i >= 0; i-- {
		entitygraph.SafeCall("entity-cleanup", cleanups[i])
	}

	s.unindexEntity(typ, uri)
	s.disconnectAllEdges(uri)

	s.mu.Lock()
	delete(s.byType[typ], uri)
	delete(s.types, uri)
	delete(s.entities, uri)
	s.mu.Unlock()

	s.updateCachesOnRemove(typ, entity)
	s.fireRemoved(typ, entity)

	entity.Disposer().Dispose()
}

func (s *EntityStore) childrenOf(uri string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.inSiblings[groupKey{anchor: uri, kind: ParentEdgeType}]
	if list == nil {
		return nil
	}
	return list.ordered(false)
}

func (s *EntityStore) unindexEntity(typ, uri string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, idx := range s.indexes {
		if idx.typ != typ {
			continue
		}
		if unsub, ok := idx.watchUnsub[uri]; ok {
			entitygraph.SafeCall("index-unwatch", unsub)
			delete(idx.watchUnsub, uri)
		}
		for _, set := range idx.buckets {
			delete(set, uri)
		}
	}
}

func (s *EntityStore) disconnectAllEdges(uri string) {
	s.mu.Lock()
	out := append([]Edge{}, s.outgoing[uri]...)
	in := append([]Edge{}, s.incoming[uri]...)
	s.mu.Unlock()

	for _, e := range out {
		s.RemoveEdge(e.From, e.Type, e.To)
	}
	for _, e := range in {
		s.RemoveEdge(e.From, e.Type, e.To)
	}
}

func (s *EntityStore) fireRemoved(typ string, entity Entity) {
	s.mu.RLock()
	typeListeners := append([]*listener[Entity]{}, s.onRemovedType[typ]...)
	globalListeners := append([]*listener[Entity]{}, s.onRemovedType[""]...)
	s.mu.RUnlock()

	for _, l := range typeListeners {
		l2 := l
		entitygraph.SafeCall("on_removed", func() { l2.fn(entity) })
	}
	for _, l := range globalListeners {
		l2 := l
		entitygraph.SafeCall("on_removed", func() { l2.fn(entity) })
	}
}

func (s *EntityStore) disposeAll() {
	s.mu.RLock()
	uris := make([]string, 0, len(s.entities))
	for uri := range s.entities {
		uris = append(uris, uri)
	}
	s.mu.RUnlock()
	sort.Strings(uris) // deterministic order for an otherwise-unordered map snapshot
	for _, uri := range uris {
		s.DisposeEntity(uri)
	}
}
