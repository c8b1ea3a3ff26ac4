package traversal

import (
	"strings"
	"sync"

	"github.com/pathgraph/entitygraph"
)

// trackedNode is the per-path bookkeeping record: entity_uri,
// virtual_uri, depth, the immutable path/pathkeys, and the filtered_*
// parent pointer the UI actually needs.
type trackedNode struct {
	entityURI  string
	virtualURI string
	depth      int

	path     []string
	pathSet  map[string]bool
	pathKeys []string

	parentVirtual  string // immediate parent, whether or not it was emitted
	filteredParent string // nearest ancestor that passed filter

	emitted bool
	pruned  bool
	wrapper *Wrapper

	filterUnsub entitygraph.Cleanup
	pruneUnsub  entitygraph.Cleanup
}

type pendingExpand struct {
	entityURI      string
	depth          int
	parentPath     []string
	parentPathSet  map[string]bool
	parentPathKeys []string
	parentVirtual  string
	filteredParent string
}

// Traversal is one live, reactive run of the engine over a Graph. Its
// Out Collection holds the currently emitted Wrappers and is disposed
// along with the Traversal.
type Traversal struct {
	entitygraph.Disposable

	graph Graph
	opts  Options
	Out   *entitygraph.Collection[*Wrapper]

	mu              sync.Mutex
	nodes           map[string]*trackedNode          // virtual URI -> node
	uriToPaths      map[string]map[string]bool       // entity URI -> set(virtual URI) terminating there
	pathPrefixIndex map[string]map[string]bool        // entity URI -> set(virtual URI) containing it anywhere
	uniqueRefs      map[string]int                    // entity URI -> number of tracked paths terminating there

	scanned     int
	resultCount int

	pendingExpand []pendingExpand
	pendingEmit   []*trackedNode

	unsubs []entitygraph.Cleanup
}

// Start begins a traversal from startURI and keeps it synchronized with
// graph until Dispose is called.
func Start(graph Graph, startURI string, opts Options) *Traversal {
	t := &Traversal{
		graph:           graph,
		opts:            opts,
		Out:             entitygraph.NewCollection[*Wrapper](),
		nodes:           make(map[string]*trackedNode),
		uriToPaths:      make(map[string]map[string]bool),
		pathPrefixIndex: make(map[string]map[string]bool),
		uniqueRefs:      make(map[string]int),
	}
	t.Out.SetParent(&t.Disposable)

	t.expand(startURI, 0, nil, map[string]bool{}, nil, "", "")

	t.unsubs = []entitygraph.Cleanup{
		graph.WatchNodeAdded(t.onNodeAdded),
		graph.WatchNodeRemoved(t.onNodeRemoved),
		graph.WatchEdgeAdded(t.onEdgeAdded),
		graph.WatchEdgeRemoved(t.onEdgeRemoved),
	}
	t.OnDispose(func() {
		for _, u := range t.unsubs {
			entitygraph.SafeCall("traversal-unsub", u)
		}
	})
	return t
}

// BFS and DFS are the same algorithm, parameterized entirely by
// opts.Order, with no separate queue discipline guaranteed beyond that.
// Both names are kept for call-site clarity.
func BFS(graph Graph, startURI string, opts Options) *Traversal { return Start(graph, startURI, opts) }
func DFS(graph Graph, startURI string, opts Options) *Traversal { return Start(graph, startURI, opts) }

// Iter returns a snapshot of every currently emitted Wrapper.
func (t *Traversal) Iter() []*Wrapper { return t.Out.Iter() }

// Count returns the number of currently emitted wrappers.
func (t *Traversal) Count() int { return t.Out.Len() }

// OnAdded/OnRemoved forward to the output Collection.
func (t *Traversal) OnAdded(fn func(*Wrapper)) entitygraph.Cleanup   { return t.Out.OnAdded(fn) }
func (t *Traversal) OnRemoved(fn func(*Wrapper)) entitygraph.Cleanup { return t.Out.OnRemoved(fn) }

func safeBool(role string, fn func() bool) bool {
	var result bool
	entitygraph.SafeCall(role, func() { result = fn() })
	return result
}

func (t *Traversal) edgeTypeMatches(edgeType string) bool {
	if len(t.opts.EdgeTypes) == 0 {
		return true
	}
	for _, et := range t.opts.EdgeTypes {
		if et == edgeType {
			return true
		}
	}
	return false
}

// expand attempts to track one path (parentPath + entityURI). It may be
// deferred to pendingExpand if a budget currently blocks it.
func (t *Traversal) expand(entityURI string, depth int, parentPath []string, parentPathSet map[string]bool, parentPathKeys []string, parentVirtual, filteredParent string) {
	if t.opts.MaxDepth > 0 && depth > t.opts.MaxDepth {
		return
	}
	if parentPathSet[entityURI] {
		return // cycle: stop this path, siblings/other paths are unaffected
	}

	entity, key, ok := t.graph.Lookup(entityURI)
	if !ok {
		return
	}
	pathKeys := append(append([]string{}, parentPathKeys...), key)
	virtualURI := strings.Join(pathKeys, "/")

	t.mu.Lock()
	if _, tracked := t.nodes[virtualURI]; tracked {
		t.mu.Unlock()
		return // already tracked: one path can be reached by both an edge event and a node event
	}
	if t.opts.ScanningBudget > 0 && t.scanned >= t.opts.ScanningBudget {
		t.pendingExpand = append(t.pendingExpand, pendingExpand{entityURI, depth, parentPath, parentPathSet, parentPathKeys, parentVirtual, filteredParent})
		t.mu.Unlock()
		return
	}
	isNewUnique := t.uniqueRefs[entityURI] == 0
	if isNewUnique && t.opts.UniqueBudget > 0 && len(t.uniqueRefs) >= t.opts.UniqueBudget {
		t.pendingExpand = append(t.pendingExpand, pendingExpand{entityURI, depth, parentPath, parentPathSet, parentPathKeys, parentVirtual, filteredParent})
		t.mu.Unlock()
		return
	}
	t.scanned++
	t.uniqueRefs[entityURI]++
	t.mu.Unlock()

	path := append(append([]string{}, parentPath...), entityURI)
	pathSet := make(map[string]bool, len(parentPathSet)+1)
	for k := range parentPathSet {
		pathSet[k] = true
	}
	pathSet[entityURI] = true

	node := &trackedNode{
		entityURI: entityURI, virtualURI: virtualURI, depth: depth,
		path: path, pathSet: pathSet, pathKeys: pathKeys,
		parentVirtual: parentVirtual, filteredParent: filteredParent,
	}

	t.mu.Lock()
	t.nodes[virtualURI] = node
	if t.uriToPaths[entityURI] == nil {
		t.uriToPaths[entityURI] = make(map[string]bool)
	}
	t.uriToPaths[entityURI][virtualURI] = true
	for _, ancestor := range path {
		if t.pathPrefixIndex[ancestor] == nil {
			t.pathPrefixIndex[ancestor] = make(map[string]bool)
		}
		t.pathPrefixIndex[ancestor][virtualURI] = true
	}
	t.mu.Unlock()

	ctx := Ctx{Path: path, PathKeys: pathKeys, Depth: depth, Parent: filteredParent, URI: virtualURI}

	passes := t.opts.Filter == nil || safeBool("traversal-filter", func() bool { return t.opts.Filter(entity, ctx) })
	isPruned := t.opts.Prune != nil && safeBool("traversal-prune", func() bool { return t.opts.Prune(entity, ctx) })
	node.pruned = isPruned

	childFilteredParent := filteredParent
	if passes {
		childFilteredParent = virtualURI
	}

	if t.opts.Order == Pre {
		if passes {
			t.tryEmit(node)
		}
		if !isPruned {
			t.expandChildren(node, childFilteredParent)
		}
	} else {
		if !isPruned {
			t.expandChildren(node, childFilteredParent)
		}
		if passes {
			t.tryEmit(node)
		}
	}

	t.installWatches(node, entity, ctx)
}

func windowNeighbors(list []string, startAt, startAfter string) []string {
	if startAt != "" {
		for i, u := range list {
			if u == startAt {
				return list[i:]
			}
		}
		return nil
	}
	if startAfter != "" {
		for i, u := range list {
			if u == startAfter {
				return list[i+1:]
			}
		}
		return nil
	}
	return list
}

func reversedCopy(list []string) []string {
	out := make([]string, len(list))
	for i, v := range list {
		out[len(list)-1-i] = v
	}
	return out
}

func (t *Traversal) expandChildren(node *trackedNode, childFilteredParent string) {
	neighbors := t.graph.Neighbors(node.entityURI, t.opts.Direction, t.opts.EdgeTypes)
	if node.depth == 0 {
		neighbors = windowNeighbors(neighbors, t.opts.StartAtChild, t.opts.StartAfterChild)
	}
	if t.opts.Reverse {
		neighbors = reversedCopy(neighbors)
	}
	for _, n := range neighbors {
		t.expand(n, node.depth+1, node.path, node.pathSet, node.pathKeys, node.virtualURI, childFilteredParent)
	}
}

func (t *Traversal) installWatches(node *trackedNode, entity any, ctx Ctx) {
	if t.opts.FilterWatch != nil {
		if sig := t.opts.FilterWatch(entity, ctx); sig != nil {
			entityURI := node.entityURI
			node.filterUnsub = sig.WatchAny(func() { t.onFilterFire(entityURI) })
		}
	}
	if t.opts.PruneWatch != nil {
		if sig := t.opts.PruneWatch(entity, ctx); sig != nil {
			virtualURI := node.virtualURI
			node.pruneUnsub = sig.WatchAny(func() { t.onPruneFire(virtualURI) })
		}
	}
}

func (t *Traversal) tryEmit(node *trackedNode) {
	t.mu.Lock()
	if t.opts.ResultBudget > 0 && t.resultCount >= t.opts.ResultBudget {
		t.pendingEmit = append(t.pendingEmit, node)
		t.mu.Unlock()
		return
	}
	t.resultCount++
	t.mu.Unlock()
	t.emitNow(node)
}

func (t *Traversal) emitNow(node *trackedNode) {
	w := &Wrapper{
		Virtual: VirtualInfo{
			EntityURI:  node.entityURI,
			VirtualURI: node.virtualURI,
			Depth:      node.depth,
			Path:       append([]string{}, node.path...),
			PathKeys:   append([]string{}, node.pathKeys...),
			Parent:     node.filteredParent,
			Pruned:     node.pruned,
		},
	}
	if entity, _, ok := t.graph.Lookup(node.entityURI); ok {
		w.Entity = entity
	}
	node.emitted = true
	node.wrapper = w
	t.Out.Adopt(w)
}

// --- Reactive update rules ---------------------------------------------

func (t *Traversal) onNodeAdded(uri string) {
	t.mu.Lock()
	nodes := make([]*trackedNode, 0, len(t.nodes))
	for _, n := range t.nodes {
		nodes = append(nodes, n)
	}
	t.mu.Unlock()

	for _, node := range nodes {
		if node.pruned {
			continue
		}
		neighbors := t.graph.Neighbors(node.entityURI, t.opts.Direction, t.opts.EdgeTypes)
		found := false
		for _, n := range neighbors {
			if n == uri {
				found = true
				break
			}
		}
		if !found {
			continue
		}
		childFilteredParent := node.filteredParent
		if node.emitted {
			childFilteredParent = node.virtualURI
		}
		t.expand(uri, node.depth+1, node.path, node.pathSet, node.pathKeys, node.virtualURI, childFilteredParent)
	}
}

func (t *Traversal) onNodeRemoved(uri string) {
	t.mu.Lock()
	set := make(map[string]bool)
	for v := range t.uriToPaths[uri] {
		set[v] = true
	}
	for v := range t.pathPrefixIndex[uri] {
		set[v] = true
	}
	t.mu.Unlock()

	for v := range set {
		t.removeNodeByVirtual(v)
	}
}

func (t *Traversal) onEdgeAdded(edgeType, from, to string) {
	if !t.edgeTypeMatches(edgeType) {
		return
	}
	switch t.opts.Direction {
	case Out:
		t.tryExtendFrom(from, to)
	case In:
		t.tryExtendFrom(to, from)
	case Both:
		t.tryExtendFrom(from, to)
		t.tryExtendFrom(to, from)
	}
}

func (t *Traversal) tryExtendFrom(anchorEntityURI, neighborURI string) {
	t.mu.Lock()
	vuris := make([]string, 0, len(t.uriToPaths[anchorEntityURI]))
	for v := range t.uriToPaths[anchorEntityURI] {
		vuris = append(vuris, v)
	}
	t.mu.Unlock()

	for _, v := range vuris {
		t.mu.Lock()
		node, ok := t.nodes[v]
		t.mu.Unlock()
		if !ok || node.pruned {
			continue
		}
		childFilteredParent := node.filteredParent
		if node.emitted {
			childFilteredParent = node.virtualURI
		}
		t.expand(neighborURI, node.depth+1, node.path, node.pathSet, node.pathKeys, node.virtualURI, childFilteredParent)
	}
}

func (t *Traversal) onEdgeRemoved(edgeType, from, to string) {
	if !t.edgeTypeMatches(edgeType) {
		return
	}
	switch t.opts.Direction {
	case Out:
		t.verifyPathsFor(from, to)
	case In:
		t.verifyPathsFor(to, from)
	case Both:
		t.verifyPathsFor(from, to)
		t.verifyPathsFor(to, from)
	}
}

// verifyPathsFor removes every tracked path for neighborEntity whose
// immediate predecessor was anchorEntity, if no edge between them
// remains in the traversal's direction.
func (t *Traversal) verifyPathsFor(anchorEntity, neighborEntity string) {
	stillConnected := false
	for _, n := range t.graph.Neighbors(anchorEntity, t.opts.Direction, t.opts.EdgeTypes) {
		if n == neighborEntity {
			stillConnected = true
			break
		}
	}
	if stillConnected {
		return
	}

	t.mu.Lock()
	vuris := make([]string, 0, len(t.uriToPaths[neighborEntity]))
	for v := range t.uriToPaths[neighborEntity] {
		vuris = append(vuris, v)
	}
	t.mu.Unlock()

	for _, v := range vuris {
		t.mu.Lock()
		node, ok := t.nodes[v]
		t.mu.Unlock()
		if !ok {
			continue
		}
		if len(node.path) >= 2 && node.path[len(node.path)-2] == anchorEntity {
			t.removeNodeByVirtual(v)
		}
	}
}

// onFilterFire re-evaluates Filter for every path terminating at
// entityURI. Children are never re-traversed here — filter controls
// visibility only.
func (t *Traversal) onFilterFire(entityURI string) {
	t.mu.Lock()
	vuris := make([]string, 0, len(t.uriToPaths[entityURI]))
	for v := range t.uriToPaths[entityURI] {
		vuris = append(vuris, v)
	}
	t.mu.Unlock()

	for _, vuri := range vuris {
		t.mu.Lock()
		node, ok := t.nodes[vuri]
		t.mu.Unlock()
		if !ok {
			continue
		}

		entity, _, ok := t.graph.Lookup(entityURI)
		if !ok {
			continue
		}
		ctx := Ctx{Path: node.path, PathKeys: node.pathKeys, Depth: node.depth, Parent: node.filteredParent, URI: node.virtualURI}
		passes := t.opts.Filter == nil || safeBool("traversal-filter", func() bool { return t.opts.Filter(entity, ctx) })

		if passes && !node.emitted {
			t.tryEmit(node)
		} else if !passes && node.emitted {
			t.removeWrapperOnly(node)
		}
	}
}

func (t *Traversal) removeWrapperOnly(node *trackedNode) {
	wrapper := node.wrapper
	node.wrapper = nil
	node.emitted = false
	t.mu.Lock()
	if t.resultCount > 0 {
		t.resultCount--
	}
	t.mu.Unlock()
	if wrapper != nil {
		t.Out.Delete(func(w *Wrapper) bool { return w == wrapper })
	}
	t.admitPendingEmit()
}

// onPruneFire re-evaluates Prune for one path. False->true removes every
// descendant path; true->false expands children as if discovered fresh.
func (t *Traversal) onPruneFire(virtualURI string) {
	t.mu.Lock()
	node, ok := t.nodes[virtualURI]
	t.mu.Unlock()
	if !ok {
		return
	}

	entity, _, ok := t.graph.Lookup(node.entityURI)
	if !ok {
		return
	}
	ctx := Ctx{Path: node.path, PathKeys: node.pathKeys, Depth: node.depth, Parent: node.filteredParent, URI: node.virtualURI}
	isPruned := t.opts.Prune != nil && safeBool("traversal-prune", func() bool { return t.opts.Prune(entity, ctx) })

	if isPruned == node.pruned {
		return
	}

	if isPruned {
		node.pruned = true
		t.removeDescendants(node.virtualURI)
		return
	}

	node.pruned = false
	childFilteredParent := node.filteredParent
	if node.emitted {
		childFilteredParent = node.virtualURI
	}
	t.expandChildren(node, childFilteredParent)
}

func (t *Traversal) removeDescendants(virtualURI string) {
	prefix := virtualURI + "/"
	t.mu.Lock()
	var toRemove []string
	for v := range t.nodes {
		if strings.HasPrefix(v, prefix) {
			toRemove = append(toRemove, v)
		}
	}
	t.mu.Unlock()
	for _, v := range toRemove {
		t.removeNodeByVirtual(v)
	}
}

// removeNodeByVirtual fully tears down one tracked path: unsubscribes
// its watches, disposes its wrapper if emitted, removes it from every
// index, and frees its budget slot — then tries to backfill from the
// pending queues, since freeing a slot may let a previously blocked path
// be admitted.
func (t *Traversal) removeNodeByVirtual(virtualURI string) {
	t.mu.Lock()
	node, ok := t.nodes[virtualURI]
	if !ok {
		t.mu.Unlock()
		return
	}
	delete(t.nodes, virtualURI)
	delete(t.uriToPaths[node.entityURI], virtualURI)
	if len(t.uriToPaths[node.entityURI]) == 0 {
		delete(t.uriToPaths, node.entityURI)
	}
	for _, ancestor := range node.path {
		delete(t.pathPrefixIndex[ancestor], virtualURI)
		if len(t.pathPrefixIndex[ancestor]) == 0 {
			delete(t.pathPrefixIndex, ancestor)
		}
	}
	t.uniqueRefs[node.entityURI]--
	if t.uniqueRefs[node.entityURI] <= 0 {
		delete(t.uniqueRefs, node.entityURI)
	}
	if t.scanned > 0 {
		t.scanned--
	}
	wasEmitted := node.emitted
	wrapper := node.wrapper
	if wasEmitted && t.resultCount > 0 {
		t.resultCount--
	}
	t.mu.Unlock()

	if node.filterUnsub != nil {
		entitygraph.SafeCall("filter-unwatch", node.filterUnsub)
	}
	if node.pruneUnsub != nil {
		entitygraph.SafeCall("prune-unwatch", node.pruneUnsub)
	}
	if wasEmitted && wrapper != nil {
		t.Out.Delete(func(w *Wrapper) bool { return w == wrapper })
	}

	t.admitPendingExpand()
	t.admitPendingEmit()
}

func (t *Traversal) admitPendingExpand() {
	for {
		t.mu.Lock()
		if len(t.pendingExpand) == 0 {
			t.mu.Unlock()
			return
		}
		next := t.pendingExpand[0]
		if t.opts.ScanningBudget > 0 && t.scanned >= t.opts.ScanningBudget {
			t.mu.Unlock()
			return
		}
		isNewUnique := t.uniqueRefs[next.entityURI] == 0
		if isNewUnique && t.opts.UniqueBudget > 0 && len(t.uniqueRefs) >= t.opts.UniqueBudget {
			t.mu.Unlock()
			return
		}
		t.pendingExpand = t.pendingExpand[1:]
		t.mu.Unlock()

		t.expand(next.entityURI, next.depth, next.parentPath, next.parentPathSet, next.parentPathKeys, next.parentVirtual, next.filteredParent)
	}
}

func (t *Traversal) admitPendingEmit() {
	for {
		t.mu.Lock()
		if len(t.pendingEmit) == 0 {
			t.mu.Unlock()
			return
		}
		if t.opts.ResultBudget > 0 && t.resultCount >= t.opts.ResultBudget {
			t.mu.Unlock()
			return
		}
		node := t.pendingEmit[0]
		t.pendingEmit = t.pendingEmit[1:]
		t.mu.Unlock()

		if node.emitted {
			continue
		}
		t.tryEmit(node)
	}
}
