package traversal

import "github.com/pathgraph/entitygraph"

// fakeGraph is a minimal in-memory Graph test double: the traversal
// engine is tested against it directly so these tests don't depend on
// pkg/store (which itself imports this package).
type fakeGraph struct {
	entities map[string]any
	keys     map[string]string
	out      map[string][]edgeRef
	in       map[string][]edgeRef

	onNodeAdded   []func(string)
	onNodeRemoved []func(string)
	onEdgeAdded   []func(string, string, string)
	onEdgeRemoved []func(string, string, string)
}

type edgeRef struct {
	typ   string
	other string
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{
		entities: make(map[string]any),
		keys:     make(map[string]string),
		out:      make(map[string][]edgeRef),
		in:       make(map[string][]edgeRef),
	}
}

func (g *fakeGraph) addNode(uri, key string, entity any) {
	g.entities[uri] = entity
	g.keys[uri] = key
	for _, fn := range g.onNodeAdded {
		fn(uri)
	}
}

func (g *fakeGraph) removeNode(uri string) {
	delete(g.entities, uri)
	delete(g.keys, uri)
	for _, fn := range g.onNodeRemoved {
		fn(uri)
	}
}

func (g *fakeGraph) addEdge(typ, from, to string) {
	g.out[from] = append(g.out[from], edgeRef{typ, to})
	g.in[to] = append(g.in[to], edgeRef{typ, from})
	for _, fn := range g.onEdgeAdded {
		fn(typ, from, to)
	}
}

func (g *fakeGraph) removeEdge(typ, from, to string) {
	g.out[from] = removeRef(g.out[from], typ, to)
	g.in[to] = removeRef(g.in[to], typ, from)
	for _, fn := range g.onEdgeRemoved {
		fn(typ, from, to)
	}
}

func removeRef(list []edgeRef, typ, other string) []edgeRef {
	for i, e := range list {
		if e.typ == typ && e.other == other {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

func (g *fakeGraph) Lookup(uri string) (any, string, bool) {
	e, ok := g.entities[uri]
	if !ok {
		return nil, "", false
	}
	return e, g.keys[uri], true
}

func (g *fakeGraph) Neighbors(uri string, dir Direction, edgeTypes []string) []string {
	var out []string
	match := func(refs []edgeRef) {
		for _, e := range refs {
			if len(edgeTypes) == 0 || containsStr(edgeTypes, e.typ) {
				out = append(out, e.other)
			}
		}
	}
	switch dir {
	case Out:
		match(g.out[uri])
	case In:
		match(g.in[uri])
	case Both:
		match(g.out[uri])
		match(g.in[uri])
	}
	return out
}

func containsStr(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func (g *fakeGraph) WatchNodeAdded(fn func(string)) entitygraph.Cleanup {
	g.onNodeAdded = append(g.onNodeAdded, fn)
	return func() {}
}

func (g *fakeGraph) WatchNodeRemoved(fn func(string)) entitygraph.Cleanup {
	g.onNodeRemoved = append(g.onNodeRemoved, fn)
	return func() {}
}

func (g *fakeGraph) WatchEdgeAdded(fn func(string, string, string)) entitygraph.Cleanup {
	g.onEdgeAdded = append(g.onEdgeAdded, fn)
	return func() {}
}

func (g *fakeGraph) WatchEdgeRemoved(fn func(string, string, string)) entitygraph.Cleanup {
	g.onEdgeRemoved = append(g.onEdgeRemoved, fn)
	return func() {}
}
