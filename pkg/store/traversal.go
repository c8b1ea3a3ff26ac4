package store

import (
	"github.com/pathgraph/entitygraph"
	"github.com/pathgraph/entitygraph/pkg/traversal"
)

// Lookup, Neighbors, and the Watch* methods below give *EntityStore the
// method set traversal.Graph requires, without this package importing
// pkg/traversal's Graph type anywhere in its own signatures — only
// BFS/DFS below need to name the traversal package, keeping store the
// sole importer in the store<->traversal pair.

// Lookup implements traversal.Graph.
func (s *EntityStore) Lookup(uri string) (any, string, bool) {
	e, ok := s.Get(uri)
	if !ok {
		return nil, "", false
	}
	return e, e.Key(), true
}

// Neighbors implements traversal.Graph, reading straight from the
// sibling lists so ordering matches addEdge/prependEdge insertion order.
func (s *EntityStore) Neighbors(uri string, dir traversal.Direction, edgeTypes []string) []string {
	switch dir {
	case traversal.Out:
		return s.neighborsOut(uri, edgeTypes)
	case traversal.In:
		return s.neighborsIn(uri, edgeTypes)
	case traversal.Both:
		out := s.neighborsOut(uri, edgeTypes)
		return append(out, s.neighborsIn(uri, edgeTypes)...)
	default:
		return nil
	}
}

func (s *EntityStore) neighborsOut(uri string, edgeTypes []string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, typ := range s.edgeTypesOrAll(edgeTypes, uri, true) {
		if list := s.outSiblings[groupKey{anchor: uri, kind: typ}]; list != nil {
			out = append(out, list.ordered(false)...)
		}
	}
	return out
}

func (s *EntityStore) neighborsIn(uri string, edgeTypes []string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, typ := range s.edgeTypesOrAll(edgeTypes, uri, false) {
		if list := s.inSiblings[groupKey{anchor: uri, kind: typ}]; list != nil {
			out = append(out, list.ordered(false)...)
		}
	}
	return out
}

// edgeTypesOrAll returns edgeTypes verbatim if non-empty, else every
// edge type currently present on uri's outgoing (out=true) or incoming
// (out=false) side — must be called with s.mu held.
func (s *EntityStore) edgeTypesOrAll(edgeTypes []string, uri string, out bool) []string {
	if len(edgeTypes) > 0 {
		return edgeTypes
	}
	seen := make(map[string]bool)
	var all []string
	edges := s.outgoing[uri]
	if !out {
		edges = s.incoming[uri]
	}
	for _, e := range edges {
		if !seen[e.Type] {
			seen[e.Type] = true
			all = append(all, e.Type)
		}
	}
	return all
}

// WatchNodeAdded implements traversal.Graph.
func (s *EntityStore) WatchNodeAdded(fn func(uri string)) entitygraph.Cleanup {
	return s.OnAdded("", func(e Entity) { fn(e.URI()) })
}

// WatchNodeRemoved implements traversal.Graph.
func (s *EntityStore) WatchNodeRemoved(fn func(uri string)) entitygraph.Cleanup {
	return s.OnRemoved("", func(e Entity) { fn(e.URI()) })
}

// WatchEdgeAdded implements traversal.Graph.
func (s *EntityStore) WatchEdgeAdded(fn func(edgeType, from, to string)) entitygraph.Cleanup {
	return s.OnEdgeAdded("", func(e Edge) { fn(e.Type, e.From, e.To) })
}

// WatchEdgeRemoved implements traversal.Graph.
func (s *EntityStore) WatchEdgeRemoved(fn func(edgeType, from, to string)) entitygraph.Cleanup {
	return s.OnEdgeRemoved("", func(e Edge) { fn(e.Type, e.From, e.To) })
}

// BFS and DFS both start a reactive traversal.Traversal rooted at
// startURI; they're the same algorithm parameterized by opts.Order, so
// these are thin, identically-behaved wrappers kept as two names for
// call-site clarity.
func (s *EntityStore) BFS(startURI string, opts traversal.Options) *traversal.Traversal {
	return traversal.BFS(s, startURI, opts)
}

func (s *EntityStore) DFS(startURI string, opts traversal.Options) *traversal.Traversal {
	return traversal.DFS(s, startURI, opts)
}
