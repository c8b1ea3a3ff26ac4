// Package traversal implements a path-aware reactive graph walk: given a
// start URI and Options, it produces a live Collection of Wrappers — one
// per distinct path to each reachable entity — that stays synchronized
// with graph mutations and with user-controlled filter/prune Signals.
//
// This package depends only on the root entitygraph package, never on
// pkg/store, so that pkg/store can depend on pkg/traversal (to implement
// EntityStore.BFS/DFS as thin wrappers) without an import cycle. Graph
// is the narrow structural interface *store.EntityStore satisfies.
package traversal

import "github.com/pathgraph/entitygraph"

// Direction selects which edges a traversal follows from a node.
type Direction int

const (
	// Out follows outgoing edges (node -> neighbor).
	Out Direction = iota
	// In follows incoming edges (neighbor -> node).
	In
	// Both follows both directions.
	Both
)

// Order selects when a node is emitted relative to its children.
type Order int

const (
	// Pre emits a node before descending into its children.
	Pre Order = iota
	// Post emits a node after its children have been traversed.
	Post
)

// Graph is the minimal surface traversal needs from a backing store:
// entity lookup, neighbor listing, and change notification. Any type
// providing these methods can be traversed — a store never needs to
// import this package to satisfy it.
type Graph interface {
	// Lookup returns the entity at uri, its path-segment key, and
	// whether it exists.
	Lookup(uri string) (entity any, key string, ok bool)

	// Neighbors returns uri's neighbors in direction dir, restricted to
	// edgeTypes (all types if empty), in the graph's natural insertion
	// order. Reversal and windowing are the traversal engine's job.
	Neighbors(uri string, dir Direction, edgeTypes []string) []string

	// WatchNodeAdded/WatchNodeRemoved/WatchEdgeAdded/WatchEdgeRemoved
	// subscribe to global graph mutations, driving the engine's reactive
	// update rules.
	WatchNodeAdded(fn func(uri string)) entitygraph.Cleanup
	WatchNodeRemoved(fn func(uri string)) entitygraph.Cleanup
	WatchEdgeAdded(fn func(edgeType, from, to string)) entitygraph.Cleanup
	WatchEdgeRemoved(fn func(edgeType, from, to string)) entitygraph.Cleanup
}
