package traversal

import "github.com/pathgraph/entitygraph"

// Ctx is passed to Filter, Prune, and Watch callbacks: everything about
// a path an implementer could need without reaching into engine
// internals.
type Ctx struct {
	Path     []string // entity URIs along the path, root..self, immutable
	PathKeys []string // path-segment keys, immutable, joined by "/" to form URI
	Depth    int
	Parent   string // virtual URI of the nearest ancestor that was emitted (the "filtered_*" parent)
	URI      string // this path's virtual URI: strings.Join(PathKeys, "/")
}

// FilterFunc decides whether a path's wrapper is added to the output
// Collection. Returning false does not stop children from being
// traversed.
type FilterFunc func(entity any, ctx Ctx) bool

// PruneFunc decides whether a path's children are traversed. The node
// itself is still emitted (subject to Filter) when Prune returns true.
type PruneFunc func(entity any, ctx Ctx) bool

// WatchFunc returns the Signal (if any) whose changes should re-evaluate
// Filter or Prune for one path. Build one with WatchEntity (ignores ctx,
// one signal per entity regardless of path) or WatchPath (path-specific,
// e.g. a prune flag keyed by virtual URI).
type WatchFunc func(entity any, ctx Ctx) entitygraph.AnySignal

// WatchEntity adapts a ctx-free getter, used where a watch only ever
// needs the entity itself, into a WatchFunc.
func WatchEntity(get func(entity any) entitygraph.AnySignal) WatchFunc {
	return func(entity any, _ Ctx) entitygraph.AnySignal { return get(entity) }
}

// WatchPath adapts a path-aware getter, used where the watch target
// depends on where in the tree the path sits, directly into a WatchFunc.
func WatchPath(get func(entity any, ctx Ctx) entitygraph.AnySignal) WatchFunc {
	return get
}

// Options configures one traversal run.
type Options struct {
	Direction Direction
	EdgeTypes []string

	// MaxDepth bounds recursion; <= 0 means unlimited.
	MaxDepth int

	Order   Order
	Reverse bool

	Filter      FilterFunc
	Prune       PruneFunc
	FilterWatch WatchFunc
	PruneWatch  WatchFunc

	// ScanningBudget caps the number of tracked paths; <= 0 unlimited.
	ScanningBudget int
	// ResultBudget caps the number of emitted wrappers; <= 0 unlimited.
	ResultBudget int
	// UniqueBudget caps the number of distinct entity URIs tracked
	// across all paths; <= 0 unlimited.
	UniqueBudget int

	// StartAtChild/StartAfterChild restrict depth-0 neighbor iteration
	// to begin at (or immediately after) a specific neighbor URI.
	StartAtChild    string
	StartAfterChild string
}
