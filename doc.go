// Package entitygraph implements a reactive entity-graph engine: typed
// entities connected by typed directed edges, indexed by computed
// (possibly reactive) keys, exposed through live auto-updating views and
// path-aware graph traversals.
//
// # Overview
//
// The engine is built from four layered pieces:
//
//  1. Disposable: a lifecycle handle with cascading parent/child
//     ownership and LIFO cleanup.
//  2. Signal / Computed: a reactive value cell with equal-value write
//     suppression, and a read-only derived cell.
//  3. Collection / List / Set: ordered, deduplicating, reactively
//     indexed containers of Disposables.
//  4. pkg/store's EntityStore and View, and pkg/traversal's path-aware
//     reactive BFS/DFS engine, built on top of the three pieces above.
//
// # Basic usage
//
//	sig := entitygraph.NewSignal(0, func(a, b int) bool { return a == b })
//	unsub := sig.Watch(func(newVal, oldVal int) {
//	    fmt.Println("changed:", oldVal, "->", newVal)
//	})
//	sig.Set(1) // prints "changed: 0 -> 1"
//	unsub()
//
// # Disposal and ownership
//
// Every Signal, Collection, and entity embeds Disposable. Parenting one
// Disposable to another cascades disposal:
//
//	parent := &entitygraph.Disposable{}
//	child := entitygraph.NewSignal("x", nil)
//	child.SetParent(parent)
//	parent.Dispose() // also disposes child
//
// # Reactive indexes and live views
//
// Collection.AddIndex installs a reactively maintained index keyed by a
// static value or a Signal; Collection.Where returns a live child
// Collection tracking one bucket, updating as items are added, removed,
// or change key:
//
//	threads := entitygraph.NewCollection[*Thread]()
//	threads.AddIndex("by_state", func(t *Thread) any { return t.State })
//	running := threads.Where("by_state", "running")
//
// See pkg/store for the entity/edge graph and pkg/traversal for the
// path-aware reactive traversal engine built on top of these primitives.
package entitygraph
