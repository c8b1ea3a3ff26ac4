// Package store implements the EntityStore and View subsystems of the
// entity-graph engine: a typed, directed-edge graph with reactive
// indexes, emitting add/remove/edge events, plus read-only query-cache
// backed Views over it.
package store

import (
	"strings"

	"github.com/pathgraph/entitygraph"
	"github.com/pathgraph/entitygraph/pkg/meta"
)

// ParentEdgeType is the designated ownership edge type: disposing an
// entity cascades to every entity connected to it by an incoming edge of
// this type.
const ParentEdgeType = "parent"

// Entity is an application object identified by a globally unique URI.
// Concrete entities embed Base, which supplies the Disposer/URI/Key
// machinery; _type is assigned and tracked by the store itself (not the
// entity), since it must be immutable-after-insertion store-side state
// rather than something a payload type can accidentally mutate.
type Entity interface {
	entitygraph.Item
	URI() string
	// Key returns the short path segment used in virtual URIs. An empty
	// string means "default to the URI's tail segment".
	Key() string
	// Tags returns the entity's lazily-allocated side-channel metadata
	// map, read through the package-level Tag helper.
	Tags() map[string]any
}

// Base is embedded by concrete entity types to satisfy the Entity
// interface with the store's expected lifecycle and naming behavior.
type Base struct {
	entitygraph.Disposable
	uri  string
	key  string
	tags map[string]any
}

// NewBase constructs a Base for the given uri. key may be empty, in
// which case Key() falls back to the URI's tail segment.
func NewBase(uri, key string) Base {
	return Base{uri: uri, key: key}
}

// Disposer implements entitygraph.Item.
func (b *Base) Disposer() *entitygraph.Disposable { return &b.Disposable }

// URI returns the entity's globally unique identifier.
func (b *Base) URI() string { return b.uri }

// Key returns the explicit key if set, else the URI's tail segment.
func (b *Base) Key() string {
	if b.key != "" {
		return b.key
	}
	return uriTail(b.uri)
}

// Tags returns the side-channel metadata map, allocating it on first use.
// Debugger front ends use this for display hints (breakpoint markers,
// collapsed/expanded state, ...) that don't belong on the payload type
// itself and aren't part of the graph's identity or edges.
func (b *Base) Tags() map[string]any {
	if b.tags == nil {
		b.tags = make(map[string]any)
	}
	return b.tags
}

// SetTag stores value under key in the entity's tag map.
func (b *Base) SetTag(key string, value any) {
	meta.Set(b.Tags(), key, value)
}

func uriTail(uri string) string {
	if i := strings.LastIndexByte(uri, '/'); i >= 0 {
		return uri[i+1:]
	}
	return uri
}
