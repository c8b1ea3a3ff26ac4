package traversal

import (
	"reflect"

	"github.com/pathgraph/entitygraph"
)

// Wrapper is one path's output: a Disposable owned by the output
// Collection, carrying the "_virtual" path record and a reference to the
// underlying entity. Field resolves names against the entity via
// reflection (the wrapper itself adds no fields of its own), giving
// callers dynamic field access over statically typed targets.
type Wrapper struct {
	entitygraph.Disposable

	Virtual VirtualInfo
	Entity  any
}

// VirtualInfo is the "_virtual" record attached to every Wrapper.
type VirtualInfo struct {
	EntityURI  string
	VirtualURI string
	Depth      int
	Path       []string
	PathKeys   []string
	Parent     string // virtual URI of the nearest emitted ancestor, "" at the root
	Pruned     bool
}

// Disposer implements entitygraph.Item.
func (w *Wrapper) Disposer() *entitygraph.Disposable { return &w.Disposable }

// Unwrap returns the underlying entity.
func (w *Wrapper) Unwrap() any { return w.Entity }

// Field resolves name against the wrapped entity: an exported struct
// field, or failing that a zero-argument method returning one value
// (covering Signal-typed accessors like `Entity.State() *Signal[string]`
// as well as plain fields).
func (w *Wrapper) Field(name string) (any, bool) {
	return fieldOf(w.Entity, name)
}

func fieldOf(entity any, name string) (any, bool) {
	if entity == nil {
		return nil, false
	}
	v := reflect.ValueOf(entity)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil, false
		}
		v = v.Elem()
	}

	if v.Kind() == reflect.Struct {
		if f := v.FieldByName(name); f.IsValid() && f.CanInterface() {
			return f.Interface(), true
		}
	}

	if m := reflect.ValueOf(entity).MethodByName(name); m.IsValid() && m.Type().NumIn() == 0 && m.Type().NumOut() == 1 {
		return m.Call(nil)[0].Interface(), true
	}
	return nil, false
}
