package store

import "github.com/pathgraph/entitygraph/pkg/meta"

// Tag reads entity's tag named key as T, converting via reflection when
// the stored value isn't already a T (e.g. an int literal tagged against
// a float64 field). A Wrapper's "_virtual" metadata covers path shape;
// Tag covers everything else a UI wants to attach to an entity.
func Tag[T any](e Entity, key string) (T, error) {
	return meta.Get[T](e.Tags(), key)
}

// HasTag reports whether entity carries a tag named key, regardless of
// its value's type.
func HasTag(e Entity, key string) bool {
	return len(meta.Find(e.Tags(), key)) > 0
}
