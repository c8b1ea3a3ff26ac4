package entitygraph

// List is a Collection specialized for pure insertion order: Add appends,
// DeleteFirst removes the first predicate match (the promoted Delete
// still removes every match).
type List[T Item] struct {
	*Collection[T]
}

// NewList creates an empty List.
func NewList[T Item]() *List[T] {
	return &List[T]{Collection: NewCollection[T]()}
}

// DeleteFirst removes and disposes the first item matching pred, if any.
// Returns whether an item was removed.
func (l *List[T]) DeleteFirst(pred func(T) bool) bool {
	found := false
	l.Collection.Delete(func(item T) bool {
		if found {
			return false
		}
		if pred(item) {
			found = true
			return true
		}
		return false
	})
	return found
}

// At returns the item at position i in insertion order, and whether i was
// in range.
func (l *List[T]) At(i int) (T, bool) {
	items := l.Iter()
	if i < 0 || i >= len(items) {
		var zero T
		return zero, false
	}
	return items[i], true
}
