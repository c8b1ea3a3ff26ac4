package entitygraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// item is a minimal Item for exercising Collection/List/Set in isolation.
type item struct {
	Disposable
	name string
	tier *Signal[string]
}

func newItem(name string) *item { return &item{name: name} }

func (i *item) Disposer() *Disposable { return &i.Disposable }

func TestCollectionAddAndIter(t *testing.T) {
	c := NewCollection[*item]()
	a, b := newItem("a"), newItem("b")

	assert.True(t, c.Add(a))
	assert.True(t, c.Add(b))
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, []*item{a, b}, c.Iter())
}

func TestCollectionAddRejectsDuplicate(t *testing.T) {
	c := NewCollection[*item]()
	a := newItem("a")
	c.Add(a)

	added := c.Add(a)

	assert.False(t, added)
	assert.Equal(t, 1, c.Len())
}

func TestCollectionDeleteDisposesMatches(t *testing.T) {
	c := NewCollection[*item]()
	a, b := newItem("a"), newItem("b")
	c.Add(a)
	c.Add(b)

	removed := c.Delete(func(it *item) bool { return it.name == "a" })

	require.Equal(t, 1, removed)
	assert.Equal(t, 1, c.Len())
	assert.True(t, a.IsDisposed())
	assert.False(t, b.IsDisposed())
}

func TestCollectionExtractDoesNotDispose(t *testing.T) {
	c := NewCollection[*item]()
	a := newItem("a")
	c.Add(a)

	extracted := c.Extract(func(it *item) bool { return it.name == "a" })

	require.Len(t, extracted, 1)
	assert.Equal(t, 0, c.Len())
	assert.False(t, a.IsDisposed())
}

func TestCollectionDisposingMemberRemovesItFromCollection(t *testing.T) {
	c := NewCollection[*item]()
	a := newItem("a")
	c.Add(a)

	a.Dispose()

	assert.Equal(t, 0, c.Len())
}

func TestCollectionDisposeCascadesToMembers(t *testing.T) {
	c := NewCollection[*item]()
	a := newItem("a")
	c.Add(a)

	c.Dispose()

	assert.True(t, a.IsDisposed())
}

func TestCollectionOnAddedOnRemoved(t *testing.T) {
	c := NewCollection[*item]()
	var added, removed []string
	c.OnAdded(func(it *item) { added = append(added, it.name) })
	c.OnRemoved(func(it *item) { removed = append(removed, it.name) })

	a := newItem("a")
	c.Add(a)
	c.Delete(func(it *item) bool { return true })

	assert.Equal(t, []string{"a"}, added)
	assert.Equal(t, []string{"a"}, removed)
}

func TestCollectionStaticIndexBucketsByKey(t *testing.T) {
	c := NewCollection[*item]()
	c.AddIndex("name", func(it *item) any { return it.name })
	c.Add(newItem("a"))
	c.Add(newItem("b"))
	c.Add(newItem("a"))

	child := c.Where("name", "a")
	assert.Equal(t, 2, child.Len())
}

func TestCollectionWhereTracksFutureAdds(t *testing.T) {
	c := NewCollection[*item]()
	c.AddIndex("name", func(it *item) any { return it.name })
	child := c.Where("name", "a")
	assert.Equal(t, 0, child.Len())

	c.Add(newItem("a"))
	assert.Equal(t, 1, child.Len())

	c.Add(newItem("b"))
	assert.Equal(t, 1, child.Len())
}

func TestCollectionWhereTracksSignalIndexMoves(t *testing.T) {
	c := NewCollection[*item]()
	c.AddIndex("tier", func(it *item) any { return it.tier })

	a := newItem("a")
	a.tier = NewSignal("gold", func(x, y string) bool { return x == y })
	c.Add(a)

	gold := c.Where("tier", "gold")
	silver := c.Where("tier", "silver")
	assert.Equal(t, 1, gold.Len())
	assert.Equal(t, 0, silver.Len())

	a.tier.Set("silver")
	assert.Equal(t, 0, gold.Len())
	assert.Equal(t, 1, silver.Len())
}

func TestCollectionWhereRemovesMemberOnParentRemoval(t *testing.T) {
	c := NewCollection[*item]()
	c.AddIndex("name", func(it *item) any { return it.name })
	a := newItem("a")
	c.Add(a)
	child := c.Where("name", "a")
	require.Equal(t, 1, child.Len())

	c.Delete(func(it *item) bool { return true })

	assert.Equal(t, 0, child.Len())
}

func TestListDeleteFirstRemovesOnlyOneMatch(t *testing.T) {
	l := NewList[*item]()
	a1, a2 := newItem("a"), newItem("a")
	l.Add(a1)
	l.Add(a2)

	removed := l.DeleteFirst(func(it *item) bool { return it.name == "a" })

	require.True(t, removed)
	assert.Equal(t, 1, l.Len())
}

func TestListAtReturnsInsertionOrder(t *testing.T) {
	l := NewList[*item]()
	a, b := newItem("a"), newItem("b")
	l.Add(a)
	l.Add(b)

	got, ok := l.At(1)
	require.True(t, ok)
	assert.Equal(t, b, got)

	_, ok = l.At(2)
	assert.False(t, ok)
}

func TestSetHasChecksDisposerIdentity(t *testing.T) {
	s := NewSet[*item]()
	a, b := newItem("a"), newItem("a")
	s.Add(a)

	assert.True(t, s.Has(a))
	assert.False(t, s.Has(b))
}
