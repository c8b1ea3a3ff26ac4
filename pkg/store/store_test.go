package store

import (
	"testing"

	"github.com/pathgraph/entitygraph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// node is a minimal Entity for exercising EntityStore in isolation.
type node struct {
	Base
	status *entitygraph.Signal[string]
}

func newNode(s *EntityStore, prefix, key string) *node {
	n := &node{Base: NewBase(s.NewURI(prefix), key)}
	return n
}

func equalStr(a, b string) bool { return a == b }

func TestEntityStoreAddAndGet(t *testing.T) {
	s := NewEntityStore()
	n := newNode(s, "session", "")
	s.Add(n, "session")

	got, ok := s.Get(n.URI())
	require.True(t, ok)
	assert.Same(t, n, got)
	assert.Equal(t, 1, s.Count())
	assert.Equal(t, 1, s.OfType("session"))
}

func TestEntityStoreAddDuplicateURIPanics(t *testing.T) {
	s := NewEntityStore()
	n := newNode(s, "session", "")
	s.Add(n, "session")

	assert.PanicsWithError(t, entitygraph.ErrDuplicateURI.Error()+": "+n.URI(), func() {
		s.Add(n, "session")
	})
}

func TestEntityStoreAddEdgeUnknownEndpointsPanic(t *testing.T) {
	s := NewEntityStore()
	n := newNode(s, "session", "")
	s.Add(n, "session")

	assert.Panics(t, func() { s.AddEdge(n.URI(), "parent", "missing") })
	assert.Panics(t, func() { s.AddEdge("missing", "parent", n.URI()) })
}

func TestEntityStoreEdgesAndSiblingOrder(t *testing.T) {
	s := NewEntityStore()
	parent := newNode(s, "thread", "")
	s.Add(parent, "thread")

	f1 := newNode(s, "frame", "f1")
	f2 := newNode(s, "frame", "f2")
	f3 := newNode(s, "frame", "f3")
	s.Add(f1, "frame", EdgeSpec{Type: ParentEdgeType, To: parent.URI()})
	s.Add(f2, "frame", EdgeSpec{Type: ParentEdgeType, To: parent.URI()})
	s.Add(f3, "frame", EdgeSpec{Type: ParentEdgeType, To: parent.URI(), Prepend: true})

	children := s.childrenOf(parent.URI())
	assert.Equal(t, []string{f3.URI(), f1.URI(), f2.URI()}, children)

	parentURI, ok := s.GetParent(f1.URI(), ParentEdgeType)
	require.True(t, ok)
	assert.Equal(t, parent.URI(), parentURI)
}

func TestEntityStoreOnAddedFiresTypeThenGlobal(t *testing.T) {
	s := NewEntityStore()
	var order []string
	s.OnAdded("session", func(e Entity) { order = append(order, "typed") })
	s.OnAdded("", func(e Entity) { order = append(order, "global") })

	s.Add(newNode(s, "session", ""), "session")

	assert.Equal(t, []string{"typed", "global"}, order)
}

func TestEntityStoreAddIndexAndGetBy(t *testing.T) {
	s := NewEntityStore()
	s.AddIndex("frame", "status", func(e Entity) any {
		return e.(*node).status
	})

	f1 := newNode(s, "frame", "")
	f1.status = entitygraph.NewSignal("paused", equalStr)
	s.Add(f1, "frame")

	got := s.GetBy("frame", "status", "paused")
	require.Len(t, got, 1)
	assert.Same(t, f1, got[0])

	f1.status.Set("running")
	assert.Empty(t, s.GetBy("frame", "status", "paused"))
	assert.Len(t, s.GetBy("frame", "status", "running"), 1)
}

func TestEntityStoreGetByUnknownIndexPanics(t *testing.T) {
	s := NewEntityStore()
	assert.Panics(t, func() { s.GetBy("frame", "missing", "x") })
}

func TestEntityStoreDisposeEntityCascadesToChildren(t *testing.T) {
	s := NewEntityStore()
	session := newNode(s, "session", "")
	s.Add(session, "session")
	thread := newNode(s, "thread", "")
	s.Add(thread, "thread", EdgeSpec{Type: ParentEdgeType, To: session.URI()})
	frame := newNode(s, "frame", "")
	s.Add(frame, "frame", EdgeSpec{Type: ParentEdgeType, To: thread.URI()})

	var removedOrder []string
	s.OnRemoved("", func(e Entity) { removedOrder = append(removedOrder, e.URI()) })

	session.Disposer().Dispose()

	assert.Equal(t, []string{frame.URI(), thread.URI(), session.URI()}, removedOrder)
	assert.False(t, s.Has(session.URI()))
	assert.False(t, s.Has(thread.URI()))
	assert.False(t, s.Has(frame.URI()))
}

func TestEntityStoreDisposeEntityIsNoOpWhenAbsent(t *testing.T) {
	s := NewEntityStore()
	assert.NotPanics(t, func() { s.DisposeEntity("nope") })
}

func TestEntityStoreWithIDGenerator(t *testing.T) {
	calls := 0
	s := NewEntityStore(WithIDGenerator(func() string {
		calls++
		return "fixed"
	}))

	uri := s.NewURI("session")
	assert.Equal(t, "session/fixed", uri)
	assert.Equal(t, 1, calls)
}

func TestEntityStoreRemoveEdgeUpdatesSiblingsAndFiresListener(t *testing.T) {
	s := NewEntityStore()
	parent := newNode(s, "thread", "")
	s.Add(parent, "thread")
	child := newNode(s, "frame", "")
	s.Add(child, "frame", EdgeSpec{Type: ParentEdgeType, To: parent.URI()})

	fired := false
	s.OnEdgeRemoved(ParentEdgeType, func(e Edge) { fired = true })

	s.RemoveEdge(child.URI(), ParentEdgeType, parent.URI())

	assert.True(t, fired)
	_, ok := s.GetParent(child.URI(), ParentEdgeType)
	assert.False(t, ok)
}
