package store

import (
	"testing"

	"github.com/pathgraph/entitygraph/pkg/traversal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityStoreBFSWalksChildEdges(t *testing.T) {
	s := NewEntityStore()
	session := newNode(s, "session", "")
	s.Add(session, "session")
	t1 := newNode(s, "thread", "")
	s.Add(t1, "thread", EdgeSpec{Type: ParentEdgeType, To: session.URI()})
	f1 := newNode(s, "frame", "")
	s.Add(f1, "frame", EdgeSpec{Type: ParentEdgeType, To: t1.URI()})

	tr := s.BFS(session.URI(), traversal.Options{Direction: traversal.In, EdgeTypes: []string{ParentEdgeType}})
	defer tr.Dispose()

	assert.Equal(t, 3, tr.Count())
}

func TestEntityStoreBFSAndDFSAreEquivalentOverTheSameGraph(t *testing.T) {
	s := NewEntityStore()
	root := newNode(s, "root", "")
	s.Add(root, "root")
	a := newNode(s, "node", "a")
	b := newNode(s, "node", "b")
	s.Add(a, "node", EdgeSpec{Type: "link", To: root.URI()})
	s.Add(b, "node", EdgeSpec{Type: "link", To: root.URI()})
	s.AddEdge(root.URI(), "link", a.URI())
	s.AddEdge(root.URI(), "link", b.URI())

	bfs := s.BFS(root.URI(), traversal.Options{Direction: traversal.Out, EdgeTypes: []string{"link"}})
	defer bfs.Dispose()
	dfs := s.DFS(root.URI(), traversal.Options{Direction: traversal.Out, EdgeTypes: []string{"link"}})
	defer dfs.Dispose()

	assert.Equal(t, bfs.Count(), dfs.Count())
}

func TestEntityStoreTraversalReactsToNewEntityAndEdge(t *testing.T) {
	s := NewEntityStore()
	root := newNode(s, "root", "")
	s.Add(root, "root")

	tr := s.BFS(root.URI(), traversal.Options{Direction: traversal.Out, EdgeTypes: []string{"link"}})
	defer tr.Dispose()
	require.Equal(t, 1, tr.Count())

	leaf := newNode(s, "node", "leaf")
	s.Add(leaf, "node")
	s.AddEdge(root.URI(), "link", leaf.URI())

	assert.Equal(t, 2, tr.Count())
}

func TestEntityStoreTraversalReactsToEntityDisposal(t *testing.T) {
	s := NewEntityStore()
	root := newNode(s, "root", "")
	s.Add(root, "root")
	leaf := newNode(s, "node", "leaf")
	s.Add(leaf, "node", EdgeSpec{Type: "link", To: root.URI()})
	s.AddEdge(root.URI(), "link", leaf.URI())

	tr := s.BFS(root.URI(), traversal.Options{Direction: traversal.Out, EdgeTypes: []string{"link"}})
	defer tr.Dispose()
	require.Equal(t, 2, tr.Count())

	leaf.Disposer().Dispose()

	assert.Equal(t, 1, tr.Count())
}
