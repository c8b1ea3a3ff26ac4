package entitygraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisposableRunsCleanupsLIFO(t *testing.T) {
	var d Disposable
	var order []int

	d.OnDispose(func() { order = append(order, 1) })
	d.OnDispose(func() { order = append(order, 2) })
	d.OnDispose(func() { order = append(order, 3) })

	d.Dispose()

	assert.Equal(t, []int{3, 2, 1}, order)
	assert.True(t, d.IsDisposed())
}

func TestDisposableIsIdempotent(t *testing.T) {
	var d Disposable
	calls := 0
	d.OnDispose(func() { calls++ })

	d.Dispose()
	d.Dispose()
	d.Dispose()

	assert.Equal(t, 1, calls)
}

func TestDisposableOnDisposeAfterDisposalRunsImmediately(t *testing.T) {
	var d Disposable
	d.Dispose()

	ran := false
	d.OnDispose(func() { ran = true })

	assert.True(t, ran)
}

func TestDisposableCascadesToChildren(t *testing.T) {
	var parent, child1, child2 Disposable
	child1.SetParent(&parent)
	child2.SetParent(&parent)

	parent.Dispose()

	assert.True(t, child1.IsDisposed())
	assert.True(t, child2.IsDisposed())
}

func TestDisposableSetParentOnAlreadyDisposedParentDisposesImmediately(t *testing.T) {
	var parent, child Disposable
	parent.Dispose()

	child.SetParent(&parent)

	assert.True(t, child.IsDisposed())
}

func TestDisposableDetachFromParent(t *testing.T) {
	var parent, child Disposable
	child.SetParent(&parent)
	child.SetParent(nil)

	parent.Dispose()

	require.False(t, child.IsDisposed())
}

func TestDisposableCleanupPanicDoesNotBlockRemainingCleanups(t *testing.T) {
	var d Disposable
	second := false
	d.OnDispose(func() { panic("boom") })
	d.OnDispose(func() { second = true })

	d.Dispose()

	assert.True(t, second)
}
