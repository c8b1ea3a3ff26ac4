package async

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromiseResolveThenDo(t *testing.T) {
	p := New[int]()
	var got int
	p.ThenDo(func(v int) { got = v })

	err := p.Resolve(42)

	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestPromiseThenDoAfterResolveRunsImmediately(t *testing.T) {
	p := Resolved(7)
	var got int
	p.ThenDo(func(v int) { got = v })

	assert.Equal(t, 7, got)
}

func TestPromiseResolveTwiceReturnsAlreadySettled(t *testing.T) {
	p := New[int]()
	require.NoError(t, p.Resolve(1))

	err := p.Resolve(2)

	assert.ErrorIs(t, err, ErrAlreadySettled)
}

func TestPromiseRejectCatchDo(t *testing.T) {
	p := New[int]()
	var got error
	p.CatchDo(func(e error) { got = e })

	boom := errors.New("boom")
	p.Reject(boom)

	assert.Equal(t, boom, got)
}

func TestPromiseDisposeWhilePendingRejects(t *testing.T) {
	p := New[string]()
	var got error
	p.CatchDo(func(e error) { got = e })

	p.Dispose()

	assert.ErrorIs(t, got, ErrDisposed)
}

func TestAwaitReturnsOnResolve(t *testing.T) {
	p := New[string]()
	go p.Resolve("done")

	v, err := Await(context.Background(), p)

	require.NoError(t, err)
	assert.Equal(t, "done", v)
}

func TestAwaitReturnsOnReject(t *testing.T) {
	p := New[string]()
	boom := errors.New("boom")
	go p.Reject(boom)

	_, err := Await(context.Background(), p)

	assert.Equal(t, boom, err)
}

func TestAwaitRespectsContextCancellation(t *testing.T) {
	p := New[string]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := Await(ctx, p)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSettleConvertsPanicToError(t *testing.T) {
	_, err := Settle(func() (int, error) {
		panic("boom")
	})

	require.Error(t, err)
	var panicErr *PanicError
	assert.ErrorAs(t, err, &panicErr)
}

func TestSettlePassesThroughValueAndError(t *testing.T) {
	v, err := Settle(func() (int, error) { return 5, nil })

	require.NoError(t, err)
	assert.Equal(t, 5, v)
}
