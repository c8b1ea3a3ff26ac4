package entitygraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func equalInt(a, b int) bool { return a == b }

func TestSignalGetSet(t *testing.T) {
	s := NewSignal(1, equalInt)
	assert.Equal(t, 1, s.Get())

	s.Set(2)
	assert.Equal(t, 2, s.Get())
}

func TestSignalSetSuppressesEqualWrites(t *testing.T) {
	s := NewSignal(1, equalInt)
	fires := 0
	s.Watch(func(newVal, oldVal int) { fires++ })

	s.Set(1)
	assert.Equal(t, 0, fires)

	s.Set(2)
	assert.Equal(t, 1, fires)
}

func TestSignalSetWithNilEqualAlwaysFires(t *testing.T) {
	s := NewSignal(1, nil)
	fires := 0
	s.Watch(func(newVal, oldVal int) { fires++ })

	s.Set(1)
	s.Set(1)
	assert.Equal(t, 2, fires)
}

func TestSignalWatchDoesNotFireImmediately(t *testing.T) {
	s := NewSignal(1, equalInt)
	fired := false
	s.Watch(func(newVal, oldVal int) { fired = true })

	assert.False(t, fired)
}

func TestSignalUseFiresImmediatelyThenOnChange(t *testing.T) {
	s := NewSignal(1, equalInt)
	var seen []int
	s.Use(func(newVal, oldVal int) Cleanup {
		seen = append(seen, newVal)
		return nil
	})

	assert.Equal(t, []int{1}, seen)

	s.Set(2)
	assert.Equal(t, []int{1, 2}, seen)
}

func TestSignalUsePerFireCleanupRunsBeforeNextFire(t *testing.T) {
	s := NewSignal(1, equalInt)
	var cleaned []int
	s.Use(func(newVal, oldVal int) Cleanup {
		v := newVal
		return func() { cleaned = append(cleaned, v) }
	})

	s.Set(2)
	assert.Equal(t, []int{1}, cleaned)

	s.Set(3)
	assert.Equal(t, []int{1, 2}, cleaned)
}

func TestSignalUnsubscribeStopsFutureNotifications(t *testing.T) {
	s := NewSignal(1, equalInt)
	fires := 0
	unsub := s.Watch(func(newVal, oldVal int) { fires++ })

	s.Set(2)
	unsub()
	s.Set(3)

	assert.Equal(t, 1, fires)
}

func TestSignalDisposeDetachesWatchers(t *testing.T) {
	s := NewSignal(1, equalInt)
	fires := 0
	s.Watch(func(newVal, oldVal int) { fires++ })

	s.Dispose()
	s.Set(2)

	assert.Equal(t, 0, fires)
}

func TestComputedRecomputesOnDependencyChange(t *testing.T) {
	a := NewSignal(1, equalInt)
	b := NewSignal(2, equalInt)
	c := NewComputed(func() int { return a.Get() + b.Get() }, equalInt, a, b)

	assert.Equal(t, 3, c.Get())

	a.Set(10)
	assert.Equal(t, 12, c.Get())

	b.Set(20)
	assert.Equal(t, 30, c.Get())
}

func TestComputedDisposeUnsubscribesFromDependencies(t *testing.T) {
	a := NewSignal(1, equalInt)
	c := NewComputed(func() int { return a.Get() * 2 }, equalInt, a)

	c.Dispose()
	a.Set(100)

	assert.Equal(t, 2, c.Get(), "a disposed Computed must stop tracking its dependency")
}

func TestAnySignalWatchAnyAndGetAny(t *testing.T) {
	s := NewSignal("a", func(a, b string) bool { return a == b })
	var any AnySignal = s

	assert.Equal(t, "a", any.GetAny())

	fires := 0
	any.WatchAny(func() { fires++ })
	s.Set("b")

	assert.Equal(t, 1, fires)
}
