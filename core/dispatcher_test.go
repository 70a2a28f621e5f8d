package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	payload int
	core    CoreID
}

func TestDispatcher_DrainsInOrder(t *testing.T) {
	assert := assert.New(t)

	q := NewQueue[int](8)
	var calls []call
	d := NewDispatcher("collect", Core1, 4, q, func(p int, c CoreID) {
		calls = append(calls, call{p, c})
	})

	for i := 1; i <= 5; i++ {
		require.NoError(t, q.Push(i))
	}
	d.Handle(4)

	assert.Equal([]call{{1, Core1}, {2, Core1}, {3, Core1}, {4, Core1}, {5, Core1}}, calls)
	assert.True(q.Empty())
	assert.Equal(Idle, d.State())
	assert.Equal(DispatchStats{Runs: 1, Handled: 5, MaxBatch: 5}, d.Stats())
}

func TestDispatcher_EmptyQueue(t *testing.T) {
	q := NewQueue[int](4)
	d := NewDispatcher("noop", Core0, 1, q, func(int, CoreID) {
		t.Fatal("handler must not run on an empty queue")
	})

	assert.Equal(t, 0, d.Drain())
	assert.Equal(t, uint32(1), d.Stats().Runs)
}

func TestDispatcher_PicksUpEntriesPushedDuringDrain(t *testing.T) {
	assert := assert.New(t)

	q := NewQueue[int](4)
	var got []int
	var d *Dispatcher[int]
	d = NewDispatcher("reentrant", Core1, 2, q, func(p int, _ CoreID) {
		assert.Equal(Draining, d.State())
		got = append(got, p)
		if p+3 <= 7 {
			// producer racing ahead of the drain
			assert.NoError(q.Push(p + 3))
		}
		// a nested service of the same line does nothing
		assert.Equal(0, d.Drain())
	})

	require.NoError(t, q.Push(1))
	require.NoError(t, q.Push(2))
	require.NoError(t, q.Push(3))

	assert.Equal(7, d.Drain())
	assert.Equal([]int{1, 2, 3, 4, 5, 6, 7}, got)
	assert.Equal(Idle, d.State())
}

func TestDispatchState_String(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "draining", Draining.String())
}
