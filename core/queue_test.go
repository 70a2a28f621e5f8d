package core

import (
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_RoundTrip(t *testing.T) {
	assert := assert.New(t)

	q := NewQueue[uint32](3)
	assert.NoError(q.Push(1))
	assert.NoError(q.Push(2))
	assert.ErrorIs(q.Push(3), ErrQueueFull) // one slot always stays free

	assertPop(t, q, 1)
	assertPop(t, q, 2)
	assertEmpty(t, q)

	assert.NoError(q.Push(4))
	assert.NoError(q.Push(5))
	assert.ErrorIs(q.Push(6), ErrQueueFull)
	assertPop(t, q, 4)
	assertPop(t, q, 5)

	assert.NoError(q.Push(7))
	assertPop(t, q, 7)
	assertEmpty(t, q)

	assert.NoError(q.Push(8))
	assert.NoError(q.Push(9))
	assertPop(t, q, 8)
	assertPop(t, q, 9)
	assertEmpty(t, q)
}

func TestQueue_FullLeavesStateUnchanged(t *testing.T) {
	assert := assert.New(t)

	q := NewQueue[int](4)
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Push(i))
	}
	assert.Equal(3, q.Len())

	assert.ErrorIs(q.Push(99), ErrQueueFull)
	assert.Equal(3, q.Len())

	assertPop(t, q, 0)
	assert.NoError(q.Push(99))
	assertPop(t, q, 1)
	assertPop(t, q, 2)
	assertPop(t, q, 99)
	assertEmpty(t, q)
}

func TestQueue_PopEmptyIsIdempotent(t *testing.T) {
	q := NewQueue[string](2)
	for i := 0; i < 5; i++ {
		assertEmpty(t, q)
	}
	assert.Equal(t, 0, q.Len())

	require.NoError(t, q.Push("a"))
	assertPop(t, q, "a")
	assertEmpty(t, q)
}

func TestQueue_FIFOAcrossPositionWrap(t *testing.T) {
	// Positions wrap at 2n; run far past that with a non power of two
	// capacity and varying fill levels
	q := NewQueue[int](5)
	next, want := 0, 0
	for round := 0; round < 200; round++ {
		fill := round%4 + 1
		for i := 0; i < fill; i++ {
			require.NoError(t, q.Push(next))
			next++
		}
		assert.Equal(t, fill, q.Len())
		for i := 0; i < fill; i++ {
			assertPop(t, q, want)
			want++
		}
	}
	assertEmpty(t, q)
}

func TestQueue_HoldsAtMostCapacityMinusOne(t *testing.T) {
	for _, capacity := range []int{2, 3, 7, 8, 33} {
		q := NewQueue[int](capacity)
		assert.Equal(t, capacity-1, q.Cap())

		pushed := 0
		for q.Push(pushed) == nil {
			pushed++
		}
		assert.Equal(t, capacity-1, pushed, "capacity %d", capacity)
		assert.Equal(t, capacity-1, q.Len())
	}
}

func TestNewQueue_RejectsTinyCapacity(t *testing.T) {
	assert.Panics(t, func() { NewQueue[int](1) })
	assert.Panics(t, func() { NewQueue[int](0) })
	assert.Panics(t, func() { NewQueue[int](-3) })
}

type wideRecord struct {
	Seq   uint64
	Check uint64
	Pad   [6]uint64
}

func newWideRecord(seq uint64) wideRecord {
	r := wideRecord{Seq: seq, Check: ^seq}
	for i := range r.Pad {
		r.Pad[i] = seq * uint64(i+3)
	}
	return r
}

func (r wideRecord) intact() bool {
	if r.Check != ^r.Seq {
		return false
	}
	for i, v := range r.Pad {
		if v != r.Seq*uint64(i+3) {
			return false
		}
	}
	return true
}

func TestQueue_ConcurrentProducerConsumer(t *testing.T) {
	const total = 200000

	q := NewQueue[wideRecord](8)
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for seq := uint64(0); seq < total; {
			if q.Push(newWideRecord(seq)) == nil {
				seq++
			} else {
				runtime.Gosched()
			}
		}
	}()

	var torn, outOfOrder int
	go func() {
		defer wg.Done()
		for want := uint64(0); want < total; {
			r, ok := q.Pop()
			if !ok {
				runtime.Gosched()
				continue
			}
			if !r.intact() {
				torn++
			}
			if r.Seq != want {
				outOfOrder++
			}
			want = r.Seq + 1
		}
	}()

	wg.Wait()
	assert.Zero(t, torn, "torn payloads")
	assert.Zero(t, outOfOrder, "out of order payloads")
	assert.True(t, q.Empty())
}

func assertPop[T any](t *testing.T, q *Queue[T], want T) {
	t.Helper()
	got, ok := q.Pop()
	if assert.True(t, ok, "expected %v, queue empty", want) {
		assert.Equal(t, want, got)
	}
}

func assertEmpty[T any](t *testing.T, q *Queue[T]) {
	t.Helper()
	_, ok := q.Pop()
	assert.False(t, ok, "expected empty queue")
}
