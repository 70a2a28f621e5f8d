package core

import "sync/atomic"

// TaskFunc is the handler bound to a dispatcher. It runs in interrupt
// context on the consuming core; long handlers delay every later entry in
// the queue and every lower-priority interrupt on that core.
type TaskFunc[T any] func(payload T, core CoreID)

// DispatchState is the dispatcher's position in its two-state machine
type DispatchState uint32

const (
	Idle DispatchState = iota
	Draining
)

func (s DispatchState) String() string {
	if s == Draining {
		return "draining"
	}
	return "idle"
}

// Dispatcher drains one queue on its interrupt line and runs the bound
// handler for every entry. Draining to empty means one wake-up covers any
// number of queued payloads, so coalesced or lost signals only delay work
// until the next wake-up.
type Dispatcher[T any] struct {
	name    string
	core    CoreID
	line    IRQ
	queue   *Queue[T]
	handler TaskFunc[T]

	state    atomic.Uint32
	runs     atomic.Uint32
	handled  atomic.Uint32
	maxBatch atomic.Uint32
}

// DispatchStats is a snapshot of a dispatcher's counters
type DispatchStats struct {
	Runs     uint32 // times the line was serviced
	Handled  uint32 // payloads passed to the handler
	MaxBatch uint32 // largest number handled in one run
}

// NewDispatcher binds queue and handler to line on core
func NewDispatcher[T any](name string, core CoreID, line IRQ, queue *Queue[T], handler TaskFunc[T]) *Dispatcher[T] {
	return &Dispatcher[T]{
		name:    name,
		core:    core,
		line:    line,
		queue:   queue,
		handler: handler,
	}
}

// Name returns the binding name
func (d *Dispatcher[T]) Name() string {
	return d.name
}

// Core returns the consuming core
func (d *Dispatcher[T]) Core() CoreID {
	return d.core
}

// Line returns the dispatch interrupt line
func (d *Dispatcher[T]) Line() IRQ {
	return d.line
}

// Queue returns the queue this dispatcher consumes
func (d *Dispatcher[T]) Queue() *Queue[T] {
	return d.queue
}

// State reports whether a drain is in progress
func (d *Dispatcher[T]) State() DispatchState {
	return DispatchState(d.state.Load())
}

// Handle is the interrupt handler for the dispatch line
func (d *Dispatcher[T]) Handle(IRQ) {
	d.Drain()
}

// Drain pops until the queue is empty, calling the handler for each
// payload in FIFO order, and returns how many were handled. A call made
// while a drain is already running returns 0; the running drain picks up
// the new entries before going idle.
func (d *Dispatcher[T]) Drain() int {
	total := 0
	for {
		if !d.state.CompareAndSwap(uint32(Idle), uint32(Draining)) {
			return total
		}
		d.runs.Add(1)
		RecordTrace(d.core, EvtDrainStart, d.line, uint32(d.queue.Len()))

		n := 0
		for {
			v, ok := d.queue.Pop()
			if !ok {
				break
			}
			d.handler(v, d.core)
			n++
		}

		d.handled.Add(uint32(n))
		if uint32(n) > d.maxBatch.Load() {
			d.maxBatch.Store(uint32(n))
		}
		d.state.Store(uint32(Idle))
		RecordTrace(d.core, EvtDrainEnd, d.line, uint32(n))
		total += n

		// An entry pushed between the last Pop and going idle would
		// otherwise wait for the next wake-up
		if d.queue.Empty() {
			return total
		}
	}
}

// Stats returns the dispatcher counters
func (d *Dispatcher[T]) Stats() DispatchStats {
	return DispatchStats{
		Runs:     d.runs.Load(),
		Handled:  d.handled.Load(),
		MaxBatch: d.maxBatch.Load(),
	}
}
