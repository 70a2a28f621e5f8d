package core

// DefaultQueueCapacity is used when a binding leaves Capacity unset
const DefaultQueueCapacity = 16

// Binding declares one cross-core task: payloads produced on the spawner's
// core are queued for Target, where Handler runs on Line
type Binding[T any] struct {
	Name     string
	Target   CoreID
	Line     IRQ
	Capacity int // including the unusable slot; 0 selects DefaultQueueCapacity
	Handler  TaskFunc[T]
}

type route[T any] struct {
	queue      *Queue[T]
	line       IRQ
	dispatcher *Dispatcher[T]
}

// Spawner is the call surface for tasks produced on one core. Each bound
// target gets its own queue, so every queue has exactly one producer (the
// spawner's core) and one consumer (the target's dispatcher).
type Spawner[T any] struct {
	sys    *System
	source CoreID
	routes [NumCores]*route[T]
}

// NewSpawner creates the spawner used by code running on source
func NewSpawner[T any](sys *System, source CoreID) *Spawner[T] {
	return &Spawner[T]{sys: sys, source: source}
}

// Source returns the producing core
func (s *Spawner[T]) Source() CoreID {
	return s.source
}

// Bind allocates the queue and dispatcher for b and attaches the
// dispatcher to b.Line on the target core. Bindings are only accepted
// before the first core starts.
func (s *Spawner[T]) Bind(b Binding[T]) (*Dispatcher[T], error) {
	if !s.source.Valid() || !b.Target.Valid() {
		return nil, &SpawnError{Op: "bind", Target: b.Target, Err: ErrUnknownCore}
	}
	if b.Handler == nil {
		return nil, &SpawnError{Op: "bind", Target: b.Target, Err: ErrNoHandler}
	}
	if s.routes[b.Target] != nil {
		return nil, &SpawnError{Op: "bind", Target: b.Target, Err: ErrRouteExists}
	}

	capacity := b.Capacity
	if capacity == 0 {
		capacity = DefaultQueueCapacity
	}
	queue := NewQueue[T](capacity)
	d := NewDispatcher(b.Name, b.Target, b.Line, queue, b.Handler)

	if err := s.sys.Attach(b.Target, b.Line, d.Handle); err != nil {
		return nil, &SpawnError{Op: "bind", Target: b.Target, Err: err}
	}
	s.routes[b.Target] = &route[T]{queue: queue, line: b.Line, dispatcher: d}
	return d, nil
}

// Invoke queues payload for the task bound to target and wakes the
// target's dispatcher. It never blocks and cannot be cancelled.
//
// ErrQueueFull means nothing was queued and no signal was sent; the caller
// decides whether to retry, drop or escalate. ErrSignalLost means the
// payload IS queued but the wake-up did not fit in the mailbox; do not
// push it again, it runs on the target's next wake-up (see Wake).
func (s *Spawner[T]) Invoke(target CoreID, payload T) error {
	r := s.route(target)
	if r == nil {
		return ErrNoRoute
	}

	if err := r.queue.Push(payload); err != nil {
		RecordTrace(s.source, EvtQueueFull, r.line, uint32(r.queue.Len()))
		return err
	}
	RecordTrace(s.source, EvtInvoke, r.line, uint32(target))

	// The queue is populated before the signal; the mailbox carries no
	// data ordering of its own
	return s.sys.CrossPend(s.source, target, r.line)
}

// Wake re-sends the wake-up for target without queuing anything
func (s *Spawner[T]) Wake(target CoreID) error {
	r := s.route(target)
	if r == nil {
		return ErrNoRoute
	}
	return s.sys.CrossPend(s.source, target, r.line)
}

// Dispatcher returns the dispatcher bound for target, or nil
func (s *Spawner[T]) Dispatcher(target CoreID) *Dispatcher[T] {
	if r := s.route(target); r != nil {
		return r.dispatcher
	}
	return nil
}

func (s *Spawner[T]) route(target CoreID) *route[T] {
	if !target.Valid() {
		return nil
	}
	return s.routes[target]
}
