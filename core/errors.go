package core

import "errors"

var (
	// ErrQueueFull is returned when a producer pushes into a saturated queue.
	// It is an expected condition under load.
	ErrQueueFull = errors.New("queue full")

	// ErrSignalLost is returned when the mailbox had no room for a wake-up
	// signal, or latched an overflow, so the sibling may never see it
	ErrSignalLost = errors.New("signal lost")

	// ErrInvalidSignal matches any *InvalidSignalError
	ErrInvalidSignal = errors.New("invalid signal")

	ErrNoRoute     = errors.New("no task bound for target core")
	ErrRouteExists = errors.New("task already bound for target core")
	ErrSealed      = errors.New("bindings sealed after core start")
	ErrUnknownCore = errors.New("unknown core")

	ErrIncompleteNode = errors.New("node lacks interrupt controller or mailbox")
	ErrLineInUse   = errors.New("interrupt line already bound")
	ErrNoHandler   = errors.New("binding has no handler")
)

// InvalidSignalError reports a mailbox word that does not name a declared
// signal
type InvalidSignalError struct {
	Word uint32
}

func (e *InvalidSignalError) Error() string {
	return "invalid signal word " + utoa(e.Word)
}

func (e *InvalidSignalError) Is(target error) bool {
	return target == ErrInvalidSignal
}

// SpawnError records which cross-core operation failed and for which target
type SpawnError struct {
	Op     string
	Target CoreID
	Err    error
}

func (e *SpawnError) Error() string {
	return e.Op + " core" + itoa(int(e.Target)) + ": " + e.Err.Error()
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}
