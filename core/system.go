package core

import "sync/atomic"

// Node is one core's platform services
type Node struct {
	ID CoreID

	// Interrupts is the core's private interrupt controller
	Interrupts InterruptController

	// Mailbox is the core's view of the channel to its sibling
	Mailbox Mailbox

	// MailboxLine is raised on this core while its mailbox holds data
	MailboxLine IRQ
}

// System owns the shared state of both cores: the declared signals, one
// relay per core and the table of bound interrupt lines. It is built once
// at startup, before the second core is launched, and never re-created.
type System struct {
	nodes   [NumCores]*Node
	relays  [NumCores]*Relay
	signals SignalSet

	// handlers bound per core, registered on the controller at bind time
	// and unmasked by StartCore
	bound [NumCores]SignalSet

	sealed  atomic.Bool
	started [NumCores]atomic.Bool
}

// NewSystem builds the system from one node per core
func NewSystem(nodes ...*Node) (*System, error) {
	if len(nodes) != NumCores {
		return nil, ErrUnknownCore
	}

	s := &System{}
	for _, n := range nodes {
		if n == nil || !n.ID.Valid() || s.nodes[n.ID] != nil {
			return nil, ErrUnknownCore
		}
		if n.Interrupts == nil || n.Mailbox == nil {
			return nil, ErrIncompleteNode
		}
		if n.MailboxLine >= MaxIRQ {
			return nil, &InvalidSignalError{Word: uint32(n.MailboxLine)}
		}
		s.nodes[n.ID] = n
		// a core only accepts signals for lines bound on it
		s.relays[n.ID] = NewRelay(n.ID, n.Mailbox, &s.bound[n.ID])
	}
	return s, nil
}

// Node returns the services of core id
func (s *System) Node(id CoreID) *Node {
	if !id.Valid() {
		return nil
	}
	return s.nodes[id]
}

// Relay returns the relay that sends from core id
func (s *System) Relay(id CoreID) *Relay {
	if !id.Valid() {
		return nil
	}
	return s.relays[id]
}

// Signals returns the declared signal set
func (s *System) Signals() *SignalSet {
	return &s.signals
}

// Sealed reports whether bindings are closed
func (s *System) Sealed() bool {
	return s.sealed.Load()
}

// Started reports whether StartCore ran for id
func (s *System) Started(id CoreID) bool {
	return id.Valid() && s.started[id].Load()
}

// Attach binds handler to line on core and declares line as a signal the
// sibling may send. The line stays masked until StartCore runs on core.
func (s *System) Attach(core CoreID, line IRQ, handler InterruptHandler) error {
	if s.sealed.Load() {
		return ErrSealed
	}
	if !core.Valid() {
		return ErrUnknownCore
	}
	if handler == nil {
		return ErrNoHandler
	}
	node := s.nodes[core]
	if line == node.MailboxLine || s.bound[core].Contains(line) {
		return ErrLineInUse
	}
	if err := s.signals.Declare(line); err != nil {
		return err
	}

	node.Interrupts.Mask(line)
	if err := node.Interrupts.Register(line, handler); err != nil {
		return err
	}
	return s.bound[core].Declare(line)
}

// StartCore enables cross-core dispatch on core id. It must run on that
// core, since each core can only unmask lines on its own controller.
//
// The first call seals the bindings. Stale mailbox words (the launch
// handshake uses the same channel) are discarded, then every bound line is
// pended once so that payloads queued before start, or whose wake-up was
// discarded, are handled.
func (s *System) StartCore(id CoreID) error {
	if !id.Valid() {
		return ErrUnknownCore
	}
	if s.started[id].Swap(true) {
		return nil
	}

	node := s.nodes[id]
	ic := node.Interrupts
	relay := s.relays[id]

	ic.Mask(node.MailboxLine)
	if err := ic.Register(node.MailboxLine, relay.Handler(ic)); err != nil {
		s.started[id].Store(false)
		return err
	}
	s.sealed.Store(true)
	if n := relay.Drain(); n > 0 {
		DebugPrintln("[SYSTEM] core" + itoa(int(id)) + " discarded " + itoa(n) + " stale mailbox words")
	}
	ic.Unpend(node.MailboxLine)

	for line := IRQ(0); line < MaxIRQ; line++ {
		if s.bound[id].Contains(line) {
			ic.Unmask(line)
			ic.Pend(line)
		}
	}
	ic.Unmask(node.MailboxLine)

	DebugPrintln("[SYSTEM] core" + itoa(int(id)) + " started")
	return nil
}

// CrossPend asks core to to pend line, from core from. Pending a line on
// the calling core is done directly on its controller.
func (s *System) CrossPend(from, to CoreID, line IRQ) error {
	if !from.Valid() || !to.Valid() {
		return ErrUnknownCore
	}
	if from == to {
		s.nodes[to].Interrupts.Pend(line)
		return nil
	}
	return s.relays[from].Signal(line)
}
