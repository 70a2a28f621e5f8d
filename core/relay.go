package core

import "sync/atomic"

// Relay carries "pend line X" requests from one core to its sibling over
// the mailbox. It is the only way code on one core can make code run on the
// other: the forwarding handler on the receiving core reads the word and
// pends the named line on its own interrupt controller.
//
// The mailbox holds one pending signal at a time (or a few, depending on
// the channel depth). Signals sent faster than the sibling drains them may
// be lost; Signal reports that as ErrSignalLost.
type Relay struct {
	core    CoreID
	mailbox Mailbox
	signals *SignalSet

	sent      atomic.Uint32
	lost      atomic.Uint32
	received  atomic.Uint32
	forwarded atomic.Uint32
	invalid   atomic.Uint32
}

// RelayStats is a snapshot of a relay's counters
type RelayStats struct {
	Sent      uint32
	Lost      uint32
	Received  uint32
	Forwarded uint32
	Invalid   uint32
}

// NewRelay wraps core's view of the mailbox. signals decides which
// received words are accepted.
func NewRelay(core CoreID, mailbox Mailbox, signals *SignalSet) *Relay {
	return &Relay{
		core:    core,
		mailbox: mailbox,
		signals: signals,
	}
}

// Core returns the core this relay sends from
func (r *Relay) Core() CoreID {
	return r.core
}

// Signal asks the sibling core to pend line id. It never blocks. Senders
// on the same core are serialized by masking local interrupts around the
// mailbox write.
func (r *Relay) Signal(id IRQ) error {
	if id >= MaxIRQ {
		return &InvalidSignalError{Word: Encode(id)}
	}

	state := disableInterrupts()
	ok := r.mailbox.Write(Encode(id))
	overflow := false
	if reporter, has := r.mailbox.(OverflowReporter); has {
		overflow = reporter.Overflowed()
	}
	restoreInterrupts(state)

	if !ok || overflow {
		r.lost.Add(1)
		RecordTrace(r.core, EvtSignalLost, id, 0)
		return ErrSignalLost
	}
	r.sent.Add(1)
	RecordTrace(r.core, EvtSignal, id, 0)
	return nil
}

// TryReceive takes one pending signal from the sibling. It returns
// ok=false when the mailbox is empty. A word that is not a declared signal
// is consumed and reported as an *InvalidSignalError.
func (r *Relay) TryReceive() (id IRQ, ok bool, err error) {
	word, has := r.mailbox.Read()
	if !has {
		return 0, false, nil
	}
	r.received.Add(1)

	id, err = r.signals.Decode(word)
	if err != nil {
		r.invalid.Add(1)
		RecordTrace(r.core, EvtInvalidSignal, 0, word)
		DebugAsync("[RELAY] core" + itoa(int(r.core)) + " dropped invalid signal word " + utoa(word))
		return 0, false, err
	}
	return id, true, nil
}

// Forward is the body of the "mailbox has data" handler: take one signal
// and pend its line on the local controller. An invalid word fails only
// this invocation; later signals are forwarded normally.
func (r *Relay) Forward(ic InterruptController) error {
	id, ok, err := r.TryReceive()
	if err != nil || !ok {
		return err
	}
	ic.Pend(id)
	r.forwarded.Add(1)
	RecordTrace(r.core, EvtForward, id, 0)
	return nil
}

// Handler adapts Forward into an InterruptHandler for the mailbox line
func (r *Relay) Handler(ic InterruptController) InterruptHandler {
	return func(IRQ) {
		_ = r.Forward(ic)
	}
}

// Drain discards words left in the mailbox, for example by the boot
// handshake that launched the second core
func (r *Relay) Drain() int {
	if d, ok := r.mailbox.(MailboxDrainer); ok {
		return d.Drain()
	}
	n := 0
	for {
		if _, ok := r.mailbox.Read(); !ok {
			return n
		}
		n++
	}
}

// Stats returns the relay counters
func (r *Relay) Stats() RelayStats {
	return RelayStats{
		Sent:      r.sent.Load(),
		Lost:      r.lost.Load(),
		Received:  r.received.Load(),
		Forwarded: r.forwarded.Load(),
		Invalid:   r.invalid.Load(),
	}
}
