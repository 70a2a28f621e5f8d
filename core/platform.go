package core

// CoreID identifies one of the two cores
type CoreID uint8

const (
	Core0 CoreID = 0
	Core1 CoreID = 1

	// NumCores is the number of cores sharing the mailbox
	NumCores = 2
)

// Valid reports whether id names an existing core
func (id CoreID) Valid() bool {
	return id < NumCores
}

// Other returns the sibling core
func (id CoreID) Other() CoreID {
	return id ^ 1
}

// IRQ names an interrupt line on a core's local interrupt controller.
// Signal identifiers carried by the mailbox are IRQ numbers.
type IRQ uint16

// MaxIRQ bounds the interrupt lines a signal may name
const MaxIRQ = 64

// InterruptHandler is invoked by a core's interrupt controller when a
// pended, unmasked line is serviced
type InterruptHandler func(irq IRQ)

// InterruptController is the per-core interrupt controller provided by the
// board layer. Every core owns a private controller; a core can only pend
// lines on its own controller.
type InterruptController interface {
	// Pend marks the line pending; it runs once unmasked
	Pend(irq IRQ)

	// Unpend clears a pending request without running the handler
	Unpend(irq IRQ)

	// Mask prevents the line from being serviced
	Mask(irq IRQ)

	// Unmask allows the line to be serviced
	Unmask(irq IRQ)

	// Register binds the handler that runs when the line is serviced
	Register(irq IRQ, handler InterruptHandler) error
}

// Mailbox is one core's view of the hardware channel to its sibling.
// Words written by one core are read by the other.
type Mailbox interface {
	// Write sends one word to the sibling core. It returns false when the
	// channel has no room and the word was dropped.
	Write(word uint32) bool

	// Read takes one word sent by the sibling core, if any
	Read() (uint32, bool)
}

// OverflowReporter is implemented by mailboxes that latch a sticky
// overflow indicator (RP2040 FIFO_ST.WOF). Overflowed reads and clears it.
type OverflowReporter interface {
	Overflowed() bool
}

// MailboxDrainer is implemented by mailboxes able to discard stale words
type MailboxDrainer interface {
	Drain() int
}

// Launcher starts the second core at entry
type Launcher interface {
	Launch(entry func()) error
}
