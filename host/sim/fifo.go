package sim

import (
	"sync"

	"crosscore/core"
)

// DefaultFIFODepth matches the RP2040 SIO FIFO
const DefaultFIFODepth = 8

// FIFO is one direction of the inter-core mailbox: a bounded word queue
// whose "has data" line on the receiving controller stays raised while
// words are queued.
type FIFO struct {
	mu       sync.Mutex
	words    []uint32
	head     int
	count    int
	overflow bool // sticky, like FIFO_ST.WOF

	rx   *Controller
	line core.IRQ
}

// NewFIFO creates a FIFO of depth words that raises line on rx
func NewFIFO(depth int, rx *Controller, line core.IRQ) *FIFO {
	if depth < 1 {
		depth = 1
	}
	return &FIFO{
		words: make([]uint32, depth),
		rx:    rx,
		line:  line,
	}
}

func (f *FIFO) push(word uint32) bool {
	f.mu.Lock()
	if f.count == len(f.words) {
		f.overflow = true
		f.mu.Unlock()
		return false
	}
	f.words[(f.head+f.count)%len(f.words)] = word
	f.count++
	f.mu.Unlock()

	f.rx.Pend(f.line)
	return true
}

func (f *FIFO) pop() (uint32, bool) {
	f.mu.Lock()
	if f.count == 0 {
		f.mu.Unlock()
		return 0, false
	}
	word := f.words[f.head]
	f.head = (f.head + 1) % len(f.words)
	f.count--
	more := f.count > 0
	f.mu.Unlock()

	// level triggered: the line is re-raised while data remains
	if more {
		f.rx.Pend(f.line)
	}
	return word, true
}

// Len returns the number of queued words
func (f *FIFO) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

func (f *FIFO) takeOverflow() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := f.overflow
	f.overflow = false
	return v
}

func (f *FIFO) drain() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.count
	f.head, f.count = 0, 0
	return n
}

// Port is one core's end of the mailbox: it writes into the sibling's
// inbound FIFO and reads its own
type Port struct {
	tx *FIFO
	rx *FIFO
}

var (
	_ core.Mailbox          = (*Port)(nil)
	_ core.OverflowReporter = (*Port)(nil)
	_ core.MailboxDrainer   = (*Port)(nil)
)

// Write sends word to the sibling, returning false when its FIFO is full
func (p *Port) Write(word uint32) bool {
	return p.tx.push(word)
}

// Read takes one word sent by the sibling
func (p *Port) Read() (uint32, bool) {
	return p.rx.pop()
}

// Overflowed reads and clears the sticky write-overflow flag
func (p *Port) Overflowed() bool {
	return p.tx.takeOverflow()
}

// Drain discards every word waiting to be read
func (p *Port) Drain() int {
	return p.rx.drain()
}

// Inbound returns the FIFO this port reads from
func (p *Port) Inbound() *FIFO {
	return p.rx
}
