package core

import "sync"

// fakeController is a synchronous interrupt controller: pended lines run
// only when the test calls Service
type fakeController struct {
	mu       sync.Mutex
	pending  SignalSet
	enabled  SignalSet
	handlers map[IRQ]InterruptHandler
	pends    []IRQ
}

func newFakeController() *fakeController {
	return &fakeController{handlers: make(map[IRQ]InterruptHandler)}
}

func (c *fakeController) Pend(irq IRQ) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.pending.Declare(irq)
	c.pends = append(c.pends, irq)
}

func (c *fakeController) Unpend(irq IRQ) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending.bits[irq/32] &^= 1 << (irq % 32)
}

func (c *fakeController) Mask(irq IRQ) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled.bits[irq/32] &^= 1 << (irq % 32)
}

func (c *fakeController) Unmask(irq IRQ) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.enabled.Declare(irq)
}

func (c *fakeController) Register(irq IRQ, handler InterruptHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[irq] = handler
	return nil
}

func (c *fakeController) isPending(irq IRQ) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending.Contains(irq)
}

func (c *fakeController) isEnabled(irq IRQ) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled.Contains(irq)
}

// next takes the lowest pending, enabled line
func (c *fakeController) next() (IRQ, InterruptHandler, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for irq := IRQ(0); irq < MaxIRQ; irq++ {
		if c.pending.Contains(irq) && c.enabled.Contains(irq) {
			c.pending.bits[irq/32] &^= 1 << (irq % 32)
			return irq, c.handlers[irq], true
		}
	}
	return 0, nil, false
}

// Service runs pended handlers until none is left and returns how many ran
func (c *fakeController) Service() int {
	n := 0
	for {
		irq, h, ok := c.next()
		if !ok {
			return n
		}
		if h != nil {
			h(irq)
		}
		n++
	}
}

// fakeChannel is one direction of a bounded mailbox. Writing raises line
// on the receiving controller while words are queued.
type fakeChannel struct {
	mu       sync.Mutex
	words    []uint32
	depth    int
	overflow bool
	rx       *fakeController
	line     IRQ
}

type fakeEndpoint struct {
	tx, rx *fakeChannel
}

func (e *fakeEndpoint) Write(word uint32) bool {
	ch := e.tx
	ch.mu.Lock()
	if len(ch.words) >= ch.depth {
		ch.overflow = true
		ch.mu.Unlock()
		return false
	}
	ch.words = append(ch.words, word)
	ch.mu.Unlock()
	ch.rx.Pend(ch.line)
	return true
}

func (e *fakeEndpoint) Read() (uint32, bool) {
	ch := e.rx
	ch.mu.Lock()
	if len(ch.words) == 0 {
		ch.mu.Unlock()
		return 0, false
	}
	w := ch.words[0]
	ch.words = ch.words[1:]
	more := len(ch.words) > 0
	ch.mu.Unlock()
	if more {
		ch.rx.Pend(ch.line)
	}
	return w, true
}

// fakeRig is a two-core platform driven by hand
type fakeRig struct {
	ic    [NumCores]*fakeController
	mb    [NumCores]*fakeEndpoint
	nodes [NumCores]*Node
}

const (
	testMailboxLine0 IRQ = 15
	testMailboxLine1 IRQ = 16
)

func newFakeRig(depth int) *fakeRig {
	r := &fakeRig{}
	r.ic[Core0] = newFakeController()
	r.ic[Core1] = newFakeController()

	to1 := &fakeChannel{depth: depth, rx: r.ic[Core1], line: testMailboxLine1}
	to0 := &fakeChannel{depth: depth, rx: r.ic[Core0], line: testMailboxLine0}
	r.mb[Core0] = &fakeEndpoint{tx: to1, rx: to0}
	r.mb[Core1] = &fakeEndpoint{tx: to0, rx: to1}

	r.nodes[Core0] = &Node{ID: Core0, Interrupts: r.ic[Core0], Mailbox: r.mb[Core0], MailboxLine: testMailboxLine0}
	r.nodes[Core1] = &Node{ID: Core1, Interrupts: r.ic[Core1], Mailbox: r.mb[Core1], MailboxLine: testMailboxLine1}
	return r
}

func (r *fakeRig) system() (*System, error) {
	return NewSystem(r.nodes[Core0], r.nodes[Core1])
}
