package sim

import (
	"context"
	"errors"
	"math/bits"
	"sync"
	"sync/atomic"

	"crosscore/core"
)

// ErrBadLine is returned when registering a handler outside 0..MaxIRQ-1
var ErrBadLine = errors.New("interrupt line out of range")

// Controller models one core's private interrupt controller. Pended lines
// are serviced by Serve, one at a time, lowest line number first. A
// handler runs to completion before the next line is taken, so handlers on
// the same core never overlap.
type Controller struct {
	core core.CoreID

	mu       sync.Mutex
	pending  uint64
	enabled  uint64
	handlers [core.MaxIRQ]core.InterruptHandler

	wake     chan struct{}
	serviced atomic.Uint64
}

// NewController creates a controller for core with every line masked
func NewController(id core.CoreID) *Controller {
	return &Controller{
		core: id,
		wake: make(chan struct{}, 1),
	}
}

// Core returns the owning core
func (c *Controller) Core() core.CoreID {
	return c.core
}

func lineBit(irq core.IRQ) uint64 {
	if irq >= core.MaxIRQ {
		return 0
	}
	return 1 << irq
}

func (c *Controller) notify() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Pend marks irq pending
func (c *Controller) Pend(irq core.IRQ) {
	c.mu.Lock()
	c.pending |= lineBit(irq)
	c.mu.Unlock()
	c.notify()
}

// Unpend clears a pending request
func (c *Controller) Unpend(irq core.IRQ) {
	c.mu.Lock()
	c.pending &^= lineBit(irq)
	c.mu.Unlock()
}

// Mask stops irq from being serviced; a pending request is kept
func (c *Controller) Mask(irq core.IRQ) {
	c.mu.Lock()
	c.enabled &^= lineBit(irq)
	c.mu.Unlock()
}

// Unmask allows irq to be serviced
func (c *Controller) Unmask(irq core.IRQ) {
	c.mu.Lock()
	c.enabled |= lineBit(irq)
	c.mu.Unlock()
	c.notify()
}

// Register binds handler to irq
func (c *Controller) Register(irq core.IRQ, handler core.InterruptHandler) error {
	if irq >= core.MaxIRQ {
		return ErrBadLine
	}
	c.mu.Lock()
	c.handlers[irq] = handler
	c.mu.Unlock()
	return nil
}

// Pending reports whether irq is pending
func (c *Controller) Pending(irq core.IRQ) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending&lineBit(irq) != 0
}

// Enabled reports whether irq is unmasked
func (c *Controller) Enabled(irq core.IRQ) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled&lineBit(irq) != 0
}

// Serviced returns how many handlers have run
func (c *Controller) Serviced() uint64 {
	return c.serviced.Load()
}

// take clears and returns the lowest pending, unmasked line
func (c *Controller) take() (core.IRQ, core.InterruptHandler, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ready := c.pending & c.enabled
	if ready == 0 {
		return 0, nil, false
	}
	irq := core.IRQ(bits.TrailingZeros64(ready))
	c.pending &^= 1 << irq
	return irq, c.handlers[irq], true
}

// ServePending runs handlers until no pended, unmasked line is left and
// returns how many ran. It must not be called concurrently with Serve.
func (c *Controller) ServePending() int {
	n := 0
	for {
		irq, h, ok := c.take()
		if !ok {
			return n
		}
		if h != nil {
			h(irq)
		}
		c.serviced.Add(1)
		n++
	}
}

// Serve is the core's interrupt service loop. It blocks until ctx is done.
func (c *Controller) Serve(ctx context.Context) error {
	for {
		c.ServePending()
		select {
		case <-ctx.Done():
			return nil
		case <-c.wake:
		}
	}
}
