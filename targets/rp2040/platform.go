//go:build rp2040 || rp2350

package main

import (
	"device/arm"
	"device/rp"
	"errors"
	"machine"
	"runtime/interrupt"

	"crosscore/core"
)

// Interrupt lines used by the cross-core runtime. The SIO FIFO lines are
// wired to one core each; the timer lines are pended by software only
// (alarms 2 and 3 are never armed).
const (
	mailboxLine0  core.IRQ = rp.IRQ_SIO_IRQ_PROC0
	mailboxLine1  core.IRQ = rp.IRQ_SIO_IRQ_PROC1
	dispatchLine0 core.IRQ = rp.IRQ_TIMER_IRQ_2
	dispatchLine1 core.IRQ = rp.IRQ_TIMER_IRQ_3
)

var errNoVector = errors.New("no vector declared for interrupt line")

// handlers is indexed by the core servicing the interrupt. Both cores share
// one vector table, so every vector looks up the handler of the core it
// fired on.
var handlers [core.NumCores][core.MaxIRQ]core.InterruptHandler

// vectors are declared once; interrupt.New needs constant line numbers
var vectorsInstalled bool

func installVectors() {
	if vectorsInstalled {
		return
	}
	vectorsInstalled = true
	interrupt.New(rp.IRQ_SIO_IRQ_PROC0, func(interrupt.Interrupt) { serviceLine(mailboxLine0) })
	interrupt.New(rp.IRQ_SIO_IRQ_PROC1, func(interrupt.Interrupt) { serviceLine(mailboxLine1) })
	interrupt.New(rp.IRQ_TIMER_IRQ_2, func(interrupt.Interrupt) { serviceLine(dispatchLine0) })
	interrupt.New(rp.IRQ_TIMER_IRQ_3, func(interrupt.Interrupt) { serviceLine(dispatchLine1) })
}

func hasVector(irq core.IRQ) bool {
	switch irq {
	case mailboxLine0, mailboxLine1, dispatchLine0, dispatchLine1:
		return true
	}
	return false
}

func serviceLine(irq core.IRQ) {
	if h := handlers[CurrentCore()][irq]; h != nil {
		h(irq)
	}
}

// CurrentCore returns the core executing the caller
func CurrentCore() core.CoreID {
	return core.CoreID(rp.SIO.CPUID.Get())
}

// nvicController drives the calling core's private NVIC. Each core builds
// its own; the NVIC registers only ever address the core that touches them.
// Bind-time Mask calls for core 1 lines are made on core 0 and so reach
// core 0's NVIC; core 1's lines stay disabled until its StartCore.
type nvicController struct {
	id core.CoreID
}

func newNVICController(id core.CoreID) *nvicController {
	installVectors()
	return &nvicController{id: id}
}

func nvicBit(irq core.IRQ) (int, uint32) {
	return int(irq >> 5), 1 << (irq & 31)
}

func (c *nvicController) Pend(irq core.IRQ) {
	reg, bit := nvicBit(irq)
	arm.NVIC.ISPR[reg].Set(bit)
}

func (c *nvicController) Unpend(irq core.IRQ) {
	reg, bit := nvicBit(irq)
	arm.NVIC.ICPR[reg].Set(bit)
}

func (c *nvicController) Mask(irq core.IRQ) {
	reg, bit := nvicBit(irq)
	arm.NVIC.ICER[reg].Set(bit)
}

func (c *nvicController) Unmask(irq core.IRQ) {
	reg, bit := nvicBit(irq)
	arm.NVIC.ISER[reg].Set(bit)
}

func (c *nvicController) Register(irq core.IRQ, handler core.InterruptHandler) error {
	if !hasVector(irq) {
		return errNoVector
	}
	handlers[c.id][irq] = handler
	return nil
}

// sioMailbox is a core's view of the SIO FIFOs: writes go to the sibling's
// RX FIFO, reads come from this core's RX FIFO. Each direction holds 8 words.
type sioMailbox struct{}

func (sioMailbox) Write(word uint32) bool {
	if rp.SIO.FIFO_ST.Get()&rp.SIO_FIFO_ST_RDY == 0 {
		return false
	}
	rp.SIO.FIFO_WR.Set(word)
	arm.Asm("sev")
	return true
}

func (sioMailbox) Read() (uint32, bool) {
	if rp.SIO.FIFO_ST.Get()&rp.SIO_FIFO_ST_VLD == 0 {
		return 0, false
	}
	return rp.SIO.FIFO_RD.Get(), true
}

// Overflowed reads and clears FIFO_ST.WOF. A set WOF also keeps the SIO
// interrupt asserted, so it must not be left latched.
func (sioMailbox) Overflowed() bool {
	if rp.SIO.FIFO_ST.Get()&rp.SIO_FIFO_ST_WOF == 0 {
		return false
	}
	rp.SIO.FIFO_ST.Set(rp.SIO_FIFO_ST_WOF)
	return true
}

// Drain empties the RX FIFO and clears both sticky error flags
func (sioMailbox) Drain() int {
	n := 0
	for rp.SIO.FIFO_ST.Get()&rp.SIO_FIFO_ST_VLD != 0 {
		rp.SIO.FIFO_RD.Get()
		n++
	}
	rp.SIO.FIFO_ST.Set(rp.SIO_FIFO_ST_WOF | rp.SIO_FIFO_ST_ROE)
	return n
}

// core1Launcher starts core 1 through the boot ROM handshake, which leaves
// words in core 1's FIFO that StartCore discards
type core1Launcher struct{}

func (core1Launcher) Launch(entry func()) error {
	machine.Core1.Start(entry)
	return nil
}

func newNode(id core.CoreID) *core.Node {
	lines := [core.NumCores]core.IRQ{mailboxLine0, mailboxLine1}
	return &core.Node{
		ID:          id,
		Interrupts:  newNVICController(id),
		Mailbox:     sioMailbox{},
		MailboxLine: lines[id],
	}
}

var (
	_ core.InterruptController = (*nvicController)(nil)
	_ core.Mailbox             = sioMailbox{}
	_ core.OverflowReporter    = sioMailbox{}
	_ core.MailboxDrainer      = sioMailbox{}
	_ core.Launcher            = core1Launcher{}
)
