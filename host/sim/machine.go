// Package sim runs the cross-core runtime on a host: each simulated core
// is a pair of goroutines, one servicing its interrupt controller and one
// running its thread-mode entry, joined by a pair of bounded FIFOs.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"crosscore/core"
)

// Mailbox lines, numbered as SIO_IRQ_PROC0 and SIO_IRQ_PROC1 on the RP2040
const (
	MailboxLine0 core.IRQ = 15
	MailboxLine1 core.IRQ = 16
)

// launchWord is left in core 1's FIFO by Launch, standing in for the
// boot handshake
const launchWord = 0

var (
	ErrNotRunning      = errors.New("machine not running")
	ErrAlreadyLaunched = errors.New("core 1 already launched")
)

// Entry is a core's thread-mode program. It should return when ctx is done.
type Entry func(ctx context.Context) error

// Machine is a simulated dual-core board
type Machine struct {
	depth int
	pin   bool
	log   zerolog.Logger

	ic    [core.NumCores]*Controller
	ports [core.NumCores]*Port
	nodes [core.NumCores]*core.Node

	mu       sync.Mutex
	group    *errgroup.Group
	ctx      context.Context
	launched bool
}

// Option configures a Machine
type Option func(*Machine)

// WithFIFODepth sets the depth of both mailbox FIFOs
func WithFIFODepth(depth int) Option {
	return func(m *Machine) {
		if depth > 0 {
			m.depth = depth
		}
	}
}

// WithPinning binds each simulated core to its own CPU
func WithPinning(pin bool) Option {
	return func(m *Machine) {
		m.pin = pin
	}
}

// WithLogger sets the logger used for machine events
func WithLogger(log zerolog.Logger) Option {
	return func(m *Machine) {
		m.log = log
	}
}

// NewMachine builds a machine with every interrupt line masked
func NewMachine(opts ...Option) *Machine {
	m := &Machine{
		depth: DefaultFIFODepth,
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.ic[core.Core0] = NewController(core.Core0)
	m.ic[core.Core1] = NewController(core.Core1)

	to1 := NewFIFO(m.depth, m.ic[core.Core1], MailboxLine1)
	to0 := NewFIFO(m.depth, m.ic[core.Core0], MailboxLine0)
	m.ports[core.Core0] = &Port{tx: to1, rx: to0}
	m.ports[core.Core1] = &Port{tx: to0, rx: to1}

	lines := [core.NumCores]core.IRQ{MailboxLine0, MailboxLine1}
	for id := range m.nodes {
		m.nodes[id] = &core.Node{
			ID:          core.CoreID(id),
			Interrupts:  m.ic[id],
			Mailbox:     m.ports[id],
			MailboxLine: lines[id],
		}
	}
	return m
}

// NewSystem builds the cross-core system over this machine's nodes
func (m *Machine) NewSystem() (*core.System, error) {
	return core.NewSystem(m.nodes[core.Core0], m.nodes[core.Core1])
}

// Controller returns core id's interrupt controller
func (m *Machine) Controller(id core.CoreID) *Controller {
	return m.ic[id]
}

// Port returns core id's end of the mailbox
func (m *Machine) Port(id core.CoreID) *Port {
	return m.ports[id]
}

// Node returns core id's platform services
func (m *Machine) Node(id core.CoreID) *core.Node {
	return m.nodes[id]
}

// Run services both cores' interrupts and runs entry0 on core 0's thread.
// A non-nil entry1 starts on core 1 right away; otherwise core 1 idles
// until entry0 calls Launch. Run returns when ctx is done or an entry
// fails, after every goroutine has stopped.
func (m *Machine) Run(ctx context.Context, entry0, entry1 Entry) error {
	g, gctx := errgroup.WithContext(ctx)

	m.mu.Lock()
	if m.group != nil {
		m.mu.Unlock()
		return errors.New("machine already running")
	}
	m.group, m.ctx = g, gctx
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.group, m.ctx, m.launched = nil, nil, false
		m.mu.Unlock()
	}()

	for id := range m.ic {
		ic := m.ic[id]
		g.Go(func() error {
			m.pinCore(ic.Core(), "irq")
			return ic.Serve(gctx)
		})
	}

	if entry1 != nil {
		if err := m.start1(entry1); err != nil {
			return err
		}
	}
	if entry0 != nil {
		g.Go(m.thread(gctx, core.Core0, entry0))
	}

	m.log.Debug().Int("fifo_depth", m.depth).Bool("pinned", m.pin).Msg("machine running")
	return g.Wait()
}

// Launch starts entry on core 1's thread. It must be called while Run is
// active.
func (m *Machine) Launch(entry func()) error {
	return m.start1(func(context.Context) error {
		entry()
		return nil
	})
}

// LaunchEntry is Launch for an Entry
func (m *Machine) LaunchEntry(entry Entry) error {
	return m.start1(entry)
}

func (m *Machine) start1(entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.group == nil || m.ctx.Err() != nil {
		return ErrNotRunning
	}
	if m.launched {
		return ErrAlreadyLaunched
	}
	m.launched = true

	// the boot handshake leaves a word behind that core 1 must discard
	if m.ports[core.Core1].Inbound().Len() < m.depth {
		m.ports[core.Core0].Write(launchWord)
	}
	m.group.Go(m.thread(m.ctx, core.Core1, entry))
	m.log.Debug().Msg("core 1 launched")
	return nil
}

func (m *Machine) thread(ctx context.Context, id core.CoreID, entry Entry) func() error {
	return func() error {
		m.pinCore(id, "thread")
		if err := entry(ctx); err != nil {
			return fmt.Errorf("core%d: %w", id, err)
		}
		return nil
	}
}

func (m *Machine) pinCore(id core.CoreID, role string) {
	if !m.pin {
		return
	}
	if err := pinThread(int(id)); err != nil {
		m.log.Warn().Err(err).Uint8("core", uint8(id)).Str("role", role).Msg("cpu pinning failed")
	}
}

var _ core.Launcher = (*Machine)(nil)
