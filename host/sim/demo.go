package sim

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"crosscore/core"
)

// Dispatch lines used by the demos. Like TIMER_IRQ_2 and TIMER_IRQ_3 on
// the RP2040 they are free for software pending.
const (
	DemoLine0 core.IRQ = 2
	DemoLine1 core.IRQ = 3
)

var (
	ErrUnknownDemo = errors.New("unknown demo")
	ErrDemoFailed  = errors.New("demo failed")
)

// DemoConfig parameterizes a demo run
type DemoConfig struct {
	Messages int           // payloads (or round trips) to send
	Capacity int           // queue capacity per binding
	Depth    int           // mailbox FIFO depth
	Delay    time.Duration // extra time spent in every handler
	Pin      bool          // pin simulated cores to CPUs
}

func (c DemoConfig) withDefaults() DemoConfig {
	if c.Messages <= 0 {
		c.Messages = 1000
	}
	if c.Capacity == 0 {
		c.Capacity = core.DefaultQueueCapacity
	}
	if c.Depth <= 0 {
		c.Depth = DefaultFIFODepth
	}
	return c
}

// Report is the outcome of a demo run
type Report struct {
	Demo string

	// Sent and Handled count single payloads, in both directions
	Sent       uint64
	Handled    uint64
	QueueFull  uint64
	SignalLost uint64
	Mismatches uint64
	Elapsed    time.Duration
	Relays     [core.NumCores]core.RelayStats
}

// Failed reports whether the run saw corrupted or out of order payloads
func (r *Report) Failed() bool {
	return r.Mismatches > 0
}

// MarshalZerologObject renders the report as log fields
func (r *Report) MarshalZerologObject(e *zerolog.Event) {
	e.Str("demo", r.Demo).
		Uint64("sent", r.Sent).
		Uint64("handled", r.Handled).
		Uint64("queue_full", r.QueueFull).
		Uint64("signal_lost", r.SignalLost).
		Uint64("mismatches", r.Mismatches).
		Dur("elapsed", r.Elapsed)
	for id, st := range r.Relays {
		e.Dict(fmt.Sprintf("relay%d", id), zerolog.Dict().
			Uint32("sent", st.Sent).
			Uint32("lost", st.Lost).
			Uint32("received", st.Received).
			Uint32("forwarded", st.Forwarded).
			Uint32("invalid", st.Invalid))
	}
}

type demoFunc func(ctx context.Context, sys *core.System, cfg DemoConfig, r *Report) (Entry, Entry, error)

var demos = map[string]demoFunc{
	"relay":    relayDemo,
	"pingpong": pingPongDemo,
	"spawn":    spawnDemo,
	"race":     raceDemo,
}

// Demos lists the available demo names
func Demos() []string {
	names := make([]string, 0, len(demos))
	for name := range demos {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunDemo runs the named demo on a fresh machine until it completes or ctx
// is done
func RunDemo(ctx context.Context, name string, cfg DemoConfig, log zerolog.Logger) (*Report, error) {
	setup, ok := demos[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDemo, name)
	}
	cfg = cfg.withDefaults()

	m := NewMachine(WithFIFODepth(cfg.Depth), WithPinning(cfg.Pin), WithLogger(log))
	sys, err := m.NewSystem()
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	r := &Report{Demo: name}
	work, remote, err := setup(runCtx, sys, cfg, r)
	if err != nil {
		return nil, err
	}

	ready := make(chan struct{})
	entry1 := func(ctx context.Context) error {
		if err := sys.StartCore(core.Core1); err != nil {
			return err
		}
		close(ready)
		if remote != nil {
			return remote(ctx)
		}
		return nil
	}
	entry0 := func(ctx context.Context) error {
		if err := sys.StartCore(core.Core0); err != nil {
			return err
		}
		if err := m.LaunchEntry(entry1); err != nil {
			return err
		}
		select {
		case <-ready:
		case <-ctx.Done():
			return ctx.Err()
		}
		if err := work(ctx); err != nil {
			return err
		}
		cancel()
		return nil
	}

	log.Debug().Str("demo", name).Int("messages", cfg.Messages).Int("capacity", cfg.Capacity).
		Int("depth", cfg.Depth).Dur("delay", cfg.Delay).Msg("demo starting")

	start := time.Now()
	err = m.Run(runCtx, entry0, nil)
	r.Elapsed = time.Since(start)
	for id := range r.Relays {
		r.Relays[id] = sys.Relay(core.CoreID(id)).Stats()
	}
	if err != nil {
		return r, err
	}
	if r.Failed() {
		return r, fmt.Errorf("%w: %s saw %d mismatched payloads", ErrDemoFailed, name, r.Mismatches)
	}
	return r, nil
}

// waitFor polls cond until it holds or ctx is done. poke runs on every
// poll, if set.
func waitFor(ctx context.Context, cond func() bool, poke func()) error {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for !cond() {
		if poke != nil {
			poke()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// invokeRetry queues payload, yielding while the queue is full. A lost
// wake-up is counted; the payload is already queued.
func invokeRetry[T any](ctx context.Context, sp *core.Spawner[T], target core.CoreID, payload T, full, lost *atomic.Uint64) error {
	for {
		err := sp.Invoke(target, payload)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, core.ErrSignalLost):
			lost.Add(1)
			return nil
		case errors.Is(err, core.ErrQueueFull):
			full.Add(1)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			runtime.Gosched()
		default:
			return err
		}
	}
}

func pause(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}

// relayDemo bounces a bare cross-pend between the cores: core 1's handler
// pends core 0's line, which pends core 1's again, Messages times. A token
// handed over with each pend tells a bounce from a start-up pend.
func relayDemo(_ context.Context, sys *core.System, cfg DemoConfig, r *Report) (Entry, Entry, error) {
	var rounds, bounces atomic.Uint64
	var token [core.NumCores]atomic.Bool
	n := uint64(cfg.Messages)

	err := sys.Attach(core.Core1, DemoLine1, func(core.IRQ) {
		if !token[core.Core1].CompareAndSwap(true, false) {
			return
		}
		bounces.Add(1)
		pause(cfg.Delay)
		token[core.Core0].Store(true)
		_ = sys.CrossPend(core.Core1, core.Core0, DemoLine0)
	})
	if err != nil {
		return nil, nil, err
	}
	err = sys.Attach(core.Core0, DemoLine0, func(core.IRQ) {
		if !token[core.Core0].CompareAndSwap(true, false) {
			return
		}
		if rounds.Add(1) < n {
			token[core.Core1].Store(true)
			_ = sys.CrossPend(core.Core0, core.Core1, DemoLine1)
		}
	})
	if err != nil {
		return nil, nil, err
	}

	work := func(ctx context.Context) error {
		token[core.Core1].Store(true)
		if err := sys.CrossPend(core.Core0, core.Core1, DemoLine1); err != nil {
			return err
		}
		r.Sent = n
		err := waitFor(ctx, func() bool { return rounds.Load() >= n }, nil)
		r.Handled = rounds.Load()
		if b := bounces.Load(); b > r.Handled {
			r.Mismatches = b - r.Handled
		}
		return err
	}
	return work, nil, nil
}

// pingPongDemo passes a counter back and forth through the spawn layer.
// Each side checks that what it receives is exactly one more than what it
// last sent.
func pingPongDemo(ctx context.Context, sys *core.System, cfg DemoConfig, r *Report) (Entry, Entry, error) {
	var full, lost, mismatches atomic.Uint64
	var done atomic.Bool
	last := uint32(2 * cfg.Messages)

	sp0 := core.NewSpawner[uint32](sys, core.Core0)
	sp1 := core.NewSpawner[uint32](sys, core.Core1)

	var sent0, sent1 atomic.Uint32
	sent1.Store(^uint32(0))

	d1, err := sp0.Bind(core.Binding[uint32]{
		Name:     "ping",
		Target:   core.Core1,
		Line:     DemoLine1,
		Capacity: cfg.Capacity,
		Handler: func(v uint32, c core.CoreID) {
			if c != core.Core1 || v != sent1.Load()+1 {
				mismatches.Add(1)
			}
			pause(cfg.Delay)
			sent1.Store(v + 1)
			if err := invokeRetry(ctx, sp1, core.Core0, v+1, &full, &lost); err != nil {
				mismatches.Add(1)
			}
		},
	})
	if err != nil {
		return nil, nil, err
	}
	d0, err := sp1.Bind(core.Binding[uint32]{
		Name:     "pong",
		Target:   core.Core0,
		Line:     DemoLine0,
		Capacity: cfg.Capacity,
		Handler: func(v uint32, c core.CoreID) {
			if c != core.Core0 || v != sent0.Load()+1 {
				mismatches.Add(1)
			}
			if v+1 >= last {
				done.Store(true)
				return
			}
			sent0.Store(v + 1)
			if err := invokeRetry(ctx, sp0, core.Core1, v+1, &full, &lost); err != nil {
				mismatches.Add(1)
			}
		},
	})
	if err != nil {
		return nil, nil, err
	}

	work := func(ctx context.Context) error {
		if err := invokeRetry(ctx, sp0, core.Core1, 0, &full, &lost); err != nil {
			return err
		}
		err := waitFor(ctx, done.Load, nil)

		// each round trip is one payload per direction
		r.Sent = 2 * uint64(cfg.Messages)
		r.Handled = uint64(d0.Stats().Handled) + uint64(d1.Stats().Handled)
		r.QueueFull, r.SignalLost, r.Mismatches = full.Load(), lost.Load(), mismatches.Load()
		return err
	}
	return work, nil, nil
}

// spawnDemo fires Messages payloads from core 0 at core 1 as fast as the
// queue accepts them
func spawnDemo(_ context.Context, sys *core.System, cfg DemoConfig, r *Report) (Entry, Entry, error) {
	var full, lost, handled, mismatches atomic.Uint64
	n := uint64(cfg.Messages)

	sp0 := core.NewSpawner[uint64](sys, core.Core0)
	_, err := sp0.Bind(core.Binding[uint64]{
		Name:     "spawn",
		Target:   core.Core1,
		Line:     DemoLine1,
		Capacity: cfg.Capacity,
		Handler: func(v uint64, c core.CoreID) {
			if c != core.Core1 || v != handled.Load() {
				mismatches.Add(1)
			}
			pause(cfg.Delay)
			handled.Add(1)
		},
	})
	if err != nil {
		return nil, nil, err
	}

	work := func(ctx context.Context) error {
		for i := uint64(0); i < n; i++ {
			if err := invokeRetry(ctx, sp0, core.Core1, i, &full, &lost); err != nil {
				return err
			}
		}
		r.Sent = n

		err := waitFor(ctx, func() bool { return handled.Load() >= n }, func() {
			if lost.Load() > 0 {
				_ = sp0.Wake(core.Core1)
			}
		})
		r.Handled = handled.Load()
		r.QueueFull, r.SignalLost, r.Mismatches = full.Load(), lost.Load(), mismatches.Load()
		return err
	}
	return work, nil, nil
}

// bulkPayload is large enough that a torn copy between cores is visible
type bulkPayload struct {
	Seq   uint64
	From  core.CoreID
	Check uint16
	Data  [12]uint64
}

func newBulkPayload(from core.CoreID, seq uint64) bulkPayload {
	p := bulkPayload{Seq: seq, From: from}
	for i := range p.Data {
		p.Data[i] = seq*uint64(i+1) ^ uint64(from)
	}
	p.Check = crc16(p.Data[:])
	return p
}

func (p bulkPayload) intact() bool {
	if p.Check != crc16(p.Data[:]) {
		return false
	}
	for i, v := range p.Data {
		if v != p.Seq*uint64(i+1)^uint64(p.From) {
			return false
		}
	}
	return true
}

// raceDemo floods both directions at once with bulk payloads produced in
// thread mode and checks every payload arrives intact and in order
func raceDemo(_ context.Context, sys *core.System, cfg DemoConfig, r *Report) (Entry, Entry, error) {
	n := uint64(cfg.Messages)
	var full, lost, mismatches atomic.Uint64
	var handled [core.NumCores]atomic.Uint64
	var spawners [core.NumCores]*core.Spawner[bulkPayload]

	for id := core.Core0; id < core.NumCores; id++ {
		id := id
		target := id.Other()
		lines := [core.NumCores]core.IRQ{DemoLine0, DemoLine1}
		spawners[id] = core.NewSpawner[bulkPayload](sys, id)
		_, err := spawners[id].Bind(core.Binding[bulkPayload]{
			Name:     fmt.Sprintf("flood%d", target),
			Target:   target,
			Line:     lines[target],
			Capacity: cfg.Capacity,
			Handler: func(p bulkPayload, c core.CoreID) {
				if c != target || p.From != id || !p.intact() || p.Seq != handled[target].Load() {
					mismatches.Add(1)
				}
				pause(cfg.Delay)
				handled[target].Add(1)
			},
		})
		if err != nil {
			return nil, nil, err
		}
	}

	flood := func(ctx context.Context, from core.CoreID) error {
		for i := uint64(0); i < n; i++ {
			if err := invokeRetry(ctx, spawners[from], from.Other(), newBulkPayload(from, i), &full, &lost); err != nil {
				return err
			}
		}
		return nil
	}

	work := func(ctx context.Context) error {
		if err := flood(ctx, core.Core0); err != nil {
			return err
		}
		err := waitFor(ctx, func() bool {
			return handled[core.Core0].Load() >= n && handled[core.Core1].Load() >= n
		}, nil)

		r.Sent = 2 * n
		r.Handled = handled[core.Core0].Load() + handled[core.Core1].Load()
		r.QueueFull, r.SignalLost, r.Mismatches = full.Load(), lost.Load(), mismatches.Load()
		return err
	}
	remote := func(ctx context.Context) error {
		return flood(ctx, core.Core1)
	}
	return work, remote, nil
}
