//go:build rp2040 || rp2350

package main

import (
	"device/arm"
	"errors"
	"machine"
	"sync/atomic"
	"time"

	"crosscore/core"
)

const (
	kindProbe uint8 = iota + 1
	kindPing
)

const (
	queueCapacity   = 16
	benchIterations = 200
	stallCheck      = 50 * time.Millisecond
	statsInterval   = 5 * time.Second
	ledEvery        = 1024
)

// message is the payload carried between the cores in both directions
type message struct {
	Kind  uint8
	Seq   uint32
	Stamp uint64
}

var (
	sys *core.System

	// fromCore0 is only used on core 0, fromCore1 only on core 1.
	//
	// Core 0 pushes into its queue from two contexts, one at a time: thread
	// mode owns it through the latency bench and the first rally ping, then
	// onCore0 owns it. After startRally thread mode only calls Wake, which
	// pushes nothing. fromCore1 is pushed from onCore1 only.
	fromCore0 *core.Spawner[message]
	fromCore1 *core.Spawner[message]

	onCore0Task *core.Dispatcher[message]
	onCore1Task *core.Dispatcher[message]

	led = machine.LED

	rallyActive   atomic.Bool
	rallyExpect   uint32 // touched only by core 0's handler after kick-off
	rallyRounds   atomic.Uint32
	rallyMismatch atomic.Uint32
	rallyStalls   atomic.Uint32
	handlerErrors atomic.Uint32
)

func main() {
	// Disable watchdog on boot to clear any previous state
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0}); err != nil {
		return
	}

	InitUSB()
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	time.Sleep(2 * time.Second)
	core.DebugPrintln(core.BootBanner)

	if err := setup(); err != nil {
		fatal("setup", err)
	}
	if err := (core1Launcher{}).Launch(core1Main); err != nil {
		fatal("launch core1", err)
	}
	if err := sys.StartCore(core.Core0); err != nil {
		fatal("start core0", err)
	}

	deadline := time.Now().Add(time.Second)
	for !sys.Started(core.Core1) {
		if time.Now().After(deadline) {
			fatal("start core1", errors.New("core 1 did not start"))
		}
		time.Sleep(time.Millisecond)
	}

	runLatencyBench(benchIterations)
	startRally()

	lastRounds := rallyRounds.Load()
	lastStats := time.Now()
	for {
		time.Sleep(stallCheck)
		if r := rallyRounds.Load(); r != lastRounds {
			lastRounds = r
		} else {
			recoverRally()
		}
		if time.Since(lastStats) >= statsInterval {
			printStats()
			lastStats = time.Now()
		}
	}
}

// setup builds the system and binds one task per direction. It runs on
// core 0 before core 1 is launched.
func setup() error {
	var err error
	sys, err = core.NewSystem(newNode(core.Core0), newNode(core.Core1))
	if err != nil {
		return err
	}
	fromCore0 = core.NewSpawner[message](sys, core.Core0)
	fromCore1 = core.NewSpawner[message](sys, core.Core1)

	onCore1Task, err = fromCore0.Bind(core.Binding[message]{
		Name:     "core1",
		Target:   core.Core1,
		Line:     dispatchLine1,
		Capacity: queueCapacity,
		Handler:  onCore1,
	})
	if err != nil {
		return err
	}
	onCore0Task, err = fromCore1.Bind(core.Binding[message]{
		Name:     "core0",
		Target:   core.Core0,
		Line:     dispatchLine0,
		Capacity: queueCapacity,
		Handler:  onCore0,
	})
	return err
}

// core1Main enables dispatch on core 1 and sleeps between interrupts
func core1Main() {
	if err := sys.StartCore(core.Core1); err != nil {
		core.DebugPrintln("[SYSTEM] core1 start failed: " + err.Error())
		return
	}
	for {
		arm.Asm("wfi")
	}
}

// onCore1 runs on core 1 for payloads sent by core 0
func onCore1(m message, _ core.CoreID) {
	switch m.Kind {
	case kindProbe:
		m.Stamp = micros()
	case kindPing:
		if m.Seq%ledEvery == 1 {
			led.Set(!led.Get())
		}
		m.Seq++
	default:
		handlerErrors.Add(1)
		return
	}
	if err := fromCore1.Invoke(core.Core0, m); err != nil && !errors.Is(err, core.ErrSignalLost) {
		handlerErrors.Add(1)
	}
}

// onCore0 runs on core 0 for payloads sent back by core 1
func onCore0(m message, _ core.CoreID) {
	switch m.Kind {
	case kindProbe:
		probeRemote.Store(m.Stamp)
		probeSeq.Store(m.Seq)
	case kindPing:
		if m.Seq != rallyExpect {
			rallyMismatch.Add(1)
		}
		rallyExpect = m.Seq + 2
		rallyRounds.Add(1)
		if !rallyActive.Load() {
			return
		}
		err := fromCore0.Invoke(core.Core1, message{Kind: kindPing, Seq: m.Seq + 1})
		if err != nil && !errors.Is(err, core.ErrSignalLost) {
			handlerErrors.Add(1)
		}
	default:
		handlerErrors.Add(1)
	}
}

// startRally sends the first ping; from then on each side answers the
// other from its handler
func startRally() {
	rallyExpect = 2
	rallyActive.Store(true)
	if err := fromCore0.Invoke(core.Core1, message{Kind: kindPing, Seq: 1}); err != nil && !errors.Is(err, core.ErrSignalLost) {
		fatal("start rally", err)
	}
	core.DebugPrintln("[RALLY] started")
}

// recoverRally re-sends the wake-ups after a lost signal stalled the rally.
// The payload in flight is already queued on one side or the other.
func recoverRally() {
	rallyStalls.Add(1)
	if err := fromCore0.Wake(core.Core1); err != nil && !errors.Is(err, core.ErrSignalLost) {
		handlerErrors.Add(1)
	}
	if err := sys.CrossPend(core.Core0, core.Core0, dispatchLine0); err != nil {
		handlerErrors.Add(1)
	}
}

func printStats() {
	for id := core.CoreID(0); id < core.NumCores; id++ {
		core.DebugPrintln(core.FormatRelayStats(sys.Relay(id)))
	}
	core.DebugPrintln(core.FormatDispatchStats(onCore1Task))
	core.DebugPrintln(core.FormatDispatchStats(onCore0Task))
	core.DebugPrintln("[RALLY] rounds=" + core.Utoa(rallyRounds.Load()) +
		" mismatches=" + core.Utoa(rallyMismatch.Load()) +
		" stalls=" + core.Utoa(rallyStalls.Load()) +
		" errors=" + core.Utoa(handlerErrors.Load()) +
		" console_errors=" + core.Utoa(consoleErrors.Load()))
	core.DumpTrace()
}

// fatal reports err and blinks the LED fast forever
func fatal(what string, err error) {
	core.DebugPrintln("[SYSTEM] " + what + " failed: " + err.Error())
	core.DumpTrace()
	for {
		led.Set(!led.Get())
		time.Sleep(100 * time.Millisecond)
	}
}
