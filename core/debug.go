package core

import (
	"sync"
	"sync/atomic"
)

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// TraceEvent captures one cross-core event for post-mortem analysis
type TraceEvent struct {
	Seq   uint32 // Global order of recording, starts at 1
	Type  uint8  // Event type code
	Core  CoreID // Core that recorded the event
	Line  IRQ    // Dispatch or signal line involved
	Value uint32 // Context-dependent value
}

// Event type codes
const (
	EvtInvoke        = 1 // payload queued for a target core
	EvtQueueFull     = 2 // push rejected, Value = queue length
	EvtSignal        = 3 // wake-up written to the mailbox
	EvtSignalLost    = 4 // mailbox had no room or overflowed
	EvtForward       = 5 // mailbox word pended locally
	EvtInvalidSignal = 6 // mailbox word rejected, Value = raw word
	EvtDrainStart    = 7 // dispatcher entered draining
	EvtDrainEnd      = 8 // dispatcher back to idle, Value = handled count
)

const (
	TraceRingSize = 32 // Keep last 32 events per core
)

// BootBanner is the first console line firmware prints after reset
const BootBanner = "[SYSTEM] crosscore firmware starting"

type traceRing struct {
	events [TraceRingSize]TraceEvent
	head   uint8
}

var (
	// debugPrintln is the global debug print function (set by platform code)
	debugPrintln DebugWriter = func(s string) {}

	// debugEnabled controls whether DebugPrintln output is active
	debugEnabled atomic.Bool

	traceEnabled atomic.Bool
	traceSeq     atomic.Uint32
	traceRings   [NumCores]traceRing

	// Async debug output channel
	debugChan chan string
	asyncOnce sync.Once
)

func init() {
	traceEnabled.Store(true)
}

// SetDebugWriter sets the platform-specific debug output function.
// Call before either core starts.
func SetDebugWriter(writer DebugWriter) {
	if writer == nil {
		writer = func(string) {}
	}
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled.Store(enabled)
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	return debugEnabled.Load()
}

// SetTraceEnabled turns trace capture on or off (on by default)
func SetTraceEnabled(enabled bool) {
	traceEnabled.Store(enabled)
}

// InitAsyncDebug starts the async debug output goroutine. Later calls do
// nothing. Call after SetDebugWriter, before either core starts.
func InitAsyncDebug() {
	asyncOnce.Do(func() {
		debugChan = make(chan string, 16)
		go debugOutputWorker(debugChan)
	})
}

func debugOutputWorker(ch <-chan string) {
	for msg := range ch {
		debugPrintln(msg)
	}
}

// DebugPrintln writes a debug message if debug output is enabled.
// Blocks on the writer; interrupt handlers use DebugAsync.
func DebugPrintln(msg string) {
	if debugEnabled.Load() {
		debugPrintln(msg)
	}
}

// DebugAsync queues a debug message without blocking. Messages are dropped
// when the channel is full or async output was never started.
func DebugAsync(msg string) {
	if debugChan == nil || !debugEnabled.Load() {
		return
	}
	select {
	case debugChan <- msg:
	default:
	}
}

// RecordTrace captures an event in the recording core's ring
func RecordTrace(core CoreID, eventType uint8, line IRQ, value uint32) {
	if !traceEnabled.Load() || !core.Valid() {
		return
	}
	seq := traceSeq.Add(1)

	state := disableInterrupts()
	ring := &traceRings[core]
	ring.events[ring.head] = TraceEvent{
		Seq:   seq,
		Type:  eventType,
		Core:  core,
		Line:  line,
		Value: value,
	}
	ring.head = (ring.head + 1) % TraceRingSize
	restoreInterrupts(state)
}

// TraceSnapshot returns the recorded events of one core, oldest first
func TraceSnapshot(core CoreID) []TraceEvent {
	if !core.Valid() {
		return nil
	}
	out := make([]TraceEvent, 0, TraceRingSize)

	state := disableInterrupts()
	ring := &traceRings[core]
	for i := uint8(0); i < TraceRingSize; i++ {
		evt := ring.events[(ring.head+i)%TraceRingSize]
		if evt.Type != 0 {
			out = append(out, evt)
		}
	}
	restoreInterrupts(state)
	return out
}

// TraceEventName returns the wire name of an event type
func TraceEventName(eventType uint8) string {
	switch eventType {
	case EvtInvoke:
		return "INVOKE"
	case EvtQueueFull:
		return "QUEUE_FULL"
	case EvtSignal:
		return "SIGNAL"
	case EvtSignalLost:
		return "SIGNAL_LOST"
	case EvtForward:
		return "FORWARD"
	case EvtInvalidSignal:
		return "INVALID_SIGNAL"
	case EvtDrainStart:
		return "DRAIN_START"
	case EvtDrainEnd:
		return "DRAIN_END"
	default:
		return "UNKNOWN"
	}
}

// FormatTrace renders an event as a console line, for example
// "[TRACE] core=1 seq=7 evt=DRAIN_END line=3 v=2"
func FormatTrace(evt TraceEvent) string {
	buf := make([]byte, 0, 64)
	buf = append(buf, "[TRACE]"...)
	buf = appendField(buf, "core", uint32(evt.Core))
	buf = appendField(buf, "seq", evt.Seq)
	buf = append(buf, " evt="...)
	buf = append(buf, TraceEventName(evt.Type)...)
	buf = appendField(buf, "line", uint32(evt.Line))
	buf = appendField(buf, "v", evt.Value)
	return string(buf)
}

// DumpTrace writes both cores' trace rings through the debug writer,
// regardless of SetDebugEnabled. Call outside time-critical code.
func DumpTrace() {
	debugPrintln("[TRACE] === Trace Dump ===")
	for c := CoreID(0); c < NumCores; c++ {
		for _, evt := range TraceSnapshot(c) {
			debugPrintln(FormatTrace(evt))
		}
	}
	debugPrintln("[TRACE] === End Dump ===")
}

// ClearTrace empties both trace rings
func ClearTrace() {
	state := disableInterrupts()
	for c := range traceRings {
		traceRings[c] = traceRing{}
	}
	restoreInterrupts(state)
}
