//go:build rp2040 || rp2350

package main

import (
	"errors"
	"sync/atomic"
	"time"

	"crosscore/core"
)

const (
	maxLatencySamples = 256
	probeTimeoutUS    = 10000
)

var (
	// seq and core 1 timestamp of the last answered probe
	probeSeq    atomic.Uint32
	probeRemote atomic.Uint64
)

// micros reads the shared 1MHz timer; both cores see the same clock
func micros() uint64 {
	return uint64(time.Now().UnixMicro())
}

// latencyStats accumulates samples in microseconds
type latencyStats struct {
	name     string
	samples  [maxLatencySamples]uint32
	count    int
	min, max uint32
	total    uint64
	timeouts uint32
}

func newLatencyStats(name string) *latencyStats {
	return &latencyStats{name: name, min: 0xFFFFFFFF}
}

func (s *latencyStats) add(us uint32) {
	if s.count < maxLatencySamples {
		s.samples[s.count] = us
	}
	s.count++
	s.total += uint64(us)
	if us < s.min {
		s.min = us
	}
	if us > s.max {
		s.max = us
	}
}

func (s *latencyStats) avg() uint32 {
	if s.count == 0 {
		return 0
	}
	return uint32(s.total / uint64(s.count))
}

// percentiles returns p50, p90 and p99 of the stored samples
func (s *latencyStats) percentiles() (uint32, uint32, uint32) {
	n := min(s.count, maxLatencySamples)
	if n == 0 {
		return 0, 0, 0
	}
	sorted := make([]uint32, n)
	copy(sorted, s.samples[:n])
	bubbleSort(sorted)
	return sorted[n*50/100], sorted[n*90/100], sorted[n*99/100]
}

func (s *latencyStats) report() {
	if s.count == 0 {
		core.DebugPrintln("[LATENCY] name=" + s.name + " samples=0 timeouts=" + core.Utoa(s.timeouts))
		return
	}
	p50, p90, p99 := s.percentiles()
	core.DebugPrintln("[LATENCY] name=" + s.name +
		" samples=" + core.Utoa(uint32(s.count)) +
		" min=" + core.Utoa(s.min) +
		" avg=" + core.Utoa(s.avg()) +
		" max=" + core.Utoa(s.max) +
		" jitter=" + core.Utoa(s.max-s.min) +
		" p50=" + core.Utoa(p50) +
		" p90=" + core.Utoa(p90) +
		" p99=" + core.Utoa(p99) +
		" timeouts=" + core.Utoa(s.timeouts))
}

// runLatencyBench sends probes to core 1 one at a time and measures the
// one-way (invoke to remote handler) and round-trip latency
func runLatencyBench(iterations int) {
	core.DebugPrintln("[LATENCY] probing core 1, iterations=" + core.Utoa(uint32(iterations)))
	rtt := newLatencyStats("invoke_rtt")
	oneWay := newLatencyStats("invoke_one_way")

	for i := 0; i < iterations; i++ {
		seq := uint32(i + 1)
		start := micros()
		err := fromCore0.Invoke(core.Core1, message{Kind: kindProbe, Seq: seq, Stamp: start})
		if err != nil && !errors.Is(err, core.ErrSignalLost) {
			rtt.timeouts++
			continue
		}

		for probeSeq.Load() != seq && micros()-start < probeTimeoutUS {
		}
		end := micros()
		if probeSeq.Load() != seq {
			rtt.timeouts++
			continue
		}
		rtt.add(uint32(end - start))
		oneWay.add(uint32(probeRemote.Load() - start))

		time.Sleep(100 * time.Microsecond)
	}

	oneWay.report()
	rtt.report()
}

// bubbleSort sorts in place; sample counts are small
func bubbleSort(arr []uint32) {
	n := len(arr)
	for i := 0; i < n-1; i++ {
		for j := 0; j < n-i-1; j++ {
			if arr[j] > arr[j+1] {
				arr[j], arr[j+1] = arr[j+1], arr[j]
			}
		}
	}
}
