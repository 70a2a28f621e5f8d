//go:build !tinygo

package core

import "sync"

// State is a placeholder for interrupt state on regular Go
type State uintptr

// hostCritical stands in for masking interrupts when the cores are
// simulated by goroutines. It serializes every critical section in the
// package, which is stricter than per-core masking on hardware.
var hostCritical sync.Mutex

// disableInterrupts enters a critical section. Sections must not nest.
func disableInterrupts() State {
	hostCritical.Lock()
	return 0
}

// restoreInterrupts leaves the critical section
func restoreInterrupts(state State) {
	hostCritical.Unlock()
}
