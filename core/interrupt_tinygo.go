//go:build tinygo

package core

import "runtime/interrupt"

// disableInterrupts masks interrupts on the calling core and returns the
// previous state. It does not stop the sibling core.
func disableInterrupts() interrupt.State {
	return interrupt.Disable()
}

// restoreInterrupts restores the interrupt state
func restoreInterrupts(state interrupt.State) {
	interrupt.Restore(state)
}
