//go:build !linux

package sim

import "runtime"

// pinThread only locks the OS thread; affinity is not available here
func pinThread(cpu int) error {
	runtime.LockOSThread()
	return nil
}
