//go:build rp2040 || rp2350

package main

import (
	"errors"
	"machine"
	"sync/atomic"

	"crosscore/core"
)

// consoleBusy serialises writers on both cores; machine.Serial is USB CDC
// and keeps no lock of its own
var (
	consoleBusy   atomic.Bool
	consoleErrors atomic.Uint32

	errConsoleStalled = errors.New("usb console accepted no data")
)

// InitUSB configures the USB CDC console and routes core debug output to it
func InitUSB() {
	if err := machine.Serial.Configure(machine.UARTConfig{}); err != nil {
		return
	}
	core.SetDebugWriter(consolePrintln)
	core.SetDebugEnabled(true)
}

// consolePrintln writes one line. It spins while the other core writes, so
// it must not be called from an interrupt handler.
func consolePrintln(msg string) {
	for !consoleBusy.CompareAndSwap(false, true) {
	}
	if err := USBWriteBytes([]byte(msg + "\r\n")); err != nil {
		consoleErrors.Add(1)
	}
	consoleBusy.Store(false)
}

// USBWriteBytes writes all of data; a host that is not reading loses the
// remainder
func USBWriteBytes(data []byte) error {
	for len(data) > 0 {
		n, err := machine.Serial.Write(data)
		if err != nil {
			return err
		}
		if n == 0 {
			return errConsoleStalled
		}
		data = data[n:]
	}
	return nil
}
