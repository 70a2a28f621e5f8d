package core

// SignalSet is the fixed set of signal identifiers a relay accepts. It is
// filled while bindings are declared and read-only once cores start.
type SignalSet struct {
	bits [MaxIRQ / 32]uint32
}

// Declare adds irq to the set. Lines at or above MaxIRQ are rejected.
func (s *SignalSet) Declare(irq IRQ) error {
	if irq >= MaxIRQ {
		return &InvalidSignalError{Word: uint32(irq)}
	}
	s.bits[irq/32] |= 1 << (irq % 32)
	return nil
}

// Contains reports whether irq was declared
func (s *SignalSet) Contains(irq IRQ) bool {
	if irq >= MaxIRQ {
		return false
	}
	return s.bits[irq/32]&(1<<(irq%32)) != 0
}

// Decode turns a mailbox word back into a signal identifier. The channel
// carries no type tag, so anything out of range or never declared is
// rejected instead of being reinterpreted.
func (s *SignalSet) Decode(word uint32) (IRQ, error) {
	if word >= MaxIRQ || !s.Contains(IRQ(word)) {
		return 0, &InvalidSignalError{Word: word}
	}
	return IRQ(word), nil
}

// Encode returns the mailbox word for irq
func Encode(irq IRQ) uint32 {
	return uint32(irq)
}
