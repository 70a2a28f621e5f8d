package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalSet_Decode(t *testing.T) {
	assert := assert.New(t)

	var set SignalSet
	require.NoError(t, set.Declare(3))
	require.NoError(t, set.Declare(40))

	id, err := set.Decode(3)
	assert.NoError(err)
	assert.Equal(IRQ(3), id)

	id, err = set.Decode(40)
	assert.NoError(err)
	assert.Equal(IRQ(40), id)

	// declared range, undeclared line
	_, err = set.Decode(4)
	assert.ErrorIs(err, ErrInvalidSignal)

	// out of range words are never reinterpreted
	_, err = set.Decode(MaxIRQ)
	assert.ErrorIs(err, ErrInvalidSignal)
	_, err = set.Decode(0xDEADBEEF)
	var invalid *InvalidSignalError
	if assert.True(errors.As(err, &invalid)) {
		assert.Equal(uint32(0xDEADBEEF), invalid.Word)
	}

	assert.Error(set.Declare(MaxIRQ))
}

func TestRelay_SignalAndForward(t *testing.T) {
	assert := assert.New(t)
	rig := newFakeRig(1)

	var set SignalSet
	require.NoError(t, set.Declare(2))
	sender := NewRelay(Core0, rig.mb[Core0], &set)
	receiver := NewRelay(Core1, rig.mb[Core1], &set)

	assert.NoError(sender.Signal(2))
	assert.True(rig.ic[Core1].isPending(testMailboxLine1))

	require.NoError(t, receiver.Forward(rig.ic[Core1]))
	assert.True(rig.ic[Core1].isPending(2))

	// nothing left: forwarding is a no-op
	assert.NoError(receiver.Forward(rig.ic[Core1]))

	assert.Equal(RelayStats{Sent: 1}, sender.Stats())
	assert.Equal(RelayStats{Received: 1, Forwarded: 1}, receiver.Stats())
}

func TestRelay_SignalLostWhenMailboxFull(t *testing.T) {
	assert := assert.New(t)
	rig := newFakeRig(1)

	var set SignalSet
	require.NoError(t, set.Declare(2))
	require.NoError(t, set.Declare(3))
	sender := NewRelay(Core0, rig.mb[Core0], &set)
	receiver := NewRelay(Core1, rig.mb[Core1], &set)

	assert.NoError(sender.Signal(2))
	assert.ErrorIs(sender.Signal(3), ErrSignalLost)
	assert.Equal(uint32(1), sender.Stats().Lost)

	// the first signal survives, the second never arrives
	id, ok, err := receiver.TryReceive()
	assert.NoError(err)
	assert.True(ok)
	assert.Equal(IRQ(2), id)

	_, ok, err = receiver.TryReceive()
	assert.NoError(err)
	assert.False(ok)
}

func TestRelay_InvalidWordFailsOnlyThatForward(t *testing.T) {
	assert := assert.New(t)
	rig := newFakeRig(4)

	var set SignalSet
	require.NoError(t, set.Declare(5))
	receiver := NewRelay(Core1, rig.mb[Core1], &set)

	// raw words straight into the channel, bypassing Signal
	require.True(t, rig.mb[Core0].Write(9))
	require.True(t, rig.mb[Core0].Write(5))

	err := receiver.Forward(rig.ic[Core1])
	assert.ErrorIs(err, ErrInvalidSignal)
	assert.False(rig.ic[Core1].isPending(9))

	assert.NoError(receiver.Forward(rig.ic[Core1]))
	assert.True(rig.ic[Core1].isPending(5))

	stats := receiver.Stats()
	assert.Equal(uint32(2), stats.Received)
	assert.Equal(uint32(1), stats.Invalid)
	assert.Equal(uint32(1), stats.Forwarded)
}

func TestRelay_RejectsOutOfRangeSend(t *testing.T) {
	rig := newFakeRig(1)
	var set SignalSet
	sender := NewRelay(Core0, rig.mb[Core0], &set)

	assert.ErrorIs(t, sender.Signal(MaxIRQ+1), ErrInvalidSignal)
	assert.Zero(t, sender.Stats().Sent)
}

type overflowMailbox struct {
	fakeEndpoint
	latched bool
}

func (m *overflowMailbox) Overflowed() bool {
	v := m.latched
	m.latched = false
	return v
}

func TestRelay_ReportsLatchedOverflow(t *testing.T) {
	rig := newFakeRig(4)
	mb := &overflowMailbox{fakeEndpoint: *rig.mb[Core0], latched: true}

	var set SignalSet
	require.NoError(t, set.Declare(1))
	sender := NewRelay(Core0, mb, &set)

	assert.ErrorIs(t, sender.Signal(1), ErrSignalLost)
	assert.NoError(t, sender.Signal(1))
}

func TestRelay_Drain(t *testing.T) {
	rig := newFakeRig(8)
	var set SignalSet
	receiver := NewRelay(Core1, rig.mb[Core1], &set)

	for i := uint32(0); i < 3; i++ {
		require.True(t, rig.mb[Core0].Write(i))
	}
	assert.Equal(t, 3, receiver.Drain())
	assert.Equal(t, 0, receiver.Drain())
}
