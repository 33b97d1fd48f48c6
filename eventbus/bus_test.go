package eventbus

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestScope_NexusBeforeLocal(t *testing.T) {
	b := New(zerolog.Nop())
	var order []string

	b.On(PacketIn, func(ev *Event) { order = append(order, "nexus") })
	scope := b.NewScope()
	scope.On(PacketIn, func(ev *Event) { order = append(order, "local") })

	scope.Raise(&Event{Type: PacketIn})

	require.Equal(t, []string{"nexus", "local"}, order)
}

func TestScope_HaltAtNexusSkipsLocal(t *testing.T) {
	b := New(zerolog.Nop())
	var ran bool

	b.On(PacketIn, func(ev *Event) { ev.Halt() })
	scope := b.NewScope()
	scope.On(PacketIn, func(ev *Event) { ran = true })

	scope.Raise(&Event{Type: PacketIn})

	require.False(t, ran, "local scope must not run once nexus halted the event")
}

func TestScope_HaltStopsLaterListenersSameScope(t *testing.T) {
	b := New(zerolog.Nop())
	var calls []int

	b.On(PacketIn, func(ev *Event) { calls = append(calls, 1); ev.Halt() })
	b.On(PacketIn, func(ev *Event) { calls = append(calls, 2) })

	b.Raise(&Event{Type: PacketIn})

	require.Equal(t, []int{1}, calls)
}

func TestScope_ListenerPanicIsolated(t *testing.T) {
	b := New(zerolog.Nop())
	var second bool

	b.On(PacketIn, func(ev *Event) { panic("boom") })
	b.On(PacketIn, func(ev *Event) { second = true })

	require.NotPanics(t, func() { b.Raise(&Event{Type: PacketIn}) })
	require.True(t, second, "a later listener must still run after an earlier one panics")
}

func TestScope_DifferentConnectionsDoNotShareLocalListeners(t *testing.T) {
	b := New(zerolog.Nop())
	a := b.NewScope()
	other := b.NewScope()

	var aRan, otherRan bool
	a.On(ConnectionUp, func(ev *Event) { aRan = true })
	other.On(ConnectionUp, func(ev *Event) { otherRan = true })

	a.Raise(&Event{Type: ConnectionUp})

	require.True(t, aRan)
	require.False(t, otherRan)
}
