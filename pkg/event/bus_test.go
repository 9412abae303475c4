package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBusDeliversInOrder(t *testing.T) {
	bus := NewBus()

	var got []string
	bus.Subscribe(func(e Event) { got = append(got, "first:"+string(e.Type)) })
	bus.Subscribe(func(e Event) { got = append(got, "second:"+string(e.Type)) })

	bus.Publish(Event{Type: PatientAdded})

	assert.Equal(t, []string{"first:patient.added", "second:patient.added"}, got)
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()

	calls := 0
	unsubscribe := bus.Subscribe(func(Event) { calls++ })
	bus.Publish(Event{Type: ScanAdded})

	unsubscribe()
	unsubscribe()
	bus.Publish(Event{Type: ScanAdded})

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, bus.Len())
}

func TestBusStampsTime(t *testing.T) {
	bus := NewBus()

	var seen Event
	bus.Subscribe(func(e Event) { seen = e })
	bus.Publish(Event{Type: SessionLoggedOut})

	assert.False(t, seen.OccurredAt.IsZero())
}

func TestListenerMayUnsubscribeWhilePublishing(t *testing.T) {
	bus := NewBus()

	var unsubscribe func()
	calls := 0
	unsubscribe = bus.Subscribe(func(Event) {
		calls++
		unsubscribe()
	})

	bus.Publish(Event{Type: PatientRemoved})
	bus.Publish(Event{Type: PatientRemoved})

	assert.Equal(t, 1, calls)
}
