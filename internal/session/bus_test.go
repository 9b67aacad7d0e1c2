package session

import (
	"testing"

	"aromabridge/internal/models"
)

func TestBusDeliversInRegistrationOrder(t *testing.T) {
	bus := NewBus()
	var got []int
	bus.Subscribe(func(models.Message) { got = append(got, 1) })
	bus.Subscribe(func(models.Message) { got = append(got, 2) })
	bus.Subscribe(func(models.Message) { got = append(got, 3) })

	bus.Publish(models.Message{Type: models.MsgCountdown})

	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("delivery order = %v", got)
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()
	calls := 0
	id := bus.Subscribe(func(models.Message) { calls++ })

	bus.Publish(models.Message{})
	bus.Unsubscribe(id)
	bus.Publish(models.Message{})

	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}

	bus.Unsubscribe("unknown") // no-op
	bus.Unsubscribe(id)        // double remove is a no-op
}

func TestBusReentrantUnsubscribe(t *testing.T) {
	bus := NewBus()
	var id string
	calls := 0
	id = bus.Subscribe(func(models.Message) {
		calls++
		bus.Unsubscribe(id)
	})

	bus.Publish(models.Message{})
	bus.Publish(models.Message{})

	if calls != 1 {
		t.Fatalf("calls = %d, want 1 after reentrant unsubscribe", calls)
	}
}
