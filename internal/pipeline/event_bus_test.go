package pipeline

import (
	"testing"
)

func TestEventBusLabelFilter(t *testing.T) {
	bus := NewEventBus()

	var all, onlyA int
	bus.Subscribe(EventHandlerFunc(func(*Event) { all++ }))
	unsubscribe := bus.SubscribeLabel("a", EventHandlerFunc(func(*Event) { onlyA++ }))

	bus.Publish(&Event{Type: EventRunStarted, Label: "a"})
	bus.Publish(&Event{Type: EventRunStarted, Label: "b"})

	if all != 2 || onlyA != 1 {
		t.Fatalf("all=%d onlyA=%d", all, onlyA)
	}

	unsubscribe()
	bus.Publish(&Event{Type: EventRunFinished, Label: "a"})
	if onlyA != 1 {
		t.Fatalf("unsubscribed handler still called")
	}
	if bus.SubscriberCount() != 1 {
		t.Fatalf("subscriber count = %d", bus.SubscriberCount())
	}
}

func TestEventBusChannelDropsWhenFull(t *testing.T) {
	bus := NewEventBus()
	ch, unsubscribe := bus.SubscribeChannel(1)

	bus.Publish(&Event{Type: EventFrameAnalyzed, FrameIndex: 0})
	bus.Publish(&Event{Type: EventFrameAnalyzed, FrameIndex: 30})

	e := <-ch
	if e.FrameIndex != 0 {
		t.Fatalf("got frame %d, want 0", e.FrameIndex)
	}
	select {
	case e := <-ch:
		t.Fatalf("expected drop, got frame %d", e.FrameIndex)
	default:
	}

	unsubscribe()
	if _, ok := <-ch; ok {
		t.Fatal("channel not closed after unsubscribe")
	}
	unsubscribe()
}

func TestNilEventBusPublish(t *testing.T) {
	var bus *EventBus
	bus.Publish(&Event{Type: EventRunStarted})
}

func TestEventBusClose(t *testing.T) {
	bus := NewEventBus()
	ch, _ := bus.SubscribeChannel(4)
	bus.Subscribe(EventHandlerFunc(func(*Event) {}))

	bus.Close()
	if bus.SubscriberCount() != 0 {
		t.Fatalf("subscribers left after Close: %d", bus.SubscriberCount())
	}
	if _, ok := <-ch; ok {
		t.Fatal("channel not closed by Close")
	}
}
