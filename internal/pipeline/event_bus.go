package pipeline

import (
	"sync"
)

// EventType identifies a pipeline progress event
type EventType string

const (
	EventRunStarted    EventType = "started"
	EventFrameAnalyzed EventType = "frame"
	EventAlertRaised   EventType = "alert"
	EventRunFinished   EventType = "finished"
	EventRunFailed     EventType = "failed"
)

// Event describes progress of one analysis run
type Event struct {
	Type       EventType
	RunID      string
	Label      string      // Caller-chosen run label (video id, file path)
	Info       *SourceInfo // Set on EventRunStarted
	FrameIndex int
	Time       Float
	Detections []Detection // Records produced by this frame
	Alert      *Alert      // Set on EventAlertRaised
	Report     *Report     // Set on EventRunFinished
	Err        string      // Set on EventRunFailed
}

// EventBus provides pub/sub for pipeline progress
type EventBus struct {
	subscribers map[*eventSubscription]bool
	mu          sync.RWMutex
}

type eventSubscription struct {
	labelFilter string // Empty string means receive all runs
	channel     chan *Event
	handler     EventHandler
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[*eventSubscription]bool),
	}
}

// Subscribe registers a handler for events from all runs
// Returns an unsubscribe function
func (b *EventBus) Subscribe(handler EventHandler) func() {
	return b.add(&eventSubscription{handler: handler})
}

// SubscribeLabel registers a handler for events from runs carrying label
func (b *EventBus) SubscribeLabel(label string, handler EventHandler) func() {
	return b.add(&eventSubscription{labelFilter: label, handler: handler})
}

// SubscribeChannel returns a buffered channel of events from all runs.
// Events are dropped when the channel is full.
func (b *EventBus) SubscribeChannel(bufferSize int) (<-chan *Event, func()) {
	if bufferSize <= 0 {
		bufferSize = 10
	}

	ch := make(chan *Event, bufferSize)
	sub := &eventSubscription{channel: ch}

	b.mu.Lock()
	b.subscribers[sub] = true
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		if _, ok := b.subscribers[sub]; ok {
			delete(b.subscribers, sub)
			close(ch)
		}
		b.mu.Unlock()
	}

	return ch, unsubscribe
}

func (b *EventBus) add(sub *eventSubscription) func() {
	b.mu.Lock()
	b.subscribers[sub] = true
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subscribers, sub)
		b.mu.Unlock()
	}
}

// Publish delivers an event to all matching subscribers.
// Handlers run synchronously so events arrive in scan order.
func (b *EventBus) Publish(event *Event) {
	if b == nil || event == nil {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		if sub.labelFilter != "" && sub.labelFilter != event.Label {
			continue
		}

		if sub.handler != nil {
			sub.handler.OnEvent(event)
		} else if sub.channel != nil {
			select {
			case sub.channel <- event:
			default:
			}
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *EventBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close unsubscribes all subscribers and closes channels
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subscribers {
		if sub.channel != nil {
			close(sub.channel)
		}
		delete(b.subscribers, sub)
	}
}
