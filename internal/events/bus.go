// Package events is the typed in-process event bus. It replaces the ambient
// window-global flags the product previously used for inter-component
// signaling: interested parties subscribe to a topic instead of polling a
// shared mutable variable.
package events

import (
	"sync"
	"time"
)

// Topics published by the client.
const (
	TopicPlanReady         = "plan.ready"
	TopicPlanViewed        = "plan.viewed"
	TopicGenerationFailed  = "generation.failed"
	TopicCompletionChanged = "completion.changed"
)

// PlanReadyPayload announces a finished meal-plan generation job.
type PlanReadyPayload struct {
	JobID     string `json:"jobId"`
	ResultID  string `json:"resultId"`
	Timestamp int64  `json:"timestamp"`
	Source    string `json:"source"`
}

// Event is one published message.
type Event struct {
	Topic   string
	Payload any
	Time    time.Time
}

// Bus fans events out to per-topic subscribers. Delivery is non-blocking: a
// subscriber that stops draining its channel loses events rather than
// wedging publishers.
type Bus struct {
	mu   sync.Mutex
	subs map[string][]chan Event
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string][]chan Event)}
}

// Subscribe returns a channel of events for topic and a cancel function that
// removes the subscription and closes the channel.
func (b *Bus) Subscribe(topic string) (<-chan Event, func()) {
	ch := make(chan Event, 16)

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], ch)
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[topic]
		for i, sub := range subs {
			if sub == ch {
				b.subs[topic] = append(subs[:i], subs[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber of its topic.
func (b *Bus) Publish(topic string, payload any) {
	event := Event{Topic: topic, Payload: payload, Time: time.Now()}

	b.mu.Lock()
	subs := make([]chan Event, len(b.subs[topic]))
	copy(subs, b.subs[topic])
	b.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}
}
