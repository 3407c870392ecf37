package events

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(TopicPlanReady)
	defer cancel()

	bus.Publish(TopicPlanReady, PlanReadyPayload{JobID: "job_1", ResultID: "plan_42"})

	select {
	case event := <-ch:
		payload, ok := event.Payload.(PlanReadyPayload)
		if !ok {
			t.Fatalf("Unexpected payload type %T", event.Payload)
		}
		if payload.ResultID != "plan_42" {
			t.Errorf("Expected resultId plan_42, got %s", payload.ResultID)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for event")
	}
}

func TestTopicsAreIsolated(t *testing.T) {
	bus := NewBus()
	ready, cancelReady := bus.Subscribe(TopicPlanReady)
	defer cancelReady()

	bus.Publish(TopicGenerationFailed, "boom")

	select {
	case event := <-ready:
		t.Fatalf("Expected no delivery on plan.ready, got %+v", event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(TopicCompletionChanged)
	cancel()

	// Channel is closed; a receive completes immediately with ok=false.
	if _, ok := <-ch; ok {
		t.Error("Expected closed channel after cancel")
	}

	// Publishing after cancel must not panic.
	bus.Publish(TopicCompletionChanged, nil)
}

func TestSlowSubscriberDoesNotBlockPublisher(t *testing.T) {
	bus := NewBus()
	_, cancel := bus.Subscribe(TopicPlanReady)
	defer cancel()

	done := make(chan struct{})
	go func() {
		// Overflow the buffered channel; Publish must never block.
		for i := 0; i < 100; i++ {
			bus.Publish(TopicPlanReady, i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}
