package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"grovli-client/internal/events"
	"grovli-client/internal/localstore"
)

// scriptedSource replays a fixed sequence of observations, repeating the
// last one, and counts how often it is asked.
type scriptedSource struct {
	mu     sync.Mutex
	script []JobStatus
	errs   []error
	calls  int
}

func (s *scriptedSource) Status(ctx context.Context, jobID string) (JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if len(s.errs) > 0 {
		if i >= len(s.errs) {
			i = len(s.errs) - 1
		}
		return JobStatus{}, s.errs[i]
	}
	if i >= len(s.script) {
		i = len(s.script) - 1
	}
	status := s.script[i]
	status.JobID = jobID
	return status, nil
}

func (s *scriptedSource) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func testStore(t *testing.T) *localstore.Store {
	t.Helper()
	ls, err := localstore.Open(filepath.Join(t.TempDir(), "local.db"))
	if err != nil {
		t.Fatalf("Failed to open local store: %v", err)
	}
	t.Cleanup(func() { ls.Close() })
	return ls
}

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestGenerationLifecycle(t *testing.T) {
	source := &scriptedSource{script: []JobStatus{
		{State: StateGenerating},
		{State: StateGenerating},
		{State: StateGenerating},
		{State: StateDataReady},
		{State: StateFullyReady, ResultID: "plan_42"},
	}}
	bus := events.NewBus()
	ls := testStore(t)
	w := NewWatcher(source, bus, ls, Options{PollInterval: 2 * time.Millisecond, MaxFailures: 8}, quietLogger())

	ready, cancel := bus.Subscribe(events.TopicPlanReady)
	defer cancel()

	ctx := context.Background()
	w.Start(ctx, "job_1")

	var payload events.PlanReadyPayload
	select {
	case event := <-ready:
		payload = event.Payload.(events.PlanReadyPayload)
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for the completion event")
	}
	if payload.ResultID != "plan_42" || payload.JobID != "job_1" {
		t.Errorf("Unexpected payload: %+v", payload)
	}

	// Exactly one event, and polling stops at fullyReady.
	select {
	case event := <-ready:
		t.Fatalf("Unexpected second event: %+v", event)
	case <-time.After(20 * time.Millisecond):
	}
	before := source.count()
	time.Sleep(20 * time.Millisecond)
	if after := source.count(); after != before {
		t.Errorf("Expected polling to stop after fullyReady, saw %d further polls", after-before)
	}
	if before != 5 {
		t.Errorf("Expected 5 polls, got %d", before)
	}

	if state, resultID := w.State(); state != StateFullyReady || resultID != "plan_42" {
		t.Errorf("Unexpected final state %s/%s", state, resultID)
	}

	// The durable notification record carries the same identifiers.
	data, ok, err := ls.Get(ctx, KeyNotification)
	if err != nil || !ok {
		t.Fatalf("Expected a persisted notification, ok=%v err=%v", ok, err)
	}
	var stored events.PlanReadyPayload
	if err := json.Unmarshal(data, &stored); err != nil {
		t.Fatalf("Failed to decode notification: %v", err)
	}
	if stored.ResultID != "plan_42" || stored.JobID != "job_1" {
		t.Errorf("Unexpected stored notification: %+v", stored)
	}
}

func TestAbandonAfterRepeatedFailures(t *testing.T) {
	source := &scriptedSource{errs: []error{errors.New("backend unreachable")}}
	bus := events.NewBus()
	ls := testStore(t)
	w := NewWatcher(source, bus, ls, Options{PollInterval: 2 * time.Millisecond, MaxFailures: 3}, quietLogger())

	failed, cancel := bus.Subscribe(events.TopicGenerationFailed)
	defer cancel()

	w.Start(context.Background(), "job_2")

	select {
	case <-failed:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for the failure event")
	}
	if state, _ := w.State(); state != StateIdle {
		t.Errorf("Expected idle after abandonment, got %s", state)
	}
	if got := source.count(); got != 3 {
		t.Errorf("Expected exactly 3 failed polls, got %d", got)
	}
}

func TestTransientFailuresAreTolerated(t *testing.T) {
	source := &scriptedSource{script: []JobStatus{
		{State: StateGenerating},
		{State: StateFullyReady, ResultID: "plan_7"},
	}}
	// First call errors, then the script takes over.
	flaky := &flakySource{inner: source, failFirst: 2}
	bus := events.NewBus()
	w := NewWatcher(flaky, bus, testStore(t), Options{PollInterval: 2 * time.Millisecond, MaxFailures: 5}, quietLogger())

	ready, cancel := bus.Subscribe(events.TopicPlanReady)
	defer cancel()

	w.Start(context.Background(), "job_3")

	select {
	case event := <-ready:
		if event.Payload.(events.PlanReadyPayload).ResultID != "plan_7" {
			t.Errorf("Unexpected payload: %+v", event.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out; transient failures should not abandon the job")
	}
}

type flakySource struct {
	mu        sync.Mutex
	inner     StatusSource
	failFirst int
}

func (f *flakySource) Status(ctx context.Context, jobID string) (JobStatus, error) {
	f.mu.Lock()
	if f.failFirst > 0 {
		f.failFirst--
		f.mu.Unlock()
		return JobStatus{}, errors.New("transient")
	}
	f.mu.Unlock()
	return f.inner.Status(ctx, jobID)
}

func TestMarkViewed(t *testing.T) {
	source := &scriptedSource{script: []JobStatus{{State: StateFullyReady, ResultID: "plan_9"}}}
	bus := events.NewBus()
	ls := testStore(t)
	w := NewWatcher(source, bus, ls, Options{PollInterval: 2 * time.Millisecond}, quietLogger())

	ready, cancelReady := bus.Subscribe(events.TopicPlanReady)
	defer cancelReady()
	viewed, cancelViewed := bus.Subscribe(events.TopicPlanViewed)
	defer cancelViewed()

	ctx := context.Background()
	w.Start(ctx, "job_4")
	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for completion")
	}

	w.MarkViewed(ctx)
	select {
	case event := <-viewed:
		if event.Payload.(events.PlanReadyPayload).ResultID != "plan_9" {
			t.Errorf("Unexpected viewed payload: %+v", event.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for the viewed event")
	}
	if state, _ := w.State(); state != StateViewed {
		t.Errorf("Expected viewed state, got %s", state)
	}

	// Viewed survives a restart.
	restored := NewWatcher(source, bus, ls, Options{}, quietLogger())
	status, err := restored.Restore(ctx)
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if status.State != StateViewed || status.ResultID != "plan_9" {
		t.Errorf("Unexpected restored status: %+v", status)
	}
}

func TestMarkViewedBeforeReadyIsNoop(t *testing.T) {
	bus := events.NewBus()
	w := NewWatcher(&scriptedSource{script: []JobStatus{{State: StateGenerating}}}, bus, testStore(t), Options{}, quietLogger())

	w.MarkViewed(context.Background())
	if state, _ := w.State(); state != StateIdle {
		t.Errorf("Expected idle, got %s", state)
	}
}

func TestNotificationObservedAcrossContexts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local.db")
	writer, err := localstore.Open(path)
	if err != nil {
		t.Fatalf("Failed to open writer store: %v", err)
	}
	defer writer.Close()
	reader, err := localstore.Open(path)
	if err != nil {
		t.Fatalf("Failed to open reader store: %v", err)
	}
	defer reader.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	updates := reader.Watch(ctx, KeyNotification, 2*time.Millisecond)

	source := &scriptedSource{script: []JobStatus{{State: StateFullyReady, ResultID: "plan_42"}}}
	w := NewWatcher(source, events.NewBus(), writer, Options{PollInterval: 2 * time.Millisecond}, quietLogger())
	w.Start(ctx, "job_5")

	select {
	case data := <-updates:
		var payload events.PlanReadyPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			t.Fatalf("Failed to decode notification: %v", err)
		}
		if payload.ResultID != "plan_42" || payload.JobID != "job_5" {
			t.Errorf("Unexpected cross-context payload: %+v", payload)
		}
	case <-ctx.Done():
		t.Fatal("Timed out waiting for the cross-context notification")
	}
}
