// Package notify watches a long-running meal-plan generation job and fans
// out its completion: one typed event on the bus for in-process listeners,
// plus a durable notification record in the local store so other processes
// pick it up through the change watcher.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"grovli-client/internal/events"
	"grovli-client/internal/localstore"
)

// JobState is one phase of a generation job.
type JobState string

const (
	StateIdle       JobState = "idle"
	StateGenerating JobState = "generating"
	StateDataReady  JobState = "dataReady"
	StateFullyReady JobState = "fullyReady"
	StateViewed     JobState = "viewed"
)

// Local store keys written by the watcher.
const (
	KeyNotification    = "meal_plan_notification"
	KeyGenerationState = "meal_generation_state"
)

// JobStatus is one observation of a generation job.
type JobStatus struct {
	JobID    string   `json:"jobId"`
	State    JobState `json:"state"`
	ResultID string   `json:"resultId,omitempty"`
}

// StatusSource reports the current status of a job. The default
// implementation polls the backend; a push transport can replace it without
// touching the watcher.
type StatusSource interface {
	Status(ctx context.Context, jobID string) (JobStatus, error)
}

// generationState is the persisted watcher state, restored on the next
// session so an in-flight job survives a restart.
type generationState struct {
	JobID     string   `json:"jobId"`
	State     JobState `json:"state"`
	ResultID  string   `json:"resultId,omitempty"`
	UpdatedAt int64    `json:"updatedAt"`
}

// Options tunes the watcher.
type Options struct {
	// PollInterval is the delay between status checks.
	PollInterval time.Duration
	// MaxFailures is how many consecutive source errors are tolerated
	// before the job is abandoned.
	MaxFailures int
}

// Watcher drives a generation job from idle to fullyReady and broadcasts
// the result. One watcher tracks at most one job at a time; a new Start
// resets the state machine.
type Watcher struct {
	source StatusSource
	bus    *events.Bus
	store  *localstore.Store
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	jobID    string
	state    JobState
	resultID string
	cancel   context.CancelFunc
}

// NewWatcher creates a watcher in the idle state.
func NewWatcher(source StatusSource, bus *events.Bus, store *localstore.Store, opts Options, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 3 * time.Second
	}
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = 8
	}
	return &Watcher{
		source: source,
		bus:    bus,
		store:  store,
		opts:   opts,
		logger: logger,
		state:  StateIdle,
	}
}

// State returns the current job phase and result identifier.
func (w *Watcher) State() (JobState, string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state, w.resultID
}

// Start begins watching jobID and returns once the watch loop is running.
// Any previous watch is cancelled. The loop exits when the job reaches
// fullyReady, exceeds the failure threshold, or ctx is done.
func (w *Watcher) Start(ctx context.Context, jobID string) {
	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.jobID = jobID
	w.state = StateGenerating
	w.resultID = ""
	w.mu.Unlock()

	w.persist(ctx)
	go w.run(ctx, jobID)
}

// Stop cancels the active watch without touching the persisted state.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
}

func (w *Watcher) run(ctx context.Context, jobID string) {
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		status, err := w.source.Status(ctx, jobID)
		if err != nil {
			failures++
			w.logger.Warn("generation status check failed",
				"jobId", jobID, "failures", failures, "error", err)
			if failures >= w.opts.MaxFailures {
				w.abandon(ctx, jobID, err)
				return
			}
			continue
		}
		failures = 0

		switch status.State {
		case StateGenerating:
			// Still cooking.
		case StateDataReady:
			w.transition(ctx, StateDataReady, status.ResultID)
		case StateFullyReady:
			w.transition(ctx, StateFullyReady, status.ResultID)
			w.announce(ctx, jobID, status.ResultID)
			return
		default:
			w.logger.Warn("unexpected job state", "jobId", jobID, "state", status.State)
		}
	}
}

func (w *Watcher) transition(ctx context.Context, state JobState, resultID string) {
	w.mu.Lock()
	if w.state == state {
		w.mu.Unlock()
		return
	}
	w.state = state
	if resultID != "" {
		w.resultID = resultID
	}
	w.mu.Unlock()

	w.persist(ctx)
}

// announce fires the single completion fan-out: one bus event for this
// process, one durable notification record for the others.
func (w *Watcher) announce(ctx context.Context, jobID, resultID string) {
	payload := events.PlanReadyPayload{
		JobID:     jobID,
		ResultID:  resultID,
		Timestamp: time.Now().UnixMilli(),
		Source:    "grovli-client",
	}
	w.bus.Publish(events.TopicPlanReady, payload)

	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := w.store.Set(ctx, KeyNotification, data); err != nil {
		w.logger.Warn("failed to persist plan notification", "jobId", jobID, "error", err)
	}
}

// abandon gives up on the job after repeated failures: state resets to idle
// and the failure is reported, leaving the UI in its last known-good state.
func (w *Watcher) abandon(ctx context.Context, jobID string, cause error) {
	w.mu.Lock()
	w.state = StateIdle
	w.resultID = ""
	w.mu.Unlock()

	w.persist(ctx)
	w.bus.Publish(events.TopicGenerationFailed, fmt.Sprintf("generation job %s abandoned: %v", jobID, cause))
	w.logger.Error("generation job abandoned", "jobId", jobID, "error", cause)
}

// MarkViewed completes the lifecycle once the user opens the results.
func (w *Watcher) MarkViewed(ctx context.Context) {
	w.mu.Lock()
	if w.state != StateFullyReady {
		w.mu.Unlock()
		return
	}
	w.state = StateViewed
	jobID, resultID := w.jobID, w.resultID
	w.mu.Unlock()

	w.persist(ctx)
	w.bus.Publish(events.TopicPlanViewed, events.PlanReadyPayload{
		JobID:     jobID,
		ResultID:  resultID,
		Timestamp: time.Now().UnixMilli(),
		Source:    "grovli-client",
	})
}

// Restore loads the persisted generation state from a previous session.
// A restored fullyReady job stays visible until viewed; a restored
// generating job must be re-started by the caller with its job id.
func (w *Watcher) Restore(ctx context.Context) (JobStatus, error) {
	data, ok, err := w.store.Get(ctx, KeyGenerationState)
	if err != nil || !ok {
		return JobStatus{State: StateIdle}, err
	}

	var state generationState
	if err := json.Unmarshal(data, &state); err != nil {
		return JobStatus{State: StateIdle}, fmt.Errorf("failed to decode generation state: %w", err)
	}

	w.mu.Lock()
	w.jobID = state.JobID
	w.state = state.State
	w.resultID = state.ResultID
	w.mu.Unlock()

	return JobStatus{JobID: state.JobID, State: state.State, ResultID: state.ResultID}, nil
}

func (w *Watcher) persist(ctx context.Context) {
	w.mu.Lock()
	state := generationState{
		JobID:     w.jobID,
		State:     w.state,
		ResultID:  w.resultID,
		UpdatedAt: time.Now().UnixMilli(),
	}
	w.mu.Unlock()

	data, err := json.Marshal(state)
	if err != nil {
		return
	}
	if err := w.store.Set(ctx, KeyGenerationState, data); err != nil {
		w.logger.Warn("failed to persist generation state", "jobId", state.JobID, "error", err)
	}
}
