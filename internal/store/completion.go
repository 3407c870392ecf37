package store

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// PendingStatus tracks the sync state of one completion toggle.
type PendingStatus string

const (
	PendingStatusPending PendingStatus = "pending"
	PendingStatusSyncing PendingStatus = "syncing"
	PendingStatusSynced  PendingStatus = "synced"
	PendingStatusError   PendingStatus = "error"
)

// PendingUpdate records a completion toggle awaiting server confirmation.
type PendingUpdate struct {
	Status    PendingStatus `json:"status"`
	Value     bool          `json:"value"`
	Timestamp time.Time     `json:"timestamp"`
}

// CompletionStore tracks which meals were eaten, keyed
// `${dateKey}-${mealType}`. Toggles are applied locally first and confirmed
// or rolled back by the sync path.
type CompletionStore struct {
	mu          sync.RWMutex
	completions map[string]bool
	pending     map[string]PendingUpdate
}

// NewCompletionStore creates an empty store.
func NewCompletionStore() *CompletionStore {
	return &CompletionStore{
		completions: make(map[string]bool),
		pending:     make(map[string]PendingUpdate),
	}
}

// Toggle flips the completion for a slot and records a pending update.
// It returns the new value.
func (s *CompletionStore) Toggle(dateKey string, mealType MealType) bool {
	key := CompletionKey(dateKey, mealType)

	s.mu.Lock()
	defer s.mu.Unlock()
	value := !s.completions[key]
	s.completions[key] = value
	s.pending[key] = PendingUpdate{Status: PendingStatusPending, Value: value, Timestamp: time.Now()}
	return value
}

// Set assigns a completion value without touching pending state (used when
// applying confirmed server data).
func (s *CompletionStore) Set(dateKey string, mealType MealType, completed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completions[CompletionKey(dateKey, mealType)] = completed
}

// Get returns the completion flag for a slot.
func (s *CompletionStore) Get(dateKey string, mealType MealType) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.completions[CompletionKey(dateKey, mealType)]
}

// SetPendingStatus updates the sync status of a toggle. Terminal statuses
// drop the pending record; a failed toggle also reverts the local value.
func (s *CompletionStore) SetPendingStatus(dateKey string, mealType MealType, status PendingStatus) {
	key := CompletionKey(dateKey, mealType)

	s.mu.Lock()
	defer s.mu.Unlock()
	update, ok := s.pending[key]
	if !ok {
		return
	}
	switch status {
	case PendingStatusSynced:
		delete(s.pending, key)
	case PendingStatusError:
		s.completions[key] = !update.Value
		delete(s.pending, key)
	default:
		update.Status = status
		s.pending[key] = update
	}
}

// Pending returns the pending update for a slot, if any.
func (s *CompletionStore) Pending(dateKey string, mealType MealType) (PendingUpdate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	update, ok := s.pending[CompletionKey(dateKey, mealType)]
	return update, ok
}

// ForDate returns the completion map for one date with every meal type
// present, defaulting to false.
func (s *CompletionStore) ForDate(dateKey string) map[MealType]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[MealType]bool, len(MealTypes))
	for _, mt := range MealTypes {
		result[mt] = s.completions[CompletionKey(dateKey, mt)]
	}
	return result
}

// Import merges server-provided completion data for a date. Every meal type
// gets an explicit value; unknown types are ignored.
func (s *CompletionStore) Import(dateKey string, data map[string]bool) map[MealType]bool {
	s.mu.Lock()
	for _, mt := range MealTypes {
		s.completions[CompletionKey(dateKey, mt)] = false
	}
	for name, value := range data {
		if ValidMealType(name) {
			s.completions[CompletionKey(dateKey, MealType(name))] = value
		}
	}
	s.mu.Unlock()

	return s.ForDate(dateKey)
}

// ClearPending drops all pending records.
func (s *CompletionStore) ClearPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = make(map[string]PendingUpdate)
}

// Snapshot persists completions only; pending updates are session state.
func (s *CompletionStore) Snapshot() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.Marshal(s.completions)
}

// MergeSnapshot combines a previously persisted completion map with this
// store's records. Keys this store holds win; everything else is preserved,
// so two processes sharing the local store keep each other's toggles. A
// corrupt previous value is discarded rather than blocking the save.
func (s *CompletionStore) MergeSnapshot(old []byte) ([]byte, error) {
	merged := make(map[string]bool)
	if len(old) > 0 {
		if err := json.Unmarshal(old, &merged); err != nil {
			merged = make(map[string]bool)
		}
	}

	s.mu.RLock()
	for key, value := range s.completions {
		merged[key] = value
	}
	s.mu.RUnlock()

	return json.Marshal(merged)
}

// Restore replaces completions from a snapshot.
func (s *CompletionStore) Restore(data []byte) error {
	completions := make(map[string]bool)
	if err := json.Unmarshal(data, &completions); err != nil {
		return fmt.Errorf("failed to decode completion snapshot: %w", err)
	}
	s.mu.Lock()
	s.completions = completions
	s.mu.Unlock()
	return nil
}
