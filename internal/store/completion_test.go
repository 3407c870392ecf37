package store

import (
	"encoding/json"
	"testing"
)

func TestToggleRecordsPending(t *testing.T) {
	s := NewCompletionStore()

	if got := s.Toggle("2026-09-01", Lunch); !got {
		t.Fatal("Expected first toggle to return true")
	}
	update, ok := s.Pending("2026-09-01", Lunch)
	if !ok || update.Status != PendingStatusPending || !update.Value {
		t.Fatalf("Unexpected pending record: %+v ok=%v", update, ok)
	}

	if got := s.Toggle("2026-09-01", Lunch); got {
		t.Fatal("Expected second toggle to return false")
	}
}

func TestSyncedDropsPendingKeepsValue(t *testing.T) {
	s := NewCompletionStore()
	s.Toggle("2026-09-01", Breakfast)

	s.SetPendingStatus("2026-09-01", Breakfast, PendingStatusSynced)

	if _, ok := s.Pending("2026-09-01", Breakfast); ok {
		t.Error("Expected pending record dropped after sync")
	}
	if !s.Get("2026-09-01", Breakfast) {
		t.Error("Expected value preserved after sync")
	}
}

func TestErrorRevertsValue(t *testing.T) {
	s := NewCompletionStore()
	s.Toggle("2026-09-01", Breakfast)

	s.SetPendingStatus("2026-09-01", Breakfast, PendingStatusError)

	if s.Get("2026-09-01", Breakfast) {
		t.Error("Expected value reverted after failed sync")
	}
	if _, ok := s.Pending("2026-09-01", Breakfast); ok {
		t.Error("Expected pending record dropped after failure")
	}
}

func TestSetPendingStatusWithoutRecordIsNoop(t *testing.T) {
	s := NewCompletionStore()
	s.Set("2026-09-01", Dinner, true)

	s.SetPendingStatus("2026-09-01", Dinner, PendingStatusError)

	if !s.Get("2026-09-01", Dinner) {
		t.Error("Expected value untouched when no pending record exists")
	}
}

func TestForDateDefaultsEveryType(t *testing.T) {
	s := NewCompletionStore()
	s.Set("2026-09-01", Lunch, true)

	got := s.ForDate("2026-09-01")
	if len(got) != len(MealTypes) {
		t.Fatalf("Expected %d entries, got %d", len(MealTypes), len(got))
	}
	if !got[Lunch] || got[Breakfast] || got[Dinner] || got[Snack] {
		t.Errorf("Unexpected completion map: %v", got)
	}
}

func TestImportIgnoresUnknownTypes(t *testing.T) {
	s := NewCompletionStore()
	s.Set("2026-09-01", Snack, true)

	got := s.Import("2026-09-01", map[string]bool{"dinner": true, "brunch": true})
	if !got[Dinner] {
		t.Error("Expected dinner imported")
	}
	if got[Snack] {
		t.Error("Expected import to reset values not present in the payload")
	}
}

func TestCompletionSnapshotExcludesPending(t *testing.T) {
	s := NewCompletionStore()
	s.Toggle("2026-09-01", Lunch)

	data, err := s.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	var decoded map[string]bool
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Snapshot is not a completion map: %v", err)
	}
	if !decoded[CompletionKey("2026-09-01", Lunch)] {
		t.Error("Expected completion value in snapshot")
	}

	restored := NewCompletionStore()
	if err := restored.Restore(data); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if _, ok := restored.Pending("2026-09-01", Lunch); ok {
		t.Error("Expected no pending records after restore")
	}
}
