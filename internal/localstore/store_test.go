package localstore

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "grovli.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestKVRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "mealGenerationState", []byte(`{"isGenerating":true}`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	value, ok, err := store.Get(ctx, "mealGenerationState")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok || string(value) != `{"isGenerating":true}` {
		t.Errorf("Unexpected value: ok=%v value=%s", ok, value)
	}

	if err := store.Delete(ctx, "mealGenerationState"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "mealGenerationState"); ok {
		t.Error("Expected key to be gone after Delete")
	}
}

func TestMerge(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "completions", []byte(`{"2026-09-01-breakfast":true}`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// Merge a second meal type without clobbering the first.
	err := store.Merge(ctx, "completions", func(old []byte) ([]byte, error) {
		m := map[string]bool{}
		if old != nil {
			if err := json.Unmarshal(old, &m); err != nil {
				return nil, err
			}
		}
		m["2026-09-01-lunch"] = true
		return json.Marshal(m)
	})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	value, _, _ := store.Get(ctx, "completions")
	m := map[string]bool{}
	if err := json.Unmarshal(value, &m); err != nil {
		t.Fatalf("Failed to decode merged value: %v", err)
	}
	if !m["2026-09-01-breakfast"] || !m["2026-09-01-lunch"] {
		t.Errorf("Expected both completions after merge, got %v", m)
	}
}

func TestPendingQueue(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.AppendPending(ctx, "meal-completion", []byte(`{"meal_type":"lunch"}`)); err != nil {
		t.Fatalf("AppendPending failed: %v", err)
	}
	if err := store.AppendPending(ctx, "meal-completion", []byte(`{"meal_type":"dinner"}`)); err != nil {
		t.Fatalf("AppendPending failed: %v", err)
	}
	if err := store.AppendPending(ctx, "other", []byte(`{}`)); err != nil {
		t.Fatalf("AppendPending failed: %v", err)
	}

	writes, err := store.TakePending(ctx, "meal-completion")
	if err != nil {
		t.Fatalf("TakePending failed: %v", err)
	}
	if len(writes) != 2 {
		t.Fatalf("Expected 2 pending writes, got %d", len(writes))
	}
	if string(writes[0].Payload) != `{"meal_type":"lunch"}` {
		t.Errorf("Expected insertion order, got %s first", writes[0].Payload)
	}

	// Queue is drained for that kind only.
	writes, _ = store.TakePending(ctx, "meal-completion")
	if len(writes) != 0 {
		t.Errorf("Expected drained queue, got %d writes", len(writes))
	}
	others, _ := store.TakePending(ctx, "other")
	if len(others) != 1 {
		t.Errorf("Expected 'other' queue untouched, got %d writes", len(others))
	}
}

func TestWatchObservesOtherContext(t *testing.T) {
	// Two Store handles on the same file stand in for two tabs.
	path := filepath.Join(t.TempDir(), "grovli.db")
	writer, err := Open(path)
	if err != nil {
		t.Fatalf("Open writer failed: %v", err)
	}
	defer writer.Close()

	reader, err := Open(path)
	if err != nil {
		t.Fatalf("Open reader failed: %v", err)
	}
	defer reader.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch := reader.Watch(ctx, "meal_plan_notification", 10*time.Millisecond)

	envelope := []byte(`{"jobId":"job_1","resultId":"plan_42"}`)
	if err := writer.Set(ctx, "meal_plan_notification", envelope); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	select {
	case got := <-ch:
		if string(got) != string(envelope) {
			t.Errorf("Expected notification envelope, got %s", got)
		}
	case <-ctx.Done():
		t.Fatal("Timed out waiting for cross-context notification")
	}
}

func TestWatchSeedsFromCurrentState(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "grovli.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// A value present before the watch starts is not delivered; an absent
	// row must seed cleanly too.
	if err := s.Set(ctx, "existing", []byte(`"old"`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	existing := s.Watch(ctx, "existing", 5*time.Millisecond)
	missing := s.Watch(ctx, "missing", 5*time.Millisecond)

	select {
	case got := <-existing:
		t.Fatalf("Expected no delivery for the pre-existing value, got %s", got)
	case <-time.After(50 * time.Millisecond):
	}

	if err := s.Set(ctx, "existing", []byte(`"new"`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Set(ctx, "missing", []byte(`"born"`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	select {
	case got := <-existing:
		if string(got) != `"new"` {
			t.Errorf("Expected the updated value, got %s", got)
		}
	case <-ctx.Done():
		t.Fatal("Timed out waiting for the update")
	}
	select {
	case got := <-missing:
		if string(got) != `"born"` {
			t.Errorf("Expected the first write for a missing key, got %s", got)
		}
	case <-ctx.Done():
		t.Fatal("Timed out waiting for the first write")
	}
}
