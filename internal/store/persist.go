package store

import (
	"context"
	"fmt"

	"grovli-client/internal/localstore"
)

// Local storage keys for per-store persisted snapshots.
const (
	KeyMealPlanSnapshot   = "grovli-meal-plan-store"
	KeyCompletionSnapshot = "grovli-meal-completion-store"
	KeyCalorieSnapshot    = "grovli-calorie-store"
	KeyPantrySnapshot     = "grovli-pantry"
)

// Persistable is a store that elects to persist a subset of its fields
// across sessions. Derived and UI-only fields stay out of snapshots.
type Persistable interface {
	Snapshot() ([]byte, error)
	Restore(data []byte) error
}

// Merger is a Persistable whose snapshot can be combined with the
// previously persisted one, so concurrent processes sharing the store merge
// their records instead of overwriting each other's.
type Merger interface {
	Persistable
	MergeSnapshot(old []byte) ([]byte, error)
}

// SaveMerged combines the store's snapshot with the persisted value under
// key inside one transaction.
func SaveMerged(ctx context.Context, ls *localstore.Store, key string, m Merger) error {
	return ls.Merge(ctx, key, m.MergeSnapshot)
}

// Save writes the store's snapshot under key.
func Save(ctx context.Context, ls *localstore.Store, key string, p Persistable) error {
	data, err := p.Snapshot()
	if err != nil {
		return fmt.Errorf("failed to snapshot %s: %w", key, err)
	}
	return ls.Set(ctx, key, data)
}

// Load restores the store from its persisted snapshot, if one exists. The
// caller is expected to revalidate against the backend afterward.
func Load(ctx context.Context, ls *localstore.Store, key string, p Persistable) error {
	data, ok, err := ls.Get(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return p.Restore(data)
}
