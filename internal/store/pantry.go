package store

import (
	"encoding/json"
	"fmt"
	"sync"
)

// PantryItem is one ingredient the user has on hand.
type PantryItem struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Category string  `json:"category,omitempty"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit,omitempty"`
}

// PantryStore mirrors the user's pantry.
type PantryStore struct {
	mu    sync.RWMutex
	items []PantryItem
}

// NewPantryStore creates an empty store.
func NewPantryStore() *PantryStore {
	return &PantryStore{}
}

// SetItems replaces the full item list (server re-derivation).
func (s *PantryStore) SetItems(items []PantryItem) {
	s.mu.Lock()
	s.items = append([]PantryItem(nil), items...)
	s.mu.Unlock()
}

// Items returns a copy of the item list.
func (s *PantryStore) Items() []PantryItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]PantryItem(nil), s.items...)
}

// Add appends an item (optimistic insert).
func (s *PantryStore) Add(item PantryItem) {
	s.mu.Lock()
	s.items = append(s.items, item)
	s.mu.Unlock()
}

// Remove deletes the item with the given id and reports whether it existed.
func (s *PantryStore) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, item := range s.items {
		if item.ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return true
		}
	}
	return false
}

// UpdateQuantity sets the quantity of the item with the given id.
func (s *PantryStore) UpdateQuantity(id string, quantity float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, item := range s.items {
		if item.ID == id {
			s.items[i].Quantity = quantity
			return true
		}
	}
	return false
}

// Names returns the item names, used when generating pantry-based plans.
func (s *PantryStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, len(s.items))
	for i, item := range s.items {
		names[i] = item.Name
	}
	return names
}

// ApplyServerItems re-derives the list from a backend pantry payload.
func (s *PantryStore) ApplyServerItems(payload json.RawMessage) error {
	var resp struct {
		Items []PantryItem `json:"items"`
	}
	if err := json.Unmarshal(payload, &resp); err != nil {
		return fmt.Errorf("failed to decode pantry payload: %w", err)
	}
	s.SetItems(resp.Items)
	return nil
}

// Snapshot serializes the item list for persistence.
func (s *PantryStore) Snapshot() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.Marshal(s.items)
}

// Restore replaces the item list from a snapshot.
func (s *PantryStore) Restore(data []byte) error {
	var items []PantryItem
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("failed to decode pantry snapshot: %w", err)
	}
	s.SetItems(items)
	return nil
}
