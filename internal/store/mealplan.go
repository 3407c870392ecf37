package store

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MealPlanStore is the projection of the user's meal plan.
//
// It keeps a single source of truth keyed date -> slot -> meal; the flat
// "today" view is computed on read. The product previously maintained both
// representations with dual writes and let them drift apart, which this
// layout makes impossible.
type MealPlanStore struct {
	mu    sync.RWMutex
	plans map[string]map[MealType]Meal
	now   func() time.Time
}

// NewMealPlanStore creates an empty store.
func NewMealPlanStore() *MealPlanStore {
	return &MealPlanStore{
		plans: make(map[string]map[MealType]Meal),
		now:   time.Now,
	}
}

// SetMeal places a meal in the given date and slot.
func (s *MealPlanStore) SetMeal(dateKey string, mealType MealType, meal Meal) {
	meal.Type = mealType

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.plans[dateKey] == nil {
		s.plans[dateKey] = make(map[MealType]Meal)
	}
	s.plans[dateKey][mealType] = meal
}

// RemoveMeal empties the given slot. Empty dates are dropped entirely.
func (s *MealPlanStore) RemoveMeal(dateKey string, mealType MealType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	day, ok := s.plans[dateKey]
	if !ok {
		return
	}
	delete(day, mealType)
	if len(day) == 0 {
		delete(s.plans, dateKey)
	}
}

// SetCompleted marks the slot's completion flag. It reports whether the
// slot was populated.
func (s *MealPlanStore) SetCompleted(dateKey string, mealType MealType, completed bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	day, ok := s.plans[dateKey]
	if !ok {
		return false
	}
	meal, ok := day[mealType]
	if !ok {
		return false
	}
	meal.Completed = completed
	day[mealType] = meal
	return true
}

// Meal returns the meal in the given slot.
func (s *MealPlanStore) Meal(dateKey string, mealType MealType) (Meal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	meal, ok := s.plans[dateKey][mealType]
	return meal, ok
}

// MealsFor returns the populated slots for a date in canonical slot order.
func (s *MealPlanStore) MealsFor(dateKey string) []Meal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	day, ok := s.plans[dateKey]
	if !ok {
		return nil
	}
	meals := make([]Meal, 0, len(day))
	for _, mt := range MealTypes {
		if meal, ok := day[mt]; ok {
			meals = append(meals, meal)
		}
	}
	return meals
}

// Today is the flat view of today's plan, computed on read from the
// date-keyed source of truth.
func (s *MealPlanStore) Today() []Meal {
	return s.MealsFor(FormatDateKey(s.now()))
}

// Dates returns the date keys that currently hold meals.
func (s *MealPlanStore) Dates() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dates := make([]string, 0, len(s.plans))
	for date := range s.plans {
		dates = append(dates, date)
	}
	return dates
}

// Clear drops every projected meal.
func (s *MealPlanStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans = make(map[string]map[MealType]Meal)
}

// planMealPayload is the wire shape of one meal in backend plan responses.
type planMealPayload struct {
	Date      string    `json:"date"`
	MealType  string    `json:"mealType"`
	MealID    string    `json:"mealId"`
	Title     string    `json:"title"`
	Nutrition Nutrition `json:"nutrition"`
	ImageURL  string    `json:"imageUrl"`
	Completed bool      `json:"completed"`
}

// ApplyServerPlan re-derives the projection from a backend plan payload,
// replacing the affected slots. Unknown meal types are skipped.
func (s *MealPlanStore) ApplyServerPlan(payload json.RawMessage) error {
	var plan struct {
		Meals []planMealPayload `json:"meals"`
	}
	if err := json.Unmarshal(payload, &plan); err != nil {
		return fmt.Errorf("failed to decode plan payload: %w", err)
	}

	for _, m := range plan.Meals {
		if !ValidMealType(m.MealType) || m.Date == "" {
			continue
		}
		s.SetMeal(m.Date, MealType(m.MealType), Meal{
			ID:        m.MealID,
			Title:     m.Title,
			Nutrition: m.Nutrition,
			ImageURL:  m.ImageURL,
			Completed: m.Completed,
		})
	}
	return nil
}

// Snapshot serializes the plan map for persistence. Derived views are not
// persisted.
func (s *MealPlanStore) Snapshot() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.Marshal(s.plans)
}

// Restore replaces the plan map from a snapshot.
func (s *MealPlanStore) Restore(data []byte) error {
	plans := make(map[string]map[MealType]Meal)
	if err := json.Unmarshal(data, &plans); err != nil {
		return fmt.Errorf("failed to decode meal plan snapshot: %w", err)
	}
	s.mu.Lock()
	s.plans = plans
	s.mu.Unlock()
	return nil
}
