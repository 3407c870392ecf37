package store

import (
	"encoding/json"
	"fmt"
	"math"
	"sync"
)

const defaultTargetCalories = 2000

// Totals is a macro sum over completed meals.
type Totals struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
}

// CalorieStore derives calorie and macro totals from the meal plan and the
// completion records. Only completed, populated slots count toward the
// totals.
type CalorieStore struct {
	mu              sync.RWMutex
	currentCalories float64
	targetCalories  float64
	macros          Totals
	mealNutrition   map[MealType]Nutrition
}

// NewCalorieStore creates a store with the default 2000 kcal target.
func NewCalorieStore() *CalorieStore {
	return &CalorieStore{
		targetCalories: defaultTargetCalories,
		mealNutrition:  make(map[MealType]Nutrition),
	}
}

// SetTargetCalories updates the daily target. Non-positive values fall back
// to the default.
func (s *CalorieStore) SetTargetCalories(target float64) {
	if target <= 0 {
		target = defaultTargetCalories
	}
	s.mu.Lock()
	s.targetCalories = target
	s.mu.Unlock()
}

// CalculateFromMeals recomputes the totals. A meal counts when it has
// content (a non-empty ID) and is completed either per the completion map
// or its own flag.
func (s *CalorieStore) CalculateFromMeals(meals []Meal, completions map[MealType]bool) Totals {
	var totals Totals
	nutrition := make(map[MealType]Nutrition)

	for _, meal := range meals {
		if meal.Type == "" || meal.ID == "" {
			continue
		}
		nutrition[meal.Type] = meal.Nutrition

		completed := meal.Completed || (completions != nil && completions[meal.Type])
		if !completed {
			continue
		}

		totals.Calories += float64(meal.Nutrition.Calories)
		totals.Protein += float64(meal.Nutrition.Protein)
		totals.Carbs += float64(meal.Nutrition.Carbs)
		totals.Fat += float64(meal.Nutrition.Fat)
	}

	s.mu.Lock()
	s.currentCalories = totals.Calories
	s.macros = Totals{Protein: totals.Protein, Carbs: totals.Carbs, Fat: totals.Fat}
	for mt, n := range nutrition {
		s.mealNutrition[mt] = n
	}
	s.mu.Unlock()

	return totals
}

// Current returns the derived calorie total.
func (s *CalorieStore) Current() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentCalories
}

// Target returns the daily target.
func (s *CalorieStore) Target() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.targetCalories
}

// Macros returns the derived macro totals.
func (s *CalorieStore) Macros() Totals {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.macros
}

// MealNutrition returns the last seen nutrition for a slot.
func (s *CalorieStore) MealNutrition(mealType MealType) (Nutrition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.mealNutrition[mealType]
	return n, ok
}

// Percentage is progress toward the target, capped at 100.
func (s *CalorieStore) Percentage() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.targetCalories == 0 {
		return 0
	}
	pct := math.Round(s.currentCalories / s.targetCalories * 100)
	if pct > 100 {
		pct = 100
	}
	return int(pct)
}

// Remaining is the calorie budget left for the day; negative when over.
func (s *CalorieStore) Remaining() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.targetCalories - s.currentCalories
}

// GoalReached reports whether the target has been met or exceeded.
func (s *CalorieStore) GoalReached() bool {
	return s.Remaining() <= 0
}

// calorieSnapshot is the persisted subset: the target survives sessions,
// derived totals are recomputed.
type calorieSnapshot struct {
	TargetCalories float64 `json:"targetCalories"`
}

// Snapshot persists the target only.
func (s *CalorieStore) Snapshot() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.Marshal(calorieSnapshot{TargetCalories: s.targetCalories})
}

// Restore loads the persisted target.
func (s *CalorieStore) Restore(data []byte) error {
	var snap calorieSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to decode calorie snapshot: %w", err)
	}
	s.SetTargetCalories(snap.TargetCalories)
	return nil
}
