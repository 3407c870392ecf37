package store

import "testing"

func dayMeals() []Meal {
	return []Meal{
		{ID: "m1", Type: Breakfast, Title: "Oats", Nutrition: Nutrition{Calories: 300, Protein: 10, Carbs: 50, Fat: 5}},
		{ID: "m2", Type: Lunch, Title: "Salad", Nutrition: Nutrition{Calories: 500, Protein: 30, Carbs: 20, Fat: 25}},
	}
}

func TestCalorieTotalsDerivedFromCompletions(t *testing.T) {
	s := NewCalorieStore()

	completions := map[MealType]bool{Breakfast: true, Lunch: false}
	totals := s.CalculateFromMeals(dayMeals(), completions)
	if totals.Calories != 300 {
		t.Fatalf("Expected 300 calories with only breakfast completed, got %v", totals.Calories)
	}

	// Toggling lunch changes the derived total on recompute.
	completions[Lunch] = true
	totals = s.CalculateFromMeals(dayMeals(), completions)
	if totals.Calories != 800 {
		t.Fatalf("Expected 800 calories after completing lunch, got %v", totals.Calories)
	}
	if s.Current() != 800 {
		t.Errorf("Expected Current to track the recompute, got %v", s.Current())
	}

	macros := s.Macros()
	if macros.Protein != 40 || macros.Carbs != 70 || macros.Fat != 30 {
		t.Errorf("Unexpected macros: %+v", macros)
	}
}

func TestCalorieIgnoresEmptySlots(t *testing.T) {
	s := NewCalorieStore()
	meals := append(dayMeals(), Meal{Type: Dinner, Completed: true, Nutrition: Nutrition{Calories: 999}})

	totals := s.CalculateFromMeals(meals, map[MealType]bool{Breakfast: true})
	if totals.Calories != 300 {
		t.Errorf("Expected empty-ID slot to be skipped, got %v calories", totals.Calories)
	}
}

func TestCalorieMealOwnFlagCounts(t *testing.T) {
	s := NewCalorieStore()
	meals := []Meal{{ID: "m1", Type: Dinner, Completed: true, Nutrition: Nutrition{Calories: 600}}}

	totals := s.CalculateFromMeals(meals, nil)
	if totals.Calories != 600 {
		t.Errorf("Expected the meal's own completed flag to count, got %v", totals.Calories)
	}
}

func TestCaloriePercentageAndRemaining(t *testing.T) {
	s := NewCalorieStore()
	s.SetTargetCalories(1000)
	s.CalculateFromMeals([]Meal{{ID: "m1", Type: Lunch, Completed: true, Nutrition: Nutrition{Calories: 1200}}}, nil)

	if pct := s.Percentage(); pct != 100 {
		t.Errorf("Expected percentage capped at 100, got %d", pct)
	}
	if rem := s.Remaining(); rem != -200 {
		t.Errorf("Expected -200 remaining, got %v", rem)
	}
	if !s.GoalReached() {
		t.Error("Expected goal reached")
	}
}

func TestCalorieTargetFallback(t *testing.T) {
	s := NewCalorieStore()
	s.SetTargetCalories(-5)
	if s.Target() != defaultTargetCalories {
		t.Errorf("Expected default target for non-positive input, got %v", s.Target())
	}
}

func TestCalorieSnapshotPersistsTargetOnly(t *testing.T) {
	s := NewCalorieStore()
	s.SetTargetCalories(1800)
	s.CalculateFromMeals(dayMeals(), map[MealType]bool{Breakfast: true, Lunch: true})

	data, err := s.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	restored := NewCalorieStore()
	if err := restored.Restore(data); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if restored.Target() != 1800 {
		t.Errorf("Expected target 1800 after restore, got %v", restored.Target())
	}
	if restored.Current() != 0 {
		t.Errorf("Expected derived total to reset, got %v", restored.Current())
	}
}
