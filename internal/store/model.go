// Package store holds the denormalized, UI-ready projections of server
// data: the meal plan, completion records, calorie totals, pantry items and
// chatbot sessions. Every store tolerates being stale, evicted or reset; the
// backend is the system of record.
package store

import (
	"encoding/json"
	"strconv"
	"time"
)

// MealType identifies a meal slot.
type MealType string

const (
	Breakfast MealType = "breakfast"
	Lunch     MealType = "lunch"
	Dinner    MealType = "dinner"
	Snack     MealType = "snack"
)

// MealTypes is the canonical slot order for a day.
var MealTypes = []MealType{Breakfast, Lunch, Dinner, Snack}

// ValidMealType reports whether s names a known slot.
func ValidMealType(s string) bool {
	for _, mt := range MealTypes {
		if MealType(s) == mt {
			return true
		}
	}
	return false
}

// Amount is a nutrition quantity. The backend is inconsistent about numeric
// types, so it decodes numbers, numeric strings, and anything else as zero
// rather than failing the whole payload.
type Amount float64

// UnmarshalJSON implements defensive numeric parsing.
func (a *Amount) UnmarshalJSON(data []byte) error {
	*a = 0

	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*a = Amount(n)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if parsed, err := strconv.ParseFloat(s, 64); err == nil {
			*a = Amount(parsed)
		}
	}
	return nil
}

// Nutrition holds the macro breakdown of one meal.
type Nutrition struct {
	Calories Amount `json:"calories"`
	Protein  Amount `json:"protein"`
	Carbs    Amount `json:"carbs"`
	Fat      Amount `json:"fat"`
}

// Meal is one populated slot in a meal plan.
type Meal struct {
	ID        string    `json:"id"`
	Type      MealType  `json:"type"`
	Title     string    `json:"title"`
	Nutrition Nutrition `json:"nutrition"`
	ImageURL  string    `json:"imageUrl,omitempty"`
	Completed bool      `json:"completed"`
}

// FormatDateKey renders the canonical YYYY-MM-DD key for a date.
func FormatDateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// CompletionKey builds the `${dateKey}-${mealType}` key for a completion
// record.
func CompletionKey(dateKey string, mealType MealType) string {
	return dateKey + "-" + string(mealType)
}
