package store

import (
	"encoding/json"
	"testing"
)

func TestAmountDecodesMixedTypes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Amount
	}{
		{"number", `42.5`, 42.5},
		{"numeric string", `"300"`, 300},
		{"garbage string", `"lots"`, 0},
		{"null", `null`, 0},
		{"object", `{"value":1}`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var a Amount
			if err := json.Unmarshal([]byte(tt.in), &a); err != nil {
				t.Fatalf("Unmarshal(%s) failed: %v", tt.in, err)
			}
			if a != tt.want {
				t.Errorf("Unmarshal(%s) = %v, want %v", tt.in, a, tt.want)
			}
		})
	}
}

func TestValidMealType(t *testing.T) {
	for _, mt := range MealTypes {
		if !ValidMealType(string(mt)) {
			t.Errorf("Expected %q to be valid", mt)
		}
	}
	if ValidMealType("brunch") {
		t.Error("Expected brunch to be invalid")
	}
}
