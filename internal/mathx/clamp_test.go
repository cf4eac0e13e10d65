package mathx

import "testing"

func TestClamp(t *testing.T) {
	tests := []struct {
		v, lo, hi, want float64
	}{
		{0.5, -1, 1, 0.5},
		{2, -1, 1, 1},
		{-3, -1, 1, -1},
		{0, 1, -1, 0},
		{5, 1, -1, 1},
	}
	for _, tt := range tests {
		if got := Clamp(tt.v, tt.lo, tt.hi); got != tt.want {
			t.Errorf("Clamp(%v, %v, %v) = %v, want %v", tt.v, tt.lo, tt.hi, got, tt.want)
		}
	}
}

func TestBetween(t *testing.T) {
	if !Between(3, 5, 1) {
		t.Error("Between(3, 5, 1) = false")
	}
	if Between(6, 1, 5) {
		t.Error("Between(6, 1, 5) = true")
	}
}

func TestFract(t *testing.T) {
	tests := []struct {
		x, want float64
	}{
		{0, 0},
		{0.25, 0.25},
		{1.75, 0.75},
		{-0.25, 0.75},
		{-2, 0},
	}
	for _, tt := range tests {
		if got := Fract(tt.x); got != tt.want {
			t.Errorf("Fract(%v) = %v, want %v", tt.x, got, tt.want)
		}
	}
}
