package flight

import (
	"math"
	"testing"
)

func TestWindowRunningSum(t *testing.T) {
	var w window

	steps := []struct {
		push float64
		sum  float64
	}{
		{5, 5},
		{5, 10},
		{5, 15},
		{20, 30},   // evicts the first 5
		{20, 45},   // evicts the second 5
		{-60, -20}, // evicts the third 5
	}
	for i, s := range steps {
		w.push(s.push)
		if math.Abs(w.sum-s.sum) > 1e-12 {
			t.Fatalf("step %d: sum = %v, want %v", i, w.sum, s.sum)
		}
	}
}

func TestWindowEvictsOldest(t *testing.T) {
	var w window
	for _, v := range []float64{1, 2, 3, 4, 5} {
		w.push(v)
	}
	// Window now holds 3, 4, 5.
	if w.sum != 12 {
		t.Errorf("sum = %v, want 12", w.sum)
	}
	if w.n != windowSize {
		t.Errorf("n = %d, want %d", w.n, windowSize)
	}
}
