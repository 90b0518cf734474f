package curve

import (
	"math"
	"testing"
)

func TestEvaluate_LinearAndClamped(t *testing.T) {
	c := Curve{Keys: []Key{{T: 0, V: 0}, {T: 0.5, V: 1}, {T: 1, V: 0}}}
	cases := []struct {
		in   float64
		want float64
	}{
		{in: -1, want: 0},
		{in: 0, want: 0},
		{in: 0.25, want: 0.5},
		{in: 0.5, want: 1},
		{in: 0.75, want: 0.5},
		{in: 2, want: 0},
	}
	for _, tc := range cases {
		if got := c.Evaluate(tc.in); math.Abs(got-tc.want) > 1e-12 {
			t.Fatalf("Evaluate(%v)=%v want %v", tc.in, got, tc.want)
		}
	}
}

func TestEvaluate_SmoothKeepsEndpoints(t *testing.T) {
	c := Linear(0, 1)
	c.Smooth = true
	if c.Evaluate(0) != 0 || c.Evaluate(1) != 1 {
		t.Fatalf("smooth curve endpoints moved")
	}
	if got := c.Evaluate(0.25); got >= 0.25 {
		t.Fatalf("smoothstep should ease in: got %v", got)
	}
}

func TestEvaluate_EmptyAndConstant(t *testing.T) {
	if (Curve{}).Evaluate(0.3) != 0 {
		t.Fatalf("empty curve should evaluate to 0")
	}
	if Constant(0.7).Evaluate(0.3) != 0.7 {
		t.Fatalf("constant curve mismatch")
	}
}

func TestNormalize_SortsKeys(t *testing.T) {
	c := Curve{Keys: []Key{{T: 1, V: 2}, {T: 0, V: 1}}}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected unsorted curve to fail validation")
	}
	c.Normalize()
	if err := c.Validate(); err != nil {
		t.Fatalf("validate after normalize: %v", err)
	}
	if c.Evaluate(0) != 1 {
		t.Fatalf("unexpected value after normalize")
	}
}
