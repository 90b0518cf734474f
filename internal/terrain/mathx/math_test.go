package mathx

import "testing"

func TestRoundToInt_HalfToEven(t *testing.T) {
	cases := []struct {
		in   float64
		want int
	}{
		{in: 0.5, want: 0},
		{in: 1.5, want: 2},
		{in: 2.5, want: 2},
		{in: -0.5, want: 0},
		{in: 2.51, want: 3},
		{in: -1.2, want: -1},
	}
	for _, c := range cases {
		if got := RoundToInt(c.in); got != c.want {
			t.Fatalf("RoundToInt(%v)=%d want %d", c.in, got, c.want)
		}
	}
}

func TestLerp_ClampsStrength(t *testing.T) {
	if got := Lerp(2, 10, 0); got != 2 {
		t.Fatalf("Lerp t=0: got %v", got)
	}
	if got := Lerp(2, 10, 1); got != 10 {
		t.Fatalf("Lerp t=1: got %v", got)
	}
	if got := Lerp(2, 10, 3); got != 10 {
		t.Fatalf("Lerp t>1 should clamp: got %v", got)
	}
	if got := Lerp(2, 10, -1); got != 2 {
		t.Fatalf("Lerp t<0 should clamp: got %v", got)
	}
}

func TestRemap_IntegerScaling(t *testing.T) {
	if got := Remap(7, 64, 32); got != 14 {
		t.Fatalf("Remap(7,64,32)=%d want 14", got)
	}
	if got := Remap(7, 32, 64); got != 3 {
		t.Fatalf("Remap(7,32,64)=%d want 3", got)
	}
	if got := Remap(63, 64, 64); got != 63 {
		t.Fatalf("Remap identity: got %d", got)
	}
}

func TestFloorAndCeilDiv(t *testing.T) {
	if FloorDiv(-1, 16) != -1 || FloorDiv(15, 16) != 0 {
		t.Fatalf("FloorDiv mismatch")
	}
	if CeilDiv(64, 20) != 4 || CeilDiv(60, 20) != 3 {
		t.Fatalf("CeilDiv mismatch")
	}
}

func TestIsPowerOfTwo(t *testing.T) {
	for _, v := range []int{1, 2, 64, 512} {
		if !IsPowerOfTwo(v) {
			t.Fatalf("IsPowerOfTwo(%d)=false", v)
		}
	}
	for _, v := range []int{0, -4, 3, 513} {
		if IsPowerOfTwo(v) {
			t.Fatalf("IsPowerOfTwo(%d)=true", v)
		}
	}
}
