package mathx

import "math"

func FloorDiv(a, b int) int {
	// b > 0
	q := a / b
	r := a % b
	if r < 0 {
		q--
	}
	return q
}

func CeilDiv(a, b int) int {
	// b > 0
	return -FloorDiv(-a, b)
}

func AbsInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func ClampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func Clamp01(v float64) float64 {
	return Clamp(v, 0, 1)
}

// Lerp clamps t to [0,1]: t <= 0 returns a and t >= 1 returns b exactly.
func Lerp(a, b, t float64) float64 {
	switch {
	case t <= 0:
		return a
	case t >= 1:
		return b
	}
	return a + (b-a)*t
}

func LerpUnclamped(a, b, t float64) float64 {
	return a + (b-a)*t
}

func InverseLerp(a, b, v float64) float64 {
	if a == b {
		return 0
	}
	return Clamp01((v - a) / (b - a))
}

// RoundToInt rounds half to even.
func RoundToInt(v float64) int {
	return int(math.RoundToEven(v))
}

func FloorToInt(v float64) int {
	return int(math.Floor(v))
}

func CeilToInt(v float64) int {
	return int(math.Ceil(v))
}

// Remap converts a cell index between grid resolutions by integer scaling.
func Remap(i, sourceRes, targetRes int) int {
	if targetRes <= 0 {
		return 0
	}
	return i * sourceRes / targetRes
}

func IsPowerOfTwo(v int) bool {
	return v > 0 && v&(v-1) == 0
}
