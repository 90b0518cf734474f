package heightstage

import (
	"terraforge.ai/internal/terrain/gen"
	"terraforge.ai/internal/terrain/mathx"
)

// Smooth box-averages the height field. With Adaptive set the kernel
// shrinks from MaxKernel to MinKernel as height rises to MaxHeightThreshold.
type Smooth struct {
	Strength           float64
	KernelSize         int
	Adaptive           bool
	MinKernel          int
	MaxKernel          int
	MaxHeightThreshold float64
}

func (Smooth) Kind() string { return "smooth" }

func (s Smooth) kernelAt(h float64) int {
	if !s.Adaptive {
		return s.KernelSize
	}
	t := 0.0
	if s.MaxHeightThreshold != 0 {
		t = h / s.MaxHeightThreshold
	}
	return mathx.RoundToInt(mathx.Lerp(float64(s.MaxKernel), float64(s.MinKernel), t))
}

func (s Smooth) ModifyHeights(c *gen.Context, biome int) error {
	if biome != gen.Global {
		return gen.ConfigErrorf("smooth height stage cannot run per biome (biome %d)", biome)
	}
	src := c.Heights.Clone()
	res := src.Res
	return gen.ParallelRows(res, func(y0, y1 int) error {
		for y := y0; y < y1; y++ {
			for x := 0; x < res; x++ {
				k := s.kernelAt(src.At(x, y))
				avg := BoxAverage(src, x, y, k)
				c.Heights.Data[y*res+x] = mathx.Lerp(src.Data[y*res+x], avg, s.Strength)
			}
		}
		return nil
	})
}

// BoxAverage averages the in-bounds cells of a (2k+1)^2 window.
func BoxAverage(g *gen.FloatGrid, cx, cy, k int) float64 {
	if k < 0 {
		k = 0
	}
	sum := 0.0
	n := 0
	for y := max(cy-k, 0); y <= min(cy+k, g.Res-1); y++ {
		row := g.Data[y*g.Res:]
		for x := max(cx-k, 0); x <= min(cx+k, g.Res-1); x++ {
			sum += row[x]
			n++
		}
	}
	if n == 0 {
		return g.At(cx, cy)
	}
	return sum / float64(n)
}
