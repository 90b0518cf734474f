package heightstage

import (
	"math"

	"terraforge.ai/internal/terrain/curve"
	"terraforge.ai/internal/terrain/gen"
	"terraforge.ai/internal/terrain/mathx"
	"terraforge.ai/internal/terrain/noise"
)

// Islands raises radial mounds. Islands only add terrain: the proposed
// height is max(old, island).
type Islands struct {
	Strength           float64
	Count              int
	MinSize, MaxSize   float64
	MinHeight          float64
	MaxHeight          float64
	AngleNoiseScale    float64
	DistanceNoiseScale float64
	NoiseHeightDelta   float64
	Shape              curve.Curve
}

func (Islands) Kind() string { return "islands" }

func (s Islands) ModifyHeights(c *gen.Context, biome int) error {
	for i := 0; i < s.Count; i++ {
		s.place(c, biome)
	}
	return nil
}

func (s Islands) place(c *gen.Context, biome int) {
	res := c.Heights.Res
	sy := verticalScale(c)
	size := mathx.RoundToInt(c.NextFloat(s.MinSize, s.MaxSize) / horizontalScale(c))
	height := (c.NextFloat(s.MinHeight, s.MaxHeight) + c.Config.WaterHeight) / sy
	cx := c.NextInt(size, res-size)
	cy := c.NextInt(size, res-size)
	if size < 1 {
		return
	}

	for dy := -size; dy <= size; dy++ {
		y := cy + dy
		if y < 0 || y >= res {
			continue
		}
		for dx := -size; dx <= size; dx++ {
			x := cx + dx
			if x < 0 || x >= res || !c.InBiome(x, y, biome) {
				continue
			}
			dist := math.Sqrt(float64(dx*dx+dy*dy)) / float64(size)
			if dist > 1 {
				continue
			}
			angle := mathx.Clamp01((math.Atan2(float64(dy), float64(dx)) + math.Pi) / (2 * math.Pi))
			n := noise.Perlin(angle*s.AngleNoiseScale, dist*s.DistanceNoiseScale)
			h := height*s.Shape.Evaluate(dist) + (n-0.5)*2*s.NoiseHeightDelta/sy
			old := c.Heights.At(x, y)
			c.Heights.Blend(x, y, math.Max(old, h), s.Strength)
		}
	}
}
