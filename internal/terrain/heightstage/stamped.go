package heightstage

import (
	"terraforge.ai/internal/terrain/gen"
	"terraforge.ai/internal/terrain/mathx"
	"terraforge.ai/internal/terrain/stamp"
)

// Point is a fixed height-map cell.
type Point struct {
	X int `yaml:"x" json:"x"`
	Y int `yaml:"y" json:"y"`
}

type Feature struct {
	Stamp  *stamp.Stamp
	Height float64
	Radius int
	Count  int
	// At replaces the random centres when non-empty.
	At []Point
}

// Features raises stamped bumps of Height world units above the average
// height under their footprint.
type Features struct {
	Strength float64
	Features []Feature
}

func (Features) Kind() string { return "features" }

func (s Features) ModifyHeights(c *gen.Context, biome int) error {
	res := c.Heights.Res
	sy := verticalScale(c)
	for _, f := range s.Features {
		centres := f.At
		if len(centres) == 0 {
			centres = make([]Point, 0, f.Count)
			for i := 0; i < f.Count; i++ {
				x := c.NextInt(f.Radius, res-f.Radius)
				y := c.NextInt(f.Radius, res-f.Radius)
				centres = append(centres, Point{X: x, Y: y})
			}
		}
		for _, p := range centres {
			if !c.InBiome(p.X, p.Y, biome) {
				continue
			}
			target := averageHeight(c, p.X, p.Y, f.Radius) + f.Height/sy
			applyStamp(c, biome, f.Stamp, p.X, p.Y, f.Radius, target, s.Strength)
		}
	}
	return nil
}

type Building struct {
	Stamp           *stamp.Stamp
	Prefab          string
	Radius          int
	Count           int
	HasHeightLimits bool
	MinHeight       float64
	MaxHeight       float64
	CanGoInWater    bool
	CanGoAboveWater bool
}

// Buildings levels stamped pads on a 2*radius candidate lattice and emits
// one placement per pad.
type Buildings struct {
	Strength  float64
	Buildings []Building
}

func (Buildings) Kind() string { return "buildings" }

// Validate rejects entries that can be placed neither in nor above water.
func (s Buildings) Validate() error {
	for i, b := range s.Buildings {
		if !b.CanGoInWater && !b.CanGoAboveWater {
			return gen.ConfigErrorf("building %d (%s) allows neither water nor above-water placement", i, b.Prefab)
		}
	}
	return nil
}

func (s Buildings) ModifyHeights(c *gen.Context, biome int) error {
	if err := s.Validate(); err != nil {
		return err
	}
	sy := verticalScale(c)
	water := c.Config.WaterHeight
	for _, b := range s.Buildings {
		spots := s.candidates(c, biome, b)
		for n := 0; n < b.Count && len(spots) > 0; n++ {
			i := c.NextInt(0, len(spots))
			p := spots[i]
			spots = append(spots[:i], spots[i+1:]...)

			target := averageHeight(c, p.X, p.Y, b.Radius)
			if !b.CanGoInWater {
				target = max(target, water/sy)
			}
			if b.HasHeightLimits {
				target = mathx.Clamp(target, b.MinHeight/sy, b.MaxHeight/sy)
			}
			applyStamp(c, biome, b.Stamp, p.X, p.Y, b.Radius, target, s.Strength)

			pos := c.WorldPosition(float64(p.X), float64(p.Y))
			if err := c.Emit(gen.NewPlacement(biome, s.Kind(), b.Prefab, pos, 0)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s Buildings) candidates(c *gen.Context, biome int, b Building) []Point {
	res := c.Heights.Res
	sy := verticalScale(c)
	water := c.Config.WaterHeight
	step := max(2*b.Radius, 1)
	var out []Point
	for y := b.Radius; y < res-b.Radius; y += step {
		for x := b.Radius; x < res-b.Radius; x += step {
			if !c.InBiome(x, y, biome) {
				continue
			}
			h := c.Heights.At(x, y) * sy
			if h < water && !b.CanGoInWater {
				continue
			}
			if h >= water && !b.CanGoAboveWater {
				continue
			}
			if b.HasHeightLimits && (h < b.MinHeight || h >= b.MaxHeight) {
				continue
			}
			out = append(out, Point{X: x, Y: y})
		}
	}
	return out
}

func averageHeight(c *gen.Context, cx, cy, r int) float64 {
	sum := 0.0
	n := 0
	for y := -r; y <= r; y++ {
		for x := -r; x <= r; x++ {
			sum += c.Heights.At(cx+x, cy+y)
			n++
		}
	}
	return sum / float64(n)
}

// applyStamp blends the footprint toward target, weighting each cell by
// the stamp pixel under it.
func applyStamp(c *gen.Context, biome int, st *stamp.Stamp, cx, cy, r int, target, strength float64) {
	span := float64(2 * r)
	for y := -r; y <= r; y++ {
		v := 0.5
		if span > 0 {
			v = mathx.Clamp01(float64(y+r) / span)
		}
		for x := -r; x <= r; x++ {
			wx, wy := cx+x, cy+y
			if !c.InBiome(wx, wy, biome) {
				continue
			}
			u := 0.5
			if span > 0 {
				u = mathx.Clamp01(float64(x+r) / span)
			}
			c.Heights.Blend(wx, wy, target, st.Sample(u, v)*strength)
		}
	}
}
