// Package heightstage holds the height field stages. Every write blends
// the old value toward the proposed one by the stage strength.
package heightstage

import (
	"terraforge.ai/internal/terrain/gen"
	"terraforge.ai/internal/terrain/noise"
)

// NoisePass adds (perlin*2-1)*HeightDelta world units per cell.
type NoisePass struct {
	HeightDelta float64
	NoiseScale  float64
}

type Noise struct {
	Strength float64
	Passes   []NoisePass
}

func (Noise) Kind() string { return "noise" }

func (s Noise) ModifyHeights(c *gen.Context, biome int) error {
	res := c.Heights.Res
	sy := verticalScale(c)
	for _, pass := range s.Passes {
		for y := 0; y < res; y++ {
			for x := 0; x < res; x++ {
				if !c.InBiome(x, y, biome) {
					continue
				}
				n := noise.Perlin(float64(x)*pass.NoiseScale, float64(y)*pass.NoiseScale)*2 - 1
				old := c.Heights.At(x, y)
				c.Heights.Blend(x, y, old+n*pass.HeightDelta/sy, s.Strength)
			}
		}
	}
	return nil
}

// Offset raises every cell by Amount world units.
type Offset struct {
	Strength float64
	Amount   float64
}

func (Offset) Kind() string { return "offset" }

func (s Offset) ModifyHeights(c *gen.Context, biome int) error {
	delta := s.Amount / verticalScale(c)
	forEachCell(c, biome, func(x, y int, old float64) {
		c.Heights.Blend(x, y, old+delta, s.Strength)
	})
	return nil
}

// RandomDelta adds a uniform draw from [-HeightDelta, HeightDelta] world
// units to each cell. One draw per filtered cell, in row-major order.
type RandomDelta struct {
	Strength    float64
	HeightDelta float64
}

func (RandomDelta) Kind() string { return "random_delta" }

func (s RandomDelta) ModifyHeights(c *gen.Context, biome int) error {
	sy := verticalScale(c)
	forEachCell(c, biome, func(x, y int, old float64) {
		d := c.NextFloat(-s.HeightDelta, s.HeightDelta) / sy
		c.Heights.Blend(x, y, old+d, s.Strength)
	})
	return nil
}

// SetValue moves cells toward an absolute world height.
type SetValue struct {
	Strength     float64
	TargetHeight float64
}

func (SetValue) Kind() string { return "set_value" }

func (s SetValue) ModifyHeights(c *gen.Context, biome int) error {
	target := s.TargetHeight / verticalScale(c)
	forEachCell(c, biome, func(x, y int, _ float64) {
		c.Heights.Blend(x, y, target, s.Strength)
	})
	return nil
}

func forEachCell(c *gen.Context, biome int, fn func(x, y int, old float64)) {
	res := c.Heights.Res
	for y := 0; y < res; y++ {
		for x := 0; x < res; x++ {
			if c.InBiome(x, y, biome) {
				fn(x, y, c.Heights.At(x, y))
			}
		}
	}
}

func verticalScale(c *gen.Context) float64 {
	if sy := c.Dims.HeightmapScale.Y(); sy != 0 {
		return sy
	}
	return 1
}

func horizontalScale(c *gen.Context) float64 {
	if sx := c.Dims.HeightmapScale.X(); sx != 0 {
		return sx
	}
	return 1
}
