package biomegen

import (
	"terraforge.ai/internal/terrain/gen"
	"terraforge.ai/internal/terrain/mathx"
	"terraforge.ai/internal/terrain/noise"
)

const (
	DefaultVoronoiCells     = 20
	DefaultResampleDistance = 20
)

// Voronoi assigns each cell the biome of its nearest jittered seed point
// and then warps cell boundaries with Perlin noise.
type Voronoi struct {
	NumCells         int
	ResampleDistance float64
	NoiseScale       float64
}

func (Voronoi) Kind() string { return "voronoi" }

type seedPoint struct {
	x, y  int
	biome uint8
}

func (v Voronoi) cells() int {
	if v.NumCells <= 0 {
		return DefaultVoronoiCells
	}
	return v.NumCells
}

func (v Voronoi) GenerateBiomes(c *gen.Context) error {
	n := c.NumBiomes()
	res := c.Dims.MapResolution
	if n == 0 || res == 0 {
		return nil
	}
	cells := v.cells()
	size := mathx.CeilDiv(res, cells)
	seeds := v.placeSeeds(c, cells, size, n)

	base := gen.NewBiomeMap(res)
	for y := 0; y < res; y++ {
		for x := 0; x < res; x++ {
			base.Set(x, y, seeds[closestSeed(x, y, cells, size, seeds)].biome)
		}
	}
	c.CaptureBiomeMap("voronoi_base", base)

	scale := v.NoiseScale
	if scale == 0 {
		scale = 1
	}
	for y := 0; y < res; y++ {
		for x := 0; x < res; x++ {
			// One noise value warps both axes.
			warp := 2 * (noise.Perlin(float64(x)/float64(res)*scale, float64(y)/float64(res)*scale) - 0.5)
			sx := mathx.ClampInt(mathx.RoundToInt(float64(x)+warp*v.ResampleDistance), 0, res-1)
			sy := mathx.ClampInt(mathx.RoundToInt(float64(y)+warp*v.ResampleDistance), 0, res-1)
			c.Biomes.Set(x, y, base.At(sx, sy))
			c.Strengths.Set(x, y, 1)
		}
	}
	c.CaptureBiomeMap("voronoi_final", c.Biomes)
	return nil
}

func (v Voronoi) placeSeeds(c *gen.Context, cells, size, numBiomes int) []seedPoint {
	seeds := make([]seedPoint, cells*cells)
	for cy := 0; cy < cells; cy++ {
		centerY := mathx.RoundToInt((float64(cy) + 0.5) * float64(size))
		for cx := 0; cx < cells; cx++ {
			centerX := mathx.RoundToInt((float64(cx) + 0.5) * float64(size))
			s := &seeds[cx+cy*cells]
			s.x = centerX + c.NextInt(-size/2, size/2)
			s.y = centerY + c.NextInt(-size/2, size/2)
			s.biome = uint8(c.NextInt(0, numBiomes))
		}
	}
	return seeds
}

// closestSeed searches the cell containing (x, y) and its 8 neighbours.
func closestSeed(x, y, cells, size int, seeds []seedPoint) int {
	cx, cy := x/size, y/size
	best := cx + cy*cells
	bestDist := distSq(seeds[best], x, y)
	for _, off := range neighbourOffsets {
		wx, wy := cx+off.dx, cy+off.dy
		if wx < 0 || wy < 0 || wx >= cells || wy >= cells {
			continue
		}
		i := wx + wy*cells
		if d := distSq(seeds[i], x, y); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func distSq(s seedPoint, x, y int) int {
	dx, dy := s.x-x, s.y-y
	return dx*dx + dy*dy
}
