// Package place scatters prefabs over biome cells and defines the
// placement sink the host implements.
package place

import (
	"github.com/go-gl/mathgl/mgl64"

	"terraforge.ai/internal/terrain/gen"
	"terraforge.ai/internal/terrain/mathx"
	"terraforge.ai/internal/terrain/noise"
)

// Record is one emitted placement.
type Record = gen.Placement

// Sink receives records in emission order.
type Sink = gen.Sink

// Clearer is implemented by sinks that can drop everything placed by an
// earlier run.
type Clearer interface {
	Clear() error
}

const (
	DefaultTargetDensity   = 0.1
	DefaultMaxSpawnCount   = 1000
	DefaultMaxInvalidSkips = 10
	DefaultMaxJitter       = 0.15
)

// Entry is one placeable object family. Heights are world units.
type Entry struct {
	Prefabs         []string
	Weighting       float64
	HasHeightLimits bool
	MinHeight       float64
	MaxHeight       float64
	CanGoInWater    bool
	CanGoAboveWater bool
}

func (e Entry) accepts(height, water float64) bool {
	if height < water && !e.CanGoInWater {
		return false
	}
	if height >= water && !e.CanGoAboveWater {
		return false
	}
	if e.HasHeightLimits && (height < e.MinHeight || height >= e.MaxHeight) {
		return false
	}
	return true
}

// Settings is shared by every placer variant.
type Settings struct {
	TargetDensity   float64
	MaxSpawnCount   int
	MaxInvalidSkips int // <= 0 uses DefaultMaxInvalidSkips
	MaxJitter       float64
	Entries         []Entry
}

// Validate fails when an entry can be placed neither in nor above water.
func (s Settings) Validate() error {
	for i, e := range s.Entries {
		if !e.CanGoInWater && !e.CanGoAboveWater {
			return gen.ConfigErrorf("placement entry %d %v allows neither water nor above-water placement", i, e.Prefabs)
		}
	}
	return nil
}

// NormalizedWeightings returns weighting / sum for each entry. All zeros
// when no entry has a positive weighting.
func NormalizedWeightings(entries []Entry) []float64 {
	out := make([]float64, len(entries))
	sum := 0.0
	for _, e := range entries {
		sum += e.Weighting
	}
	if sum <= 0 {
		return out
	}
	for i, e := range entries {
		out[i] = e.Weighting / sum
	}
	return out
}

// TargetCount is floor(weight * min(maxSpawn, candidates*density)).
func TargetCount(weight float64, maxSpawn, candidates int, density float64) int {
	base := min(float64(maxSpawn), float64(candidates)*density)
	return mathx.FloorToInt(weight * base)
}

// spawn runs the rejection sampler over a shared candidate pool. Accepted
// candidates leave the pool, so one cell is never used twice.
func (s Settings) spawn(c *gen.Context, biome int, source string, pool []int) error {
	if err := s.Validate(); err != nil {
		return err
	}
	res := c.Heights.Res
	scale := c.Dims.HeightmapScale
	water := c.Config.WaterHeight
	weights := NormalizedWeightings(s.Entries)
	maxSkips := s.MaxInvalidSkips
	if maxSkips <= 0 {
		maxSkips = DefaultMaxInvalidSkips
	}

	for i, e := range s.Entries {
		target := TargetCount(weights[i], s.MaxSpawnCount, len(pool), s.TargetDensity)
		skips := 0
		for placed := 0; placed < target && len(pool) > 0; {
			pick := c.NextInt(0, len(pool))
			cell := pool[pick]
			x, y := cell%res, cell/res
			h := c.Heights.At(x, y) * scale.Y()
			if !e.accepts(h, water) {
				skips++
				if skips >= maxSkips {
					c.Logf("place: %s biome=%d entry=%d stopped after %d invalid picks (%d/%d placed)",
						source, biome, i, skips, placed, target)
					break
				}
				continue
			}
			skips = 0
			pool = append(pool[:pick], pool[pick+1:]...)

			prefab := ""
			if len(e.Prefabs) > 0 {
				prefab = e.Prefabs[c.NextInt(0, len(e.Prefabs))]
			}
			yaw := c.NextFloat(0, 360)
			jx := c.NextFloat(-s.MaxJitter, s.MaxJitter)
			jz := c.NextFloat(-s.MaxJitter, s.MaxJitter)
			pos := mgl64.Vec3{float64(x)*scale.X() + jx, h, float64(y)*scale.Z() + jz}
			if err := c.Emit(gen.NewPlacement(biome, source, prefab, pos, yaw)); err != nil {
				return err
			}
			placed++
		}
	}
	return nil
}

// Uniform draws from every cell of the biome.
type Uniform struct {
	Settings
}

func (Uniform) Kind() string { return "uniform" }

func (p Uniform) PlaceObjects(c *gen.Context, biome int) error {
	return p.spawn(c, biome, p.Kind(), candidates(c, biome, nil))
}

// NoiseFiltered keeps only biome cells whose Perlin value at
// (x*ScaleX, y*ScaleY) reaches Threshold.
type NoiseFiltered struct {
	Settings
	ScaleX    float64
	ScaleY    float64
	Threshold float64
}

func (NoiseFiltered) Kind() string { return "noise_filtered" }

func (p NoiseFiltered) PlaceObjects(c *gen.Context, biome int) error {
	keep := func(x, y int) bool {
		return noise.Perlin(float64(x)*p.ScaleX, float64(y)*p.ScaleY) >= p.Threshold
	}
	return p.spawn(c, biome, p.Kind(), candidates(c, biome, keep))
}

// candidates lists biome cells in row-major order as y*res+x.
func candidates(c *gen.Context, biome int, keep func(x, y int) bool) []int {
	res := c.Heights.Res
	out := make([]int, 0, res*res/10)
	for y := 0; y < res; y++ {
		for x := 0; x < res; x++ {
			if !c.InBiome(x, y, biome) {
				continue
			}
			if keep != nil && !keep(x, y) {
				continue
			}
			out = append(out, y*res+x)
		}
	}
	return out
}
