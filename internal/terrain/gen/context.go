package gen

import (
	"log"
	"math/rand/v2"

	"github.com/cespare/xxhash/v2"
	"github.com/go-gl/mathgl/mgl64"

	"terraforge.ai/internal/terrain/mathx"
)

// Dimensions describes the target surface. MapResolution is the side of
// the height and biome grids.
type Dimensions struct {
	MapResolution      int        `json:"map_resolution"`
	HeightmapScale     mgl64.Vec3 `json:"heightmap_scale"`
	AlphaResolution    int        `json:"alpha_resolution"`
	AlphaLayers        int        `json:"alpha_layers"`
	DetailResolution   int        `json:"detail_resolution"`
	MaxDetailsPerPatch int        `json:"max_details_per_patch"`
}

// Context owns the random stream and every grid of a single run. Stages
// borrow it for the duration of one call and must not keep references to
// its grids.
type Context struct {
	Seed   int64
	Dims   Dimensions
	Config *Config

	Heights   *FloatGrid
	Biomes    *BiomeMap
	Strengths *FloatGrid
	Slopes    *FloatGrid
	Weights   *WeightMap
	Densities *DensityMap

	Textures *Registry
	Details  *Registry

	Sink   Sink
	Logger *log.Logger
	// OnBiomeMap receives intermediate biome maps (low resolution ooze
	// grid, Voronoi base map) when set.
	OnBiomeMap func(name string, m *BiomeMap)

	rng        *rand.Rand
	draws      uint64
	placed     int
	placedHash *xxhash.Digest
}

func NewContext(seed int64, dims Dimensions, cfg *Config) *Context {
	if cfg == nil {
		cfg = &Config{}
	}
	res := dims.MapResolution
	return &Context{
		Seed:       seed,
		Dims:       dims,
		Config:     cfg,
		Heights:    NewFloatGrid(res),
		Biomes:     NewBiomeMap(res),
		Strengths:  NewFloatGrid(res),
		Textures:   NewRegistry(),
		Details:    NewRegistry(),
		rng:        rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15)),
		placedHash: xxhash.New(),
	}
}

// NextInt returns a value in [min, max). It returns min when max <= min.
func (c *Context) NextInt(min, max int) int {
	c.draws++
	if max <= min {
		return min
	}
	return min + c.rng.IntN(max-min)
}

// NextFloat returns lerp(min, max, u) for a uniform u in [0,1).
func (c *Context) NextFloat(min, max float64) float64 {
	c.draws++
	return mathx.LerpUnclamped(min, max, c.rng.Float64())
}

// Draws reports how many values have been taken from the stream.
func (c *Context) Draws() uint64 { return c.draws }

func (c *Context) NumBiomes() int { return len(c.Config.Biomes) }

// InBiome reports whether map cell (x, y) passes the biome filter. A
// negative biome disables the filter.
func (c *Context) InBiome(x, y, biome int) bool {
	if biome < 0 {
		return true
	}
	return int(c.Biomes.At(x, y)) == biome
}

// InBiomeAt applies the biome filter to cell (x, y) of a grid with side res.
func (c *Context) InBiomeAt(x, y, res, biome int) bool {
	if biome < 0 {
		return true
	}
	mr := c.Dims.MapResolution
	return c.InBiome(mathx.Remap(x, mr, res), mathx.Remap(y, mr, res), biome)
}

// HeightAt reads the height field at cell (x, y) of a grid with side res.
func (c *Context) HeightAt(x, y, res int) float64 {
	mr := c.Dims.MapResolution
	return c.Heights.At(mathx.Remap(x, mr, res), mathx.Remap(y, mr, res))
}

// WaterLevel is the configured water height in normalized height units.
func (c *Context) WaterLevel() float64 {
	if c.Dims.HeightmapScale.Y() == 0 {
		return 0
	}
	return c.Config.WaterHeight / c.Dims.HeightmapScale.Y()
}

// WorldPosition maps a height-map cell to world space.
func (c *Context) WorldPosition(x, y float64) mgl64.Vec3 {
	s := c.Dims.HeightmapScale
	h := c.Heights.Sample(x, y)
	return mgl64.Vec3{x * s.X(), h * s.Y(), y * s.Z()}
}

// Emit forwards a placement to the sink and folds it into the placement
// digest.
func (c *Context) Emit(p Placement) error {
	c.placed++
	p.hashInto(c.placedHash)
	if c.Sink == nil {
		return nil
	}
	return c.Sink.Place(p)
}

// Placed returns the number of placements emitted so far.
func (c *Context) Placed() int { return c.placed }

// CaptureBiomeMap hands an intermediate biome map to OnBiomeMap.
func (c *Context) CaptureBiomeMap(name string, m *BiomeMap) {
	if c.OnBiomeMap != nil {
		c.OnBiomeMap(name, m)
	}
}

// Logf writes to Logger when one is attached.
func (c *Context) Logf(format string, args ...any) {
	if c.Logger != nil {
		c.Logger.Printf(format, args...)
	}
}
