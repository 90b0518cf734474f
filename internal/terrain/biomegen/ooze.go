// Package biomegen fills the biome index and strength grids.
package biomegen

import (
	"math"
	"slices"

	"terraforge.ai/internal/terrain/gen"
	"terraforge.ai/internal/terrain/mathx"
)

const (
	DefaultSeedDensity    = 0.1
	DefaultOozeResolution = 64
)

type offset struct{ dx, dy int }

// Fixed traversal order; draw order depends on it.
var neighbourOffsets = [8]offset{
	{0, 1}, {0, -1}, {1, 0}, {-1, 0},
	{1, 1}, {-1, -1}, {1, -1}, {-1, 1},
}

func (o offset) magnitude() float64 {
	return math.Sqrt(float64(o.dx*o.dx + o.dy*o.dy))
}

// Ooze grows weighted biome blobs on a low resolution grid by breadth-first
// diffusion and upsamples the result to the map resolution.
type Ooze struct {
	SeedDensity float64
	Resolution  int
}

func (Ooze) Kind() string { return "ooze" }

func (o Ooze) lowResolution(mapRes int) int {
	res := o.Resolution
	if res <= 0 {
		res = DefaultOozeResolution
	}
	if res > mapRes {
		res = mapRes
	}
	return res
}

// SeedCount is floor(res^2 * density).
func SeedCount(res int, density float64) int {
	return mathx.FloorToInt(float64(res*res) * density)
}

// AllocateSeeds splits total seed points across biomes in proportion to
// their weightings. Shares are rounded half-up at cumulative boundaries in
// biome order, so the counts always add up to total when any weighting is
// positive.
func AllocateSeeds(total int, weightings []float64) []int {
	out := make([]int, len(weightings))
	sum := 0.0
	for _, w := range weightings {
		if w > 0 {
			sum += w
		}
	}
	if sum <= 0 || total <= 0 {
		return out
	}
	cum := 0.0
	prev := 0
	for i, w := range weightings {
		if w > 0 {
			cum += w
		}
		next := int(math.Floor(float64(total)*cum/sum + 0.5))
		out[i] = next - prev
		prev = next
	}
	return out
}

func (o Ooze) GenerateBiomes(c *gen.Context) error {
	n := c.NumBiomes()
	if n == 0 {
		return nil
	}
	res := o.lowResolution(c.Dims.MapResolution)
	if res <= 0 {
		return nil
	}
	low := gen.NewBiomeMap(res)
	lowStrength := gen.NewFloatGrid(res)

	weightings := make([]float64, n)
	for i, b := range c.Config.Biomes {
		weightings[i] = b.Weighting
	}
	counts := AllocateSeeds(SeedCount(res, o.SeedDensity), weightings)
	slots := make([]uint8, 0, SeedCount(res, o.SeedDensity))
	for biome, count := range counts {
		for i := 0; i < count; i++ {
			slots = append(slots, uint8(biome))
		}
	}

	g := newGrower(c, low, lowStrength)
	for len(slots) > 0 {
		i := c.NextInt(0, len(slots))
		biome := slots[i]
		slots = slices.Delete(slots, i, i+1)
		g.grow(biome, c.Config.Biomes[biome])
	}
	c.CaptureBiomeMap("ooze_lowres", low)

	upsample(low, lowStrength, c.Biomes, c.Strengths)
	return nil
}

type grower struct {
	ctx       *gen.Context
	res       int
	biomes    *gen.BiomeMap
	strengths *gen.FloatGrid
	occupied  []bool
	free      *freeCells
	// scheduled[i] == stamp marks cells enqueued by the current grow.
	scheduled []uint32
	stamp     uint32
	target    []float64
	queue     []int
}

func newGrower(c *gen.Context, biomes *gen.BiomeMap, strengths *gen.FloatGrid) *grower {
	n := biomes.Res * biomes.Res
	return &grower{
		ctx:       c,
		res:       biomes.Res,
		biomes:    biomes,
		strengths: strengths,
		occupied:  make([]bool, n),
		free:      newFreeCells(n),
		scheduled: make([]uint32, n),
		target:    make([]float64, n),
	}
}

// spawnCell draws uniformly from the unoccupied cells in row-major order,
// or from the whole grid once every cell is taken.
func (g *grower) spawnCell() int {
	if n := g.free.Len(); n > 0 {
		return g.free.Nth(g.ctx.NextInt(0, n))
	}
	x := g.ctx.NextInt(0, g.res)
	y := g.ctx.NextInt(0, g.res)
	return y*g.res + x
}

func (g *grower) occupy(p int) {
	if !g.occupied[p] {
		g.occupied[p] = true
		g.free.Remove(p)
	}
}

// grow runs one breadth-first diffusion. Every cell is scheduled at most
// once, so it visits at most res^2 cells.
func (g *grower) grow(biome uint8, def gen.Biome) {
	start := g.spawnCell()
	intensity := g.ctx.NextFloat(def.MinIntensity, def.MaxIntensity)

	g.stamp++
	g.queue = append(g.queue[:0], start)
	g.scheduled[start] = g.stamp
	g.target[start] = intensity

	for head := 0; head < len(g.queue); head++ {
		p := g.queue[head]
		g.biomes.Data[p] = biome
		g.strengths.Data[p] = g.target[p]
		g.occupy(p)

		px, py := p%g.res, p/g.res
		for _, off := range neighbourOffsets {
			nx, ny := px+off.dx, py+off.dy
			if nx < 0 || ny < 0 || nx >= g.res || ny >= g.res {
				continue
			}
			np := ny*g.res + nx
			if g.scheduled[np] == g.stamp {
				continue
			}
			decay := g.ctx.NextFloat(def.MinDecay, def.MaxDecay) * off.magnitude()
			strength := g.target[p] - decay
			if strength <= 0 {
				continue
			}
			g.target[np] = strength
			g.scheduled[np] = g.stamp
			g.queue = append(g.queue, np)
		}
	}
}

// freeCells is an order-statistic set over [0,n) backed by a Fenwick tree.
// Nth and Remove are O(log n) and Nth walks cells in ascending order.
type freeCells struct {
	tree []int32
	top  int
	n    int
}

func newFreeCells(n int) *freeCells {
	f := &freeCells{tree: make([]int32, n+1), n: n}
	for i := 1; i <= n; i++ {
		f.tree[i] = int32(i & -i)
	}
	f.top = 1
	for f.top*2 <= n {
		f.top *= 2
	}
	return f
}

func (f *freeCells) Len() int { return f.n }

// Remove drops cell i. The caller removes each cell at most once.
func (f *freeCells) Remove(i int) {
	for j := i + 1; j < len(f.tree); j += j & -j {
		f.tree[j]--
	}
	f.n--
}

// Nth returns the k-th (0-based) remaining cell.
func (f *freeCells) Nth(k int) int {
	pos := 0
	rem := int32(k)
	for step := f.top; step > 0; step /= 2 {
		if next := pos + step; next < len(f.tree) && f.tree[next] <= rem {
			pos = next
			rem -= f.tree[next]
		}
	}
	return pos
}

// upsample resamples the low resolution grids onto the map grids. Biome
// indices are interpolated bilinearly and snapped to the nearest of the
// four source indices so no new index is ever invented.
func upsample(low *gen.BiomeMap, lowStrength *gen.FloatGrid, high *gen.BiomeMap, highStrength *gen.FloatGrid) {
	lr, hr := low.Res, high.Res
	scale := float64(lr) / float64(hr)
	for y := 0; y < hr; y++ {
		ly := mathx.FloorToInt(float64(y) * scale)
		fy := float64(y)*scale - float64(ly)
		for x := 0; x < hr; x++ {
			lx := mathx.FloorToInt(float64(x) * scale)
			fx := float64(x)*scale - float64(lx)

			a, b, cc, d := corners(lr, lx, ly, func(x, y int) float64 { return float64(low.At(x, y)) })
			high.Set(x, y, snapBiome(a, b, cc, d, fx, fy))

			sa, sb, sc, sd := corners(lr, lx, ly, lowStrength.At)
			highStrength.Set(x, y, bilinear(sa, sb, sc, sd, fx, fy))
		}
	}
}

// corners returns the four bilinear neighbours, replicating values past
// the right and bottom edges.
func corners(res, x, y int, at func(x, y int) float64) (a, b, c, d float64) {
	a = at(x, y)
	b, c = a, a
	if x+1 < res {
		b = at(x+1, y)
	}
	if y+1 < res {
		c = at(x, y+1)
	}
	switch {
	case x+1 >= res:
		d = c
	case y+1 >= res:
		d = b
	default:
		d = at(x+1, y+1)
	}
	return a, b, c, d
}

func bilinear(a, b, c, d, fx, fy float64) float64 {
	return a*(1-fx)*(1-fy) + b*fx*(1-fy) + c*fy*(1-fx) + d*fx*fy
}

func snapBiome(a, b, c, d, fx, fy float64) uint8 {
	v := bilinear(a, b, c, d, fx, fy)
	best := a
	bestDelta := math.Abs(v - a)
	for _, cand := range [...]float64{b, c, d} {
		if delta := math.Abs(v - cand); delta < bestDelta {
			best, bestDelta = cand, delta
		}
	}
	return uint8(best)
}
