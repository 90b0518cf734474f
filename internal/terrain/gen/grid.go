package gen

import (
	"math"

	"terraforge.ai/internal/terrain/mathx"
)

// FloatGrid is a square row-major grid of float64 values.
type FloatGrid struct {
	Res  int
	Data []float64
}

// HeightField holds heights in normalized units (world height divided by
// the vertical heightmap scale).
type HeightField = FloatGrid

func NewFloatGrid(res int) *FloatGrid {
	if res < 0 {
		res = 0
	}
	return &FloatGrid{Res: res, Data: make([]float64, res*res)}
}

func (g *FloatGrid) index(x, y int) int {
	return mathx.ClampInt(y, 0, g.Res-1)*g.Res + mathx.ClampInt(x, 0, g.Res-1)
}

// At reads a cell, replicating the border for out-of-range coordinates.
func (g *FloatGrid) At(x, y int) float64 { return g.Data[g.index(x, y)] }

func (g *FloatGrid) Set(x, y int, v float64) {
	if x < 0 || y < 0 || x >= g.Res || y >= g.Res {
		return
	}
	g.Data[y*g.Res+x] = v
}

// Blend moves cell (x, y) toward v by strength.
func (g *FloatGrid) Blend(x, y int, v, strength float64) {
	if x < 0 || y < 0 || x >= g.Res || y >= g.Res {
		return
	}
	i := y*g.Res + x
	g.Data[i] = mathx.Lerp(g.Data[i], v, strength)
}

// Sample interpolates bilinearly at fractional cell coordinates.
func (g *FloatGrid) Sample(x, y float64) float64 {
	if g.Res == 0 {
		return 0
	}
	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	tx := x - float64(x0)
	ty := y - float64(y0)
	a := g.At(x0, y0)
	b := g.At(x0+1, y0)
	c := g.At(x0, y0+1)
	d := g.At(x0+1, y0+1)
	return mathx.LerpUnclamped(mathx.LerpUnclamped(a, b, tx), mathx.LerpUnclamped(c, d, tx), ty)
}

func (g *FloatGrid) Clone() *FloatGrid {
	out := &FloatGrid{Res: g.Res, Data: make([]float64, len(g.Data))}
	copy(out.Data, g.Data)
	return out
}

// BiomeMap stores one biome index per cell.
type BiomeMap struct {
	Res  int
	Data []uint8
}

func NewBiomeMap(res int) *BiomeMap {
	if res < 0 {
		res = 0
	}
	return &BiomeMap{Res: res, Data: make([]uint8, res*res)}
}

func (m *BiomeMap) At(x, y int) uint8 {
	x = mathx.ClampInt(x, 0, m.Res-1)
	y = mathx.ClampInt(y, 0, m.Res-1)
	return m.Data[y*m.Res+x]
}

func (m *BiomeMap) Set(x, y int, b uint8) {
	if x < 0 || y < 0 || x >= m.Res || y >= m.Res {
		return
	}
	m.Data[y*m.Res+x] = b
}

// Counts returns how many cells carry each biome index below n.
func (m *BiomeMap) Counts(n int) []int {
	out := make([]int, n)
	for _, b := range m.Data {
		if int(b) < n {
			out[b]++
		}
	}
	return out
}

// WeightMap is a [Res][Res][Layers] array of texture weights.
type WeightMap struct {
	Res    int
	Layers int
	Data   []float64
}

func NewWeightMap(res, layers int) *WeightMap {
	if res < 0 {
		res = 0
	}
	if layers < 0 {
		layers = 0
	}
	return &WeightMap{Res: res, Layers: layers, Data: make([]float64, res*res*layers)}
}

func (w *WeightMap) index(x, y, layer int) int {
	return (y*w.Res+x)*w.Layers + layer
}

func (w *WeightMap) At(x, y, layer int) float64 {
	if x < 0 || y < 0 || x >= w.Res || y >= w.Res || layer < 0 || layer >= w.Layers {
		return 0
	}
	return w.Data[w.index(x, y, layer)]
}

func (w *WeightMap) Set(x, y, layer int, v float64) {
	if x < 0 || y < 0 || x >= w.Res || y >= w.Res || layer < 0 || layer >= w.Layers {
		return
	}
	w.Data[w.index(x, y, layer)] = v
}

// Blend moves one layer of cell (x, y) toward v by strength.
func (w *WeightMap) Blend(x, y, layer int, v, strength float64) {
	w.Set(x, y, layer, mathx.Lerp(w.At(x, y, layer), v, strength))
}

// ScaleOthers multiplies every layer of (x, y) except keep by factor.
func (w *WeightMap) ScaleOthers(x, y, keep int, factor float64) {
	for l := 0; l < w.Layers; l++ {
		if l == keep {
			continue
		}
		w.Set(x, y, l, w.At(x, y, l)*factor)
	}
}

// Normalize rescales every cell so its layers sum to 1. Cells summing to
// zero are left untouched.
func (w *WeightMap) Normalize() {
	if w.Layers == 0 {
		return
	}
	for i := 0; i < len(w.Data); i += w.Layers {
		sum := 0.0
		for l := 0; l < w.Layers; l++ {
			sum += w.Data[i+l]
		}
		if sum <= 0 {
			continue
		}
		for l := 0; l < w.Layers; l++ {
			w.Data[i+l] /= sum
		}
	}
}

// DensityMap keeps one integer grid per detail species.
type DensityMap struct {
	Res    int
	Max    int
	Layers [][]int
}

func NewDensityMap(res, layers, max int) *DensityMap {
	if res < 0 {
		res = 0
	}
	d := &DensityMap{Res: res, Max: max, Layers: make([][]int, layers)}
	for i := range d.Layers {
		d.Layers[i] = make([]int, res*res)
	}
	return d
}

func (d *DensityMap) At(x, y, layer int) int {
	if x < 0 || y < 0 || x >= d.Res || y >= d.Res || layer < 0 || layer >= len(d.Layers) {
		return 0
	}
	return d.Layers[layer][y*d.Res+x]
}

// Set stores v clamped to [0, Max].
func (d *DensityMap) Set(x, y, layer, v int) {
	if x < 0 || y < 0 || x >= d.Res || y >= d.Res || layer < 0 || layer >= len(d.Layers) {
		return
	}
	d.Layers[layer][y*d.Res+x] = mathx.ClampInt(v, 0, d.Max)
}

// Blend moves one species count toward v by strength, flooring the result.
func (d *DensityMap) Blend(x, y, layer int, v, strength float64) {
	old := float64(d.At(x, y, layer))
	d.Set(x, y, layer, mathx.FloorToInt(mathx.Lerp(old, v, strength)))
}
