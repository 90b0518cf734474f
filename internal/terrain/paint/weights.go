// Package paint holds the texture weight and detail density stages. Both
// families read the height field through integer-scaled coordinates and
// blend every write by the stage strength.
package paint

import (
	"terraforge.ai/internal/terrain/curve"
	"terraforge.ai/internal/terrain/gen"
	"terraforge.ai/internal/terrain/mathx"
	"terraforge.ai/internal/terrain/noise"
)

// SlopeInput selects what a slope curve is keyed by.
type SlopeInput string

const (
	// NormalY is the vertical normal component: 1 on flat ground.
	NormalY SlopeInput = "normal_y"
	// Steepness is 1 - NormalY: 0 on flat ground.
	Steepness SlopeInput = "steepness"
)

func (in SlopeInput) value(normalY float64) float64 {
	if in == Steepness {
		return 1 - normalY
	}
	return normalY
}

// Band maps a height range in world units onto [0,1].
type Band struct {
	StartHeight float64
	EndHeight   float64
}

// percent returns the position of normalized height h in the band and
// whether h lies inside it.
func (b Band) percent(c *gen.Context, h float64) (float64, bool) {
	sy := c.Dims.HeightmapScale.Y()
	if sy == 0 {
		sy = 1
	}
	start, end := b.StartHeight/sy, b.EndHeight/sy
	if h < start || h > end {
		return 0, false
	}
	return mathx.InverseLerp(start, end, h), true
}

// HeightBand paints one texture by height, optionally suppressing every
// other layer with a second curve.
type HeightBand struct {
	Strength    float64
	Texture     string
	Band        Band
	Intensity   curve.Curve
	Suppress    bool
	Suppression curve.Curve
}

func (HeightBand) Kind() string         { return "height_band" }
func (s HeightBand) Textures() []string { return []string{s.Texture} }

func (s HeightBand) PaintWeights(c *gen.Context, biome int) error {
	layer, err := c.TextureLayer(s.Texture)
	if err != nil {
		return err
	}
	w := c.Weights
	for y := 0; y < w.Res; y++ {
		for x := 0; x < w.Res; x++ {
			if !c.InBiomeAt(x, y, w.Res, biome) {
				continue
			}
			pct, ok := s.Band.percent(c, c.HeightAt(x, y, w.Res))
			if !ok {
				continue
			}
			w.Blend(x, y, layer, s.Intensity.Evaluate(pct), s.Strength)
			if s.Suppress {
				w.ScaleOthers(x, y, layer, mathx.Lerp(1, s.Suppression.Evaluate(pct), s.Strength))
			}
		}
	}
	return nil
}

// Slope paints one texture from a curve over the slope map.
type Slope struct {
	Strength  float64
	Texture   string
	Intensity curve.Curve
	Input     SlopeInput
}

func (Slope) Kind() string         { return "slope" }
func (s Slope) Textures() []string { return []string{s.Texture} }

func (s Slope) PaintWeights(c *gen.Context, biome int) error {
	layer, err := c.TextureLayer(s.Texture)
	if err != nil {
		return err
	}
	w := c.Weights
	for y := 0; y < w.Res; y++ {
		for x := 0; x < w.Res; x++ {
			if !c.InBiomeAt(x, y, w.Res, biome) {
				continue
			}
			v := s.Intensity.Evaluate(s.Input.value(c.Slopes.At(x, y)))
			w.Blend(x, y, layer, v, s.Strength)
		}
	}
	return nil
}

// NoiseEntry paints ID at Intensity where a uniform draw reaches both the
// Perlin value at (x*NoiseScale, y*NoiseScale) and Threshold.
type NoiseEntry struct {
	ID         string
	Intensity  float64
	NoiseScale float64
	Threshold  float64
}

func (e NoiseEntry) hit(c *gen.Context, x, y int) bool {
	n := noise.Perlin(float64(x)*e.NoiseScale, float64(y)*e.NoiseScale)
	return c.NextFloat(0, 1) >= max(n, e.Threshold)
}

// RandomNoise scatters textures by noise and then paints BaseTexture
// everywhere it runs.
type RandomNoise struct {
	Strength    float64
	BaseTexture string
	Entries     []NoiseEntry
}

func (RandomNoise) Kind() string { return "random_noise" }

func (s RandomNoise) Textures() []string {
	out := []string{s.BaseTexture}
	for _, e := range s.Entries {
		out = append(out, e.ID)
	}
	return out
}

func (s RandomNoise) PaintWeights(c *gen.Context, biome int) error {
	base, err := c.TextureLayer(s.BaseTexture)
	if err != nil {
		return err
	}
	layers := make([]int, len(s.Entries))
	for i, e := range s.Entries {
		if layers[i], err = c.TextureLayer(e.ID); err != nil {
			return err
		}
	}
	w := c.Weights
	for y := 0; y < w.Res; y++ {
		for x := 0; x < w.Res; x++ {
			if !c.InBiomeAt(x, y, w.Res, biome) {
				continue
			}
			for i, e := range s.Entries {
				if e.hit(c, x, y) {
					w.Blend(x, y, layers[i], e.Intensity, s.Strength)
				}
			}
			w.Blend(x, y, base, 1, s.Strength)
		}
	}
	return nil
}

// Smooth box-averages every layer independently. Global passes only.
type Smooth struct {
	Strength   float64
	KernelSize int
}

func (Smooth) Kind() string       { return "smooth" }
func (Smooth) Textures() []string { return nil }

func (s Smooth) PaintWeights(c *gen.Context, biome int) error {
	if biome != gen.Global {
		return gen.ConfigErrorf("smooth painting stage cannot run per biome (biome %d)", biome)
	}
	w := c.Weights
	src := make([]float64, len(w.Data))
	copy(src, w.Data)
	k := max(s.KernelSize, 0)
	return gen.ParallelRows(w.Res, func(y0, y1 int) error {
		for y := y0; y < y1; y++ {
			for x := 0; x < w.Res; x++ {
				for l := 0; l < w.Layers; l++ {
					sum, n := 0.0, 0
					for wy := max(y-k, 0); wy <= min(y+k, w.Res-1); wy++ {
						for wx := max(x-k, 0); wx <= min(x+k, w.Res-1); wx++ {
							sum += src[(wy*w.Res+wx)*w.Layers+l]
							n++
						}
					}
					i := (y*w.Res+x)*w.Layers + l
					w.Data[i] = mathx.Lerp(src[i], sum/float64(n), s.Strength)
				}
			}
		}
		return nil
	})
}
