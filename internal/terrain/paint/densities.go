package paint

import (
	"terraforge.ai/internal/terrain/curve"
	"terraforge.ai/internal/terrain/gen"
	"terraforge.ai/internal/terrain/mathx"
)

// DetailHeightBand sets one species to curve * MaxDetailsPerPatch inside a
// height band. Suppression scales every other species.
type DetailHeightBand struct {
	Strength    float64
	Detail      string
	Band        Band
	Intensity   curve.Curve
	Suppress    bool
	Suppression curve.Curve
}

func (DetailHeightBand) Kind() string        { return "height_band" }
func (s DetailHeightBand) Details() []string { return []string{s.Detail} }

func (s DetailHeightBand) PaintDensities(c *gen.Context, biome int) error {
	layer, err := c.DetailLayer(s.Detail)
	if err != nil {
		return err
	}
	d := c.Densities
	maxCount := float64(d.Max)
	for y := 0; y < d.Res; y++ {
		for x := 0; x < d.Res; x++ {
			if !c.InBiomeAt(x, y, d.Res, biome) {
				continue
			}
			pct, ok := s.Band.percent(c, c.HeightAt(x, y, d.Res))
			if !ok {
				continue
			}
			d.Blend(x, y, layer, s.Intensity.Evaluate(pct)*maxCount, s.Strength)
			if !s.Suppress {
				continue
			}
			factor := mathx.Lerp(1, s.Suppression.Evaluate(pct), s.Strength)
			for other := range d.Layers {
				if other != layer {
					d.Set(x, y, other, mathx.FloorToInt(float64(d.At(x, y, other))*factor))
				}
			}
		}
	}
	return nil
}

// DetailSlope keys its curve by steepness unless Input says otherwise.
type DetailSlope struct {
	Strength  float64
	Detail    string
	Intensity curve.Curve
	Input     SlopeInput
}

func (DetailSlope) Kind() string        { return "slope" }
func (s DetailSlope) Details() []string { return []string{s.Detail} }

func (s DetailSlope) PaintDensities(c *gen.Context, biome int) error {
	layer, err := c.DetailLayer(s.Detail)
	if err != nil {
		return err
	}
	in := s.Input
	if in == "" {
		in = Steepness
	}
	d := c.Densities
	sr := c.Slopes.Res
	for y := 0; y < d.Res; y++ {
		for x := 0; x < d.Res; x++ {
			if !c.InBiomeAt(x, y, d.Res, biome) {
				continue
			}
			normalY := c.Slopes.At(mathx.Remap(x, sr, d.Res), mathx.Remap(y, sr, d.Res))
			v := s.Intensity.Evaluate(in.value(normalY)) * float64(d.Max)
			d.Blend(x, y, layer, v, s.Strength)
		}
	}
	return nil
}

// DetailRandomNoise scatters species by noise. Entry intensity scales
// MaxDetailsPerPatch.
type DetailRandomNoise struct {
	Strength float64
	Entries  []NoiseEntry
}

func (DetailRandomNoise) Kind() string { return "random_noise" }

func (s DetailRandomNoise) Details() []string {
	out := make([]string, 0, len(s.Entries))
	for _, e := range s.Entries {
		out = append(out, e.ID)
	}
	return out
}

func (s DetailRandomNoise) PaintDensities(c *gen.Context, biome int) error {
	layers := make([]int, len(s.Entries))
	for i, e := range s.Entries {
		l, err := c.DetailLayer(e.ID)
		if err != nil {
			return err
		}
		layers[i] = l
	}
	d := c.Densities
	for y := 0; y < d.Res; y++ {
		for x := 0; x < d.Res; x++ {
			if !c.InBiomeAt(x, y, d.Res, biome) {
				continue
			}
			for i, e := range s.Entries {
				if e.hit(c, x, y) {
					d.Blend(x, y, layers[i], e.Intensity*float64(d.Max), s.Strength)
				}
			}
		}
	}
	return nil
}
