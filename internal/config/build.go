package config

import (
	"fmt"
	"path/filepath"

	"terraforge.ai/internal/terrain/biomegen"
	"terraforge.ai/internal/terrain/gen"
	"terraforge.ai/internal/terrain/heightstage"
	"terraforge.ai/internal/terrain/paint"
	"terraforge.ai/internal/terrain/place"
	"terraforge.ai/internal/terrain/stamp"
)

const defaultStampHardness = 0.5

// Build resolves a validated document into stage values. Stamp images are
// read relative to stampDir.
func Build(c Config, stampDir string) (*gen.Config, error) {
	b := builder{dir: stampDir, stamps: map[string]*stamp.Stamp{}}
	out := &gen.Config{
		WaterHeight:            c.WaterHeight,
		NormalizeWeights:       c.NormalizeWeights,
		DisableObjectPlacement: c.DisableObjectPlacement,
	}
	for i, g := range c.BiomeGenerators {
		gg, err := buildGenerator(g)
		if err != nil {
			return nil, fmt.Errorf("biome_generators[%d]: %w", i, err)
		}
		out.Generators = append(out.Generators, gg)
	}
	var err error
	if out.InitialHeight, err = b.heights("initial_height", c.InitialHeight); err != nil {
		return nil, err
	}
	if out.HeightPost, err = b.heights("height_post_processing", c.HeightPost); err != nil {
		return nil, err
	}
	if out.PaintingPost, err = b.painting("painting_post_processing", c.PaintingPost); err != nil {
		return nil, err
	}
	if out.DetailPost, err = b.details("detail_painting_post_processing", c.DetailPost); err != nil {
		return nil, err
	}
	for i, bs := range c.Biomes {
		at := fmt.Sprintf("biomes[%d]", i)
		biome := gen.Biome{
			Name:         bs.Name,
			Weighting:    bs.Weighting,
			MinIntensity: bs.MinIntensity,
			MaxIntensity: bs.MaxIntensity,
			MinDecay:     bs.MinDecay,
			MaxDecay:     bs.MaxDecay,
		}
		if biome.Height, err = b.heights(at+".height", bs.Height); err != nil {
			return nil, err
		}
		if biome.Painting, err = b.painting(at+".painting", bs.Painting); err != nil {
			return nil, err
		}
		if biome.Details, err = b.details(at+".details", bs.Details); err != nil {
			return nil, err
		}
		for j, p := range bs.Placement {
			pl, err := buildPlacer(p)
			if err != nil {
				return nil, fmt.Errorf("%s.placement[%d]: %w", at, j, err)
			}
			biome.Placement = append(biome.Placement, pl)
		}
		out.Biomes = append(out.Biomes, biome)
	}
	return out, nil
}

func buildGenerator(g GeneratorSpec) (gen.BiomeGenerator, error) {
	switch g.Type {
	case "ooze":
		return biomegen.Ooze{SeedDensity: g.SeedDensity, Resolution: g.Resolution}, nil
	case "voronoi":
		return biomegen.Voronoi{NumCells: g.NumCells, ResampleDistance: g.ResampleDistance, NoiseScale: g.NoiseScale}, nil
	}
	return nil, gen.ConfigErrorf("unknown biome generator %q", g.Type)
}

type builder struct {
	dir    string
	stamps map[string]*stamp.Stamp
}

func (b *builder) stamp(s StampSpec, radius int) (*stamp.Stamp, error) {
	size := max(2*radius, 2)
	if s.Image == "" {
		switch s.Shape {
		case "flat":
			return stamp.Flat(), nil
		case "", "radial":
			h := s.Hardness
			if h == 0 {
				h = defaultStampHardness
			}
			return stamp.Radial(size, h), nil
		}
		return nil, gen.ConfigErrorf("unknown stamp shape %q", s.Shape)
	}
	path := s.Image
	if !filepath.IsAbs(path) {
		path = filepath.Join(b.dir, path)
	}
	key := fmt.Sprintf("%s@%d", path, size)
	if st, ok := b.stamps[key]; ok {
		return st, nil
	}
	st, err := stamp.Load(path, size)
	if err != nil {
		return nil, err
	}
	b.stamps[key] = st
	return st, nil
}

func (b *builder) heights(at string, list []StageSpec) ([]gen.HeightStage, error) {
	var out []gen.HeightStage
	for i, s := range list {
		st, err := b.height(s)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", at, i, err)
		}
		out = append(out, st)
	}
	return out, nil
}

func (b *builder) height(s StageSpec) (gen.HeightStage, error) {
	str := s.strength()
	switch s.Type {
	case "noise":
		passes := make([]heightstage.NoisePass, 0, len(s.Passes))
		for _, p := range s.Passes {
			passes = append(passes, heightstage.NoisePass{HeightDelta: p.HeightDelta, NoiseScale: p.NoiseScale})
		}
		return heightstage.Noise{Strength: str, Passes: passes}, nil
	case "offset":
		return heightstage.Offset{Strength: str, Amount: s.Amount}, nil
	case "random_delta":
		return heightstage.RandomDelta{Strength: str, HeightDelta: s.HeightDelta}, nil
	case "set_value":
		return heightstage.SetValue{Strength: str, TargetHeight: s.TargetHeight}, nil
	case "islands":
		return heightstage.Islands{
			Strength:           str,
			Count:              s.Count,
			MinSize:            s.MinSize,
			MaxSize:            s.MaxSize,
			MinHeight:          s.MinHeight,
			MaxHeight:          s.MaxHeight,
			AngleNoiseScale:    s.AngleNoiseScale,
			DistanceNoiseScale: s.DistanceNoiseScale,
			NoiseHeightDelta:   s.NoiseHeightDelta,
			Shape:              s.Shape,
		}, nil
	case "features":
		out := heightstage.Features{Strength: str}
		for j, f := range s.Features {
			st, err := b.stamp(f.Stamp, f.Radius)
			if err != nil {
				return nil, fmt.Errorf("features[%d]: %w", j, err)
			}
			var at []heightstage.Point
			for _, p := range f.At {
				at = append(at, heightstage.Point{X: p.X, Y: p.Y})
			}
			out.Features = append(out.Features, heightstage.Feature{
				Stamp: st, Height: f.Height, Radius: f.Radius, Count: f.Count, At: at,
			})
		}
		return out, nil
	case "buildings":
		out := heightstage.Buildings{Strength: str}
		for j, bs := range s.Buildings {
			st, err := b.stamp(bs.Stamp, bs.Radius)
			if err != nil {
				return nil, fmt.Errorf("buildings[%d]: %w", j, err)
			}
			out.Buildings = append(out.Buildings, heightstage.Building{
				Stamp:           st,
				Prefab:          bs.Prefab,
				Radius:          bs.Radius,
				Count:           bs.Count,
				HasHeightLimits: bs.HasHeightLimits,
				MinHeight:       bs.MinHeight,
				MaxHeight:       bs.MaxHeight,
				CanGoInWater:    bs.CanGoInWater,
				CanGoAboveWater: bs.CanGoAboveWater,
			})
		}
		return out, out.Validate()
	case "smooth":
		return heightstage.Smooth{
			Strength:           str,
			KernelSize:         s.KernelSize,
			Adaptive:           s.Adaptive,
			MinKernel:          s.MinKernel,
			MaxKernel:          s.MaxKernel,
			MaxHeightThreshold: s.MaxHeightThreshold,
		}, nil
	}
	return nil, gen.ConfigErrorf("unknown height stage %q", s.Type)
}

func noiseEntries(in []NoiseEntrySpec) []paint.NoiseEntry {
	out := make([]paint.NoiseEntry, 0, len(in))
	for _, e := range in {
		out = append(out, paint.NoiseEntry{ID: e.ID, Intensity: e.Intensity, NoiseScale: e.NoiseScale, Threshold: e.Threshold})
	}
	return out
}

func (b *builder) painting(at string, list []StageSpec) ([]gen.WeightStage, error) {
	var out []gen.WeightStage
	for i, s := range list {
		str := s.strength()
		var st gen.WeightStage
		switch s.Type {
		case "height_band":
			st = paint.HeightBand{
				Strength:    str,
				Texture:     s.Texture,
				Band:        paint.Band{StartHeight: s.StartHeight, EndHeight: s.EndHeight},
				Intensity:   s.Intensity,
				Suppress:    s.Suppress,
				Suppression: s.Suppression,
			}
		case "slope":
			st = paint.Slope{Strength: str, Texture: s.Texture, Intensity: s.Intensity, Input: paint.SlopeInput(s.Input)}
		case "random_noise":
			st = paint.RandomNoise{Strength: str, BaseTexture: s.BaseTexture, Entries: noiseEntries(s.Entries)}
		case "smooth":
			st = paint.Smooth{Strength: str, KernelSize: s.KernelSize}
		default:
			return nil, fmt.Errorf("%s[%d]: %w", at, i, gen.ConfigErrorf("unknown painting stage %q", s.Type))
		}
		out = append(out, st)
	}
	return out, nil
}

func (b *builder) details(at string, list []StageSpec) ([]gen.DensityStage, error) {
	var out []gen.DensityStage
	for i, s := range list {
		str := s.strength()
		var st gen.DensityStage
		switch s.Type {
		case "height_band":
			st = paint.DetailHeightBand{
				Strength:    str,
				Detail:      s.Detail,
				Band:        paint.Band{StartHeight: s.StartHeight, EndHeight: s.EndHeight},
				Intensity:   s.Intensity,
				Suppress:    s.Suppress,
				Suppression: s.Suppression,
			}
		case "slope":
			st = paint.DetailSlope{Strength: str, Detail: s.Detail, Intensity: s.Intensity, Input: paint.SlopeInput(s.Input)}
		case "random_noise":
			st = paint.DetailRandomNoise{Strength: str, Entries: noiseEntries(s.Entries)}
		default:
			return nil, fmt.Errorf("%s[%d]: %w", at, i, gen.ConfigErrorf("unknown detail stage %q", s.Type))
		}
		out = append(out, st)
	}
	return out, nil
}

func buildPlacer(p PlacerSpec) (gen.Placer, error) {
	set := place.Settings{
		TargetDensity:   p.TargetDensity,
		MaxSpawnCount:   p.MaxSpawnCount,
		MaxInvalidSkips: p.MaxInvalidSkips,
		MaxJitter:       place.DefaultMaxJitter,
	}
	if p.MaxJitter != nil {
		set.MaxJitter = *p.MaxJitter
	}
	for _, o := range p.Objects {
		set.Entries = append(set.Entries, place.Entry{
			Prefabs:         append([]string(nil), o.Prefabs...),
			Weighting:       o.Weighting,
			HasHeightLimits: o.HasHeightLimits,
			MinHeight:       o.MinHeight,
			MaxHeight:       o.MaxHeight,
			CanGoInWater:    o.CanGoInWater,
			CanGoAboveWater: o.CanGoAboveWater,
		})
	}
	var pl gen.Placer
	switch p.Type {
	case "uniform":
		pl = place.Uniform{Settings: set}
	case "noise_filtered":
		nf := place.NoiseFiltered{Settings: set, ScaleX: p.NoiseScale[0], ScaleY: p.NoiseScale[1], Threshold: 0.5}
		if p.Threshold != nil {
			nf.Threshold = *p.Threshold
		}
		pl = nf
	default:
		return nil, gen.ConfigErrorf("unknown placer %q", p.Type)
	}
	return pl, set.Validate()
}
