package pipeline

import (
	"terraforge.ai/internal/terrain/gen"
)

type validator interface {
	Validate() error
}

// Validate checks a resolved config before any grid is touched. Stages
// that expose Validate are asked directly; smoothing stages must only
// appear in global passes.
func Validate(cfg *gen.Config) error {
	if n := len(cfg.Biomes); n > 256 {
		return gen.ConfigErrorf("%d biomes exceed the 256 supported by the biome map", n)
	}
	for i, b := range cfg.Biomes {
		if b.Weighting < 0 {
			return &StageError{Stage: Beginning, Biome: i, BiomeName: b.Name, Step: "weighting",
				Err: gen.ConfigErrorf("negative weighting %g", b.Weighting)}
		}
		if b.MinIntensity > b.MaxIntensity || b.MinDecay > b.MaxDecay {
			return &StageError{Stage: Beginning, Biome: i, BiomeName: b.Name, Step: "ranges",
				Err: gen.ConfigErrorf("min exceeds max in intensity or decay range")}
		}
		for _, s := range b.Height {
			if err := checkStage(HeightMapGeneration, i, b.Name, s.Kind(), s, true); err != nil {
				return err
			}
		}
		for _, s := range b.Painting {
			if err := checkStage(TerrainPainting, i, b.Name, s.Kind(), s, true); err != nil {
				return err
			}
		}
		for _, s := range b.Placement {
			if err := checkStage(ObjectPlacement, i, b.Name, s.Kind(), s, false); err != nil {
				return err
			}
		}
		for _, s := range b.Details {
			if err := checkStage(DetailPainting, i, b.Name, s.Kind(), s, false); err != nil {
				return err
			}
		}
	}
	for _, list := range [][]gen.HeightStage{cfg.InitialHeight, cfg.HeightPost} {
		for _, s := range list {
			if err := checkStage(HeightMapGeneration, gen.Global, "", s.Kind(), s, false); err != nil {
				return err
			}
		}
	}
	for _, s := range cfg.PaintingPost {
		if err := checkStage(TerrainPainting, gen.Global, "", s.Kind(), s, false); err != nil {
			return err
		}
	}
	for _, s := range cfg.DetailPost {
		if err := checkStage(DetailPainting, gen.Global, "", s.Kind(), s, false); err != nil {
			return err
		}
	}
	return nil
}

func checkStage(stage Stage, biome int, name, kind string, s any, perBiome bool) error {
	if perBiome && kind == "smooth" {
		return &StageError{Stage: stage, Biome: biome, BiomeName: name, Step: kind,
			Err: gen.ConfigErrorf("smooth cannot be restricted to a biome")}
	}
	if v, ok := s.(validator); ok {
		if err := v.Validate(); err != nil {
			return &StageError{Stage: stage, Biome: biome, BiomeName: name, Step: kind, Err: err}
		}
	}
	return nil
}
