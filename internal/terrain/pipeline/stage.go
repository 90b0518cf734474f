package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// Stage is a pipeline checkpoint. Ordinals start at 1.
type Stage int

const (
	Beginning Stage = iota + 1
	BuildTextureMap
	BuildDetailMap
	BuildBiomeMap
	HeightMapGeneration
	TerrainPainting
	ObjectPlacement
	DetailPainting
	Complete
)

const NumStages = int(Complete)

var stageNames = [...]string{
	Beginning:           "beginning",
	BuildTextureMap:     "build_texture_map",
	BuildDetailMap:      "build_detail_map",
	BuildBiomeMap:       "build_biome_map",
	HeightMapGeneration: "height_map_generation",
	TerrainPainting:     "terrain_painting",
	ObjectPlacement:     "object_placement",
	DetailPainting:      "detail_painting",
	Complete:            "complete",
}

var stageTexts = [...]string{
	Beginning:           "Beginning Generation...",
	BuildTextureMap:     "Building texture map...",
	BuildDetailMap:      "Building detail map...",
	BuildBiomeMap:       "Build biome map...",
	HeightMapGeneration: "Modifying heights...",
	TerrainPainting:     "Painting terrain...",
	ObjectPlacement:     "Placing objects...",
	DetailPainting:      "Painting details...",
	Complete:            "Generation completed.",
}

func (s Stage) String() string {
	if s < Beginning || s > Complete {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// Text is the human readable status line for s.
func (s Stage) Text() string {
	if s < Beginning || s > Complete {
		return s.String()
	}
	return stageTexts[s]
}

// ErrCancelled is returned when the run context ends between stages.
var ErrCancelled = fmt.Errorf("generation cancelled: %w", context.Canceled)

// StageError locates a failure inside the pipeline. Biome is -1 for the
// global passes.
type StageError struct {
	Stage     Stage
	Biome     int
	BiomeName string
	Step      string
	Err       error
}

func (e *StageError) Error() string {
	where := e.Stage.String()
	if e.Biome >= 0 {
		where += fmt.Sprintf(" biome=%d(%s)", e.Biome, e.BiomeName)
	}
	if e.Step != "" {
		where += " step=" + e.Step
	}
	return where + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error { return e.Err }

func wrap(stage Stage, biome int, name, step string, err error) error {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Biome: biome, BiomeName: name, Step: step, Err: err}
}
