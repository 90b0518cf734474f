// Package surface defines the terrain collaborator a run reads from and
// writes to, plus an in-memory implementation.
package surface

import (
	"fmt"

	"terraforge.ai/internal/terrain/gen"
)

// Artifacts is everything a finished run hands back to the surface.
type Artifacts struct {
	Heights    *gen.FloatGrid
	Biomes     *gen.BiomeMap
	Weights    *gen.WeightMap
	Densities  *gen.DensityMap
	TextureIDs []string
	DetailIDs  []string
}

type Surface interface {
	Dimensions() gen.Dimensions
	// Heights returns the current height field in normalized units. The
	// caller owns the returned grid.
	Heights() *gen.FloatGrid
	Apply(a Artifacts) error
}

// Memory keeps the terrain in process.
type Memory struct {
	dims gen.Dimensions

	Height     *gen.FloatGrid
	Biomes     *gen.BiomeMap
	Weights    *gen.WeightMap
	Densities  *gen.DensityMap
	TextureIDs []string
	DetailIDs  []string
	Applied    int
}

func NewMemory(dims gen.Dimensions) *Memory {
	return &Memory{
		dims:   dims,
		Height: gen.NewFloatGrid(dims.MapResolution),
	}
}

func (m *Memory) Dimensions() gen.Dimensions { return m.dims }

func (m *Memory) Heights() *gen.FloatGrid { return m.Height.Clone() }

func (m *Memory) Apply(a Artifacts) error {
	if a.Heights == nil || a.Heights.Res != m.dims.MapResolution {
		return fmt.Errorf("surface: height grid does not match map resolution %d", m.dims.MapResolution)
	}
	m.Height = a.Heights.Clone()
	m.Biomes = a.Biomes
	m.Weights = a.Weights
	m.Densities = a.Densities
	m.TextureIDs = append([]string(nil), a.TextureIDs...)
	m.DetailIDs = append([]string(nil), a.DetailIDs...)
	m.dims.AlphaLayers = len(m.TextureIDs)
	if a.Weights != nil {
		m.dims.AlphaLayers = a.Weights.Layers
	}
	m.Applied++
	return nil
}
