package gen

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/go-gl/mathgl/mgl64"
)

// ErrConfig marks authoring errors that abort a run.
var ErrConfig = errors.New("invalid generation config")

// ConfigErrorf wraps ErrConfig with detail.
func ConfigErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

// Global is the biome filter value for pre and post passes.
const Global = -1

type BiomeGenerator interface {
	Kind() string
	GenerateBiomes(c *Context) error
}

type HeightStage interface {
	Kind() string
	ModifyHeights(c *Context, biome int) error
}

type WeightStage interface {
	Kind() string
	Textures() []string
	PaintWeights(c *Context, biome int) error
}

type DensityStage interface {
	Kind() string
	Details() []string
	PaintDensities(c *Context, biome int) error
}

type Placer interface {
	Kind() string
	PlaceObjects(c *Context, biome int) error
}

// Biome is one weighted terrain category and its stage lists.
type Biome struct {
	Name         string
	Weighting    float64
	MinIntensity float64
	MaxIntensity float64
	MinDecay     float64
	MaxDecay     float64

	Height    []HeightStage
	Painting  []WeightStage
	Placement []Placer
	Details   []DensityStage
}

// Config is the resolved, ready-to-run form of a generation config.
type Config struct {
	WaterHeight            float64
	NormalizeWeights       bool
	DisableObjectPlacement bool

	Generators    []BiomeGenerator
	InitialHeight []HeightStage
	HeightPost    []HeightStage
	PaintingPost  []WeightStage
	DetailPost    []DensityStage

	Biomes []Biome
}

func (c *Config) TotalWeighting() float64 {
	sum := 0.0
	for _, b := range c.Biomes {
		sum += b.Weighting
	}
	return sum
}

// Placement is a single object emitted to the placement sink.
type Placement struct {
	Biome      int        `json:"biome"`
	Source     string     `json:"source"`
	Prefab     string     `json:"prefab"`
	Position   mgl64.Vec3 `json:"position"`
	YawDegrees float64    `json:"yaw"`
	Rotation   mgl64.Quat `json:"rotation"`
}

// NewPlacement fills Rotation from a yaw about the world up axis.
func NewPlacement(biome int, source, prefab string, pos mgl64.Vec3, yaw float64) Placement {
	return Placement{
		Biome:      biome,
		Source:     source,
		Prefab:     prefab,
		Position:   pos,
		YawDegrees: yaw,
		Rotation:   mgl64.QuatRotate(mgl64.DegToRad(yaw), mgl64.Vec3{0, 1, 0}),
	}
}

func (p Placement) hashInto(h *xxhash.Digest) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(int64(p.Biome)))
	h.Write(tmp[:])
	h.WriteString(p.Source)
	h.WriteString(p.Prefab)
	for _, f := range [...]float64{p.Position[0], p.Position[1], p.Position[2], p.YawDegrees} {
		binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(f))
		h.Write(tmp[:])
	}
}

// Sink receives placements as they are produced.
type Sink interface {
	Place(p Placement) error
}
