// Package config loads terrain generation documents from YAML or TOML and
// resolves them into a runnable gen.Config.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"

	"terraforge.ai/internal/terrain/curve"
	"terraforge.ai/internal/terrain/gen"
)

type Config struct {
	Seed                   int64   `yaml:"seed" json:"seed"`
	RandomizeSeed          bool    `yaml:"randomize_seed" json:"randomize_seed"`
	WaterHeight            float64 `yaml:"water_height" json:"water_height"`
	NormalizeWeights       bool    `yaml:"normalize_weights" json:"normalize_weights"`
	DisableObjectPlacement bool    `yaml:"disable_object_placement" json:"disable_object_placement"`

	Surface SurfaceSpec `yaml:"surface" json:"surface"`

	BiomeGenerators []GeneratorSpec `yaml:"biome_generators" json:"biome_generators"`
	InitialHeight   []StageSpec     `yaml:"initial_height,omitempty" json:"initial_height,omitempty"`
	HeightPost      []StageSpec     `yaml:"height_post_processing,omitempty" json:"height_post_processing,omitempty"`
	PaintingPost    []StageSpec     `yaml:"painting_post_processing,omitempty" json:"painting_post_processing,omitempty"`
	DetailPost      []StageSpec     `yaml:"detail_painting_post_processing,omitempty" json:"detail_painting_post_processing,omitempty"`

	Biomes   []BiomeSpec `yaml:"biomes" json:"biomes"`
	Textures []LayerSpec `yaml:"textures,omitempty" json:"textures,omitempty"`
	Details  []LayerSpec `yaml:"details,omitempty" json:"details,omitempty"`
}

// SurfaceSpec sizes the in-memory surface used by the tools.
type SurfaceSpec struct {
	MapResolution      int        `yaml:"map_resolution" json:"map_resolution"`
	HeightmapScale     [3]float64 `yaml:"heightmap_scale" json:"heightmap_scale"`
	AlphaResolution    int        `yaml:"alpha_resolution" json:"alpha_resolution"`
	AlphaLayers        int        `yaml:"alpha_layers,omitempty" json:"alpha_layers,omitempty"`
	DetailResolution   int        `yaml:"detail_resolution" json:"detail_resolution"`
	MaxDetailsPerPatch int        `yaml:"max_details_per_patch" json:"max_details_per_patch"`
}

func (s SurfaceSpec) Dimensions() gen.Dimensions {
	return gen.Dimensions{
		MapResolution:      s.MapResolution,
		HeightmapScale:     mgl64.Vec3(s.HeightmapScale),
		AlphaResolution:    s.AlphaResolution,
		AlphaLayers:        s.AlphaLayers,
		DetailResolution:   s.DetailResolution,
		MaxDetailsPerPatch: s.MaxDetailsPerPatch,
	}
}

// LayerSpec is a catalog entry for a texture layer or detail prototype.
// Only ID takes part in generation; the rest is passed to the host.
type LayerSpec struct {
	ID       string  `yaml:"id" json:"id"`
	Asset    string  `yaml:"asset,omitempty" json:"asset,omitempty"`
	TileSize float64 `yaml:"tile_size,omitempty" json:"tile_size,omitempty"`
}

type BiomeSpec struct {
	Name         string  `yaml:"name" json:"name"`
	Weighting    float64 `yaml:"weighting" json:"weighting"`
	MinIntensity float64 `yaml:"min_intensity" json:"min_intensity"`
	MaxIntensity float64 `yaml:"max_intensity" json:"max_intensity"`
	MinDecay     float64 `yaml:"min_decay_rate" json:"min_decay_rate"`
	MaxDecay     float64 `yaml:"max_decay_rate" json:"max_decay_rate"`

	Height    []StageSpec  `yaml:"height,omitempty" json:"height,omitempty"`
	Painting  []StageSpec  `yaml:"painting,omitempty" json:"painting,omitempty"`
	Placement []PlacerSpec `yaml:"placement,omitempty" json:"placement,omitempty"`
	Details   []StageSpec  `yaml:"details,omitempty" json:"details,omitempty"`
}

// GeneratorSpec selects a biome map generator by Type ("ooze", "voronoi").
type GeneratorSpec struct {
	Type             string  `yaml:"type" json:"type"`
	SeedDensity      float64 `yaml:"seed_density,omitempty" json:"seed_density,omitempty"`
	Resolution       int     `yaml:"resolution,omitempty" json:"resolution,omitempty"`
	NumCells         int     `yaml:"num_cells,omitempty" json:"num_cells,omitempty"`
	ResampleDistance float64 `yaml:"resample_distance,omitempty" json:"resample_distance,omitempty"`
	NoiseScale       float64 `yaml:"noise_scale,omitempty" json:"noise_scale,omitempty"`
}

// StageSpec is a height, painting or detail stage. Type picks the variant
// and only the fields of that variant are read. Heights and offsets are in
// world units.
type StageSpec struct {
	Type     string   `yaml:"type" json:"type"`
	Strength *float64 `yaml:"strength,omitempty" json:"strength,omitempty"`

	// noise
	Passes []NoisePassSpec `yaml:"passes,omitempty" json:"passes,omitempty"`
	// offset
	Amount float64 `yaml:"amount,omitempty" json:"amount,omitempty"`
	// random_delta
	HeightDelta float64 `yaml:"height_delta,omitempty" json:"height_delta,omitempty"`
	// set_value
	TargetHeight float64 `yaml:"target_height,omitempty" json:"target_height,omitempty"`

	// islands
	Count              int         `yaml:"count,omitempty" json:"count,omitempty"`
	MinSize            float64     `yaml:"min_size,omitempty" json:"min_size,omitempty"`
	MaxSize            float64     `yaml:"max_size,omitempty" json:"max_size,omitempty"`
	MinHeight          float64     `yaml:"min_height,omitempty" json:"min_height,omitempty"`
	MaxHeight          float64     `yaml:"max_height,omitempty" json:"max_height,omitempty"`
	AngleNoiseScale    float64     `yaml:"angle_noise_scale,omitempty" json:"angle_noise_scale,omitempty"`
	DistanceNoiseScale float64     `yaml:"distance_noise_scale,omitempty" json:"distance_noise_scale,omitempty"`
	NoiseHeightDelta   float64     `yaml:"noise_height_delta,omitempty" json:"noise_height_delta,omitempty"`
	Shape              curve.Curve `yaml:"shape,omitempty" json:"shape,omitempty"`

	Features  []FeatureSpec  `yaml:"features,omitempty" json:"features,omitempty"`
	Buildings []BuildingSpec `yaml:"buildings,omitempty" json:"buildings,omitempty"`

	// smooth
	KernelSize         int     `yaml:"kernel_size,omitempty" json:"kernel_size,omitempty"`
	Adaptive           bool    `yaml:"adaptive,omitempty" json:"adaptive,omitempty"`
	MinKernel          int     `yaml:"min_kernel,omitempty" json:"min_kernel,omitempty"`
	MaxKernel          int     `yaml:"max_kernel,omitempty" json:"max_kernel,omitempty"`
	MaxHeightThreshold float64 `yaml:"max_height_threshold,omitempty" json:"max_height_threshold,omitempty"`

	// painting and details
	Texture     string           `yaml:"texture,omitempty" json:"texture,omitempty"`
	Detail      string           `yaml:"detail,omitempty" json:"detail,omitempty"`
	StartHeight float64          `yaml:"start_height,omitempty" json:"start_height,omitempty"`
	EndHeight   float64          `yaml:"end_height,omitempty" json:"end_height,omitempty"`
	Intensity   curve.Curve      `yaml:"intensity,omitempty" json:"intensity,omitempty"`
	Suppress    bool             `yaml:"suppress,omitempty" json:"suppress,omitempty"`
	Suppression curve.Curve      `yaml:"suppression,omitempty" json:"suppression,omitempty"`
	Input       string           `yaml:"input,omitempty" json:"input,omitempty"`
	BaseTexture string           `yaml:"base_texture,omitempty" json:"base_texture,omitempty"`
	Entries     []NoiseEntrySpec `yaml:"entries,omitempty" json:"entries,omitempty"`
}

type NoisePassSpec struct {
	HeightDelta float64 `yaml:"height_delta" json:"height_delta"`
	NoiseScale  float64 `yaml:"noise_scale" json:"noise_scale"`
}

type NoiseEntrySpec struct {
	ID         string  `yaml:"id" json:"id"`
	Intensity  float64 `yaml:"intensity" json:"intensity"`
	NoiseScale float64 `yaml:"noise_scale" json:"noise_scale"`
	Threshold  float64 `yaml:"threshold" json:"threshold"`
}

// StampSpec names a greyscale image relative to the stamp directory, or a
// built-in "radial" / "flat" shape when Image is empty.
type StampSpec struct {
	Image    string  `yaml:"image,omitempty" json:"image,omitempty"`
	Shape    string  `yaml:"shape,omitempty" json:"shape,omitempty"`
	Hardness float64 `yaml:"hardness,omitempty" json:"hardness,omitempty"`
}

type PointSpec struct {
	X int `yaml:"x" json:"x"`
	Y int `yaml:"y" json:"y"`
}

type FeatureSpec struct {
	Stamp  StampSpec   `yaml:"stamp" json:"stamp"`
	Height float64     `yaml:"height" json:"height"`
	Radius int         `yaml:"radius" json:"radius"`
	Count  int         `yaml:"count,omitempty" json:"count,omitempty"`
	At     []PointSpec `yaml:"at,omitempty" json:"at,omitempty"`
}

type BuildingSpec struct {
	Stamp           StampSpec `yaml:"stamp" json:"stamp"`
	Prefab          string    `yaml:"prefab" json:"prefab"`
	Radius          int       `yaml:"radius" json:"radius"`
	Count           int       `yaml:"count" json:"count"`
	HasHeightLimits bool      `yaml:"has_height_limits,omitempty" json:"has_height_limits,omitempty"`
	MinHeight       float64   `yaml:"min_height,omitempty" json:"min_height,omitempty"`
	MaxHeight       float64   `yaml:"max_height,omitempty" json:"max_height,omitempty"`
	CanGoInWater    bool      `yaml:"can_go_in_water" json:"can_go_in_water"`
	CanGoAboveWater bool      `yaml:"can_go_above_water" json:"can_go_above_water"`
}

// PlacerSpec selects an object placer by Type ("uniform", "noise_filtered").
type PlacerSpec struct {
	Type            string       `yaml:"type" json:"type"`
	TargetDensity   float64      `yaml:"target_density,omitempty" json:"target_density,omitempty"`
	MaxSpawnCount   int          `yaml:"max_spawn_count,omitempty" json:"max_spawn_count,omitempty"`
	MaxInvalidSkips int          `yaml:"max_invalid_skips,omitempty" json:"max_invalid_skips,omitempty"`
	MaxJitter       *float64     `yaml:"max_jitter,omitempty" json:"max_jitter,omitempty"`
	NoiseScale      [2]float64   `yaml:"noise_scale,omitempty" json:"noise_scale,omitempty"`
	Threshold       *float64     `yaml:"threshold,omitempty" json:"threshold,omitempty"`
	Objects         []ObjectSpec `yaml:"objects" json:"objects"`
}

type ObjectSpec struct {
	Prefabs         []string `yaml:"prefabs" json:"prefabs"`
	Weighting       float64  `yaml:"weighting" json:"weighting"`
	HasHeightLimits bool     `yaml:"has_height_limits,omitempty" json:"has_height_limits,omitempty"`
	MinHeight       float64  `yaml:"min_height,omitempty" json:"min_height,omitempty"`
	MaxHeight       float64  `yaml:"max_height,omitempty" json:"max_height,omitempty"`
	CanGoInWater    bool     `yaml:"can_go_in_water" json:"can_go_in_water"`
	CanGoAboveWater bool     `yaml:"can_go_above_water" json:"can_go_above_water"`
}

// Load reads a YAML (.yaml, .yml) or TOML (.toml) document, applies
// defaults and validates it. An empty path yields Defaults().
func Load(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	name := filepath.Base(path)
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	cfg, err = Parse(b, filepath.Ext(path))
	if err != nil {
		return cfg, fmt.Errorf("%s: %w", name, err)
	}
	return cfg, nil
}

// Parse decodes raw bytes in the format named by ext over Defaults(), then
// normalizes and validates the result. Lists given in the document replace
// the default lists.
func Parse(raw []byte, ext string) (Config, error) {
	def := Defaults()
	cfg := Defaults()
	cfg.BiomeGenerators, cfg.Biomes = nil, nil
	switch strings.ToLower(ext) {
	case ".yaml", ".yml", "":
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		tree, err := toml.LoadBytes(raw)
		if err != nil {
			return cfg, err
		}
		js, err := json.Marshal(tree.ToMap())
		if err != nil {
			return cfg, err
		}
		dec := json.NewDecoder(bytes.NewReader(js))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config format %q", ext)
	}
	if len(cfg.BiomeGenerators) == 0 {
		cfg.BiomeGenerators = def.BiomeGenerators
	}
	if len(cfg.Biomes) == 0 {
		cfg.Biomes = def.Biomes
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Defaults is a single flat biome on a 256 map.
func Defaults() Config {
	return Config{
		RandomizeSeed: true,
		WaterHeight:   15,
		Surface: SurfaceSpec{
			MapResolution:      257,
			HeightmapScale:     [3]float64{2, 600, 2},
			AlphaResolution:    512,
			DetailResolution:   512,
			MaxDetailsPerPatch: 16,
		},
		BiomeGenerators: []GeneratorSpec{{Type: "ooze"}},
		Biomes: []BiomeSpec{
			{Name: "plains", Weighting: 1},
		},
	}
}

// Normalize fills in per-variant defaults and sorts curve keys.
func (c *Config) Normalize() {
	if c == nil {
		return
	}
	for i := range c.BiomeGenerators {
		g := &c.BiomeGenerators[i]
		g.Type = strings.ToLower(strings.TrimSpace(g.Type))
	}
	for i := range c.Biomes {
		b := &c.Biomes[i]
		b.Name = strings.TrimSpace(b.Name)
		if b.Name == "" {
			b.Name = fmt.Sprintf("biome_%d", i)
		}
		if b.MinIntensity == 0 && b.MaxIntensity == 0 {
			b.MinIntensity, b.MaxIntensity = 0.5, 1
		}
		if b.MinDecay == 0 && b.MaxDecay == 0 {
			b.MinDecay, b.MaxDecay = 0.01, 0.02
		}
		normalizeStages(b.Height)
		normalizeStages(b.Painting)
		normalizeStages(b.Details)
		for j := range b.Placement {
			normalizePlacer(&b.Placement[j])
		}
	}
	normalizeStages(c.InitialHeight)
	normalizeStages(c.HeightPost)
	normalizeStages(c.PaintingPost)
	normalizeStages(c.DetailPost)
}

func normalizeStages(list []StageSpec) {
	for i := range list {
		s := &list[i]
		s.Type = strings.ToLower(strings.TrimSpace(s.Type))
		s.Shape.Normalize()
		s.Intensity.Normalize()
		s.Suppression.Normalize()
		if s.Type == "smooth" {
			if s.KernelSize <= 0 {
				s.KernelSize = 5
			}
			if s.Adaptive {
				if s.MinKernel <= 0 {
					s.MinKernel = 2
				}
				if s.MaxKernel <= 0 {
					s.MaxKernel = 7
				}
				if s.MaxHeightThreshold <= 0 {
					s.MaxHeightThreshold = 0.5
				}
			}
		}
	}
}

func normalizePlacer(p *PlacerSpec) {
	p.Type = strings.ToLower(strings.TrimSpace(p.Type))
	if p.TargetDensity <= 0 {
		p.TargetDensity = 0.1
	}
	if p.MaxSpawnCount <= 0 {
		p.MaxSpawnCount = 1000
	}
	if p.MaxInvalidSkips <= 0 {
		p.MaxInvalidSkips = 10
	}
	if p.MaxJitter == nil {
		v := 0.15
		p.MaxJitter = &v
	}
	if p.Type == "noise_filtered" {
		if p.NoiseScale == [2]float64{} {
			p.NoiseScale = [2]float64{1.0 / 128, 1.0 / 128}
		}
		if p.Threshold == nil {
			v := 0.5
			p.Threshold = &v
		}
	}
}

func (s StageSpec) strength() float64 {
	if s.Strength == nil {
		return 1
	}
	return *s.Strength
}

// Digest fingerprints the normalized document. Seed fields are excluded
// so runs of one config with different seeds share a digest.
func (c Config) Digest() string {
	c.Seed, c.RandomizeSeed = 0, false
	b, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(b))
}
