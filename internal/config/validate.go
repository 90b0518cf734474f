package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"terraforge.ai/internal/terrain/gen"
	"terraforge.ai/internal/terrain/mathx"
)

//go:embed schema.json
var schemaJSON string

var schema = jsonschema.MustCompileString("terrain.schema.json", schemaJSON)

// SchemaJSON returns the embedded JSON schema for config documents.
func SchemaJSON() string { return schemaJSON }

type family int

const (
	heightFamily family = iota
	paintFamily
	detailFamily
)

var stageKinds = map[family]map[string]bool{
	heightFamily: {"noise": true, "offset": true, "random_delta": true, "set_value": true, "islands": true, "features": true, "buildings": true, "smooth": true},
	paintFamily:  {"height_band": true, "slope": true, "random_noise": true, "smooth": true},
	detailFamily: {"height_band": true, "slope": true, "random_noise": true},
}

var (
	placerKinds    = map[string]bool{"uniform": true, "noise_filtered": true}
	generatorKinds = map[string]bool{"ooze": true, "voronoi": true}
)

// Validate checks the document against the embedded schema and then the
// rules the schema cannot express.
func (c Config) Validate() error {
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return err
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", gen.ErrConfig, err)
	}

	s := c.Surface
	if !mathx.IsPowerOfTwo(s.MapResolution) && !mathx.IsPowerOfTwo(s.MapResolution-1) {
		return gen.ConfigErrorf("surface.map_resolution %d must be 2^n or 2^n+1", s.MapResolution)
	}
	if !mathx.IsPowerOfTwo(s.AlphaResolution) {
		return gen.ConfigErrorf("surface.alpha_resolution %d must be a power of two", s.AlphaResolution)
	}
	if !mathx.IsPowerOfTwo(s.DetailResolution) {
		return gen.ConfigErrorf("surface.detail_resolution %d must be a power of two", s.DetailResolution)
	}

	for i, g := range c.BiomeGenerators {
		if !generatorKinds[g.Type] {
			return gen.ConfigErrorf("biome_generators[%d]: unknown type %q", i, g.Type)
		}
	}

	textures := catalog(c.Textures)
	details := catalog(c.Details)
	names := map[string]bool{}
	for i, b := range c.Biomes {
		at := fmt.Sprintf("biomes[%d](%s)", i, b.Name)
		if names[b.Name] {
			return gen.ConfigErrorf("%s: duplicate biome name", at)
		}
		names[b.Name] = true
		if b.MinIntensity > b.MaxIntensity {
			return gen.ConfigErrorf("%s: min_intensity exceeds max_intensity", at)
		}
		if b.MinDecay > b.MaxDecay {
			return gen.ConfigErrorf("%s: min_decay_rate exceeds max_decay_rate", at)
		}
		if err := checkStages(at+".height", b.Height, heightFamily, true, textures, details); err != nil {
			return err
		}
		if err := checkStages(at+".painting", b.Painting, paintFamily, true, textures, details); err != nil {
			return err
		}
		if err := checkStages(at+".details", b.Details, detailFamily, true, textures, details); err != nil {
			return err
		}
		for j, p := range b.Placement {
			if err := checkPlacer(fmt.Sprintf("%s.placement[%d]", at, j), p); err != nil {
				return err
			}
		}
	}
	if err := checkStages("initial_height", c.InitialHeight, heightFamily, false, textures, details); err != nil {
		return err
	}
	if err := checkStages("height_post_processing", c.HeightPost, heightFamily, false, textures, details); err != nil {
		return err
	}
	if err := checkStages("painting_post_processing", c.PaintingPost, paintFamily, false, textures, details); err != nil {
		return err
	}
	return checkStages("detail_painting_post_processing", c.DetailPost, detailFamily, false, textures, details)
}

// catalog returns nil for an empty catalog, which disables reference
// checks.
func catalog(layers []LayerSpec) map[string]bool {
	if len(layers) == 0 {
		return nil
	}
	out := make(map[string]bool, len(layers))
	for _, l := range layers {
		out[l.ID] = true
	}
	return out
}

func checkStages(at string, list []StageSpec, fam family, perBiome bool, textures, details map[string]bool) error {
	for i, s := range list {
		where := fmt.Sprintf("%s[%d]", at, i)
		if !stageKinds[fam][s.Type] {
			return gen.ConfigErrorf("%s: stage type %q is not allowed here", where, s.Type)
		}
		if perBiome && s.Type == "smooth" {
			return gen.ConfigErrorf("%s: smooth cannot run per biome", where)
		}
		for _, err := range []error{s.Intensity.Validate(), s.Suppression.Validate(), s.Shape.Validate()} {
			if err != nil {
				return gen.ConfigErrorf("%s: %v", where, err)
			}
		}
		known, what := textures, "texture"
		if fam == detailFamily {
			known, what = details, "detail"
		}
		for _, id := range references(s, fam) {
			if id == "" {
				return gen.ConfigErrorf("%s: empty %s id", where, what)
			}
			if known != nil && !known[id] {
				return gen.ConfigErrorf("%s: %s %q is not in the %s catalog", where, what, id, what)
			}
		}
		for j, b := range s.Buildings {
			if !b.CanGoInWater && !b.CanGoAboveWater {
				return gen.ConfigErrorf("%s.buildings[%d] (%s): cannot go in water or above water", where, j, b.Prefab)
			}
			if b.HasHeightLimits && b.MinHeight > b.MaxHeight {
				return gen.ConfigErrorf("%s.buildings[%d] (%s): min_height exceeds max_height", where, j, b.Prefab)
			}
		}
		if s.Adaptive && s.MinKernel > s.MaxKernel {
			return gen.ConfigErrorf("%s: min_kernel exceeds max_kernel", where)
		}
	}
	return nil
}

// references lists the texture or detail ids a painting stage writes to.
func references(s StageSpec, fam family) []string {
	if fam == heightFamily {
		return nil
	}
	switch s.Type {
	case "height_band", "slope":
		if fam == detailFamily {
			return []string{s.Detail}
		}
		return []string{s.Texture}
	case "random_noise":
		var out []string
		if fam == paintFamily {
			out = append(out, s.BaseTexture)
		}
		for _, e := range s.Entries {
			out = append(out, e.ID)
		}
		return out
	}
	return nil
}

func checkPlacer(at string, p PlacerSpec) error {
	if !placerKinds[p.Type] {
		return gen.ConfigErrorf("%s: unknown placer type %q", at, p.Type)
	}
	for i, o := range p.Objects {
		if len(o.Prefabs) == 0 {
			return gen.ConfigErrorf("%s.objects[%d]: no prefabs", at, i)
		}
		if !o.CanGoInWater && !o.CanGoAboveWater {
			return gen.ConfigErrorf("%s.objects[%d] %s: cannot go in water or above water", at, i, strings.Join(o.Prefabs, ","))
		}
		if o.HasHeightLimits && o.MinHeight > o.MaxHeight {
			return gen.ConfigErrorf("%s.objects[%d]: min_height exceeds max_height", at, i)
		}
	}
	return nil
}
