// Package pipeline runs a full generation: it owns the stage order,
// progress checkpoints and the final hand-off to the surface.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"terraforge.ai/internal/terrain/gen"
	"terraforge.ai/internal/terrain/place"
	"terraforge.ai/internal/terrain/surface"
)

type Options struct {
	Logger   *log.Logger
	Reporter Reporter
	Sink     place.Sink
	// OnBiomeMap receives intermediate and final biome maps.
	OnBiomeMap func(name string, m *gen.BiomeMap)
}

// Result summarizes a completed run.
type Result struct {
	Seed        int64
	Dims        gen.Dimensions
	Digests     gen.Digests
	TextureIDs  []string
	DetailIDs   []string
	BiomeCounts []int
	Placements  int
	Draws       uint64
	Elapsed     time.Duration
	Timings     []StageTiming

	// Context holds the finished grids. It must not be reused.
	Context *gen.Context
}

type StageTiming struct {
	Stage   Stage         `json:"stage"`
	Elapsed time.Duration `json:"elapsed"`
}

type runner struct {
	ctx   context.Context
	opts  Options
	c     *gen.Context
	res   *Result
	cur   Stage
	start time.Time
}

// Run generates terrain for surf from cfg and seed. The surface is only
// written after every stage has succeeded; on error or cancellation it is
// left untouched.
func Run(ctx context.Context, surf surface.Surface, cfg *gen.Config, seed int64, opts Options) (*Result, error) {
	if surf == nil {
		return nil, errors.New("pipeline: nil surface")
	}
	if cfg == nil {
		cfg = &gen.Config{}
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	dims := surf.Dimensions()
	if err := checkDimensions(dims); err != nil {
		return nil, err
	}

	c := gen.NewContext(seed, dims, cfg)
	c.Sink = opts.Sink
	c.Logger = opts.Logger
	c.OnBiomeMap = opts.OnBiomeMap

	r := &runner{
		ctx:  ctx,
		opts: opts,
		c:    c,
		res:  &Result{Seed: seed, Dims: dims, Context: c},
	}
	began := time.Now()

	if err := r.checkpoint(Beginning); err != nil {
		return nil, err
	}
	if cl, ok := opts.Sink.(place.Clearer); ok {
		if err := cl.Clear(); err != nil {
			return nil, wrap(Beginning, gen.Global, "", "clear_sink", err)
		}
	}

	if err := r.checkpoint(BuildTextureMap); err != nil {
		return nil, err
	}
	c.IndexTextures()

	if err := r.checkpoint(BuildDetailMap); err != nil {
		return nil, err
	}
	c.IndexDetails()

	if err := r.checkpoint(BuildBiomeMap); err != nil {
		return nil, err
	}
	if err := r.biomes(); err != nil {
		return nil, err
	}

	if err := r.checkpoint(HeightMapGeneration); err != nil {
		return nil, err
	}
	if err := r.heights(surf); err != nil {
		return nil, err
	}

	if err := r.checkpoint(TerrainPainting); err != nil {
		return nil, err
	}
	if err := r.painting(); err != nil {
		return nil, err
	}

	if err := r.checkpoint(ObjectPlacement); err != nil {
		return nil, err
	}
	if err := r.placement(); err != nil {
		return nil, err
	}

	if err := r.checkpoint(DetailPainting); err != nil {
		return nil, err
	}
	if err := r.details(); err != nil {
		return nil, err
	}

	if err := r.ctx.Err(); err != nil {
		return nil, ErrCancelled
	}
	r.finishStage()
	err := surf.Apply(surface.Artifacts{
		Heights:    c.Heights,
		Biomes:     c.Biomes,
		Weights:    c.Weights,
		Densities:  c.Densities,
		TextureIDs: c.Textures.IDs(),
		DetailIDs:  c.Details.IDs(),
	})
	if err != nil {
		return nil, wrap(Complete, gen.Global, "", "apply", err)
	}

	res := r.res
	res.Digests = c.Digests()
	res.TextureIDs = c.Textures.IDs()
	res.DetailIDs = c.Details.IDs()
	res.BiomeCounts = c.Biomes.Counts(max(c.NumBiomes(), 1))
	res.Placements = c.Placed()
	res.Draws = c.Draws()
	res.Elapsed = time.Since(began)
	r.report(Complete)
	r.logf("generation done seed=%d placements=%d draws=%d in %s", seed, res.Placements, res.Draws, res.Elapsed.Round(time.Millisecond))
	return res, nil
}

func checkDimensions(d gen.Dimensions) error {
	switch {
	case d.MapResolution < 2:
		return gen.ConfigErrorf("map resolution %d is too small", d.MapResolution)
	case d.AlphaResolution < 1:
		return gen.ConfigErrorf("alpha resolution %d is too small", d.AlphaResolution)
	case d.DetailResolution < 1:
		return gen.ConfigErrorf("detail resolution %d is too small", d.DetailResolution)
	case d.MaxDetailsPerPatch < 0:
		return gen.ConfigErrorf("max details per patch %d is negative", d.MaxDetailsPerPatch)
	}
	return nil
}

// checkpoint closes the running stage, checks for cancellation and
// announces s.
func (r *runner) checkpoint(s Stage) error {
	r.finishStage()
	if err := r.ctx.Err(); err != nil {
		r.logf("cancelled before %s", s)
		return ErrCancelled
	}
	r.report(s)
	r.cur = s
	r.start = time.Now()
	return nil
}

func (r *runner) finishStage() {
	if r.cur == 0 {
		return
	}
	d := time.Since(r.start)
	r.res.Timings = append(r.res.Timings, StageTiming{Stage: r.cur, Elapsed: d})
	r.logf("stage %s took %s", r.cur, d.Round(time.Microsecond))
	r.cur = 0
}

func (r *runner) report(s Stage) {
	if r.opts.Reporter == nil {
		return
	}
	r.opts.Reporter.Report(Progress{Stage: s, Ordinal: int(s), Total: NumStages, Text: s.Text()})
}

func (r *runner) logf(format string, args ...any) {
	if r.opts.Logger != nil {
		r.opts.Logger.Printf(format, args...)
	}
}

func (r *runner) biomeName(i int) string {
	if i < 0 || i >= r.c.NumBiomes() {
		return ""
	}
	return r.c.Config.Biomes[i].Name
}

func (r *runner) biomes() error {
	for _, g := range r.c.Config.Generators {
		if err := g.GenerateBiomes(r.c); err != nil {
			return wrap(BuildBiomeMap, gen.Global, "", g.Kind(), err)
		}
	}
	r.c.CaptureBiomeMap("final", r.c.Biomes)
	if n := r.c.NumBiomes(); n > 0 {
		r.logf("biome cells %v", r.c.Biomes.Counts(n))
	}
	return nil
}

func (r *runner) heightPass(biome int, stages []gen.HeightStage) error {
	for _, s := range stages {
		if err := s.ModifyHeights(r.c, biome); err != nil {
			return wrap(HeightMapGeneration, biome, r.biomeName(biome), s.Kind(), err)
		}
	}
	return nil
}

func (r *runner) heights(surf surface.Surface) error {
	c := r.c
	h := surf.Heights()
	if h == nil || h.Res != c.Dims.MapResolution {
		return wrap(HeightMapGeneration, gen.Global, "", "read_surface",
			fmt.Errorf("surface heights do not match map resolution %d", c.Dims.MapResolution))
	}
	c.Heights = h

	if err := r.heightPass(gen.Global, c.Config.InitialHeight); err != nil {
		return err
	}
	for i, b := range c.Config.Biomes {
		if err := r.heightPass(i, b.Height); err != nil {
			return err
		}
	}
	if err := r.heightPass(gen.Global, c.Config.HeightPost); err != nil {
		return err
	}
	if err := c.ComputeSlopes(); err != nil {
		return wrap(HeightMapGeneration, gen.Global, "", "slopes", err)
	}
	return nil
}

func (r *runner) paintPass(biome int, stages []gen.WeightStage) error {
	for _, s := range stages {
		if err := s.PaintWeights(r.c, biome); err != nil {
			return wrap(TerrainPainting, biome, r.biomeName(biome), s.Kind(), err)
		}
	}
	return nil
}

func (r *runner) painting() error {
	c := r.c
	clear(c.Weights.Data)
	for i, b := range c.Config.Biomes {
		if len(b.Painting) == 0 {
			continue
		}
		if err := r.paintPass(i, b.Painting); err != nil {
			return err
		}
	}
	if err := r.paintPass(gen.Global, c.Config.PaintingPost); err != nil {
		return err
	}
	if c.Config.NormalizeWeights {
		c.Weights.Normalize()
	}
	return nil
}

func (r *runner) placement() error {
	c := r.c
	if c.Config.DisableObjectPlacement {
		r.logf("object placement disabled")
		return nil
	}
	for i, b := range c.Config.Biomes {
		before := c.Placed()
		for _, p := range b.Placement {
			if err := p.PlaceObjects(c, i); err != nil {
				return wrap(ObjectPlacement, i, b.Name, p.Kind(), err)
			}
		}
		if n := c.Placed() - before; n > 0 {
			r.logf("biome %s placed %d objects", b.Name, n)
		}
	}
	return nil
}

func (r *runner) detailPass(biome int, stages []gen.DensityStage) error {
	for _, s := range stages {
		if err := s.PaintDensities(r.c, biome); err != nil {
			return wrap(DetailPainting, biome, r.biomeName(biome), s.Kind(), err)
		}
	}
	return nil
}

func (r *runner) details() error {
	c := r.c
	for i, b := range c.Config.Biomes {
		if err := r.detailPass(i, b.Details); err != nil {
			return err
		}
	}
	return r.detailPass(gen.Global, c.Config.DetailPost)
}
