package heightstage

import (
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"terraforge.ai/internal/terrain/curve"
	"terraforge.ai/internal/terrain/gen"
	"terraforge.ai/internal/terrain/stamp"
)

func newContext(res int) *gen.Context {
	cfg := &gen.Config{
		WaterHeight: 15,
		Biomes:      []gen.Biome{{Name: "left", Weighting: 1}, {Name: "right", Weighting: 1}},
	}
	dims := gen.Dimensions{MapResolution: res, HeightmapScale: mgl64.Vec3{2, 100, 2}}
	c := gen.NewContext(9, dims, cfg)
	for y := 0; y < res; y++ {
		for x := 0; x < res; x++ {
			if x >= res/2 {
				c.Biomes.Set(x, y, 1)
			}
			c.Heights.Set(x, y, 0.1+0.001*float64(x+y))
		}
	}
	return c
}

type sinkFunc func(gen.Placement) error

func (f sinkFunc) Place(p gen.Placement) error { return f(p) }

func allStages(strength float64) []gen.HeightStage {
	return []gen.HeightStage{
		Noise{Strength: strength, Passes: []NoisePass{{HeightDelta: 10, NoiseScale: 0.1}}},
		Offset{Strength: strength, Amount: 5},
		RandomDelta{Strength: strength, HeightDelta: 3},
		SetValue{Strength: strength, TargetHeight: 40},
		Islands{Strength: strength, Count: 3, MinSize: 4, MaxSize: 8, MinHeight: 10, MaxHeight: 20,
			AngleNoiseScale: 1, DistanceNoiseScale: 1, NoiseHeightDelta: 2, Shape: curve.Linear(1, 0)},
		Features{Strength: strength, Features: []Feature{{Stamp: stamp.Radial(9, 0.5), Height: 8, Radius: 3, Count: 2}}},
		Buildings{Strength: strength, Buildings: []Building{{Prefab: "hut", Radius: 2, Count: 2, CanGoAboveWater: true, CanGoInWater: true}}},
		Smooth{Strength: strength, KernelSize: 2},
	}
}

func TestZeroStrengthIsNoOp(t *testing.T) {
	for _, st := range allStages(0) {
		c := newContext(32)
		before := c.Heights.Clone()
		if err := st.ModifyHeights(c, gen.Global); err != nil {
			t.Fatalf("%s: %v", st.Kind(), err)
		}
		for i := range before.Data {
			if before.Data[i] != c.Heights.Data[i] {
				t.Fatalf("%s with strength 0 changed cell %d", st.Kind(), i)
			}
		}
	}
}

func TestSetValueIdempotent(t *testing.T) {
	st := SetValue{Strength: 1, TargetHeight: 40}
	once := newContext(16)
	twice := newContext(16)
	_ = st.ModifyHeights(once, gen.Global)
	_ = st.ModifyHeights(twice, gen.Global)
	_ = st.ModifyHeights(twice, gen.Global)
	for i := range once.Heights.Data {
		if once.Heights.Data[i] != twice.Heights.Data[i] {
			t.Fatalf("cell %d differs: %v vs %v", i, once.Heights.Data[i], twice.Heights.Data[i])
		}
		if once.Heights.Data[i] != 0.4 {
			t.Fatalf("cell %d = %v want 0.4", i, once.Heights.Data[i])
		}
	}
}

func TestBiomeFilterRestrictsWrites(t *testing.T) {
	c := newContext(16)
	before := c.Heights.Clone()
	if err := (Offset{Strength: 1, Amount: 10}).ModifyHeights(c, 1); err != nil {
		t.Fatalf("Offset: %v", err)
	}
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			changed := c.Heights.At(x, y) != before.At(x, y)
			if changed != (x >= 8) {
				t.Fatalf("cell (%d,%d) changed=%v", x, y, changed)
			}
		}
	}
}

func TestSmoothRejectsBiomeFilter(t *testing.T) {
	c := newContext(8)
	before := c.Heights.Clone()
	err := (Smooth{Strength: 1, KernelSize: 1}).ModifyHeights(c, 0)
	if !errors.Is(err, gen.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
	for i := range before.Data {
		if before.Data[i] != c.Heights.Data[i] {
			t.Fatalf("rejected smooth mutated cell %d", i)
		}
	}
}

func TestSmoothSpreadsSpike(t *testing.T) {
	c := newContext(9)
	for i := range c.Heights.Data {
		c.Heights.Data[i] = 0
	}
	c.Heights.Set(4, 4, 9)
	if err := (Smooth{Strength: 1, KernelSize: 1}).ModifyHeights(c, gen.Global); err != nil {
		t.Fatalf("Smooth: %v", err)
	}
	for y := 3; y <= 5; y++ {
		for x := 3; x <= 5; x++ {
			if math.Abs(c.Heights.At(x, y)-1) > 1e-12 {
				t.Fatalf("cell (%d,%d) = %v want 1", x, y, c.Heights.At(x, y))
			}
		}
	}
	if c.Heights.At(0, 0) != 0 {
		t.Fatalf("far cell changed: %v", c.Heights.At(0, 0))
	}
}

func TestSmoothAdaptiveKernel(t *testing.T) {
	s := Smooth{Adaptive: true, MinKernel: 2, MaxKernel: 7, MaxHeightThreshold: 0.5}
	if got := s.kernelAt(0); got != 7 {
		t.Fatalf("kernel at 0: %d", got)
	}
	if got := s.kernelAt(0.5); got != 2 {
		t.Fatalf("kernel at threshold: %d", got)
	}
	if got := s.kernelAt(0.9); got != 2 {
		t.Fatalf("kernel above threshold: %d", got)
	}
}

func TestIslandsOnlyRaise(t *testing.T) {
	c := newContext(64)
	before := c.Heights.Clone()
	st := Islands{Strength: 1, Count: 5, MinSize: 10, MaxSize: 30, MinHeight: 10, MaxHeight: 40,
		AngleNoiseScale: 1, DistanceNoiseScale: 1, NoiseHeightDelta: 5, Shape: curve.Linear(1, 0)}
	if err := st.ModifyHeights(c, gen.Global); err != nil {
		t.Fatalf("Islands: %v", err)
	}
	raised := 0
	for i := range before.Data {
		if c.Heights.Data[i] < before.Data[i] {
			t.Fatalf("cell %d lowered from %v to %v", i, before.Data[i], c.Heights.Data[i])
		}
		if c.Heights.Data[i] > before.Data[i] {
			raised++
		}
	}
	if raised == 0 {
		t.Fatalf("no cell raised")
	}
}

func TestFeaturesAtExplicitPoints(t *testing.T) {
	c := newContext(32)
	st := Features{Strength: 1, Features: []Feature{{Height: 10, Radius: 2, At: []Point{{X: 5, Y: 5}}}}}
	avg := averageHeight(c, 5, 5, 2)
	if err := st.ModifyHeights(c, gen.Global); err != nil {
		t.Fatalf("Features: %v", err)
	}
	if c.Draws() != 0 {
		t.Fatalf("explicit features should not draw, got %d draws", c.Draws())
	}
	want := avg + 10.0/100
	if got := c.Heights.At(5, 5); math.Abs(got-want) > 1e-12 {
		t.Fatalf("centre height %v want %v", got, want)
	}
}

func TestBuildingsValidate(t *testing.T) {
	st := Buildings{Strength: 1, Buildings: []Building{{Prefab: "dock"}}}
	c := newContext(16)
	if err := st.ModifyHeights(c, gen.Global); !errors.Is(err, gen.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func TestBuildingsEmitOnLatticePads(t *testing.T) {
	c := newContext(32)
	for i := range c.Heights.Data {
		c.Heights.Data[i] = 0.2
	}
	var got []gen.Placement
	c.Sink = sinkFunc(func(p gen.Placement) error {
		got = append(got, p)
		return nil
	})
	st := Buildings{Strength: 1, Buildings: []Building{{Prefab: "hut", Radius: 2, Count: 3, CanGoAboveWater: true}}}
	if err := st.ModifyHeights(c, gen.Global); err != nil {
		t.Fatalf("Buildings: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("placements %d want 3", len(got))
	}
	seen := map[[2]int]bool{}
	for _, p := range got {
		if p.Prefab != "hut" || p.Source != "buildings" {
			t.Fatalf("unexpected placement %+v", p)
		}
		x, y := int(p.Position.X()/2), int(p.Position.Z()/2)
		if (x-2)%4 != 0 || (y-2)%4 != 0 {
			t.Fatalf("placement at (%d,%d) is off the candidate lattice", x, y)
		}
		if seen[[2]int{x, y}] {
			t.Fatalf("two buildings at (%d,%d)", x, y)
		}
		seen[[2]int{x, y}] = true
		if math.Abs(p.Position.Y()-20) > 1e-9 {
			t.Fatalf("building height %v want 20", p.Position.Y())
		}
	}
}

func TestBuildingsRaiseToWaterLevel(t *testing.T) {
	c := newContext(16)
	for i := range c.Heights.Data {
		c.Heights.Data[i] = 0.1
	}
	// Only the centre of the footprint is above water.
	c.Heights.Set(2, 2, 0.2)
	st := Buildings{Strength: 1, Buildings: []Building{{Prefab: "hut", Radius: 2, Count: 1, CanGoAboveWater: true}}}
	if err := st.ModifyHeights(c, gen.Global); err != nil {
		t.Fatalf("Buildings: %v", err)
	}
	if got := c.Heights.At(1, 1); math.Abs(got-0.15) > 1e-12 {
		t.Fatalf("pad height %v want water level 0.15", got)
	}
}

func TestBuildingsSkipAboveWaterWhenForbidden(t *testing.T) {
	c := newContext(32)
	st := Buildings{Strength: 1, Buildings: []Building{{Prefab: "pier", Radius: 2, Count: 3, CanGoInWater: true}}}
	if got := st.candidates(c, gen.Global, st.Buildings[0]); len(got) == 0 {
		t.Fatalf("expected underwater candidates")
	}
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			c.Heights.Set(x, y, 0.5)
		}
	}
	if got := st.candidates(c, gen.Global, st.Buildings[0]); len(got) != 0 {
		t.Fatalf("expected no candidates above water, got %d", len(got))
	}
}
