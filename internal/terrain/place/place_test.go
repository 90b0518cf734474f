package place

import (
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"terraforge.ai/internal/terrain/gen"
)

// newContext builds a 64x64 map where the first `inBiome` cells (row-major)
// belong to biome 0 and everything sits at height h (world units).
func newContext(inBiome int, h float64) *gen.Context {
	cfg := &gen.Config{
		WaterHeight: 15,
		Biomes:      []gen.Biome{{Name: "forest", Weighting: 1}, {Name: "other", Weighting: 1}},
	}
	dims := gen.Dimensions{MapResolution: 64, HeightmapScale: mgl64.Vec3{2, 100, 2}}
	c := gen.NewContext(21, dims, cfg)
	for i := range c.Biomes.Data {
		if i >= inBiome {
			c.Biomes.Data[i] = 1
		}
		c.Heights.Data[i] = h / 100
	}
	return c
}

func settings(entries ...Entry) Settings {
	return Settings{
		TargetDensity:   DefaultTargetDensity,
		MaxSpawnCount:   DefaultMaxSpawnCount,
		MaxInvalidSkips: DefaultMaxInvalidSkips,
		MaxJitter:       DefaultMaxJitter,
		Entries:         entries,
	}
}

func TestNormalizedWeightingsSumToOne(t *testing.T) {
	cases := [][]float64{{1}, {0.2, 0.3}, {0, 5, 1}, {0.1, 0.1, 0.1, 0.7}}
	for _, ws := range cases {
		var entries []Entry
		for _, w := range ws {
			entries = append(entries, Entry{Weighting: w})
		}
		sum := 0.0
		for _, v := range NormalizedWeightings(entries) {
			sum += v
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Fatalf("weightings %v normalize to sum %v", ws, sum)
		}
	}
	for _, v := range NormalizedWeightings([]Entry{{}, {}}) {
		if v != 0 {
			t.Fatalf("zero weightings should stay zero")
		}
	}
}

func TestTargetCount(t *testing.T) {
	cases := []struct {
		weight     float64
		maxSpawn   int
		candidates int
		density    float64
		want       int
	}{
		{1, 1000, 2000, 0.1, 200},
		{1, 100, 2000, 0.1, 100},
		{0.5, 1000, 2000, 0.1, 100},
		{1, 1000, 0, 0.1, 0},
		{0.3, 1000, 15, 0.1, 0},
	}
	for _, tc := range cases {
		if got := TargetCount(tc.weight, tc.maxSpawn, tc.candidates, tc.density); got != tc.want {
			t.Fatalf("TargetCount(%v,%d,%d,%v)=%d want %d", tc.weight, tc.maxSpawn, tc.candidates, tc.density, got, tc.want)
		}
	}
}

func TestUniform_PlacementBound(t *testing.T) {
	c := newContext(2000, 50)
	sink := &Collector{}
	c.Sink = sink
	p := Uniform{Settings: settings(Entry{Prefabs: []string{"oak", "birch"}, Weighting: 1, CanGoAboveWater: true})}
	if err := p.PlaceObjects(c, 0); err != nil {
		t.Fatalf("PlaceObjects: %v", err)
	}
	if len(sink.Records) != 200 {
		t.Fatalf("placed %d want 200", len(sink.Records))
	}
	seen := map[[2]int]bool{}
	for _, r := range sink.Records {
		if r.Biome != 0 || r.Source != "uniform" {
			t.Fatalf("unexpected record %+v", r)
		}
		if r.Prefab != "oak" && r.Prefab != "birch" {
			t.Fatalf("unexpected prefab %q", r.Prefab)
		}
		if r.YawDegrees < 0 || r.YawDegrees > 360 {
			t.Fatalf("yaw %v out of range", r.YawDegrees)
		}
		cell := [2]int{int(math.Round(r.Position.X() / 2)), int(math.Round(r.Position.Z() / 2))}
		if seen[cell] {
			t.Fatalf("cell %v used twice", cell)
		}
		seen[cell] = true
		if cell[1]*64+cell[0] >= 2000 {
			t.Fatalf("cell %v outside biome", cell)
		}
	}
}

func TestBothForbiddenIsFatal(t *testing.T) {
	c := newContext(100, 50)
	sink := &Collector{}
	c.Sink = sink
	p := Uniform{Settings: settings(Entry{Prefabs: []string{"rock"}, Weighting: 1})}
	if err := p.PlaceObjects(c, 0); !errors.Is(err, gen.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
	if len(sink.Records) != 0 || c.Draws() != 0 {
		t.Fatalf("rejected placer still ran: %d records, %d draws", len(sink.Records), c.Draws())
	}
}

func TestRejectionCapStopsEntry(t *testing.T) {
	c := newContext(2000, 5)
	sink := &Collector{}
	c.Sink = sink
	p := Uniform{Settings: settings(Entry{Prefabs: []string{"oak"}, Weighting: 1, CanGoAboveWater: true})}
	if err := p.PlaceObjects(c, 0); err != nil {
		t.Fatalf("PlaceObjects: %v", err)
	}
	if len(sink.Records) != 0 {
		t.Fatalf("placed %d objects under water", len(sink.Records))
	}
	if c.Draws() != DefaultMaxInvalidSkips {
		t.Fatalf("draws %d want %d", c.Draws(), DefaultMaxInvalidSkips)
	}
}

func TestRejectionCapDefaultsWhenUnset(t *testing.T) {
	c := newContext(2000, 5)
	sink := &Collector{}
	c.Sink = sink
	s := settings(Entry{Prefabs: []string{"oak"}, Weighting: 1, CanGoAboveWater: true})
	s.MaxInvalidSkips = 0
	if err := (Uniform{Settings: s}).PlaceObjects(c, 0); err != nil {
		t.Fatalf("PlaceObjects: %v", err)
	}
	if c.Draws() != DefaultMaxInvalidSkips {
		t.Fatalf("draws %d want %d", c.Draws(), DefaultMaxInvalidSkips)
	}
}

func TestHeightLimits(t *testing.T) {
	e := Entry{CanGoAboveWater: true, HasHeightLimits: true, MinHeight: 20, MaxHeight: 40}
	cases := []struct {
		h    float64
		want bool
	}{{10, false}, {19.9, false}, {20, true}, {39.9, true}, {40, false}}
	for _, tc := range cases {
		if got := e.accepts(tc.h, 15); got != tc.want {
			t.Fatalf("accepts(%v)=%v want %v", tc.h, got, tc.want)
		}
	}
}

func TestNoiseFilteredCandidates(t *testing.T) {
	c := newContext(4096, 50)
	all := candidates(c, 0, nil)
	if len(all) != 4096 {
		t.Fatalf("uniform candidates %d", len(all))
	}
	filtered := candidates(c, 0, func(x, y int) bool { return x%2 == 0 })
	if len(filtered) != 2048 {
		t.Fatalf("filtered candidates %d want 2048", len(filtered))
	}

	sink := &Collector{}
	c.Sink = sink
	p := NoiseFiltered{ScaleX: 1.0 / 16, ScaleY: 1.0 / 16, Threshold: 0.5}
	p.Settings = settings(Entry{Prefabs: []string{"bush"}, Weighting: 1, CanGoAboveWater: true})
	if err := p.PlaceObjects(c, 0); err != nil {
		t.Fatalf("PlaceObjects: %v", err)
	}
	if len(sink.Records) == 0 {
		t.Fatalf("noise filtered placer placed nothing")
	}
	for _, r := range sink.Records {
		if r.Source != "noise_filtered" {
			t.Fatalf("source %q", r.Source)
		}
	}

	empty := NoiseFiltered{Threshold: 1.1, Settings: p.Settings}
	sink.Records = nil
	if err := empty.PlaceObjects(c, 0); err != nil {
		t.Fatalf("PlaceObjects: %v", err)
	}
	if len(sink.Records) != 0 {
		t.Fatalf("threshold above 1 should leave no candidates")
	}
}

func TestMultiSinkClears(t *testing.T) {
	a, b := &Collector{}, &Collector{}
	m := Multi{a, b}
	if err := m.Place(Record{Prefab: "x"}); err != nil {
		t.Fatalf("Place: %v", err)
	}
	if len(a.Records) != 1 || len(b.Records) != 1 {
		t.Fatalf("fan-out failed")
	}
	if err := m.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if len(a.Records) != 0 || len(b.Records) != 0 {
		t.Fatalf("clear failed")
	}
}
