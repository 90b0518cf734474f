package snapshot

import (
	"path/filepath"
	"reflect"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"terraforge.ai/internal/terrain/gen"
)

func testContext() *gen.Context {
	dims := gen.Dimensions{
		MapResolution:      8,
		HeightmapScale:     mgl64.Vec3{1, 10, 1},
		AlphaResolution:    8,
		DetailResolution:   8,
		MaxDetailsPerPatch: 4,
	}
	c := gen.NewContext(99, dims, &gen.Config{Biomes: []gen.Biome{{Name: "a"}, {Name: "b"}}})
	c.IndexTextures()
	c.IndexDetails()
	for i := range c.Heights.Data {
		c.Heights.Data[i] = float64(i) / 64
		c.Biomes.Data[i] = uint8(i % 2)
	}
	return c
}

func TestWriteReadRoundTrip(t *testing.T) {
	c := testContext()
	recs := []gen.Placement{gen.NewPlacement(1, "uniform", "tree", mgl64.Vec3{1, 2, 3}, 45)}
	snap := FromContext(Header{RunID: "run-1", CreatedUnix: 1700000000}, c, recs)
	snap.ConfigDigest = "abc"

	path := filepath.Join(t.TempDir(), "out", "run-1.tfs.zst")
	if err := WriteSnapshot(path, snap); err != nil {
		t.Fatalf("write: %v", err)
	}

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("read header: %v", err)
	}
	if h.RunID != "run-1" || h.Seed != 99 || h.Version != Version {
		t.Fatalf("header: %+v", h)
	}

	got, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Digests != c.Digests() {
		t.Fatalf("digests changed: %+v vs %+v", got.Digests, c.Digests())
	}
	if !reflect.DeepEqual(got.BiomeNames, []string{"a", "b"}) || got.ConfigDigest != "abc" {
		t.Fatalf("metadata: %v %q", got.BiomeNames, got.ConfigDigest)
	}
	if len(got.Placements) != 1 || got.Placements[0].Prefab != "tree" {
		t.Fatalf("placements: %+v", got.Placements)
	}
	if err := got.Verify(); err != nil {
		t.Fatalf("verify: %v", err)
	}
	hf, err := got.HeightField()
	if err != nil {
		t.Fatalf("height field: %v", err)
	}
	if hf.At(3, 2) != c.Heights.At(3, 2) {
		t.Fatalf("height mismatch")
	}
	bm, err := got.BiomeMap()
	if err != nil || bm.At(1, 0) != 1 {
		t.Fatalf("biome map: %v", err)
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	snap := FromContext(Header{RunID: "x"}, testContext(), nil)
	snap.Heights[5] += 0.5
	if err := snap.Verify(); err == nil {
		t.Fatalf("expected digest mismatch")
	}
}

func TestHeightFieldRejectsBadLength(t *testing.T) {
	snap := FromContext(Header{}, testContext(), nil)
	snap.Heights = snap.Heights[:10]
	if _, err := snap.HeightField(); err == nil {
		t.Fatalf("expected error for truncated heights")
	}
}
