package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"terraforge.ai/internal/config"
	persistlog "terraforge.ai/internal/persistence/log"
	"terraforge.ai/internal/persistence/snapshot"
	"terraforge.ai/internal/terrain/gen"
	"terraforge.ai/internal/terrain/pipeline"
	"terraforge.ai/internal/terrain/place"
	"terraforge.ai/internal/terrain/surface"
)

func loadVerified(path string) (snapshot.SnapshotV1, error) {
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		return snap, err
	}
	return snap, snap.Verify()
}

func summarize(w io.Writer, path string, snap snapshot.SnapshotV1) {
	size := "?"
	if st, err := os.Stat(path); err == nil {
		size = humanize.Bytes(uint64(st.Size()))
	}
	h := snap.Header
	fmt.Fprintf(w, "snapshot v%d run=%s seed=%d created=%s size=%s\n",
		h.Version, h.RunID, h.Seed, humanize.Time(time.Unix(h.CreatedUnix, 0)), size)
	d := snap.Dims
	fmt.Fprintf(w, "map=%d alpha=%dx%d detail=%d max_details=%d scale=%v config=%s draws=%s\n",
		d.MapResolution, d.AlphaResolution, snap.WeightLayers, d.DetailResolution, d.MaxDetailsPerPatch,
		d.HeightmapScale, snap.ConfigDigest, humanize.Comma(int64(snap.Draws)))

	if bm, err := snap.BiomeMap(); err == nil {
		counts := bm.Counts(len(snap.BiomeNames))
		total := len(bm.Data)
		for i, name := range snap.BiomeNames {
			pct := 0.0
			if total > 0 {
				pct = 100 * float64(counts[i]) / float64(total)
			}
			fmt.Fprintf(w, "biome %d %-16s cells=%s (%.1f%%)\n", i, name, humanize.Comma(int64(counts[i])), pct)
		}
	}
	fmt.Fprintf(w, "textures=%v details=%v\n", snap.TextureIDs, snap.DetailIDs)

	byPrefab := map[string]int{}
	for _, p := range snap.Placements {
		byPrefab[p.Prefab]++
	}
	prefabs := make([]string, 0, len(byPrefab))
	for k := range byPrefab {
		prefabs = append(prefabs, k)
	}
	sort.Strings(prefabs)
	fmt.Fprintf(w, "placements=%s\n", humanize.Comma(int64(len(snap.Placements))))
	for _, k := range prefabs {
		fmt.Fprintf(w, "  %-20s %d\n", k, byPrefab[k])
	}
	dg := snap.Digests
	fmt.Fprintf(w, "digests heights=%s biomes=%s weights=%s densities=%s placements=%s\n",
		dg.Heights, dg.Biomes, dg.Weights, dg.Densities, dg.Placements)
}

// checkPlacementLog compares the JSONL placement log in runDir with the
// snapshot's placements, record for record.
func checkPlacementLog(runDir string, snap snapshot.SnapshotV1) (int, error) {
	entries, err := persistlog.ReadPlacements(runDir)
	if err != nil {
		return 0, err
	}
	if len(entries) != len(snap.Placements) {
		return 0, fmt.Errorf("log has %d placements, snapshot %d", len(entries), len(snap.Placements))
	}
	for i, e := range entries {
		if e.RunID != snap.Header.RunID {
			return 0, fmt.Errorf("record %d belongs to run %s", e.Seq, e.RunID)
		}
		if e.Placement != snap.Placements[i] {
			return 0, fmt.Errorf("record %d differs: log %+v snapshot %+v", e.Seq, e.Placement, snap.Placements[i])
		}
	}
	return len(entries), nil
}

// replay regenerates the terrain from cfgPath with the snapshot seed and
// requires every digest to match.
func replay(ctx context.Context, snap snapshot.SnapshotV1, cfgPath, stampDir string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if snap.ConfigDigest != "" && cfg.Digest() != snap.ConfigDigest {
		return fmt.Errorf("config digest %s does not match snapshot %s", cfg.Digest(), snap.ConfigDigest)
	}
	gcfg, err := config.Build(cfg, stampDir)
	if err != nil {
		return err
	}
	res, err := pipeline.Run(ctx, surface.NewMemory(cfg.Surface.Dimensions()), gcfg, snap.Header.Seed, pipeline.Options{
		Sink: &place.Collector{},
	})
	if err != nil {
		return err
	}
	return compareDigests(res.Digests, snap.Digests)
}

func compareDigests(got, want gen.Digests) error {
	var errs []error
	for _, c := range []struct{ name, got, want string }{
		{"heights", got.Heights, want.Heights},
		{"biomes", got.Biomes, want.Biomes},
		{"weights", got.Weights, want.Weights},
		{"densities", got.Densities, want.Densities},
		{"placements", got.Placements, want.Placements},
	} {
		if c.got != c.want {
			errs = append(errs, fmt.Errorf("%s digest mismatch: got=%s want=%s", c.name, c.got, c.want))
		}
	}
	return errors.Join(errs...)
}
