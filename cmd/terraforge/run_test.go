package main

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"terraforge.ai/internal/config"
	"terraforge.ai/internal/persistence/indexdb"
	"terraforge.ai/internal/persistence/snapshot"
	"terraforge.ai/internal/terrain/pipeline"
)

const sampleTOML = "../../configs/terrain.toml"

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func TestRunWritesArtifacts(t *testing.T) {
	dir := t.TempDir()
	out, err := run(context.Background(), runOptions{
		ConfigPath:  sampleTOML,
		OutDir:      dir,
		DebugImages: true,
	}, quietLogger())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Status != indexdb.StatusDone || out.Seed != 7 {
		t.Fatalf("outcome: %+v", out)
	}

	snap, err := snapshot.ReadSnapshot(out.SnapshotPath)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if err := snap.Verify(); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if snap.Header.RunID != out.RunID || snap.Digests != out.Result.Digests {
		t.Fatalf("snapshot does not match run: %+v", snap.Header)
	}
	if len(snap.Placements) != out.Result.Placements {
		t.Fatalf("placements: snapshot %d, run %d", len(snap.Placements), out.Result.Placements)
	}

	for _, name := range []string{"biomes_final.png", "biomes_voronoi_base.png", "heights.png"} {
		if _, err := os.Stat(filepath.Join(out.RunDir, "debug", name)); err != nil {
			t.Fatalf("debug image %s: %v", name, err)
		}
	}

	idx, err := indexdb.OpenSQLite(filepath.Join(dir, "index", "runs.sqlite"))
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	defer idx.Close()
	row, ok, err := idx.GetRun(context.Background(), out.RunID)
	if err != nil || !ok {
		t.Fatalf("get run: ok=%v err=%v", ok, err)
	}
	if row.Status != indexdb.StatusDone || row.SnapshotPath != out.SnapshotPath || row.Digests != out.Result.Digests {
		t.Fatalf("index row: %+v", row)
	}
}

func TestRunSeedOverrideIsDeterministic(t *testing.T) {
	opts := runOptions{ConfigPath: sampleTOML, OutDir: t.TempDir(), Seed: 11, SeedSet: true, DisableDB: true, Archive: true}
	a, err := run(context.Background(), opts, quietLogger())
	if err != nil {
		t.Fatalf("run a: %v", err)
	}
	b, err := run(context.Background(), opts, quietLogger())
	if err != nil {
		t.Fatalf("run b: %v", err)
	}
	if a.Seed != 11 || b.Seed != 11 {
		t.Fatalf("seed override ignored: %d %d", a.Seed, b.Seed)
	}
	if a.RunID == b.RunID {
		t.Fatalf("run ids should differ")
	}
	if a.Result.Digests != b.Result.Digests {
		t.Fatalf("digests differ:\n%+v\n%+v", a.Result.Digests, b.Result.Digests)
	}
	archived, err := filepath.Glob(filepath.Join(opts.OutDir, "archives", "seed_11", "*.snap.zst"))
	if err != nil || len(archived) != 1 {
		t.Fatalf("archived snapshots: %v %v", archived, err)
	}
}

func TestRunCancelled(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := run(ctx, runOptions{ConfigPath: sampleTOML, OutDir: dir}, quietLogger())
	if !errors.Is(err, pipeline.ErrCancelled) {
		t.Fatalf("got %v, want cancellation", err)
	}
	if out.Status != indexdb.StatusCancelled || out.SnapshotPath != "" {
		t.Fatalf("outcome: %+v", out)
	}
	if _, err := os.Stat(filepath.Join(out.RunDir, snapshotName)); !os.IsNotExist(err) {
		t.Fatalf("snapshot written for cancelled run: %v", err)
	}

	idx, err := indexdb.OpenSQLite(filepath.Join(dir, "index", "runs.sqlite"))
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	defer idx.Close()
	row, ok, err := idx.GetRun(context.Background(), out.RunID)
	if err != nil || !ok || row.Status != indexdb.StatusCancelled {
		t.Fatalf("index row: %+v ok=%v err=%v", row, ok, err)
	}
}

func TestRunFetchedConfig(t *testing.T) {
	out, err := run(context.Background(), runOptions{
		ConfigPath: "ignored.yaml",
		Fetch:      sampleTOML,
		OutDir:     t.TempDir(),
		DisableDB:  true,
	}, quietLogger())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if filepath.Ext(out.SnapshotPath) != ".zst" || out.Seed != 7 {
		t.Fatalf("outcome: %+v", out)
	}
}

func TestChooseSeed(t *testing.T) {
	cfg := config.Defaults()
	cfg.Seed = 5

	if s, r := chooseSeed(cfg, runOptions{Seed: 9, SeedSet: true}); s != 9 || r {
		t.Fatalf("override: %d %v", s, r)
	}
	if _, r := chooseSeed(cfg, runOptions{}); !r {
		t.Fatalf("defaults randomize the seed")
	}
	cfg.RandomizeSeed = false
	if s, r := chooseSeed(cfg, runOptions{}); s != 5 || r {
		t.Fatalf("configured: %d %v", s, r)
	}
}

func TestRunStatus(t *testing.T) {
	if runStatus(nil) != indexdb.StatusDone {
		t.Fatalf("nil error")
	}
	if runStatus(pipeline.ErrCancelled) != indexdb.StatusCancelled {
		t.Fatalf("cancelled")
	}
	if runStatus(errors.New("boom")) != indexdb.StatusFailed {
		t.Fatalf("failed")
	}
}
