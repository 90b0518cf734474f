package indexdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	_ "modernc.org/sqlite"

	"terraforge.ai/internal/terrain/gen"
	"terraforge.ai/internal/terrain/pipeline"
)

func TestSQLiteIndex_RunLifecycle(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.db")

	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := idx.StartRun(ctx, Run{RunID: "r1", Seed: 42, ConfigPath: "configs/terrain.yaml", ConfigDigest: "cfg", MapRes: 129, Biomes: 2}); err != nil {
		t.Fatalf("StartRun: %v", err)
	}

	rep := idx.Reporter("r1")
	for s := pipeline.Beginning; s <= pipeline.Complete; s++ {
		rep.Report(pipeline.Progress{Stage: s, Ordinal: int(s), Total: pipeline.NumStages, Text: s.Text()})
	}
	sink := idx.Placements("r1")
	if err := sink.Place(gen.NewPlacement(0, "uniform", "stale", mgl64.Vec3{}, 0)); err != nil {
		t.Fatalf("Place: %v", err)
	}
	if err := sink.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	for i := 0; i < 3; i++ {
		_ = sink.Place(gen.NewPlacement(1, "uniform", "oak", mgl64.Vec3{float64(i), 1, 2}, 30))
	}
	_ = sink.Place(gen.NewPlacement(1, "buildings", "hut", mgl64.Vec3{5, 1, 5}, 0))

	res := &pipeline.Result{Placements: 4, Draws: 1234, Digests: gen.Digests{Heights: "h1", Biomes: "b1"}}
	if err := idx.FinishRun(ctx, "r1", StatusDone, res, "/runs/r1.tfs.zst"); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	counts, err := idx.CountPlacements(ctx, "r1")
	if err != nil {
		t.Fatalf("CountPlacements: %v", err)
	}
	if counts["oak"] != 3 || counts["hut"] != 1 || counts["stale"] != 0 {
		t.Fatalf("counts: %v", counts)
	}

	runs, err := idx.FindRunsBySeed(ctx, 42)
	if err != nil {
		t.Fatalf("FindRunsBySeed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs: %d", len(runs))
	}
	r := runs[0]
	if r.Status != StatusDone || r.Placements != 4 || r.Draws != 1234 || r.Digests.Heights != "h1" || r.SnapshotPath != "/runs/r1.tfs.zst" {
		t.Fatalf("run row: %+v", r)
	}
	if r.FinishedAt.IsZero() || r.StartedAt.IsZero() {
		t.Fatalf("timestamps not recorded: %+v", r)
	}
	if _, ok, err := idx.GetRun(ctx, "missing"); ok || err != nil {
		t.Fatalf("GetRun(missing): ok=%v err=%v", ok, err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM checkpoints WHERE run_id='r1'`).Scan(&n); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if n != 9 {
		t.Fatalf("checkpoints=%d want 9", n)
	}
	var text string
	if err := db.QueryRow(`SELECT text FROM checkpoints WHERE run_id='r1' AND ordinal=4`).Scan(&text); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if text != "Build biome map..." {
		t.Fatalf("checkpoint text %q", text)
	}
}

func TestSQLiteIndex_FinishUnknownRun(t *testing.T) {
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer idx.Close()
	if err := idx.FinishRun(context.Background(), "nope", StatusFailed, nil, ""); err == nil {
		t.Fatalf("expected error for unknown run")
	}
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqPlacement}

	s.Reporter("r").Report(pipeline.Progress{Ordinal: 1})
	rec := s.Placements("r")
	_ = rec.Place(gen.Placement{})
	_ = rec.Clear()

	st := s.Stats()
	if st.DropCheckpointTotal != 1 || st.DropPlacementTotal != 1 || st.DropClearTotal != 1 {
		t.Fatalf("drops: %+v", st)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}
