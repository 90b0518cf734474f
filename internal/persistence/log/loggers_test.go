package log

import (
	"encoding/json"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"terraforge.ai/internal/terrain/gen"
	"terraforge.ai/internal/terrain/pipeline"
)

func TestPlacementLogRoundTrip(t *testing.T) {
	dir := t.TempDir()
	l := NewPlacementLog(dir, "run-7")
	if l.Path() != "" {
		t.Fatalf("path before first write: %q", l.Path())
	}
	if err := l.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	for i := 0; i < 3; i++ {
		p := gen.NewPlacement(i, "uniform", "tree", mgl64.Vec3{float64(i), 0, 1}, 90)
		if err := l.Place(p); err != nil {
			t.Fatalf("place: %v", err)
		}
	}
	path := l.Path()
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var got []PlacementEntry
	lines := 0
	err := ReadJSONL(path, func(line []byte) error {
		lines++
		var e PlacementEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return err
		}
		if e.Seq > 0 {
			got = append(got, e)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if lines != 4 || len(got) != 3 {
		t.Fatalf("lines=%d placements=%d", lines, len(got))
	}
	if got[2].Seq != 3 || got[2].RunID != "run-7" || got[2].Biome != 2 || got[2].Prefab != "tree" {
		t.Fatalf("last entry: %+v", got[2])
	}
}

func TestProgressLog(t *testing.T) {
	l := NewProgressLog(t.TempDir(), "run-8")
	l.Report(pipeline.Progress{Stage: pipeline.Beginning, Ordinal: 1, Total: 9, Text: pipeline.Beginning.Text()})
	l.Report(pipeline.Progress{Stage: pipeline.Complete, Ordinal: 9, Total: 9, Text: pipeline.Complete.Text()})
	path := l.Path()
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if l.Err() != nil {
		t.Fatalf("report error: %v", l.Err())
	}
	var texts []string
	err := ReadJSONL(path, func(line []byte) error {
		var e ProgressEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return err
		}
		texts = append(texts, e.Text)
		return nil
	})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(texts) != 2 || texts[1] != "Generation completed." {
		t.Fatalf("texts: %v", texts)
	}
}

func TestReadPlacementsAfterClear(t *testing.T) {
	dir := t.TempDir()
	l := NewPlacementLog(dir, "run-9")
	for i := 0; i < 2; i++ {
		if err := l.Place(gen.NewPlacement(0, "uniform", "stale", mgl64.Vec3{}, 0)); err != nil {
			t.Fatalf("place: %v", err)
		}
	}
	if err := l.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	want := gen.NewPlacement(1, "noise_filtered", "rock", mgl64.Vec3{1.25, 3, -7.5}, 33.3)
	if err := l.Place(want); err != nil {
		t.Fatalf("place: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	got, err := ReadPlacements(dir)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 1 || got[0].Placement != want || got[0].Seq != 1 {
		t.Fatalf("placements: %+v", got)
	}
}

func TestListJSONLMissingDir(t *testing.T) {
	if _, err := ListJSONL(t.TempDir()+"/nope", "placements"); err == nil {
		t.Fatalf("expected error")
	}
}
