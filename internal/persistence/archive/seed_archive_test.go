package archive

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"terraforge.ai/internal/persistence/snapshot"
	"terraforge.ai/internal/terrain/gen"
)

func writeDummy(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestArchiveSeedSnapshot(t *testing.T) {
	dir := t.TempDir()
	snap := snapshot.SnapshotV1{
		Header:       snapshot.Header{Version: 1, RunID: "r1", Seed: 42},
		ConfigDigest: "abcd",
		Digests:      gen.Digests{Heights: "h1", Biomes: "b1"},
	}
	src := writeDummy(t, dir, "first.snap.zst", "first")

	path, ok, err := ArchiveSeedSnapshot(dir, src, snap)
	if err != nil || !ok {
		t.Fatalf("archive: ok=%v err=%v", ok, err)
	}
	if filepath.Base(filepath.Dir(path)) != "seed_42" || filepath.Base(path) != "abcd.snap.zst" {
		t.Fatalf("archived path: %s", path)
	}
	got, err := os.ReadFile(path)
	if err != nil || string(got) != "first" {
		t.Fatalf("archived content: %q %v", got, err)
	}

	// Same seed and config, same digests: kept as is.
	again := snap
	again.Header.RunID = "r2"
	src2 := writeDummy(t, dir, "second.snap.zst", "second")
	if _, ok, err := ArchiveSeedSnapshot(dir, src2, again); err != nil || ok {
		t.Fatalf("repeat: ok=%v err=%v", ok, err)
	}
	got, _ = os.ReadFile(path)
	if string(got) != "first" {
		t.Fatalf("archive overwritten: %q", got)
	}

	// Same pair, different output: reported.
	drift := again
	drift.Digests.Heights = "h2"
	_, _, err = ArchiveSeedSnapshot(dir, src2, drift)
	if err == nil || !strings.Contains(err.Error(), "archived run r1") {
		t.Fatalf("drift: got %v", err)
	}
}

func TestArchiveSeedSnapshotMissingSource(t *testing.T) {
	snap := snapshot.SnapshotV1{Header: snapshot.Header{Seed: 1}}
	if _, _, err := ArchiveSeedSnapshot(t.TempDir(), filepath.Join(t.TempDir(), "nope"), snap); err == nil {
		t.Fatalf("expected error")
	}
}
