package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"terraforge.ai/internal/persistence/snapshot"
	"terraforge.ai/internal/terrain/gen"
)

type SeedArchiveMeta struct {
	Seed         int64       `json:"seed"`
	ConfigDigest string      `json:"config_digest"`
	RunID        string      `json:"run_id"`
	Snapshot     string      `json:"snapshot"`
	Digests      gen.Digests `json:"digests"`
	CreatedAt    string      `json:"created_at"`
}

// ArchiveSeedSnapshot keeps one canonical snapshot per (seed, config) pair
// under `outDir/archives/seed_<seed>/`. The first run to finish wins; a
// later run with the same pair is only checked against the archived
// digests. It returns archived=true when the snapshot was copied.
func ArchiveSeedSnapshot(outDir, snapshotPath string, snap snapshot.SnapshotV1) (archivedPath string, archived bool, err error) {
	key := snap.ConfigDigest
	if key == "" {
		key = "unknown"
	}
	archiveDir := filepath.Join(outDir, "archives", fmt.Sprintf("seed_%d", snap.Header.Seed))
	dst := filepath.Join(archiveDir, key+".snap.zst")
	metaPath := filepath.Join(archiveDir, key+".meta.json")

	if b, err := os.ReadFile(metaPath); err == nil {
		var prev SeedArchiveMeta
		if err := json.Unmarshal(b, &prev); err != nil {
			return "", false, fmt.Errorf("%s: %w", filepath.Base(metaPath), err)
		}
		if prev.Digests != snap.Digests {
			return dst, false, fmt.Errorf("seed %d config %s: run %s digests differ from archived run %s", snap.Header.Seed, key, snap.Header.RunID, prev.RunID)
		}
		return dst, false, nil
	} else if !os.IsNotExist(err) {
		return "", false, err
	}

	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", false, err
	}
	if err := copyFile(snapshotPath, dst); err != nil {
		return "", false, err
	}

	meta := SeedArchiveMeta{
		Seed:         snap.Header.Seed,
		ConfigDigest: snap.ConfigDigest,
		RunID:        snap.Header.RunID,
		Snapshot:     filepath.Base(dst),
		Digests:      snap.Digests,
		CreatedAt:    time.Now().UTC().Format(time.RFC3339Nano),
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", false, err
	}
	if err := os.WriteFile(metaPath, b, 0o644); err != nil {
		return "", false, err
	}
	return dst, true, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
