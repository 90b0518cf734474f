package assets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const doc = "seed: 3\n"

func writeSource(t *testing.T) string {
	t.Helper()
	src := filepath.Join(t.TempDir(), "pack")
	if err := os.MkdirAll(filepath.Join(src, "stamps"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(src, "terrain.toml"), []byte("seed = 3\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(src, "terrain.yaml"), []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(src, "stamps", "crater.png"), []byte("png"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return src
}

func TestFetchDirectory(t *testing.T) {
	src := writeSource(t)
	b, err := Fetch(context.Background(), src, t.TempDir(), "")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if filepath.Base(b.Config) != "terrain.yaml" {
		t.Fatalf("config: got %q, want terrain.yaml first", b.Config)
	}
	got, err := os.ReadFile(b.Config)
	if err != nil || string(got) != doc {
		t.Fatalf("config contents: %q %v", got, err)
	}
	if _, err := os.Stat(filepath.Join(b.Dir, "stamps", "crater.png")); err != nil {
		t.Fatalf("stamp missing from bundle: %v", err)
	}
}

func TestFetchSingleFileRelative(t *testing.T) {
	src := writeSource(t)
	b, err := Fetch(context.Background(), "terrain.yaml", t.TempDir(), src)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if filepath.Ext(b.Config) != ".yaml" {
		t.Fatalf("config extension lost: %q", b.Config)
	}
	got, err := os.ReadFile(b.Config)
	if err != nil || string(got) != doc {
		t.Fatalf("config contents: %q %v", got, err)
	}
}

func TestFetchErrors(t *testing.T) {
	if _, err := Fetch(context.Background(), " ", t.TempDir(), ""); err == nil {
		t.Fatalf("expected error for empty source")
	}
	missing := filepath.Join(t.TempDir(), "nope")
	if _, err := Fetch(context.Background(), missing, t.TempDir(), ""); err == nil {
		t.Fatalf("expected error for missing source")
	}
}

func TestFindConfigMissing(t *testing.T) {
	_, err := FindConfig(t.TempDir())
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("got %v, want ErrNotExist", err)
	}
}

func TestConfigExt(t *testing.T) {
	cases := map[string]string{
		"configs/terrain.yaml":                              ".yaml",
		"https://example.com/t/world.TOML?checksum=md5:abc": ".toml",
		"git::https://example.com/repo.git//worlds/a.yml":   ".yml",
		"git::https://example.com/repo.git//worlds":         "",
		"https://example.com/pack.tar.gz":                   "",
		"./pack":                                            "",
	}
	for src, want := range cases {
		if got := configExt(src); got != want {
			t.Fatalf("%s: got %q want %q", src, got, want)
		}
	}
}
