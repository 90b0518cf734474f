package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"terraforge.ai/internal/terrain/gen"
)

const Version = 1

// Header is written as a JSON line ahead of the gob body so tools can
// identify a snapshot without decoding the grids.
type Header struct {
	Version     int    `json:"version"`
	RunID       string `json:"run_id"`
	Seed        int64  `json:"seed"`
	CreatedUnix int64  `json:"created_unix"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	Dims         gen.Dimensions `json:"dims"`
	ConfigDigest string         `json:"config_digest"`
	Digests      gen.Digests    `json:"digests"`
	Draws        uint64         `json:"draws"`

	BiomeNames []string  `json:"biome_names"`
	Heights    []float64 `json:"heights"`
	Biomes     []uint8   `json:"biomes"`
	Strengths  []float64 `json:"strengths"`
	Slopes     []float64 `json:"slopes,omitempty"`

	TextureIDs   []string  `json:"texture_ids"`
	WeightLayers int       `json:"weight_layers"`
	Weights      []float64 `json:"weights"`

	DetailIDs []string `json:"detail_ids"`
	Densities [][]int  `json:"densities"`

	Placements []gen.Placement `json:"placements,omitempty"`
}

// FromContext copies the finished grids of a run. Placements are the
// records the caller collected from the sink.
func FromContext(h Header, c *gen.Context, placements []gen.Placement) SnapshotV1 {
	h.Version = Version
	if h.Seed == 0 {
		h.Seed = c.Seed
	}
	snap := SnapshotV1{
		Header:     h,
		Dims:       c.Dims,
		Digests:    c.Digests(),
		Draws:      c.Draws(),
		TextureIDs: c.Textures.IDs(),
		DetailIDs:  c.Details.IDs(),
		Placements: append([]gen.Placement(nil), placements...),
	}
	for _, b := range c.Config.Biomes {
		snap.BiomeNames = append(snap.BiomeNames, b.Name)
	}
	if c.Heights != nil {
		snap.Heights = append([]float64(nil), c.Heights.Data...)
	}
	if c.Biomes != nil {
		snap.Biomes = append([]uint8(nil), c.Biomes.Data...)
	}
	if c.Strengths != nil {
		snap.Strengths = append([]float64(nil), c.Strengths.Data...)
	}
	if c.Slopes != nil {
		snap.Slopes = append([]float64(nil), c.Slopes.Data...)
	}
	if c.Weights != nil {
		snap.WeightLayers = c.Weights.Layers
		snap.Weights = append([]float64(nil), c.Weights.Data...)
	}
	if c.Densities != nil {
		for _, l := range c.Densities.Layers {
			snap.Densities = append(snap.Densities, append([]int(nil), l...))
		}
	}
	return snap
}

// HeightField rebuilds the height grid.
func (s SnapshotV1) HeightField() (*gen.FloatGrid, error) {
	res := s.Dims.MapResolution
	if len(s.Heights) != res*res {
		return nil, fmt.Errorf("snapshot: %d heights for map resolution %d", len(s.Heights), res)
	}
	return &gen.FloatGrid{Res: res, Data: append([]float64(nil), s.Heights...)}, nil
}

// BiomeMap rebuilds the biome index grid.
func (s SnapshotV1) BiomeMap() (*gen.BiomeMap, error) {
	res := s.Dims.MapResolution
	if len(s.Biomes) != res*res {
		return nil, fmt.Errorf("snapshot: %d biome cells for map resolution %d", len(s.Biomes), res)
	}
	return &gen.BiomeMap{Res: res, Data: append([]uint8(nil), s.Biomes...)}, nil
}

// Verify recomputes the grid digests from the stored data and compares
// them with the recorded ones. The placement digest is order dependent and
// is checked by replaying the run instead.
func (s SnapshotV1) Verify() error {
	type check struct{ name, got, want string }
	checks := []check{
		{"heights", gen.HashFloats(s.Heights), s.Digests.Heights},
		{"biomes", gen.HashBytes(s.Biomes), s.Digests.Biomes},
	}
	if s.Digests.Weights != "" {
		checks = append(checks, check{"weights", gen.HashFloats(s.Weights), s.Digests.Weights})
	}
	if s.Digests.Densities != "" {
		checks = append(checks, check{"densities", gen.HashCounts(s.Densities), s.Digests.Densities})
	}
	for _, c := range checks {
		if c.got != c.want {
			return fmt.Errorf("snapshot: %s digest %s does not match recorded %s", c.name, c.got, c.want)
		}
	}
	return nil
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

func openReader(path string) (*os.File, *zstd.Decoder, *bufio.Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, err
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, nil, nil, err
	}
	return f, dec, bufio.NewReaderSize(dec, 256*1024), nil
}

// ReadHeader decodes only the leading JSON line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, dec, br, err := openReader(path)
	if err != nil {
		return h, err
	}
	defer f.Close()
	defer dec.Close()

	line, err := br.ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	if h.Version != Version {
		return h, fmt.Errorf("unsupported snapshot version %d", h.Version)
	}
	return h, nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, dec, br, err := openReader(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()
	defer dec.Close()

	// The gob body repeats the header.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, errors.New("snapshot: version mismatch")
	}
	return snap, nil
}
