package gen

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
)

// Digests fingerprints every artifact of a run. Two runs with the same
// seed and config must produce equal digests.
type Digests struct {
	Heights    string `json:"heights"`
	Biomes     string `json:"biomes"`
	Weights    string `json:"weights"`
	Densities  string `json:"densities"`
	Placements string `json:"placements"`
}

func (c *Context) Digests() Digests {
	d := Digests{
		Heights:    HashFloats(c.Heights.Data),
		Biomes:     HashBytes(c.Biomes.Data),
		Placements: fmt.Sprintf("%016x", c.placedHash.Sum64()),
	}
	if c.Weights != nil {
		d.Weights = HashFloats(c.Weights.Data)
	}
	if c.Densities != nil {
		d.Densities = HashCounts(c.Densities.Layers)
	}
	return d
}

func HashFloats(data []float64) string {
	h := xxhash.New()
	var tmp [8]byte
	for _, v := range data {
		binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(v))
		h.Write(tmp[:])
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

func HashBytes(data []uint8) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

// HashCounts hashes density layers in order as little-endian int64s.
func HashCounts(layers [][]int) string {
	h := xxhash.New()
	var tmp [8]byte
	for _, layer := range layers {
		for _, v := range layer {
			binary.LittleEndian.PutUint64(tmp[:], uint64(int64(v)))
			h.Write(tmp[:])
		}
	}
	return fmt.Sprintf("%016x", h.Sum64())
}
