// Package debugimg renders biome and height grids as PNG files for
// inspection.
package debugimg

import (
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"

	"terraforge.ai/internal/terrain/gen"
)

// MinSide is the smallest rendered edge; smaller grids are upscaled with
// nearest neighbour so low resolution maps stay readable.
const MinSide = 256

// BiomeColor spreads n biomes evenly around the hue circle.
func BiomeColor(i, n int) color.RGBA {
	if n <= 0 {
		n = 1
	}
	h := float64(i%n) / float64(n)
	r, g, b := hsv(h, 0.65, 0.9)
	return color.RGBA{R: r, G: g, B: b, A: 0xff}
}

func hsv(h, s, v float64) (uint8, uint8, uint8) {
	h6 := h * 6
	c := v * s
	x := c * (1 - math.Abs(math.Mod(h6, 2)-1))
	m := v - c
	var r, g, b float64
	switch int(h6) % 6 {
	case 0:
		r, g, b = c, x, 0
	case 1:
		r, g, b = x, c, 0
	case 2:
		r, g, b = 0, c, x
	case 3:
		r, g, b = 0, x, c
	case 4:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	to8 := func(f float64) uint8 { return uint8(math.Round((f + m) * 255)) }
	return to8(r), to8(g), to8(b)
}

// Biomes renders a biome index grid. Row y of the grid is image row y.
func Biomes(m *gen.BiomeMap, numBiomes int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, m.Res, m.Res))
	palette := make([]color.RGBA, 256)
	for i := range palette {
		palette[i] = BiomeColor(i, numBiomes)
	}
	for y := 0; y < m.Res; y++ {
		for x := 0; x < m.Res; x++ {
			img.SetRGBA(x, y, palette[m.At(x, y)])
		}
	}
	return img
}

// Heights renders normalized heights as 16-bit grey, clamped to [0,1].
func Heights(g *gen.FloatGrid) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, g.Res, g.Res))
	for y := 0; y < g.Res; y++ {
		for x := 0; x < g.Res; x++ {
			v := math.Max(0, math.Min(1, g.At(x, y)))
			img.SetGray16(x, y, color.Gray16{Y: uint16(math.Round(v * 0xffff))})
		}
	}
	return img
}

// Upscale returns src unchanged when it is already at least MinSide wide.
func Upscale(src image.Image) image.Image {
	b := src.Bounds()
	if b.Dx() >= MinSide || b.Dx() == 0 {
		return src
	}
	f := (MinSide + b.Dx() - 1) / b.Dx()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx()*f, b.Dy()*f))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

// WritePNG encodes img to path, creating parent directories.
func WritePNG(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
