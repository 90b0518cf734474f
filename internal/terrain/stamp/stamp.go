// Package stamp holds greyscale blend masks sampled by the feature and
// building height stages.
package stamp

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// Stamp is a W x H grid of blend weights in [0,1], row-major.
type Stamp struct {
	W, H int
	Pix  []float64
}

func (s *Stamp) At(x, y int) float64 {
	if x < 0 {
		x = 0
	} else if x >= s.W {
		x = s.W - 1
	}
	if y < 0 {
		y = 0
	} else if y >= s.H {
		y = s.H - 1
	}
	return s.Pix[y*s.W+x]
}

// Sample reads the stamp bilinearly at normalized (u, v), clamping at the
// borders. Pixel centres sit at (i+0.5)/W.
func (s *Stamp) Sample(u, v float64) float64 {
	if s == nil || s.W == 0 || s.H == 0 {
		return 1
	}
	fx := u*float64(s.W) - 0.5
	fy := v*float64(s.H) - 0.5
	x0 := int(math.Floor(fx))
	y0 := int(math.Floor(fy))
	tx := fx - float64(x0)
	ty := fy - float64(y0)

	a := s.At(x0, y0)
	b := s.At(x0+1, y0)
	c := s.At(x0, y0+1)
	d := s.At(x0+1, y0+1)
	top := a + (b-a)*tx
	bottom := c + (d-c)*tx
	return top + (bottom-top)*ty
}

// Flat is a stamp that blends fully everywhere.
func Flat() *Stamp {
	return &Stamp{W: 1, H: 1, Pix: []float64{1}}
}

// Radial builds a size x size mask that is 1 inside the inner radius
// (hardness * outer radius) and falls off linearly to 0 at the edge.
func Radial(size int, hardness float64) *Stamp {
	if size < 2 {
		size = 2
	}
	if hardness < 0 {
		hardness = 0
	}
	if hardness > 1 {
		hardness = 1
	}
	s := &Stamp{W: size, H: size, Pix: make([]float64, size*size)}
	c := float64(size) / 2
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx := (float64(x) + 0.5 - c) / c
			dy := (float64(y) + 0.5 - c) / c
			d := math.Sqrt(dx*dx + dy*dy)
			var v float64
			switch {
			case d <= hardness:
				v = 1
			case d >= 1:
				v = 0
			default:
				v = 1 - (d-hardness)/(1-hardness)
			}
			s.Pix[y*size+x] = v
		}
	}
	return s
}

// FromImage converts img to a greyscale stamp. When size > 0 the image is
// resampled to size x size first.
func FromImage(img image.Image, size int) *Stamp {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	if size > 0 && (b.Dx() != size || b.Dy() != size) {
		gray = image.NewGray(image.Rect(0, 0, size, size))
		draw.BiLinear.Scale(gray, gray.Bounds(), img, b, draw.Src, nil)
	} else {
		draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	}

	gb := gray.Bounds()
	s := &Stamp{W: gb.Dx(), H: gb.Dy(), Pix: make([]float64, gb.Dx()*gb.Dy())}
	for y := 0; y < s.H; y++ {
		for x := 0; x < s.W; x++ {
			s.Pix[y*s.W+x] = float64(gray.GrayAt(x, y).Y) / 255
		}
	}
	return s
}

// Load decodes a PNG, JPEG, BMP or TIFF file into a stamp.
func Load(path string, size int) (*Stamp, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("stamp %s: %w", path, err)
	}
	return FromImage(img, size), nil
}
