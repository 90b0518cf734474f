package gen

import (
	"runtime"

	"github.com/go-gl/mathgl/mgl64"
	"golang.org/x/sync/errgroup"

	"terraforge.ai/internal/terrain/mathx"
)

// ParallelRows splits [0, rows) into contiguous bands and runs fn on each
// band concurrently. fn must not draw from the random stream.
func ParallelRows(rows int, fn func(y0, y1 int) error) error {
	workers := runtime.GOMAXPROCS(0)
	if workers > rows {
		workers = rows
	}
	if workers <= 1 {
		return fn(0, rows)
	}
	band := (rows + workers - 1) / workers
	var g errgroup.Group
	for y0 := 0; y0 < rows; y0 += band {
		y1 := min(y0+band, rows)
		g.Go(func() error { return fn(y0, y1) })
	}
	return g.Wait()
}

// Gradient returns the world-space height derivatives along x and z at
// height-map cell (x, y).
func (c *Context) Gradient(x, y int) (dx, dz float64) {
	res := c.Heights.Res
	s := c.Dims.HeightmapScale
	sx, sy, sz := s.X(), s.Y(), s.Z()
	if sx == 0 {
		sx = 1
	}
	if sz == 0 {
		sz = 1
	}
	x0, x1 := max(x-1, 0), min(x+1, res-1)
	y0, y1 := max(y-1, 0), min(y+1, res-1)
	if x1 > x0 {
		dx = (c.Heights.At(x1, y) - c.Heights.At(x0, y)) * sy / (float64(x1-x0) * sx)
	}
	if y1 > y0 {
		dz = (c.Heights.At(x, y1) - c.Heights.At(x, y0)) * sy / (float64(y1-y0) * sz)
	}
	return dx, dz
}

// Normal returns the unit surface normal at height-map cell (x, y).
func (c *Context) Normal(x, y int) mgl64.Vec3 {
	dx, dz := c.Gradient(x, y)
	return mgl64.Vec3{-dx, 1, -dz}.Normalize()
}

// InterpolatedNormal builds the normal from gradients interpolated
// bilinearly at normalized coordinates (u, v).
func (c *Context) InterpolatedNormal(u, v float64) mgl64.Vec3 {
	res := c.Heights.Res
	fx := u * float64(res-1)
	fy := v * float64(res-1)
	x0, y0 := int(fx), int(fy)
	x1, y1 := min(x0+1, res-1), min(y0+1, res-1)
	tx, ty := fx-float64(x0), fy-float64(y0)

	ax, az := c.Gradient(x0, y0)
	bx, bz := c.Gradient(x1, y0)
	cx, cz := c.Gradient(x0, y1)
	dx, dz := c.Gradient(x1, y1)
	gx := mathx.LerpUnclamped(mathx.LerpUnclamped(ax, bx, tx), mathx.LerpUnclamped(cx, dx, tx), ty)
	gz := mathx.LerpUnclamped(mathx.LerpUnclamped(az, bz, tx), mathx.LerpUnclamped(cz, dz, tx), ty)
	return mgl64.Vec3{-gx, 1, -gz}.Normalize()
}

// ComputeSlopes fills the slope map at alpha resolution with the vertical
// component of the interpolated surface normal.
func (c *Context) ComputeSlopes() error {
	res := c.Dims.AlphaResolution
	c.Slopes = NewFloatGrid(res)
	if res == 0 || c.Heights.Res == 0 {
		return nil
	}
	return ParallelRows(res, func(y0, y1 int) error {
		for y := y0; y < y1; y++ {
			for x := 0; x < res; x++ {
				n := c.InterpolatedNormal(float64(x)/float64(res), float64(y)/float64(res))
				c.Slopes.Data[y*res+x] = n.Y()
			}
		}
		return nil
	})
}
