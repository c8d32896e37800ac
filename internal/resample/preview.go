package resample

import (
	goimage "image"

	"piescope/internal/alignment"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// WarpGo warps a decoded image for display with Catmull-Rom interpolation.
// It is intended for previews; numerical results go through Warp.
func WarpGo(src goimage.Image, t alignment.Transform, dir Direction, width, height int) (goimage.Image, error) {
	// draw.Transform wants the source-to-destination mapping
	s2d := t
	if dir == DirectionInverse {
		inv, err := t.Inverse()
		if err != nil {
			return nil, err
		}
		s2d = inv
	}

	m := s2d.Matrix
	aff := f64.Aff3{m.A, m.B, m.TX, m.C, m.D, m.TY}

	dst := goimage.NewRGBA(goimage.Rect(0, 0, width, height))
	draw.CatmullRom.Transform(dst, aff, src, src.Bounds(), draw.Src, nil)
	return dst, nil
}
