//go:build opencv

package resample

import (
	goimage "image"
	"image/color"

	"piescope/internal/alignment"
	"piescope/internal/image"
	"piescope/pkg/geometry"

	"gocv.io/x/gocv"
)

func init() {
	backends[InterpolationOpenCV] = warpOpenCV
}

// warpOpenCV runs each channel through OpenCV's WarpAffine. OpenCV expects the
// source-to-destination matrix, so m is inverted first. The border value is an
// 8-bit colour; fill is clamped to [0, 255].
func warpOpenCV(src *image.Image, m geometry.AffineTransform, w, h int, fill float64) (*image.Image, error) {
	s2d, err := alignment.NewTransform(m, geometry.OrientationUnset).Inverse()
	if err != nil {
		return nil, err
	}

	transformMat := gocv.NewMatWithSize(2, 3, gocv.MatTypeCV64F)
	defer transformMat.Close()
	transformMat.SetDoubleAt(0, 0, s2d.Matrix.A)
	transformMat.SetDoubleAt(0, 1, s2d.Matrix.B)
	transformMat.SetDoubleAt(0, 2, s2d.Matrix.TX)
	transformMat.SetDoubleAt(1, 0, s2d.Matrix.C)
	transformMat.SetDoubleAt(1, 1, s2d.Matrix.D)
	transformMat.SetDoubleAt(1, 2, s2d.Matrix.TY)

	border := uint8(min(max(fill, 0), 255))
	ch := src.Channels
	out := image.New(w, h, ch, src.Depth)

	for c := 0; c < ch; c++ {
		plane := gocv.NewMatWithSize(src.Height, src.Width, gocv.MatTypeCV64F)
		for y := 0; y < src.Height; y++ {
			for x := 0; x < src.Width; x++ {
				plane.SetDoubleAt(y, x, src.At(x, y, c))
			}
		}

		dst := gocv.NewMat()
		gocv.WarpAffineWithParams(plane, &dst, transformMat, goimage.Point{X: w, Y: h},
			gocv.InterpolationLinear, gocv.BorderConstant, color.RGBA{R: border, G: border, B: border, A: border})

		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				out.Set(x, y, c, dst.GetDoubleAt(y, x))
			}
		}
		plane.Close()
		dst.Close()
	}
	return out, nil
}
