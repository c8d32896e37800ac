// Package resample warps images through affine transforms by inverse mapping:
// every destination pixel is mapped back to a source location and sampled
// there, so the output has no holes.
//
// Coordinates follow the point convention of the correlation core: pixel
// (row, col) sits at x = col, y = row. A sample that lands on an integer
// location returns that pixel's value exactly, so integer translations
// round-trip without interpolation error.
package resample

import (
	"fmt"
	"math"
	"strings"

	"piescope/internal/alignment"
	"piescope/internal/fault"
	"piescope/internal/image"
	"piescope/pkg/geometry"
)

// snapTolerance pulls sample coordinates within this distance of an integer
// onto the integer, absorbing rounding noise from transform inversion.
const snapTolerance = 1e-9

// Direction selects how the supplied transform is used.
type Direction int

const (
	// DirectionForward: the transform maps source to destination
	// coordinates; its analytic inverse maps destination pixels back.
	DirectionForward Direction = iota
	// DirectionInverse: the transform already maps destination pixels to
	// source locations and is used as-is.
	DirectionInverse
)

func (d Direction) String() string {
	if d == DirectionInverse {
		return "inverse"
	}
	return "forward"
}

// Interpolation selects the sampling method.
type Interpolation int

const (
	InterpolationBilinear Interpolation = iota // default
	InterpolationNearest
	InterpolationOpenCV // gocv bilinear, only with the opencv build tag
)

func (i Interpolation) String() string {
	switch i {
	case InterpolationBilinear:
		return "bilinear"
	case InterpolationNearest:
		return "nearest"
	case InterpolationOpenCV:
		return "opencv"
	default:
		return "unknown"
	}
}

// ParseInterpolation parses an interpolation name as used in configuration files.
func ParseInterpolation(s string) (Interpolation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "bilinear", "linear":
		return InterpolationBilinear, nil
	case "nearest":
		return InterpolationNearest, nil
	case "opencv":
		return InterpolationOpenCV, nil
	default:
		return InterpolationBilinear, fmt.Errorf("unknown interpolation %q", s)
	}
}

// Options configures a warp.
type Options struct {
	Direction     Direction
	Multichannel  bool    // false requires a single-plane image
	OutputWidth   int     // 0 keeps the input width
	OutputHeight  int     // 0 keeps the input height
	Fill          float64 // value for samples outside the source
	Interpolation Interpolation
}

// DefaultOptions returns forward, multichannel, bilinear warping with black fill.
func DefaultOptions() Options {
	return Options{
		Direction:     DirectionForward,
		Multichannel:  true,
		Interpolation: InterpolationBilinear,
	}
}

// backend warps src into a w x h image; m maps destination pixels to source
// locations.
type backend func(src *image.Image, m geometry.AffineTransform, w, h int, fill float64) (*image.Image, error)

var backends = map[Interpolation]backend{
	InterpolationBilinear: warpBilinear,
	InterpolationNearest:  warpNearest,
}

// Available reports whether an interpolation method is compiled in.
func Available(i Interpolation) bool {
	_, ok := backends[i]
	return ok
}

// Warp resamples src through the transform and returns a new image. The
// source is never modified.
func Warp(src *image.Image, t alignment.Transform, opts Options) (*image.Image, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	if !opts.Multichannel && src.Dims() > 2 {
		return nil, &fault.Error{
			Kind:   fault.KindDimensionMismatch,
			Op:     "warp",
			Detail: fmt.Sprintf("single-plane warp of a %d-D image with %d channels", src.Dims(), src.Channels),
		}
	}
	if opts.OutputWidth < 0 || opts.OutputHeight < 0 {
		return nil, &fault.Error{
			Kind:   fault.KindDimensionMismatch,
			Op:     "warp",
			Detail: fmt.Sprintf("negative output shape %dx%d", opts.OutputHeight, opts.OutputWidth),
		}
	}

	m := t.Matrix
	if opts.Direction == DirectionForward {
		inv, err := t.Inverse()
		if err != nil {
			return nil, err
		}
		m = inv.Matrix
	}

	w, h := src.Width, src.Height
	if opts.OutputWidth > 0 {
		w = opts.OutputWidth
	}
	if opts.OutputHeight > 0 {
		h = opts.OutputHeight
	}

	run, ok := backends[opts.Interpolation]
	if !ok {
		return nil, fmt.Errorf("interpolation %s is not available in this build", opts.Interpolation)
	}
	return run(src, m, w, h, opts.Fill)
}

func snap(v float64) float64 {
	r := math.Round(v)
	if math.Abs(v-r) < snapTolerance {
		return r
	}
	return v
}

// warpBilinear samples the four neighbours of each source location. Locations
// outside [0, width-1] x [0, height-1] take the fill value.
func warpBilinear(src *image.Image, m geometry.AffineTransform, w, h int, fill float64) (*image.Image, error) {
	ch := src.Channels
	out := image.New(w, h, ch, src.Depth)
	maxX := float64(src.Width - 1)
	maxY := float64(src.Height - 1)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sp := m.Apply(geometry.Point2D{X: float64(x), Y: float64(y)})
			sx, sy := snap(sp.X), snap(sp.Y)
			dst := (y*w + x) * ch

			if !(sx >= 0 && sy >= 0 && sx <= maxX && sy <= maxY) {
				for c := 0; c < ch; c++ {
					out.Pix[dst+c] = fill
				}
				continue
			}

			x0 := int(math.Floor(sx))
			y0 := int(math.Floor(sy))
			fx := sx - float64(x0)
			fy := sy - float64(y0)
			x1 := min(x0+1, src.Width-1)
			y1 := min(y0+1, src.Height-1)

			i00 := (y0*src.Width + x0) * ch
			i10 := (y0*src.Width + x1) * ch
			i01 := (y1*src.Width + x0) * ch
			i11 := (y1*src.Width + x1) * ch

			if fx == 0 && fy == 0 {
				copy(out.Pix[dst:dst+ch], src.Pix[i00:i00+ch])
				continue
			}

			w00 := (1 - fx) * (1 - fy)
			w10 := fx * (1 - fy)
			w01 := (1 - fx) * fy
			w11 := fx * fy
			for c := 0; c < ch; c++ {
				out.Pix[dst+c] = w00*src.Pix[i00+c] + w10*src.Pix[i10+c] +
					w01*src.Pix[i01+c] + w11*src.Pix[i11+c]
			}
		}
	}
	return out, nil
}

// warpNearest takes the pixel whose footprint contains the source location.
func warpNearest(src *image.Image, m geometry.AffineTransform, w, h int, fill float64) (*image.Image, error) {
	ch := src.Channels
	out := image.New(w, h, ch, src.Depth)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sp := m.Apply(geometry.Point2D{X: float64(x), Y: float64(y)})
			sx := int(math.Floor(snap(sp.X) + 0.5))
			sy := int(math.Floor(snap(sp.Y) + 0.5))
			dst := (y*w + x) * ch

			if sx < 0 || sy < 0 || sx >= src.Width || sy >= src.Height || math.IsNaN(sp.X) || math.IsNaN(sp.Y) {
				for c := 0; c < ch; c++ {
					out.Pix[dst+c] = fill
				}
				continue
			}
			i := (sy*src.Width + sx) * ch
			copy(out.Pix[dst:dst+ch], src.Pix[i:i+ch])
		}
	}
	return out, nil
}
