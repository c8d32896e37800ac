package image

import (
	goimage "image"
	"image/color"
	"math"

	"piescope/internal/fault"
)

// FromGo converts a decoded image. Gray and Gray16 images become
// single-channel; everything else becomes 3-channel RGB with alpha dropped.
func FromGo(src goimage.Image) *Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	switch s := src.(type) {
	case *goimage.Gray:
		out := NewGray(w, h, Depth8)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				out.Pix[y*w+x] = float64(s.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			}
		}
		return out
	case *goimage.Gray16:
		out := NewGray(w, h, Depth16)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				out.Pix[y*w+x] = float64(s.Gray16At(b.Min.X+x, b.Min.Y+y).Y)
			}
		}
		return out
	}

	depth := Depth8
	shift := uint32(8)
	switch src.(type) {
	case *goimage.RGBA64, *goimage.NRGBA64:
		depth = Depth16
		shift = 0
	}

	out := New(w, h, 3, depth)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, _ := src.At(b.Min.X+x, b.Min.Y+y).RGBA()
			i := (y*w + x) * 3
			out.Pix[i+0] = float64(r >> shift)
			out.Pix[i+1] = float64(g >> shift)
			out.Pix[i+2] = float64(bl >> shift)
		}
	}
	return out
}

// ToGo converts the image for encoding or display. Samples are rounded and
// clamped to the depth's range; float images are written as 16-bit.
// Images with 2 channels cannot be represented and fail with DimensionMismatch.
func ToGo(m *Image) (goimage.Image, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	rect := goimage.Rect(0, 0, m.Width, m.Height)
	wide := m.Depth != Depth8
	// scale maps samples onto the 8- or 16-bit output range
	scale := 1.0
	if m.Depth == DepthFloat {
		scale = 65535
	}
	maxOut := 255.0
	if wide {
		maxOut = 65535
	}
	q := func(v float64) float64 {
		return math.Round(clamp(v*scale, 0, maxOut))
	}

	switch {
	case m.Channels == 1 && !wide:
		out := goimage.NewGray(rect)
		for i, v := range m.Pix {
			out.Pix[i] = uint8(q(v))
		}
		return out, nil
	case m.Channels == 1:
		out := goimage.NewGray16(rect)
		for y := 0; y < m.Height; y++ {
			for x := 0; x < m.Width; x++ {
				out.SetGray16(x, y, color.Gray16{Y: uint16(q(m.At(x, y, 0)))})
			}
		}
		return out, nil
	case m.Channels >= 3 && !wide:
		out := goimage.NewRGBA(rect)
		for y := 0; y < m.Height; y++ {
			for x := 0; x < m.Width; x++ {
				out.SetRGBA(x, y, color.RGBA{
					R: uint8(q(m.At(x, y, 0))),
					G: uint8(q(m.At(x, y, 1))),
					B: uint8(q(m.At(x, y, 2))),
					A: 255,
				})
			}
		}
		return out, nil
	case m.Channels >= 3:
		out := goimage.NewRGBA64(rect)
		for y := 0; y < m.Height; y++ {
			for x := 0; x < m.Width; x++ {
				out.SetRGBA64(x, y, color.RGBA64{
					R: uint16(q(m.At(x, y, 0))),
					G: uint16(q(m.At(x, y, 1))),
					B: uint16(q(m.At(x, y, 2))),
					A: 0xffff,
				})
			}
		}
		return out, nil
	default:
		return nil, fault.New(fault.KindDimensionMismatch, "convert image",
			"cannot represent %d channels", m.Channels)
	}
}
