// Package image provides the sample grid used by the correlation core,
// image loading and saving, and preprocessing of acquired frames.
package image

import (
	"fmt"
	"math"

	"piescope/internal/fault"
)

// Depth is the sample depth of an image and defines its valid value range.
type Depth int

const (
	Depth8     Depth = iota // samples in [0, 255]
	Depth16                 // samples in [0, 65535]
	DepthFloat              // samples in [0, 1]
)

// Max returns the largest valid sample value.
func (d Depth) Max() float64 {
	switch d {
	case Depth16:
		return 65535
	case DepthFloat:
		return 1
	default:
		return 255
	}
}

func (d Depth) String() string {
	switch d {
	case Depth8:
		return "uint8"
	case Depth16:
		return "uint16"
	case DepthFloat:
		return "float"
	default:
		return "unknown"
	}
}

// Image is a rectangular grid of samples. Single-channel images are 2-D;
// images with more than one channel are 3-D (height x width x channels).
// Samples are stored row-major with channels interleaved. Operations in this
// module never mutate an Image they did not allocate.
type Image struct {
	Width    int
	Height   int
	Channels int
	Depth    Depth
	Pix      []float64
}

// New allocates a zeroed image.
func New(width, height, channels int, depth Depth) *Image {
	return &Image{
		Width:    width,
		Height:   height,
		Channels: channels,
		Depth:    depth,
		Pix:      make([]float64, width*height*channels),
	}
}

// NewGray allocates a zeroed single-channel image.
func NewGray(width, height int, depth Depth) *Image {
	return New(width, height, 1, depth)
}

// FromRows builds a single-channel image from rows of samples.
func FromRows(rows [][]float64, depth Depth) (*Image, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fault.New(fault.KindDimensionMismatch, "image from rows", "empty rows")
	}
	w := len(rows[0])
	img := NewGray(w, len(rows), depth)
	for y, row := range rows {
		if len(row) != w {
			return nil, fault.New(fault.KindDimensionMismatch, "image from rows",
				"row %d has %d samples, want %d", y, len(row), w)
		}
		copy(img.Pix[y*w:(y+1)*w], row)
	}
	return img, nil
}

// Dims returns 2 for single-channel images and 3 otherwise.
func (m *Image) Dims() int {
	if m.Channels == 1 {
		return 2
	}
	return 3
}

// Planar reports whether the image is a single 2-D plane.
func (m *Image) Planar() bool {
	return m.Channels == 1
}

// Shape returns height, width and channel count.
func (m *Image) Shape() (int, int, int) {
	return m.Height, m.Width, m.Channels
}

// SameSize reports whether both images have the same pixel dimensions.
func (m *Image) SameSize(o *Image) bool {
	return m.Width == o.Width && m.Height == o.Height
}

// Validate checks the image header against its sample buffer.
func (m *Image) Validate() error {
	if m == nil {
		return fault.New(fault.KindDimensionMismatch, "validate image", "nil image")
	}
	if m.Width <= 0 || m.Height <= 0 || m.Channels <= 0 {
		return fault.New(fault.KindDimensionMismatch, "validate image",
			"invalid shape %dx%dx%d", m.Height, m.Width, m.Channels)
	}
	if len(m.Pix) != m.Width*m.Height*m.Channels {
		return fault.New(fault.KindDimensionMismatch, "validate image",
			"%d samples for shape %dx%dx%d", len(m.Pix), m.Height, m.Width, m.Channels)
	}
	return nil
}

// offset returns the index of sample (x, y, c).
func (m *Image) offset(x, y, c int) int {
	return (y*m.Width+x)*m.Channels + c
}

// At returns the sample at column x, row y, channel c.
func (m *Image) At(x, y, c int) float64 {
	return m.Pix[m.offset(x, y, c)]
}

// Set stores a sample at column x, row y, channel c.
func (m *Image) Set(x, y, c int, v float64) {
	m.Pix[m.offset(x, y, c)] = v
}

// Plane extracts channel c as a single-channel image.
func (m *Image) Plane(c int) (*Image, error) {
	if c < 0 || c >= m.Channels {
		return nil, fault.New(fault.KindDimensionMismatch, "plane",
			"channel %d out of range for %d channels", c, m.Channels)
	}
	out := NewGray(m.Width, m.Height, m.Depth)
	for i := 0; i < m.Width*m.Height; i++ {
		out.Pix[i] = m.Pix[i*m.Channels+c]
	}
	return out, nil
}

// Clone returns a deep copy.
func (m *Image) Clone() *Image {
	out := *m
	out.Pix = make([]float64, len(m.Pix))
	copy(out.Pix, m.Pix)
	return &out
}

// Equal reports whether both images have the same shape, depth and samples.
func (m *Image) Equal(o *Image) bool {
	if m.Width != o.Width || m.Height != o.Height || m.Channels != o.Channels || m.Depth != o.Depth {
		return false
	}
	for i := range m.Pix {
		if m.Pix[i] != o.Pix[i] {
			return false
		}
	}
	return true
}

// MaxAbsDiff returns the largest absolute sample difference between two
// images of identical shape.
func (m *Image) MaxAbsDiff(o *Image) (float64, error) {
	if !m.SameSize(o) || m.Channels != o.Channels {
		return 0, fault.New(fault.KindShapeMismatch, "compare images",
			"%dx%dx%d vs %dx%dx%d", m.Height, m.Width, m.Channels, o.Height, o.Width, o.Channels)
	}
	var d float64
	for i := range m.Pix {
		d = math.Max(d, math.Abs(m.Pix[i]-o.Pix[i]))
	}
	return d, nil
}

func (m *Image) String() string {
	return fmt.Sprintf("Image[%dx%dx%d %s]", m.Height, m.Width, m.Channels, m.Depth)
}

// clamp limits x to [lo, hi].
func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
