// Package overlay blends two registered images into one visualization.
//
// Channel broadcast rule: when one input has a single channel and the other
// has several, the single plane is repeated across the other's channels. Any
// other channel difference is a shape mismatch. The output takes the depth
// with the larger value range; each input is rescaled from its own range to
// the output range before combining, and the result is clamped to it.
package overlay

import (
	"fmt"
	"image/color"
	"math"
	"strings"

	"piescope/internal/fault"
	"piescope/internal/image"
)

// Mode specifies how the two images are combined before weighting.
type Mode int

const (
	ModeNormal     Mode = iota // (1-t)*a + t*b
	ModeScreen                 // highlights bright structure from both
	ModeDifference             // misregistration shows as bright edges
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeScreen:
		return "screen"
	case ModeDifference:
		return "difference"
	default:
		return "unknown"
	}
}

// ParseMode parses a blend mode name as used in configuration files.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal":
		return ModeNormal, nil
	case "screen":
		return ModeScreen, nil
	case "difference":
		return ModeDifference, nil
	default:
		return ModeNormal, fmt.Errorf("unknown blend mode %q", s)
	}
}

// Blend returns (1-transparency)*a + transparency*b per pixel and channel.
// Transparency 0 gives a, 1 gives b.
func Blend(a, b *image.Image, transparency float64) (*image.Image, error) {
	return BlendMode(a, b, transparency, ModeNormal)
}

// BlendMode blends with the given mode. In ModeNormal b itself is weighted;
// in the other modes the combined layer is weighted against a.
func BlendMode(a, b *image.Image, transparency float64, mode Mode) (*image.Image, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if math.IsNaN(transparency) || transparency < 0 || transparency > 1 {
		return nil, fmt.Errorf("overlay: transparency %v outside [0, 1]", transparency)
	}
	if !a.SameSize(b) {
		return nil, &fault.Error{
			Kind:   fault.KindShapeMismatch,
			Op:     "overlay",
			Detail: fmt.Sprintf("%dx%d vs %dx%d", a.Height, a.Width, b.Height, b.Width),
		}
	}

	ch, err := broadcastChannels(a.Channels, b.Channels)
	if err != nil {
		return nil, err
	}

	depth := a.Depth
	if b.Depth.Max() > a.Depth.Max() {
		depth = b.Depth
	}
	hi := depth.Max()
	sa, sb := hi/a.Depth.Max(), hi/b.Depth.Max()

	out := image.New(a.Width, a.Height, ch, depth)
	n := a.Width * a.Height
	for i := 0; i < n; i++ {
		for c := 0; c < ch; c++ {
			av := a.Pix[i*a.Channels+min(c, a.Channels-1)] * sa
			bv := b.Pix[i*b.Channels+min(c, b.Channels-1)] * sb
			out.Pix[i*ch+c] = clamp(combine(av, bv, transparency, mode, hi), 0, hi)
		}
	}
	return out, nil
}

func broadcastChannels(ca, cb int) (int, error) {
	switch {
	case ca == cb:
		return ca, nil
	case ca == 1:
		return cb, nil
	case cb == 1:
		return ca, nil
	default:
		return 0, &fault.Error{
			Kind:   fault.KindShapeMismatch,
			Op:     "overlay",
			Detail: fmt.Sprintf("cannot broadcast %d channels against %d", ca, cb),
		}
	}
}

// combine performs the blend operation between two samples.
func combine(a, b, t float64, mode Mode, hi float64) float64 {
	var layer float64
	switch mode {
	case ModeScreen:
		an, bn := a/hi, b/hi
		layer = (1 - (1-an)*(1-bn)) * hi
	case ModeDifference:
		layer = math.Abs(a - b)
	default:
		layer = b
	}
	return (1-t)*a + t*layer
}

// Colorize maps a single-channel image onto a 3-channel tint, e.g. green for
// a fluorescence channel laid over a grayscale electron image.
func Colorize(gray *image.Image, tint color.RGBA) (*image.Image, error) {
	if err := gray.Validate(); err != nil {
		return nil, err
	}
	if !gray.Planar() {
		return nil, &fault.Error{
			Kind:   fault.KindDimensionMismatch,
			Op:     "colorize",
			Detail: fmt.Sprintf("want a single channel, got %d", gray.Channels),
		}
	}

	scale := [3]float64{float64(tint.R) / 255, float64(tint.G) / 255, float64(tint.B) / 255}
	out := image.New(gray.Width, gray.Height, 3, gray.Depth)
	for i, v := range gray.Pix {
		for c := 0; c < 3; c++ {
			out.Pix[i*3+c] = v * scale[c]
		}
	}
	return out, nil
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
