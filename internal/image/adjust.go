package image

import (
	"fmt"
	goimage "image"
	"image/draw"

	"github.com/disintegration/gift"
)

// Adjustments orient an acquired frame before correlation. Detectors mounted
// mirrored or rotated relative to the stage are corrected here.
type Adjustments struct {
	FlipHorizontal bool `yaml:"flip_horizontal"`
	FlipVertical   bool `yaml:"flip_vertical"`
	Rotate         int  `yaml:"rotate" validate:"oneof=0 90 180 270"` // clockwise degrees
	Grayscale      bool `yaml:"grayscale"`
}

// IsZero reports whether no adjustment is requested.
func (a Adjustments) IsZero() bool {
	return a == Adjustments{}
}

// Adjust applies the adjustments and returns a new image. The source is
// returned unchanged when no adjustment is requested.
func Adjust(src goimage.Image, a Adjustments) (goimage.Image, error) {
	if a.IsZero() {
		return src, nil
	}

	var filters []gift.Filter
	switch a.Rotate {
	case 0:
	case 90:
		filters = append(filters, gift.Rotate270()) // gift rotates counter-clockwise
	case 180:
		filters = append(filters, gift.Rotate180())
	case 270:
		filters = append(filters, gift.Rotate90())
	default:
		return nil, fmt.Errorf("unsupported rotation %d, want 0, 90, 180 or 270", a.Rotate)
	}
	if a.FlipHorizontal {
		filters = append(filters, gift.FlipHorizontal())
	}
	if a.FlipVertical {
		filters = append(filters, gift.FlipVertical())
	}
	if a.Grayscale {
		filters = append(filters, gift.Grayscale())
	}

	g := gift.New(filters...)
	bounds := g.Bounds(src.Bounds())

	var dst draw.Image
	switch {
	case a.Grayscale && is16Bit(src):
		dst = goimage.NewGray16(bounds)
	case a.Grayscale:
		dst = goimage.NewGray(bounds)
	case is16Bit(src):
		dst = goimage.NewRGBA64(bounds)
	default:
		dst = goimage.NewRGBA(bounds)
	}
	g.Draw(dst, src)

	// keep single-channel sources single-channel
	if !a.Grayscale {
		switch src.(type) {
		case *goimage.Gray:
			gray := goimage.NewGray(bounds)
			draw.Draw(gray, bounds, dst, bounds.Min, draw.Src)
			return gray, nil
		case *goimage.Gray16:
			gray := goimage.NewGray16(bounds)
			draw.Draw(gray, bounds, dst, bounds.Min, draw.Src)
			return gray, nil
		}
	}
	return dst, nil
}

func is16Bit(img goimage.Image) bool {
	switch img.(type) {
	case *goimage.Gray16, *goimage.RGBA64, *goimage.NRGBA64:
		return true
	}
	return false
}
