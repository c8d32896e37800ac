package overlay

import (
	"fmt"
	goimage "image"
	"image/color"
	"strconv"

	"golang.org/x/image/draw"

	"piescope/internal/image"
	"piescope/pkg/colorutil"
	"piescope/pkg/geometry"
)

// digitPatterns are 3x5 glyphs, one 3-bit row per entry.
var digitPatterns = [10][5]uint8{
	{0b111, 0b101, 0b101, 0b101, 0b111},
	{0b010, 0b110, 0b010, 0b010, 0b111},
	{0b111, 0b001, 0b111, 0b100, 0b111},
	{0b111, 0b001, 0b111, 0b001, 0b111},
	{0b101, 0b101, 0b111, 0b001, 0b001},
	{0b111, 0b100, 0b111, 0b001, 0b111},
	{0b111, 0b100, 0b111, 0b101, 0b111},
	{0b111, 0b001, 0b001, 0b001, 0b001},
	{0b111, 0b101, 0b111, 0b101, 0b111},
	{0b111, 0b101, 0b111, 0b001, 0b111},
}

// Marker is one annotated landmark.
type Marker struct {
	ID int
	At geometry.Point2D
}

// MarkerOptions configures how landmarks are drawn.
type MarkerOptions struct {
	Radius     int
	Color      color.RGBA
	Labels     bool
	LabelScale int // pixel size of one glyph cell
}

// DefaultMarkerOptions returns default marker options.
func DefaultMarkerOptions() MarkerOptions {
	return MarkerOptions{
		Radius:     6,
		Color:      colorutil.Yellow,
		Labels:     true,
		LabelScale: 2,
	}
}

// Annotate renders img as 8-bit RGBA and draws a circled cross with the id
// label at every marker. Markers outside the frame are clipped.
func Annotate(img *image.Image, markers []Marker, opts MarkerOptions) (*goimage.RGBA, error) {
	src, err := image.ToGo(img)
	if err != nil {
		return nil, fmt.Errorf("annotate: %w", err)
	}
	b := src.Bounds()
	dst := goimage.NewRGBA(b)
	draw.Draw(dst, b, src, b.Min, draw.Src)

	if opts.LabelScale <= 0 {
		opts.LabelScale = 1
	}
	for _, m := range markers {
		cx := int(m.At.X + 0.5)
		cy := int(m.At.Y + 0.5)
		drawCircle(dst, cx, cy, opts.Radius, opts.Color)
		drawLine(dst, cx-opts.Radius, cy, cx+opts.Radius, cy, opts.Color)
		drawLine(dst, cx, cy-opts.Radius, cx, cy+opts.Radius, opts.Color)
		if opts.Labels {
			drawNumber(dst, m.ID, cx+opts.Radius+2, cy-opts.Radius-5*opts.LabelScale, opts.LabelScale, opts.Color)
		}
	}
	return dst, nil
}

func setPixel(img *goimage.RGBA, x, y int, c color.RGBA) {
	if (goimage.Point{X: x, Y: y}).In(img.Bounds()) {
		img.SetRGBA(x, y, c)
	}
}

// drawCircle draws a circle outline using Bresenham's algorithm.
func drawCircle(img *goimage.RGBA, cx, cy, r int, c color.RGBA) {
	x, y, e := r, 0, 0
	for x >= y {
		for _, d := range [8][2]int{{x, y}, {y, x}, {-y, x}, {-x, y}, {-x, -y}, {-y, -x}, {y, -x}, {x, -y}} {
			setPixel(img, cx+d[0], cy+d[1], c)
		}
		y++
		if e <= 0 {
			e += 2*y + 1
		}
		if e > 0 {
			x--
			e -= 2*x + 1
		}
	}
}

// drawLine draws a line using Bresenham's algorithm.
func drawLine(img *goimage.RGBA, x1, y1, x2, y2 int, c color.RGBA) {
	dx, dy := abs(x2-x1), abs(y2-y1)
	sx, sy := 1, 1
	if x1 > x2 {
		sx = -1
	}
	if y1 > y2 {
		sy = -1
	}
	e := dx - dy
	for {
		setPixel(img, x1, y1, c)
		if x1 == x2 && y1 == y2 {
			return
		}
		e2 := 2 * e
		if e2 > -dy {
			e -= dy
			x1 += sx
		}
		if e2 < dx {
			e += dx
			y1 += sy
		}
	}
}

// drawNumber writes n with its top-left corner at (x, y).
func drawNumber(img *goimage.RGBA, n, x, y, scale int, c color.RGBA) {
	for i, ch := range strconv.Itoa(n) {
		if ch < '0' || ch > '9' {
			continue
		}
		glyph := digitPatterns[ch-'0']
		ox := x + i*4*scale
		for row, bits := range glyph {
			for col := 0; col < 3; col++ {
				if bits&(1<<(2-col)) == 0 {
					continue
				}
				for py := 0; py < scale; py++ {
					for px := 0; px < scale; px++ {
						setPixel(img, ox+col*scale+px, y+row*scale+py, c)
					}
				}
			}
		}
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
