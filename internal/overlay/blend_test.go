package overlay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"piescope/internal/fault"
	"piescope/internal/image"
	"piescope/pkg/colorutil"
	"piescope/pkg/geometry"
)

func filled(w, h, ch int, depth image.Depth, f func(i int) float64) *image.Image {
	img := image.New(w, h, ch, depth)
	for i := range img.Pix {
		img.Pix[i] = f(i)
	}
	return img
}

func TestBlend_IdenticalInputsAreIdempotent(t *testing.T) {
	a := filled(5, 4, 3, image.Depth8, func(i int) float64 { return float64((i * 37) % 256) })

	out, err := Blend(a, a, 0.5)
	require.NoError(t, err)
	assert.True(t, a.Equal(out))
}

func TestBlend_Endpoints(t *testing.T) {
	a := filled(3, 3, 1, image.Depth8, func(i int) float64 { return 10 })
	b := filled(3, 3, 1, image.Depth8, func(i int) float64 { return 200 })

	out, err := Blend(a, b, 0)
	require.NoError(t, err)
	assert.True(t, a.Equal(out))

	out, err = Blend(a, b, 1)
	require.NoError(t, err)
	assert.True(t, b.Equal(out))

	out, err = Blend(a, b, 0.25)
	require.NoError(t, err)
	assert.InDelta(t, 0.75*10+0.25*200, out.Pix[0], 1e-12)
}

func TestBlend_ShapeMismatch(t *testing.T) {
	a := image.NewGray(4, 4, image.Depth8)
	b := image.NewGray(4, 5, image.Depth8)

	_, err := Blend(a, b, 0.5)
	require.Error(t, err)
	assert.ErrorIs(t, err, fault.ErrShapeMismatch)
}

func TestBlend_GrayBroadcastsToRGB(t *testing.T) {
	gray := filled(2, 2, 1, image.Depth8, func(i int) float64 { return 100 })
	rgb := filled(2, 2, 3, image.Depth8, func(i int) float64 { return float64(i % 3 * 50) })

	out, err := Blend(gray, rgb, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 3, out.Channels)
	assert.Equal(t, []float64{50, 75, 100}, out.Pix[:3])

	out, err = Blend(rgb, gray, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 3, out.Channels)
}

func TestBlend_IncompatibleChannels(t *testing.T) {
	a := image.New(2, 2, 3, image.Depth8)
	b := image.New(2, 2, 4, image.Depth8)

	_, err := Blend(a, b, 0.5)
	assert.ErrorIs(t, err, fault.ErrShapeMismatch)
}

func TestBlend_RescalesToWiderDepth(t *testing.T) {
	a := filled(1, 1, 1, image.Depth8, func(int) float64 { return 255 })
	b := filled(1, 1, 1, image.Depth16, func(int) float64 { return 65535 })

	out, err := Blend(a, b, 0)
	require.NoError(t, err)
	assert.Equal(t, image.Depth16, out.Depth)
	assert.Equal(t, 65535.0, out.Pix[0])

	out, err = Blend(a, b, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 65535.0, out.Pix[0])

	// 8-bit mid gray against 16-bit black
	a = filled(1, 1, 1, image.Depth8, func(int) float64 { return 51 })
	b = filled(1, 1, 1, image.Depth16, func(int) float64 { return 0 })
	out, err = Blend(a, b, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 0.5*51*257, out.Pix[0], 1e-9)

	out, err = Blend(b, a, 1)
	require.NoError(t, err)
	assert.InDelta(t, 51*257, out.Pix[0], 1e-9)
}

func TestBlend_ClampsToOutputRange(t *testing.T) {
	a := filled(1, 1, 1, image.Depth8, func(int) float64 { return 255 })
	b := filled(1, 1, 1, image.Depth16, func(int) float64 { return 70000 })

	out, err := Blend(a, b, 1)
	require.NoError(t, err)
	assert.Equal(t, 65535.0, out.Pix[0])

	c := filled(1, 1, 1, image.Depth8, func(int) float64 { return -20 })
	out, err = Blend(c, c, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 0.0, out.Pix[0])
}

func TestBlend_RejectsTransparencyOutOfRange(t *testing.T) {
	a := image.NewGray(2, 2, image.Depth8)
	_, err := Blend(a, a, 1.5)
	assert.Error(t, err)
	_, err = Blend(a, a, -0.1)
	assert.Error(t, err)
}

func TestBlendMode_DifferenceAndScreen(t *testing.T) {
	a := filled(1, 1, 1, image.Depth8, func(int) float64 { return 51 })
	b := filled(1, 1, 1, image.Depth8, func(int) float64 { return 102 })

	out, err := BlendMode(a, b, 1, ModeDifference)
	require.NoError(t, err)
	assert.InDelta(t, 51, out.Pix[0], 1e-9)

	out, err = BlendMode(a, b, 1, ModeScreen)
	require.NoError(t, err)
	// 1 - (1-0.2)(1-0.4) = 0.52
	assert.InDelta(t, 0.52*255, out.Pix[0], 1e-9)
}

func TestColorize(t *testing.T) {
	gray := filled(2, 1, 1, image.Depth8, func(i int) float64 { return float64(100 * (i + 1)) })

	out, err := Colorize(gray, colorutil.Green)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 100, 0, 0, 200, 0}, out.Pix)

	_, err = Colorize(image.New(2, 2, 3, image.Depth8), colorutil.Green)
	assert.ErrorIs(t, err, fault.ErrDimensionMismatch)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("Difference")
	require.NoError(t, err)
	assert.Equal(t, ModeDifference, m)

	_, err = ParseMode("multiply")
	assert.Error(t, err)
}

func TestAnnotate(t *testing.T) {
	img := image.NewGray(40, 30, image.Depth8)
	opts := DefaultMarkerOptions()

	out, err := Annotate(img, []Marker{{ID: 7, At: geometry.Point2D{X: 10, Y: 20}}, {ID: 8, At: geometry.Point2D{X: 100, Y: 100}}}, opts)
	require.NoError(t, err)
	assert.Equal(t, 40, out.Bounds().Dx())
	assert.Equal(t, opts.Color, out.RGBAAt(10, 20))
	assert.Equal(t, opts.Color, out.RGBAAt(10+opts.Radius, 20))
	assert.Equal(t, uint8(0), out.RGBAAt(30, 2).R)

	// label "7": top row of the glyph is solid
	lx, ly := 10+opts.Radius+2, 20-opts.Radius-5*opts.LabelScale
	assert.Equal(t, opts.Color, out.RGBAAt(lx, ly))

	_, err = Annotate(image.New(2, 2, 2, image.Depth8), nil, opts)
	assert.Error(t, err)
}
