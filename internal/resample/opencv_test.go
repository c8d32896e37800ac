//go:build opencv

package resample

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"piescope/internal/alignment"
	"piescope/pkg/geometry"
)

func TestWarp_OpenCVMatchesBilinearOnIntegerShift(t *testing.T) {
	src := ramp(12, 9, 1)
	tr := alignment.NewTransform(geometry.Translation(2, 1), geometry.AToB)

	native, err := Warp(src, tr, DefaultOptions())
	require.NoError(t, err)

	opts := DefaultOptions()
	opts.Interpolation = InterpolationOpenCV
	require.True(t, Available(InterpolationOpenCV))
	cv, err := Warp(src, tr, opts)
	require.NoError(t, err)

	for y := 1; y < 9; y++ {
		for x := 2; x < 12; x++ {
			assert.InDelta(t, native.At(x, y, 0), cv.At(x, y, 0), 1e-6, "pixel %d,%d", x, y)
		}
	}
}
