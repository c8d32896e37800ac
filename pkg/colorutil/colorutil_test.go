package colorutil

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	c, err := Parse(" Green ")
	require.NoError(t, err)
	assert.Equal(t, Green, c)

	c, err = Parse("#ff8000")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 255, G: 128, B: 0, A: 255}, c)

	_, err = Parse("#12")
	assert.Error(t, err)
	_, err = Parse("chartreuse")
	assert.Error(t, err)
}
