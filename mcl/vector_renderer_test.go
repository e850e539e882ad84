package mcl

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorRenderer_RenderToSVG(t *testing.T) {
	r := NewVectorRenderer(boxMap(10, 10, 0.5, Point{X: -2.5, Y: -2.5}))
	o := testOverlay()
	o.Estimate.Pose = Pose{}

	var buf bytes.Buffer
	require.NoError(t, r.RenderToSVG(&buf, o))

	out := buf.String()
	assert.Contains(t, out, "<svg")
	assert.Contains(t, out, "<path")
	assert.Contains(t, out, "</svg>")
}

func TestVectorRenderer_RenderToPNG(t *testing.T) {
	r := NewVectorRenderer(boxMap(10, 10, 1, Point{}))
	r.GridSpacing = 0

	var buf bytes.Buffer
	require.NoError(t, r.RenderToPNG(&buf, testOverlay()))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Greater(t, img.Bounds().Dx(), 0)
	assert.Equal(t, img.Bounds().Dx(), img.Bounds().Dy(), "square map renders square")
}

func TestVectorRenderer_NoMap(t *testing.T) {
	r := NewVectorRenderer(nil)
	var buf bytes.Buffer

	assert.ErrorContains(t, r.RenderToSVG(&buf, Overlay{}), "no map")
	assert.ErrorContains(t, r.RenderToPNG(&buf, Overlay{}), "no map")
	assert.Zero(t, buf.Len())
}
