package mcl

import (
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 3×2 map: top row occupied/free/unknown, bottom row free/occupied/occupied
var testPixels = []byte{0, 255, 205, 254, 0, 0}

func testPGM() []byte {
	var buf bytes.Buffer
	buf.WriteString("P5\n# CREATOR: map_saver\n3 2\n255\n")
	buf.Write(testPixels)
	return buf.Bytes()
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 3, 2))
	copy(img.Pix, testPixels)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func assertTestGrid(t *testing.T, m *OccupancyMap) {
	t.Helper()
	require.Equal(t, 3, m.Width)
	require.Equal(t, 2, m.Height)
	// row 0 is the bottom of the image
	assert.Equal(t, []int8{CellFree, CellOccupied, CellOccupied, CellOccupied, CellFree, CellUnknown}, m.Data)
}

func TestMapFromImage_PGM(t *testing.T) {
	m, err := MapFromImage(bytes.NewReader(testPGM()), MapMetadata{Resolution: 0.05, Origin: []float64{-1, -2, 0}})
	require.NoError(t, err)

	assertTestGrid(t, m)
	assert.Equal(t, 0.05, m.Resolution)
	assert.Equal(t, Point{X: -1, Y: -2}, m.Origin)
}

func TestMapFromImage_PNG(t *testing.T) {
	m, err := MapFromImage(bytes.NewReader(testPNG(t)), MapMetadata{Resolution: 0.1})
	require.NoError(t, err)
	assertTestGrid(t, m)
}

func TestMapFromImage_Negate(t *testing.T) {
	m, err := MapFromImage(bytes.NewReader(testPGM()), MapMetadata{Resolution: 0.1, Negate: 1})
	require.NoError(t, err)

	assert.Equal(t, CellOccupied, m.At(0, 0), "white is occupied when negated")
	assert.Equal(t, CellFree, m.At(1, 0))
}

func TestMapFromImage_Errors(t *testing.T) {
	_, err := MapFromImage(bytes.NewReader(testPGM()), MapMetadata{})
	assert.Error(t, err, "resolution is required")

	_, err = MapFromImage(bytes.NewReader([]byte("P5\n3 2\n255\n\x00")), MapMetadata{Resolution: 1})
	assert.Error(t, err, "truncated pixels")

	_, err = MapFromImage(bytes.NewReader([]byte("P5\n3 2\n65535\n")), MapMetadata{Resolution: 1})
	assert.Error(t, err, "16-bit PGM")

	_, err = MapFromImage(bytes.NewReader([]byte("not an image")), MapMetadata{Resolution: 1})
	assert.Error(t, err)
}

func TestLoadMapFile_YAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "map.pgm"), testPGM(), 0o644))
	yamlPath := filepath.Join(dir, "map.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`image: map.pgm
resolution: 0.050000
origin: [-10.0, -5.0, 0.0]
negate: 0
occupied_thresh: 0.65
free_thresh: 0.196
`), 0o644))

	m, err := LoadMapFile(yamlPath)
	require.NoError(t, err)
	assertTestGrid(t, m)
	assert.Equal(t, Point{X: -10, Y: -5}, m.Origin)
}

func TestLoadMapFile_JSON(t *testing.T) {
	data, err := EncodeMapData(tinyMap())
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "map.bin")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	m, err := LoadMapFile(path)
	require.NoError(t, err)
	assert.Equal(t, tinyMap(), m)
}

func TestLoadMapFile_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadMapFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	noImage := filepath.Join(dir, "noimage.yaml")
	require.NoError(t, os.WriteFile(noImage, []byte("resolution: 0.05\n"), 0o644))
	_, err = LoadMapFile(noImage)
	assert.ErrorContains(t, err, "image is required")

	dangling := filepath.Join(dir, "dangling.yml")
	require.NoError(t, os.WriteFile(dangling, []byte("image: nope.pgm\nresolution: 0.05\n"), 0o644))
	_, err = LoadMapFile(dangling)
	assert.ErrorContains(t, err, "opening map image")
}
