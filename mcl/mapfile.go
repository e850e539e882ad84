package mcl

import (
	"bufio"
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/png" // map images
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"  // map images
	_ "golang.org/x/image/tiff" // map images
	"gopkg.in/yaml.v3"
)

// MapMetadata is the map_server YAML that accompanies a map image
type MapMetadata struct {
	Image          string    `yaml:"image"`
	Resolution     float64   `yaml:"resolution"`
	Origin         []float64 `yaml:"origin"` // x, y, yaw
	Negate         int       `yaml:"negate"`
	OccupiedThresh float64   `yaml:"occupied_thresh"`
	FreeThresh     float64   `yaml:"free_thresh"`
}

// LoadMapFile reads a static map from disk. YAML files are treated as
// map_server metadata pointing at an image; anything else is decoded
// with DecodeMapData.
func LoadMapFile(path string) (*OccupancyMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading map file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var meta MapMetadata
		if err := yaml.Unmarshal(data, &meta); err != nil {
			return nil, fmt.Errorf("parsing map YAML: %w", err)
		}
		if meta.Image == "" {
			return nil, fmt.Errorf("map YAML %s: image is required", path)
		}
		imagePath := meta.Image
		if !filepath.IsAbs(imagePath) {
			imagePath = filepath.Join(filepath.Dir(path), imagePath)
		}
		f, err := os.Open(imagePath)
		if err != nil {
			return nil, fmt.Errorf("opening map image: %w", err)
		}
		defer func() { _ = f.Close() }()
		return MapFromImage(f, meta)
	default:
		return DecodeMapData(data)
	}
}

// MapFromImage converts a grayscale map image into an occupancy grid using
// the map_server trinary interpretation: dark pixels are occupied, light
// pixels free and everything in between unknown.
func MapFromImage(r io.Reader, meta MapMetadata) (*OccupancyMap, error) {
	if meta.Resolution <= 0 {
		return nil, fmt.Errorf("map resolution must be positive, got %v", meta.Resolution)
	}
	if meta.OccupiedThresh == 0 {
		meta.OccupiedThresh = 0.65
	}
	if meta.FreeThresh == 0 {
		meta.FreeThresh = 0.196
	}

	br := bufio.NewReader(r)
	img, err := decodeMapImage(br)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	var origin Point
	if len(meta.Origin) >= 2 {
		origin = Point{X: meta.Origin[0], Y: meta.Origin[1]}
	}
	m := NewOccupancyMap(w, h, meta.Resolution, origin, CellUnknown)

	for row := 0; row < h; row++ {
		// image rows run top-down, grid rows bottom-up
		j := h - 1 - row
		for i := 0; i < w; i++ {
			g := color.GrayModel.Convert(img.At(b.Min.X+i, b.Min.Y+row)).(color.Gray)
			occ := float64(255-g.Y) / 255.0
			if meta.Negate != 0 {
				occ = float64(g.Y) / 255.0
			}
			switch {
			case occ > meta.OccupiedThresh:
				m.Set(i, j, CellOccupied)
			case occ < meta.FreeThresh:
				m.Set(i, j, CellFree)
			}
		}
	}
	return m, nil
}

func decodeMapImage(br *bufio.Reader) (image.Image, error) {
	magic, _ := br.Peek(2)
	if bytes.Equal(magic, []byte("P5")) {
		return decodePGM(br)
	}
	img, _, err := image.Decode(br)
	if err != nil {
		return nil, fmt.Errorf("decoding map image: %w", err)
	}
	return img, nil
}

// decodePGM reads a binary (P5) 8-bit portable graymap, the default output
// of map_saver.
func decodePGM(br *bufio.Reader) (image.Image, error) {
	var header [3]int // width, height, maxval
	if _, err := br.Discard(2); err != nil {
		return nil, fmt.Errorf("reading PGM header: %w", err)
	}
	for k := 0; k < 3; k++ {
		v, err := readPGMInt(br)
		if err != nil {
			return nil, fmt.Errorf("reading PGM header: %w", err)
		}
		header[k] = v
	}
	w, h, maxval := header[0], header[1], header[2]
	if w <= 0 || h <= 0 || maxval <= 0 || maxval > 255 {
		return nil, fmt.Errorf("unsupported PGM: %dx%d maxval %d", w, h, maxval)
	}

	img := image.NewGray(image.Rect(0, 0, w, h))
	if _, err := io.ReadFull(br, img.Pix); err != nil {
		return nil, fmt.Errorf("reading PGM pixels: %w", err)
	}
	if maxval != 255 {
		for i, p := range img.Pix {
			img.Pix[i] = uint8(int(p) * 255 / maxval)
		}
	}
	return img, nil
}

// readPGMInt skips whitespace and comments, then reads a decimal integer
// followed by exactly one whitespace byte.
func readPGMInt(br *bufio.Reader) (int, error) {
	n, digits := 0, 0
	for {
		c, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch {
		case c == '#' && digits == 0:
			if _, err := br.ReadString('\n'); err != nil {
				return 0, err
			}
		case c >= '0' && c <= '9':
			n = n*10 + int(c-'0')
			digits++
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			if digits > 0 {
				return n, nil
			}
		default:
			return 0, fmt.Errorf("unexpected byte %q", c)
		}
	}
}
