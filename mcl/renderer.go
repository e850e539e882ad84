package mcl

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Overlay is what gets drawn on top of the map
type Overlay struct {
	Particles ParticleCloud
	Estimate  EstimatedPose
	Scan      *Scan
	Sensor    SensorConfig
	Reference float64 // heading the scan is measured against
}

// OverlayFromSnapshot builds an overlay from the localizer's outputs,
// projecting the scan the way the measurement model does.
func OverlayFromSnapshot(s Snapshot, cfg *Config) Overlay {
	o := Overlay{
		Particles: s.Particles,
		Estimate:  s.Estimate,
		Scan:      s.LastScan,
		Sensor:    cfg.Sensor,
	}
	if cfg.Filter.HeadingReference != HeadingAbsolute {
		o.Reference = s.Estimate.Theta
	}
	return o
}

// scanEndpoints projects the valid beams from the estimated pose
func (o Overlay) scanEndpoints() []Point {
	if o.Scan == nil || !o.Estimate.Valid {
		return nil
	}
	sensor := o.Sensor.WithDefaults()
	p := Particle{X: o.Estimate.X, Y: o.Estimate.Y, Theta: o.Estimate.Theta}
	beams := sensor.ValidBeams(*o.Scan)
	pts := make([]Point, 0, len(beams))
	for _, b := range beams {
		pts = append(pts, BeamEndpoint(p, b, NormalizeAngle(o.Estimate.Theta-o.Reference)))
	}
	return pts
}

var (
	colorOccupied = color.RGBA{0, 0, 0, 255}
	colorUnknown  = color.RGBA{128, 128, 128, 255}
	colorParticle = color.RGBA{220, 20, 60, 255}  // Crimson
	colorEstimate = color.RGBA{30, 144, 255, 255} // Dodger blue
	colorScan     = color.RGBA{50, 205, 50, 255}  // Lime green
	colorLabel    = color.RGBA{0, 0, 0, 255}
	colorLabelBG  = color.RGBA{255, 255, 255, 200}
)

const (
	defaultTargetPixels = 800
	maxCellPixels       = 16
	legendHeight        = 20
)

// FieldRenderer draws the distance field as a raster image. Free cells
// shade from dark near obstacles to white far from them.
type FieldRenderer struct {
	Field      *DistanceField
	Scale      int // pixels per cell
	ShowLegend bool
}

// NewFieldRenderer picks a scale that makes the longer side roughly
// defaultTargetPixels wide.
func NewFieldRenderer(df *DistanceField) *FieldRenderer {
	m := df.Map()
	longest := max(m.Width, m.Height)
	scale := defaultTargetPixels / longest
	scale = max(1, min(scale, maxCellPixels))
	return &FieldRenderer{Field: df, Scale: scale, ShowLegend: true}
}

// toPixel converts world coordinates to image coordinates. Image rows grow
// downward, map rows upward.
func (r *FieldRenderer) toPixel(p Point) (int, int) {
	m := r.Field.Map()
	fx := (p.X - m.Origin.X) / m.Resolution * float64(r.Scale)
	fy := (float64(m.Height) - (p.Y-m.Origin.Y)/m.Resolution) * float64(r.Scale)
	return int(math.Floor(fx)), int(math.Floor(fy))
}

// Render draws the field and the overlay
func (r *FieldRenderer) Render(o Overlay) *image.RGBA {
	m := r.Field.Map()
	width := m.Width * r.Scale
	height := m.Height * r.Scale
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	maxDist := r.Field.MaxDistance()
	for j := 0; j < m.Height; j++ {
		for i := 0; i < m.Width; i++ {
			var c color.RGBA
			switch v := m.At(i, j); {
			case v > 0:
				c = colorOccupied
			case v < 0:
				c = colorUnknown
			default:
				c = fieldShade(r.Field.At(Cell{I: i, J: j}), maxDist)
			}
			y0 := (m.Height - 1 - j) * r.Scale
			x0 := i * r.Scale
			for dy := 0; dy < r.Scale; dy++ {
				for dx := 0; dx < r.Scale; dx++ {
					img.SetRGBA(x0+dx, y0+dy, c)
				}
			}
		}
	}

	dot := max(1, r.Scale/4)
	for _, p := range o.Particles {
		x, y := r.toPixel(Point{X: p.X, Y: p.Y})
		drawCircle(img, x, y, dot, colorParticle)
	}

	for _, pt := range o.scanEndpoints() {
		x, y := r.toPixel(pt)
		drawCircle(img, x, y, dot, colorScan)
	}

	if o.Estimate.Valid {
		r.drawPose(img, o.Estimate.Pose, colorEstimate)
	}

	if r.ShowLegend {
		drawLegend(img, o)
	}
	return img
}

// drawPose draws a circle with a heading line
func (r *FieldRenderer) drawPose(img *image.RGBA, p Pose, c color.RGBA) {
	radius := max(3, r.Scale)
	cx, cy := r.toPixel(Point{X: p.X, Y: p.Y})
	drawCircle(img, cx, cy, radius, c)

	length := float64(radius * 3)
	ex := cx + int(math.Round(length*math.Cos(p.Theta)))
	ey := cy - int(math.Round(length*math.Sin(p.Theta)))
	drawLine(img, cx, cy, ex, ey, c)
}

// fieldShade maps a distance to a grey level
func fieldShade(d, maxDist float64) color.RGBA {
	if maxDist <= 0 {
		return color.RGBA{255, 255, 255, 255}
	}
	t := math.Sqrt(math.Min(d/maxDist, 1))
	v := uint8(60 + 195*t)
	return color.RGBA{v, v, v, 255}
}

// WritePNG encodes the rendered image to w
func (r *FieldRenderer) WritePNG(w io.Writer, o Overlay) error {
	if err := png.Encode(w, r.Render(o)); err != nil {
		return fmt.Errorf("encoding PNG: %w", err)
	}
	return nil
}

// SavePNG writes the rendered image to a file
func (r *FieldRenderer) SavePNG(path string, o Overlay) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return r.WritePNG(f, o)
}

// drawCircle draws a filled circle
func drawCircle(img *image.RGBA, cx, cy, radius int, c color.RGBA) {
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius {
				x, y := cx+dx, cy+dy
				if x >= 0 && x < img.Bounds().Max.X && y >= 0 && y < img.Bounds().Max.Y {
					img.Set(x, y, c)
				}
			}
		}
	}
}

// drawLine draws a line using Bresenham's algorithm
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	b := img.Bounds()
	for {
		if image.Pt(x0, y0).In(b) {
			img.Set(x0, y0, c)
		}
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// drawLegend writes the particle count and estimate in the top-left corner
func drawLegend(img *image.RGBA, o Overlay) {
	text := fmt.Sprintf("particles: %d", len(o.Particles))
	if o.Estimate.Valid {
		text += fmt.Sprintf("  pose: %.2f, %.2f, %.0f deg",
			o.Estimate.X, o.Estimate.Y, o.Estimate.Theta*180/math.Pi)
	}

	w := min(img.Bounds().Dx(), 10+len(text)*basicfont.Face7x13.Advance)
	h := min(img.Bounds().Dy(), legendHeight)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, colorLabelBG)
		}
	}
	drawText(img, 5, 14, text, colorLabel)
}

// drawText renders text onto an image at the specified position
func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
