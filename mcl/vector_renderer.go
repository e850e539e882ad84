package mcl

import (
	"fmt"
	"image/color"
	"image/png"
	"io"
	"math"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

// canvasRenderer is the subset of canvas renderers the live view draws on
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// VectorRenderer draws the map and overlay with tdewolff/canvas. Canvas
// units are millimetres and one map meter becomes Scale of them.
type VectorRenderer struct {
	Map         *OccupancyMap
	Scale       float64 // canvas units per meter
	Padding     float64 // canvas units
	GridSpacing float64 // meters, 0 disables the grid
	Resolution  canvas.Resolution
}

// NewVectorRenderer creates a renderer with a 1 m grid
func NewVectorRenderer(m *OccupancyMap) *VectorRenderer {
	return &VectorRenderer{
		Map:         m,
		Scale:       20.0,
		Padding:     5.0,
		GridSpacing: 1.0,
		Resolution:  canvas.DPI(100),
	}
}

func (r *VectorRenderer) size() (float64, float64) {
	w := float64(r.Map.Width)*r.Map.Resolution*r.Scale + 2*r.Padding
	h := float64(r.Map.Height)*r.Map.Resolution*r.Scale + 2*r.Padding
	return w, h
}

// toCanvas maps world meters to canvas units. Canvas y grows upward like
// the map frame.
func (r *VectorRenderer) toCanvas(p Point) (float64, float64) {
	return (p.X-r.Map.Origin.X)*r.Scale + r.Padding, (p.Y-r.Map.Origin.Y)*r.Scale + r.Padding
}

// RenderToSVG writes the live view as SVG
func (r *VectorRenderer) RenderToSVG(w io.Writer, o Overlay) error {
	if r.Map == nil {
		return fmt.Errorf("no map available for rendering")
	}
	width, height := r.size()
	svgRenderer := svg.New(w, width, height, nil)
	r.renderToCanvas(svgRenderer, o, width, height)
	return svgRenderer.Close()
}

// RenderToPNG rasterizes the live view at r.Resolution
func (r *VectorRenderer) RenderToPNG(w io.Writer, o Overlay) error {
	if r.Map == nil {
		return fmt.Errorf("no map available for rendering")
	}
	width, height := r.size()
	rast := rasterizer.New(width, height, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, o, width, height)
	return png.Encode(w, rast)
}

func (r *VectorRenderer) renderToCanvas(renderer canvasRenderer, o Overlay, width, height float64) {
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(width, height), bgStyle, canvas.Identity)

	r.renderCells(renderer, func(v int8) bool { return v < 0 }, color.RGBA{200, 200, 200, 255})
	r.renderCells(renderer, func(v int8) bool { return v > 0 }, color.RGBA{40, 40, 40, 255})

	if r.GridSpacing > 0 {
		r.renderGrid(renderer)
	}

	cell := r.Map.Resolution * r.Scale

	scanStyle := canvas.DefaultStyle
	scanStyle.Fill = canvas.Paint{Color: color.RGBA{50, 205, 50, 255}}
	scanStyle.Stroke = canvas.Paint{Color: canvas.Transparent}
	for _, pt := range o.scanEndpoints() {
		cx, cy := r.toCanvas(pt)
		renderer.RenderPath(canvas.Circle(cell*0.25).Translate(cx, cy), scanStyle, canvas.Identity)
	}

	particleStyle := canvas.DefaultStyle
	particleStyle.Fill = canvas.Paint{Color: color.RGBA{220, 20, 60, 160}}
	particleStyle.Stroke = canvas.Paint{Color: canvas.Transparent}
	headingStyle := canvas.DefaultStyle
	headingStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	headingStyle.Stroke = canvas.Paint{Color: color.RGBA{220, 20, 60, 160}}
	headingStyle.StrokeWidth = 0.2

	dot := math.Max(cell*0.15, 0.3)
	for _, p := range o.Particles {
		cx, cy := r.toCanvas(Point{X: p.X, Y: p.Y})
		renderer.RenderPath(canvas.Circle(dot).Translate(cx, cy), particleStyle, canvas.Identity)

		tick := &canvas.Path{}
		tick.MoveTo(cx, cy)
		tick.LineTo(cx+3*dot*math.Cos(p.Theta), cy+3*dot*math.Sin(p.Theta))
		renderer.RenderPath(tick, headingStyle, canvas.Identity)
	}

	if o.Estimate.Valid {
		r.renderPose(renderer, o.Estimate.Pose, math.Max(cell*0.4, 1.5))
	}
}

// renderCells fills runs of matching cells, one rectangle per run per row
func (r *VectorRenderer) renderCells(renderer canvasRenderer, match func(int8) bool, c color.RGBA) {
	style := canvas.DefaultStyle
	style.Fill = canvas.Paint{Color: c}
	style.Stroke = canvas.Paint{Color: canvas.Transparent}

	m := r.Map
	cell := m.Resolution * r.Scale
	for j := 0; j < m.Height; j++ {
		for i := 0; i < m.Width; {
			if !match(m.At(i, j)) {
				i++
				continue
			}
			start := i
			for i < m.Width && match(m.At(i, j)) {
				i++
			}
			x := float64(start)*cell + r.Padding
			y := float64(j)*cell + r.Padding
			rect := canvas.Rectangle(float64(i-start)*cell, cell).Translate(x, y)
			renderer.RenderPath(rect, style, canvas.Identity)
		}
	}
}

func (r *VectorRenderer) renderGrid(renderer canvasRenderer) {
	gridStyle := canvas.DefaultStyle
	gridStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	gridStyle.Stroke = canvas.Paint{Color: canvas.Gray}
	gridStyle.StrokeWidth = 0.1
	gridStyle.Dashes = []float64{1.0, 1.0}

	b := r.Map.Bounds()
	minX, minY := b.Min.X(), b.Min.Y()
	maxX, maxY := b.Max.X(), b.Max.Y()

	for x := math.Ceil(minX/r.GridSpacing) * r.GridSpacing; x <= maxX; x += r.GridSpacing {
		gridPath := &canvas.Path{}
		x1, y1 := r.toCanvas(Point{X: x, Y: minY})
		x2, y2 := r.toCanvas(Point{X: x, Y: maxY})
		gridPath.MoveTo(x1, y1)
		gridPath.LineTo(x2, y2)
		renderer.RenderPath(gridPath, gridStyle, canvas.Identity)
	}
	for y := math.Ceil(minY/r.GridSpacing) * r.GridSpacing; y <= maxY; y += r.GridSpacing {
		gridPath := &canvas.Path{}
		x1, y1 := r.toCanvas(Point{X: minX, Y: y})
		x2, y2 := r.toCanvas(Point{X: maxX, Y: y})
		gridPath.MoveTo(x1, y1)
		gridPath.LineTo(x2, y2)
		renderer.RenderPath(gridPath, gridStyle, canvas.Identity)
	}
}

// renderPose draws the estimate as a circle with a heading line
func (r *VectorRenderer) renderPose(renderer canvasRenderer, p Pose, radius float64) {
	poseColor := color.RGBA{30, 144, 255, 255}
	cx, cy := r.toCanvas(Point{X: p.X, Y: p.Y})

	outerStyle := canvas.DefaultStyle
	outerStyle.Fill = canvas.Paint{Color: poseColor}
	outerStyle.Stroke = canvas.Paint{Color: canvas.Black}
	outerStyle.StrokeWidth = radius * 0.15
	renderer.RenderPath(canvas.Circle(radius).Translate(cx, cy), outerStyle, canvas.Identity)

	dirStyle := canvas.DefaultStyle
	dirStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	dirStyle.Stroke = canvas.Paint{Color: poseColor}
	dirStyle.StrokeWidth = radius * 0.3

	dirPath := &canvas.Path{}
	dirPath.MoveTo(cx, cy)
	dirPath.LineTo(cx+2.5*radius*math.Cos(p.Theta), cy+2.5*radius*math.Sin(p.Theta))
	renderer.RenderPath(dirPath, dirStyle, canvas.Identity)
}
