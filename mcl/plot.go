package mcl

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// ParticlePlot builds a scatter plot of the occupied cells, the particle
// cloud and the estimate in map coordinates.
func ParticlePlot(m *OccupancyMap, o Overlay) (*plot.Plot, error) {
	plt := plot.New()
	plt.Title.Text = "Particle cloud"
	plt.X.Label.Text = "x (m)"
	plt.Y.Label.Text = "y (m)"
	plt.Add(plotter.NewGrid())

	if m != nil {
		var walls plotter.XYs
		for j := 0; j < m.Height; j++ {
			for i := 0; i < m.Width; i++ {
				if m.IsOccupied(i, j) {
					c := m.CellCenter(Cell{I: i, J: j})
					walls = append(walls, plotter.XY{X: c.X, Y: c.Y})
				}
			}
		}
		if len(walls) > 0 {
			s, err := plotter.NewScatter(walls)
			if err != nil {
				return nil, fmt.Errorf("plotting occupied cells: %w", err)
			}
			s.GlyphStyle.Color = color.RGBA{R: 40, G: 40, B: 40, A: 255}
			s.GlyphStyle.Shape = draw.BoxGlyph{}
			s.GlyphStyle.Radius = vg.Points(1)
			plt.Add(s)
		}
	}

	if len(o.Particles) > 0 {
		pts := make(plotter.XYs, len(o.Particles))
		for i, p := range o.Particles {
			pts[i].X = p.X
			pts[i].Y = p.Y
		}
		s, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, fmt.Errorf("plotting particles: %w", err)
		}
		s.GlyphStyle.Color = color.RGBA{R: 220, G: 20, B: 60, A: 255}
		s.GlyphStyle.Radius = vg.Points(1.5)
		plt.Add(s)
		plt.Legend.Add("particles", s)
	}

	if o.Estimate.Valid {
		est := plotter.XYs{{X: o.Estimate.X, Y: o.Estimate.Y}}
		s, err := plotter.NewScatter(est)
		if err != nil {
			return nil, fmt.Errorf("plotting estimate: %w", err)
		}
		s.GlyphStyle.Color = color.RGBA{R: 30, G: 144, B: 255, A: 255}
		s.GlyphStyle.Shape = draw.CrossGlyph{}
		s.GlyphStyle.Radius = vg.Points(5)
		plt.Add(s)
		plt.Legend.Add("estimate", s)
	}

	// the map frames the view even when particles stray outside it
	if m != nil {
		b := m.Bounds()
		plt.X.Min, plt.X.Max = b.Min.X(), b.Max.X()
		plt.Y.Min, plt.Y.Max = b.Min.Y(), b.Max.Y()
	}
	return plt, nil
}

// WriteParticlePlot renders the plot in the given format ("png", "svg", "pdf")
func WriteParticlePlot(w io.Writer, m *OccupancyMap, o Overlay, format string) error {
	plt, err := ParticlePlot(m, o)
	if err != nil {
		return err
	}
	wt, err := plt.WriterTo(6*vg.Inch, 6*vg.Inch, format)
	if err != nil {
		return fmt.Errorf("creating %s plot writer: %w", format, err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("writing plot: %w", err)
	}
	return nil
}
