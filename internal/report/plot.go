package report

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/spectral-tracks/internal/spectral"
)

// trackSegment returns the fitted line of t across its time span.
func trackSegment(t spectral.TrackRecord) plotter.XYs {
	return plotter.XYs{
		{X: t.StartTimeInRunC, Y: t.Intercept + t.Slope*t.StartTimeInRunC},
		{X: t.EndTimeInRunC, Y: t.Intercept + t.Slope*t.EndTimeInRunC},
	}
}

// SaveTrackPlot draws the discriminated points as a scatter with every
// uncut track overlaid as a line segment and writes the plot to path. The
// image format follows the extension (png, svg, pdf).
func SaveTrackPlot(path string, points []spectral.DiscriminatedPoint, tracks []spectral.TrackRecord) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Tracks (%d) over %d points", len(tracks), len(points))
	p.X.Label.Text = "Time in run (s)"
	p.Y.Label.Text = "Frequency (Hz)"

	if len(points) > 0 {
		pts := make(plotter.XYs, len(points))
		for i, pt := range points {
			pts[i] = plotter.XY{X: pt.TimeInRunC, Y: pt.Frequency}
		}
		scatter, err := plotter.NewScatter(pts)
		if err != nil {
			return fmt.Errorf("failed to build point scatter: %w", err)
		}
		scatter.GlyphStyle.Radius = vg.Points(1)
		scatter.GlyphStyle.Color = color.Gray{Y: 128}
		p.Add(scatter)
		p.Legend.Add("points", scatter)
	}

	for i, t := range tracks {
		if t.IsCut {
			continue
		}
		line, err := plotter.NewLine(trackSegment(t))
		if err != nil {
			return fmt.Errorf("failed to build track %d line: %w", t.CandidateID, err)
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("c%d #%d", t.Component, t.CandidateID), line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save plot: %w", err)
	}
	return nil
}
