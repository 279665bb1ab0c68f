package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/spectral-tracks/internal/spectral"
)

// RenderTrackChart writes an interactive HTML scatter of points and tracks.
// Points are one series; each uncut track is drawn as its own two-point
// series so the legend can toggle it.
func RenderTrackChart(w io.Writer, points []spectral.DiscriminatedPoint, tracks []spectral.TrackRecord) error {
	data := make([]opts.ScatterData, 0, len(points))
	for _, p := range points {
		data = append(data, opts.ScatterData{Value: []interface{}{p.TimeInRunC, p.Frequency, p.Amplitude}})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Spectral Tracks", Theme: "dark", Width: "1200px", Height: "700px"}),
		charts.WithTitleOpts(opts.Title{Title: "Spectral Tracks", Subtitle: fmt.Sprintf("points=%d tracks=%d", len(points), len(tracks))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Frequency (Hz)", NameLocation: "middle", NameGap: 50}),
	)
	scatter.AddSeries("points", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))

	for _, t := range tracks {
		if t.IsCut {
			continue
		}
		seg := trackSegment(t)
		scatter.AddSeries(fmt.Sprintf("c%d #%d", t.Component, t.CandidateID), []opts.ScatterData{
			{Value: []interface{}{seg[0].X, seg[0].Y}},
			{Value: []interface{}{seg[1].X, seg[1].Y}},
		}, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))
	}

	if err := scatter.Render(w); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}
