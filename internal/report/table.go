// Package report renders tracking results for people and downstream tools:
// a console table, a Parquet export, a PNG plot and an interactive HTML
// chart of points and tracks in the time-frequency plane.
package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/banshee-data/spectral-tracks/internal/spectral"
)

const (
	cutValue    = "cut"
	mergedValue = "merged"
	plainValue  = "-"
)

var (
	cutColor    = color.New(color.FgRed, color.Bold)
	mergedColor = color.New(color.FgGreen)
)

// TableOptions controls WriteTrackTable.
type TableOptions struct {
	// Color enables ANSI colors in the status column.
	Color bool
	// Limit caps the number of rows; 0 prints every track.
	Limit int
}

// getPlainStatus labels a track for the status column.
func getPlainStatus(t spectral.TrackRecord) string {
	switch {
	case t.IsCut:
		return cutValue
	case t.NMerged > 1:
		return mergedValue
	default:
		return plainValue
	}
}

func getStatus(t spectral.TrackRecord, useColor bool) string {
	text := getPlainStatus(t)
	if !useColor {
		return text
	}
	switch text {
	case cutValue:
		return cutColor.Sprint(text)
	case mergedValue:
		return mergedColor.Sprint(text)
	default:
		return text
	}
}

// WriteTrackTable renders one row per track.
func WriteTrackTable(w io.Writer, tracks []spectral.TrackRecord, opts TableOptions) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"#", "Comp", "Cand", "Start [s]", "Length [ms]", "F0 [kHz]", "F1 [kHz]", "Slope [MHz/s]", "Points", "Wide SNR", "Status"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	n := len(tracks)
	if opts.Limit > 0 && opts.Limit < n {
		n = opts.Limit
	}
	data := make([][]string, 0, n)
	for i, t := range tracks[:n] {
		data = append(data, []string{
			strconv.Itoa(i + 1),
			strconv.FormatUint(uint64(t.Component), 10),
			strconv.FormatUint(t.CandidateID, 10),
			fmt.Sprintf("%.6f", t.StartTimeInRunC),
			fmt.Sprintf("%.3f", t.TimeLength*1e3),
			fmt.Sprintf("%.2f", t.StartFrequency/1e3),
			fmt.Sprintf("%.2f", t.EndFrequency/1e3),
			fmt.Sprintf("%.3f", t.Slope/1e6),
			strconv.Itoa(t.NPoints),
			fmt.Sprintf("%.1f", t.TotalWideSNR),
			getStatus(t, opts.Color),
		})
	}

	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}
