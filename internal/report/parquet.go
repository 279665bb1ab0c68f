package report

import (
	"fmt"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/banshee-data/spectral-tracks/internal/spectral"
)

// TrackRow is the Parquet row for one track.
type TrackRow struct {
	RunID         string `parquet:"run_id,snappy"`
	Seq           int32  `parquet:"seq,snappy"`
	Component     int32  `parquet:"component,snappy"`
	AcquisitionID int64  `parquet:"acquisition_id,snappy"`
	CandidateID   int64  `parquet:"candidate_id,snappy"`

	StartTimeInRun float64 `parquet:"start_time_in_run,snappy"`
	EndTimeInRun   float64 `parquet:"end_time_in_run,snappy"`
	StartTimeInAcq float64 `parquet:"start_time_in_acq,snappy"`
	EndTimeInAcq   float64 `parquet:"end_time_in_acq,snappy"`
	StartFrequency float64 `parquet:"start_frequency,snappy"`
	EndFrequency   float64 `parquet:"end_frequency,snappy"`
	Slope          float64 `parquet:"slope,snappy"`
	Intercept      float64 `parquet:"intercept,snappy"`

	TotalPower     float64 `parquet:"total_power,snappy"`
	TotalWidePower float64 `parquet:"total_wide_power,snappy"`
	TotalSNR       float64 `parquet:"total_snr,snappy"`
	TotalWideSNR   float64 `parquet:"total_wide_snr,snappy"`
	TotalNUP       float64 `parquet:"total_nup,snappy"`
	TotalWideNUP   float64 `parquet:"total_wide_nup,snappy"`

	NPoints int32 `parquet:"n_points,snappy"`
	NMerged int32 `parquet:"n_merged,snappy"`
	IsCut   bool  `parquet:"is_cut,snappy"`
}

// TrackRows converts tracks to Parquet rows in order.
func TrackRows(runID string, tracks []spectral.TrackRecord) []TrackRow {
	rows := make([]TrackRow, len(tracks))
	for i, t := range tracks {
		rows[i] = TrackRow{
			RunID:          runID,
			Seq:            int32(i),
			Component:      int32(t.Component),
			AcquisitionID:  int64(t.AcquisitionID),
			CandidateID:    int64(t.CandidateID),
			StartTimeInRun: t.StartTimeInRunC,
			EndTimeInRun:   t.EndTimeInRunC,
			StartTimeInAcq: t.StartTimeInAcq,
			EndTimeInAcq:   t.EndTimeInAcq,
			StartFrequency: t.StartFrequency,
			EndFrequency:   t.EndFrequency,
			Slope:          t.Slope,
			Intercept:      t.Intercept,
			TotalPower:     t.TotalPower,
			TotalWidePower: t.TotalWidePower,
			TotalSNR:       t.TotalSNR,
			TotalWideSNR:   t.TotalWideSNR,
			TotalNUP:       t.TotalNUP,
			TotalWideNUP:   t.TotalWideNUP,
			NPoints:        int32(t.NPoints),
			NMerged:        int32(t.NMerged),
			IsCut:          t.IsCut,
		}
	}
	return rows
}

// WriteTracksParquet writes the tracks of one run to a Parquet file.
func WriteTracksParquet(path, runID string, tracks []spectral.TrackRecord) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() { _ = file.Close() }()

	writer := parquet.NewGenericWriter[TrackRow](file)
	if _, err := writer.Write(TrackRows(runID, tracks)); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write data to parquet file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return nil
}
