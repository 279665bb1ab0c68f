package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/banshee-data/spectral-tracks/internal/config"
	"github.com/banshee-data/spectral-tracks/internal/ingest"
	"github.com/banshee-data/spectral-tracks/internal/pipeline"
	"github.com/banshee-data/spectral-tracks/internal/report"
	"github.com/banshee-data/spectral-tracks/internal/spectral"
	"github.com/banshee-data/spectral-tracks/internal/store"
)

func newRunCmd(v *viper.Viper) *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run <slices.jsonl>",
		Short: "Build tracks from a JSON-lines slice file.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runTracks(ctx, cmd, v, args[0])
		},
	}

	runCmd.Flags().String("tuning", "", "Tracking tuning file (.json); defaults apply when empty")
	runCmd.Flags().String("parquet", "", "Write final tracks to this Parquet file")
	runCmd.Flags().String("plot", "", "Save a points and tracks plot (png, svg or pdf)")
	runCmd.Flags().String("chart", "", "Write an interactive HTML chart")
	runCmd.Flags().Int("limit", 0, "Maximum rows in the track table (0 = all)")
	runCmd.Flags().Bool("color", true, "Color the status column of the track table")
	if err := v.BindPFlags(runCmd.Flags()); err != nil {
		panic(fmt.Sprintf("binding run flags: %v", err))
	}
	return runCmd
}

func loadTuning(path string) (*config.TrackingConfig, error) {
	if path == "" {
		return config.EmptyTrackingConfig(), nil
	}
	return config.LoadTrackingConfig(path)
}

func runTracks(ctx context.Context, cmd *cobra.Command, v *viper.Viper, input string) error {
	tc, err := loadTuning(v.GetString("tuning"))
	if err != nil {
		return err
	}

	f, err := os.Open(input)
	if err != nil {
		return fmt.Errorf("failed to open input: %w", err)
	}
	defer f.Close()

	opts := pipeline.BuildOptions{
		KeepPoints: v.GetString("plot") != "" || v.GetString("chart") != "",
	}

	var db *store.Store
	var sink *store.TrackSink
	if dbPath := v.GetString("db"); dbPath != "" {
		if db, err = store.OpenAndMigrate(dbPath); err != nil {
			return err
		}
		defer db.Close()

		tuningJSON, err := json.Marshal(tc)
		if err != nil {
			return fmt.Errorf("failed to encode tuning: %w", err)
		}
		runID, err := db.BeginRun(input, string(tuningJSON))
		if err != nil {
			return err
		}
		sink = store.NewTrackSink(db, runID)
		opts.RunID = runID
		opts.Observers = []spectral.TrackObserver{sink}
		opts.ClusterObservers = []spectral.ClusterObserver{sink}
	}

	p, err := pipeline.Build(tc, ingest.NewReader(f), opts)
	if err != nil {
		return err
	}
	res, err := p.Run(ctx)
	if err != nil {
		return err
	}
	final := res.Final()

	if db != nil {
		if err := sink.Err(); err != nil {
			return fmt.Errorf("failed to store results: %w", err)
		}
		if err := db.FinishRun(res.RunID, res.Slices, len(res.Clusters), len(final)); err != nil {
			return err
		}
	}

	if !v.GetBool("quiet") {
		cmd.Printf("run %s: %d slices, %d clusters, %d tracks\n", res.RunID, res.Slices, len(res.Clusters), len(final))
		if err := report.WriteTrackTable(cmd.OutOrStdout(), final, report.TableOptions{
			Color: v.GetBool("color"),
			Limit: v.GetInt("limit"),
		}); err != nil {
			return err
		}
	}
	if path := v.GetString("parquet"); path != "" {
		if err := report.WriteTracksParquet(path, res.RunID, final); err != nil {
			return err
		}
	}
	if path := v.GetString("plot"); path != "" {
		if err := report.SaveTrackPlot(path, res.Points, final); err != nil {
			return err
		}
	}
	if path := v.GetString("chart"); path != "" {
		out, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create chart file: %w", err)
		}
		defer out.Close()
		if err := report.RenderTrackChart(out, res.Points, final); err != nil {
			return err
		}
	}
	return nil
}
