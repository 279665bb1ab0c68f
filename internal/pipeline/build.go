package pipeline

import (
	"fmt"

	"github.com/banshee-data/spectral-tracks/internal/collinear"
	"github.com/banshee-data/spectral-tracks/internal/config"
	"github.com/banshee-data/spectral-tracks/internal/multislice"
	"github.com/banshee-data/spectral-tracks/internal/seqline"
	"github.com/banshee-data/spectral-tracks/internal/spectral"
)

// BuildOptions carries the per-run settings that are not tuning.
type BuildOptions struct {
	RunID            string
	Observers        []spectral.TrackObserver
	ClusterObservers []spectral.ClusterObserver
	KeepPoints       bool
}

// Build assembles a pipeline from a tracking configuration.
func Build(tc *config.TrackingConfig, src Source, opts BuildOptions) (*Pipeline, error) {
	if tc == nil {
		tc = config.EmptyTrackingConfig()
	}
	if err := tc.Validate(); err != nil {
		return nil, err
	}

	acc, err := multislice.New(tc.MultiSliceConfig())
	if err != nil {
		return nil, fmt.Errorf("multislice: %w", err)
	}

	var finder TrackBuilder
	switch tc.GetTrackBuilder() {
	case config.TrackBuilderDBSCAN:
		finder, err = NewDBSCANBuilder(tc.DBSCANParams())
	default:
		finder, err = seqline.NewTrackFinder(tc.FinderConfig())
	}
	if err != nil {
		return nil, fmt.Errorf("track builder: %w", err)
	}

	var merger *collinear.Merger
	if tc.GetCollinearEnabled() {
		if merger, err = collinear.New(tc.CollinearConfig()); err != nil {
			return nil, fmt.Errorf("collinear: %w", err)
		}
	}

	return New(Config{
		RunID:            opts.RunID,
		Source:           src,
		MultiSlice:       acc,
		Finder:           finder,
		Merger:           merger,
		Observers:        opts.Observers,
		ClusterObservers: opts.ClusterObservers,
		QueueTimeout:     tc.GetQueueTimeout(),
		KeepPoints:       opts.KeepPoints,
	})
}
