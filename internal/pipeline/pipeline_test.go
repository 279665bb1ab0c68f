package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/spectral-tracks/internal/config"
	"github.com/banshee-data/spectral-tracks/internal/ingest"
	"github.com/banshee-data/spectral-tracks/internal/monitoring"
	"github.com/banshee-data/spectral-tracks/internal/multislice"
	"github.com/banshee-data/spectral-tracks/internal/seqline"
	"github.com/banshee-data/spectral-tracks/internal/spectral"
)

const (
	testSliceLength = 1e-5
	testBinWidth    = 1e3
)

// sliceSource replays slices and then fails with err, or ends with io.EOF.
type sliceSource struct {
	slices []ingest.Slice
	err    error
}

func (s *sliceSource) Next() (ingest.Slice, error) {
	if len(s.slices) == 0 {
		if s.err != nil {
			return ingest.Slice{}, s.err
		}
		return ingest.Slice{}, io.EOF
	}
	next := s.slices[0]
	s.slices = s.slices[1:]
	return next, nil
}

// rampSlices returns n slices with one strong point climbing one bin per
// slice from bin 10.
func rampSlices(n int) []ingest.Slice {
	out := make([]ingest.Slice, n)
	for i := range out {
		ps := spectral.NewPointSet(1)
		ps.Add(0, spectral.DiscriminatedPoint{
			BinIndex:              uint(10 + i),
			Amplitude:             10,
			NeighborhoodAmplitude: 20,
			LocalMean:             1,
			LocalVariance:         1,
		})
		out[i] = ingest.Slice{
			Header: spectral.SliceHeader{
				TimeInRun:   float64(i) * testSliceLength,
				TimeInAcq:   float64(i) * testSliceLength,
				SliceLength: testSliceLength,
				SliceNumber: uint64(i),
				BinWidth:    testBinWidth,
			},
			Points: ps,
		}
	}
	return out
}

func fastConfig() *config.TrackingConfig {
	return &config.TrackingConfig{Pipeline: &config.PipelineSection{QueueTimeout: strPtr("10ms")}}
}

func strPtr(s string) *string { return &s }

func TestBuildAndRun(t *testing.T) {
	var tracks spectral.TrackCollector
	var clusters []spectral.Cluster
	p, err := Build(fastConfig(), &sliceSource{slices: rampSlices(10)}, BuildOptions{
		Observers: []spectral.TrackObserver{&tracks},
		ClusterObservers: []spectral.ClusterObserver{
			spectral.ClusterObserverFunc(func(c spectral.Cluster) { clusters = append(clusters, c) }),
		},
		KeepPoints: true,
	})
	require.NoError(t, err)

	res, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, res.RunID, 36)
	assert.Equal(t, 10, res.Slices)
	assert.Len(t, res.Points, 10)
	assert.InDelta(t, 0.5*testSliceLength, res.Points[0].TimeInRunC, 1e-12)

	require.Len(t, res.Clusters, 1)
	assert.Equal(t, 10, res.Clusters[0].NSlices)
	assert.Equal(t, res.Clusters, clusters)

	require.Len(t, res.Tracks, 1)
	assert.Equal(t, 10, res.Tracks[0].NPoints)
	assert.InEpsilon(t, 1e8, res.Tracks[0].Slope, 1e-6)

	require.NotNil(t, res.Merged)
	require.Len(t, res.Merged, 1)
	assert.Equal(t, res.Merged, res.Final())
	assert.Equal(t, res.Merged, tracks.Tracks)
}

func TestRunWithoutMergerStreamsTracks(t *testing.T) {
	finder, err := seqline.NewTrackFinder(seqline.DefaultFinderConfig())
	require.NoError(t, err)

	// the time gap closes the first ramp before the second starts
	slices := rampSlices(5)
	late := rampSlices(5)
	for i := range late {
		late[i].Header.TimeInRun += 1
		late[i].Header.SliceNumber += 100
	}
	slices = append(slices, late...)

	var mu sync.Mutex
	var seenAfter []int
	seen := 0
	obs := spectral.TrackObserverFunc(func(spectral.TrackRecord) {
		mu.Lock()
		defer mu.Unlock()
		seen++
		seenAfter = append(seenAfter, seen)
	})

	p, err := New(Config{
		RunID:        "run-1",
		Source:       &sliceSource{slices: slices},
		Finder:       finder,
		Observers:    []spectral.TrackObserver{obs},
		QueueTimeout: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run-1", res.RunID)
	assert.Nil(t, res.Merged)
	assert.Empty(t, res.Clusters)
	require.Len(t, res.Tracks, 2)
	assert.Equal(t, res.Tracks, res.Final())
	assert.Equal(t, []int{1, 2}, seenAfter)
}

func TestRunDBSCANBuilder(t *testing.T) {
	tc := fastConfig()
	tc.Pipeline.TrackBuilder = strPtr(config.TrackBuilderDBSCAN)
	tc.Collinear = &config.CollinearSection{Enabled: boolPtr(false)}

	p, err := Build(tc, &sliceSource{slices: rampSlices(10)}, BuildOptions{})
	require.NoError(t, err)
	res, err := p.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Tracks, 1)
	assert.Equal(t, 10, res.Tracks[0].NPoints)
	assert.InEpsilon(t, 1e8, res.Tracks[0].Slope, 1e-6)
	assert.Nil(t, res.Merged)
}

func boolPtr(b bool) *bool { return &b }

func TestRunSourceError(t *testing.T) {
	boom := errors.New("disk on fire")
	p, err := Build(fastConfig(), &sliceSource{slices: rampSlices(3), err: boom}, BuildOptions{})
	require.NoError(t, err)

	res, err := p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.LessOrEqual(t, res.Slices, 3)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p, err := Build(fastConfig(), &sliceSource{slices: rampSlices(3)}, BuildOptions{})
	require.NoError(t, err)
	_, err = p.Run(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRunSkipsSliceRejectedByMultislice(t *testing.T) {
	var logs []string
	var mu sync.Mutex
	prev := monitoring.Logf
	defer monitoring.SetLogger(prev)
	monitoring.SetLogger(func(format string, v ...interface{}) {
		mu.Lock()
		defer mu.Unlock()
		logs = append(logs, fmt.Sprintf(format, v...))
	})

	slices := rampSlices(4)
	slices[1].Spectrum = multislice.Spectrum{{1, 2, 3}}

	p, err := Build(fastConfig(), &sliceSource{slices: slices}, BuildOptions{})
	require.NoError(t, err)
	res, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, res.Slices)
	require.Len(t, res.Tracks, 1)
	assert.Equal(t, 4, res.Tracks[0].NPoints, "the finder still sees the slice")

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, containsLine(logs, "skipped by multislice"), "logs: %v", logs)
}

func containsLine(lines []string, sub string) bool {
	for _, l := range lines {
		if strings.Contains(l, sub) {
			return true
		}
	}
	return false
}

func TestRunFromIngestReader(t *testing.T) {
	var buf bytes.Buffer
	w := ingest.NewWriter(&buf)
	for _, s := range rampSlices(6) {
		require.NoError(t, w.Write(s))
	}

	p, err := Build(fastConfig(), ingest.NewReader(&buf), BuildOptions{})
	require.NoError(t, err)
	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, res.Slices)
	require.Len(t, res.Final(), 1)
	assert.Equal(t, 6, res.Final()[0].NPoints)
}

func TestNewRequiresSourceAndFinder(t *testing.T) {
	finder, err := seqline.NewTrackFinder(seqline.DefaultFinderConfig())
	require.NoError(t, err)

	_, err = New(Config{Finder: finder})
	assert.ErrorIs(t, err, spectral.ErrInvalidConfig)
	_, err = New(Config{Source: &sliceSource{}})
	assert.ErrorIs(t, err, spectral.ErrInvalidConfig)
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	tc := &config.TrackingConfig{Pipeline: &config.PipelineSection{TrackBuilder: strPtr("hough")}}
	_, err := Build(tc, &sliceSource{}, BuildOptions{})
	assert.Error(t, err)
}
