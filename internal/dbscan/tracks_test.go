package dbscan

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/spectral-tracks/internal/spectral"
)

func linePoints(component uint, t0, f0, slope float64, n int) []spectral.DiscriminatedPoint {
	pts := make([]spectral.DiscriminatedPoint, n)
	for i := range pts {
		tm := t0 + float64(i)*1e-4
		pts[i] = spectral.DiscriminatedPoint{
			TimeInRunC:            tm,
			TimeInAcq:             tm,
			Frequency:             f0 + slope*(tm-t0),
			Amplitude:             10,
			NeighborhoodAmplitude: 12,
			LocalMean:             2,
			LocalVariance:         4,
			Component:             component,
			AcquisitionID:         3,
		}
	}
	return pts
}

func TestTrackClusterer_SeparatesLines(t *testing.T) {
	t.Parallel()

	tc, err := NewTrackClusterer(TrackClusterParams{TimeRadius: 1.5e-4, FrequencyRadius: 1e5, MinPoints: 3})
	require.NoError(t, err)

	var pts []spectral.DiscriminatedPoint
	pts = append(pts, linePoints(0, 0, 50e6, 1e8, 6)...)
	pts = append(pts, linePoints(0, 0, 80e6, 1e8, 5)...)
	pts = append(pts, spectral.DiscriminatedPoint{TimeInRunC: 0.5, Frequency: 10e6})

	tracks := tc.ClusterPoints(pts)
	require.Len(t, tracks, 2)

	low, high := tracks[0], tracks[1]
	if low.StartFrequency > high.StartFrequency {
		low, high = high, low
	}
	assert.Equal(t, 6, low.NPoints)
	assert.Equal(t, 5, high.NPoints)
	assert.InDelta(t, 50e6, low.StartFrequency, 1e-3)
	assert.InDelta(t, 5e-4, low.TimeLength, 1e-12)
	assert.InDelta(t, 1e8, low.Slope, 1)
	assert.InDelta(t, 6*5.0, low.TotalSNR, 1e-9)
	assert.False(t, low.IsCut)
	assert.Equal(t, uint64(3), low.AcquisitionID)

	assert.ElementsMatch(t, []uint64{1, 2}, []uint64{tracks[0].CandidateID, tracks[1].CandidateID})
}

func TestTrackClusterer_PerComponent(t *testing.T) {
	t.Parallel()

	tc, err := NewTrackClusterer(TrackClusterParams{TimeRadius: 1.5e-4, FrequencyRadius: 1e5, MinPoints: 2})
	require.NoError(t, err)

	// same coordinates, different components: must not merge
	var pts []spectral.DiscriminatedPoint
	pts = append(pts, linePoints(1, 0, 50e6, 0, 3)...)
	pts = append(pts, linePoints(0, 0, 50e6, 0, 3)...)

	tracks := tc.ClusterPoints(pts)
	require.Len(t, tracks, 2)
	assert.Equal(t, uint(0), tracks[0].Component)
	assert.Equal(t, uint(1), tracks[1].Component)

	// IDs keep counting on the next call
	more := tc.ClusterPoints(linePoints(0, 1, 60e6, 0, 3))
	require.Len(t, more, 1)
	assert.Equal(t, uint64(3), more[0].CandidateID)
}

func TestTrackClusterer_SingleSliceIsCut(t *testing.T) {
	t.Parallel()

	tc, err := NewTrackClusterer(TrackClusterParams{TimeRadius: 1e-4, FrequencyRadius: 1e5, MinPoints: 2})
	require.NoError(t, err)

	pts := []spectral.DiscriminatedPoint{
		{TimeInRunC: 1, Frequency: 100},
		{TimeInRunC: 1, Frequency: 200},
	}
	tracks := tc.ClusterPoints(pts)
	require.Len(t, tracks, 1)
	assert.True(t, tracks[0].IsCut)
}

func TestNewTrackClusterer_Invalid(t *testing.T) {
	t.Parallel()

	_, err := NewTrackClusterer(TrackClusterParams{TimeRadius: 0, FrequencyRadius: 1, MinPoints: 1})
	assert.True(t, errors.Is(err, spectral.ErrInvalidConfig))

	_, err = NewTrackClusterer(TrackClusterParams{TimeRadius: 1, FrequencyRadius: 1, MinPoints: 0})
	assert.True(t, errors.Is(err, spectral.ErrInvalidConfig))

	_, err = NewTrackClusterer(DefaultTrackClusterParams())
	assert.NoError(t, err)
}
