package pipeline

import (
	"github.com/banshee-data/spectral-tracks/internal/dbscan"
	"github.com/banshee-data/spectral-tracks/internal/seqline"
	"github.com/banshee-data/spectral-tracks/internal/spectral"
)

// TrackBuilder turns slices of points into track records. ProcessSlice
// returns tracks closed by the slice; Finish closes everything still open.
type TrackBuilder interface {
	ProcessSlice(h spectral.SliceHeader, points *spectral.PointSet) []spectral.TrackRecord
	Finish() []spectral.TrackRecord
}

var (
	_ TrackBuilder = (*seqline.TrackFinder)(nil)
	_ TrackBuilder = (*DBSCANBuilder)(nil)
)

// DBSCANBuilder collects every point of the run and clusters them into
// track candidates when the stream ends.
type DBSCANBuilder struct {
	clusterer *dbscan.TrackClusterer
	points    []spectral.DiscriminatedPoint
}

// NewDBSCANBuilder creates a builder from clustering parameters.
func NewDBSCANBuilder(params dbscan.TrackClusterParams) (*DBSCANBuilder, error) {
	tc, err := dbscan.NewTrackClusterer(params)
	if err != nil {
		return nil, err
	}
	return &DBSCANBuilder{clusterer: tc}, nil
}

// ProcessSlice buffers the slice's points; it never closes a track.
func (b *DBSCANBuilder) ProcessSlice(h spectral.SliceHeader, points *spectral.PointSet) []spectral.TrackRecord {
	for c := 0; c < points.NComponents(); c++ {
		for _, p := range points.Sorted(uint(c)) {
			b.points = append(b.points, h.Place(p, uint(c)))
		}
	}
	return nil
}

// Finish clusters the buffered points and resets the builder.
func (b *DBSCANBuilder) Finish() []spectral.TrackRecord {
	pts := b.points
	b.points = nil
	return b.clusterer.ClusterPoints(pts)
}
