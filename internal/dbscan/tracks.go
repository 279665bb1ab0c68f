package dbscan

import (
	"fmt"
	"sort"

	"github.com/banshee-data/spectral-tracks/internal/monitoring"
	"github.com/banshee-data/spectral-tracks/internal/spectral"
)

// TrackClusterParams configures a TrackClusterer. Time and frequency are
// divided by their radii before clustering with a unit radius, so the radii
// set the relative weight of each axis.
type TrackClusterParams struct {
	TimeRadius      float64
	FrequencyRadius float64
	MinPoints       uint
}

// DefaultTrackClusterParams returns parameters suited to slices of a few
// tens of microseconds and bins of tens of kilohertz.
func DefaultTrackClusterParams() TrackClusterParams {
	return TrackClusterParams{
		TimeRadius:      1e-4,
		FrequencyRadius: 2e5,
		MinPoints:       DefaultMinPoints,
	}
}

// TrackClusterer groups discriminated points into track candidates with
// DBSCAN in scaled (time, frequency) space.
type TrackClusterer struct {
	params    TrackClusterParams
	clusterer *Clusterer
	nextID    uint64
}

// NewTrackClusterer validates params and returns a TrackClusterer.
func NewTrackClusterer(params TrackClusterParams) (*TrackClusterer, error) {
	if !(params.TimeRadius > 0) || !(params.FrequencyRadius > 0) {
		return nil, fmt.Errorf("track clustering radii must be > 0 (time=%v, frequency=%v): %w",
			params.TimeRadius, params.FrequencyRadius, spectral.ErrInvalidConfig)
	}
	c, err := NewClusterer(Params{Radius: 1, MinPoints: params.MinPoints})
	if err != nil {
		return nil, err
	}
	return &TrackClusterer{params: params, clusterer: c}, nil
}

// ClusterPoints clusters points per component and returns one candidate per
// cluster, in ascending component order then cluster discovery order.
// Candidate IDs increase across calls, starting at 1.
func (tc *TrackClusterer) ClusterPoints(points []spectral.DiscriminatedPoint) []spectral.TrackRecord {
	byComponent := make(map[uint][]spectral.DiscriminatedPoint)
	var components []uint
	for _, p := range points {
		if _, ok := byComponent[p.Component]; !ok {
			components = append(components, p.Component)
		}
		byComponent[p.Component] = append(byComponent[p.Component], p)
	}
	sort.Slice(components, func(i, j int) bool { return components[i] < components[j] })

	var out []spectral.TrackRecord
	for _, comp := range components {
		out = append(out, tc.clusterComponent(comp, byComponent[comp])...)
	}
	return out
}

func (tc *TrackClusterer) clusterComponent(component uint, pts []spectral.DiscriminatedPoint) []spectral.TrackRecord {
	spectral.SortByTimeFreq(pts)

	coords := make([][]float64, len(pts))
	for i, p := range pts {
		coords[i] = []float64{p.TimeInRunC / tc.params.TimeRadius, p.Frequency / tc.params.FrequencyRadius}
	}
	res := tc.clusterer.Cluster(coords)
	monitoring.Debugf("[dbscan] component %d: %d points, %d clusters, %d noise",
		component, len(pts), res.NClusters(), res.NNoise())

	out := make([]spectral.TrackRecord, 0, res.NClusters())
	for _, members := range res.Clusters {
		if len(members) == 0 {
			monitoring.Logf("[dbscan] empty cluster in component %d", component)
			continue
		}
		tc.nextID++
		out = append(out, buildCandidate(component, tc.nextID, pts, members))
	}
	return out
}

func buildCandidate(component uint, id uint64, pts []spectral.DiscriminatedPoint, members []int) spectral.TrackRecord {
	first := pts[members[0]]
	cand := spectral.TrackRecord{
		Component:     component,
		AcquisitionID: first.AcquisitionID,
		CandidateID:   id,
		NPoints:       len(members),
		Points:        make([]spectral.DiscriminatedPoint, 0, len(members)),
	}

	minT, maxT := first.TimeInRunC, first.TimeInRunC
	minF, maxF := first.Frequency, first.Frequency
	minTAcq, maxTAcq := first.TimeInAcq, first.TimeInAcq
	for _, idx := range members {
		p := pts[idx]
		cand.Points = append(cand.Points, p)
		cand.AddTotals(p)
		if p.TimeInRunC < minT {
			minT, minTAcq = p.TimeInRunC, p.TimeInAcq
		}
		if p.TimeInRunC > maxT {
			maxT, maxTAcq = p.TimeInRunC, p.TimeInAcq
		}
		if p.Frequency < minF {
			minF = p.Frequency
		}
		if p.Frequency > maxF {
			maxF = p.Frequency
		}
	}
	spectral.SortByTimeFreq(cand.Points)

	cand.SetEnvelope(minT, maxT, minF, maxF)
	cand.StartTimeInAcq = minTAcq
	cand.EndTimeInAcq = maxTAcq
	return cand
}
