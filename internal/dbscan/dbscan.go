// Package dbscan implements density-based clustering over a static batch of
// D-dimensional points, plus a track clusterer that groups discriminated
// points in (time, frequency) space into track candidates.
package dbscan

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/spectral-tracks/internal/spectral"
)

// Default DBSCAN parameters.
const (
	DefaultRadius    = 1.0
	DefaultMinPoints = 3
)

// Metric returns the distance between two points of equal dimension.
type Metric func(a, b []float64) float64

// Euclidean is the L2 distance.
func Euclidean(a, b []float64) float64 {
	return floats.Distance(a, b, 2)
}

// Params configures a Clusterer.
type Params struct {
	// Radius is the neighborhood radius. Two points are neighbors when their
	// distance is strictly less than Radius.
	Radius float64
	// MinPoints is the neighbor count (the point itself included) a point
	// needs to be a core point.
	MinPoints uint
	// Metric defaults to Euclidean.
	Metric Metric
}

// DefaultParams returns the default clustering parameters.
func DefaultParams() Params {
	return Params{Radius: DefaultRadius, MinPoints: DefaultMinPoints}
}

// Validate checks that the parameters can drive a clustering run.
func (p Params) Validate() error {
	if !(p.Radius > 0) {
		return fmt.Errorf("dbscan radius must be > 0, got %v: %w", p.Radius, spectral.ErrInvalidConfig)
	}
	if p.MinPoints == 0 {
		return fmt.Errorf("dbscan min points must be >= 1: %w", spectral.ErrInvalidConfig)
	}
	return nil
}

// Result is the partition produced by one clustering run.
type Result struct {
	// Clusters lists point indices per cluster, in discovery order.
	// Within a cluster indices appear in breadth-first expansion order.
	Clusters [][]int
	Visited  []bool
	Noise    []bool
}

// NClusters returns the number of clusters found.
func (r Result) NClusters() int { return len(r.Clusters) }

// NNoise returns the number of points left as noise.
func (r Result) NNoise() int {
	n := 0
	for _, b := range r.Noise {
		if b {
			n++
		}
	}
	return n
}

// Labels returns a per-point cluster index, or -1 for points in no cluster.
func (r Result) Labels() []int {
	labels := make([]int, len(r.Visited))
	for i := range labels {
		labels[i] = -1
	}
	for c, members := range r.Clusters {
		for _, idx := range members {
			labels[idx] = c
		}
	}
	return labels
}

// Clusterer runs DBSCAN with fixed parameters. It holds no per-run state and
// may be reused.
type Clusterer struct {
	params Params
}

// NewClusterer validates params and returns a Clusterer.
func NewClusterer(params Params) (*Clusterer, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if params.Metric == nil {
		params.Metric = Euclidean
	}
	return &Clusterer{params: params}, nil
}

// Params returns the clusterer's parameters.
func (c *Clusterer) Params() Params {
	return c.params
}

// Cluster partitions points into density-connected clusters.
//
// Cluster discovery follows ascending point index and expansion is breadth
// first in queue insertion order. A point claimed by one cluster is never
// reassigned to a later one. Output is fully determined by the input order.
//
// When points are sorted by their first coordinate the neighbor search stops
// scanning once the first-coordinate gap reaches the radius. Unsorted input
// is detected and falls back to the exhaustive O(N^2) pairwise scan.
func (c *Clusterer) Cluster(points [][]float64) Result {
	n := len(points)
	res := Result{
		Visited: make([]bool, n),
		Noise:   make([]bool, n),
	}
	if n == 0 {
		return res
	}

	adj := c.neighborLists(points)
	minPts := int(c.params.MinPoints)
	assigned := make([]bool, n)

	for i := 0; i < n; i++ {
		if res.Visited[i] {
			continue
		}
		res.Visited[i] = true

		// neighbor counts include the point itself
		if len(adj[i])+1 < minPts {
			res.Noise[i] = true
			continue
		}

		cluster := []int{i}
		assigned[i] = true
		queue := append([]int(nil), adj[i]...)

		for k := 0; k < len(queue); k++ {
			idx := queue[k]
			if !res.Visited[idx] {
				res.Visited[idx] = true
				if len(adj[idx])+1 >= minPts {
					for _, m := range adj[idx] {
						if !assigned[m] {
							queue = append(queue, m)
						}
					}
				}
			}
			if !assigned[idx] {
				assigned[idx] = true
				res.Noise[idx] = false
				cluster = append(cluster, idx)
			}
		}
		res.Clusters = append(res.Clusters, cluster)
	}
	return res
}

// neighborLists builds each point's neighbor list (excluding itself) in
// ascending index order with a single pairwise pass.
func (c *Clusterer) neighborLists(points [][]float64) [][]int {
	n := len(points)
	adj := make([][]int, n)
	radius := c.params.Radius
	prune := sortedByFirstCoordinate(points)

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if prune && points[j][0]-points[i][0] >= radius {
				break
			}
			if c.params.Metric(points[i], points[j]) < radius {
				adj[i] = append(adj[i], j)
				adj[j] = append(adj[j], i)
			}
		}
	}
	return adj
}

func sortedByFirstCoordinate(points [][]float64) bool {
	for i := 1; i < len(points); i++ {
		if len(points[i]) == 0 || len(points[i-1]) == 0 || points[i][0] < points[i-1][0] {
			return false
		}
	}
	return true
}
