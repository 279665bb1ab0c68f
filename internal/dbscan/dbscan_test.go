package dbscan

import (
	"errors"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/spectral-tracks/internal/spectral"
)

// blob returns a 3x3 grid of points with 0.5 spacing centred on (cx, cy).
func blob(cx, cy float64) [][]float64 {
	var pts [][]float64
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			pts = append(pts, []float64{cx + 0.5*float64(dx), cy + 0.5*float64(dy)})
		}
	}
	return pts
}

func threeBlobs() [][]float64 {
	var pts [][]float64
	pts = append(pts, blob(0, 0)...)
	pts = append(pts, blob(-10, -10)...)
	pts = append(pts, blob(10, 10)...)
	return pts
}

func mustClusterer(t *testing.T, radius float64, minPts uint) *Clusterer {
	t.Helper()
	c, err := NewClusterer(Params{Radius: radius, MinPoints: minPts})
	if err != nil {
		t.Fatalf("NewClusterer: %v", err)
	}
	return c
}

func TestCluster_ThreeBlobs(t *testing.T) {
	c := mustClusterer(t, 1.0, 4)
	res := c.Cluster(threeBlobs())

	if res.NClusters() != 3 {
		t.Fatalf("clusters = %d, want 3", res.NClusters())
	}
	if res.NNoise() != 0 {
		t.Errorf("noise = %d, want 0", res.NNoise())
	}
	for i, cl := range res.Clusters {
		if len(cl) != 9 {
			t.Errorf("cluster %d has %d points, want 9", i, len(cl))
		}
	}
	for i, v := range res.Visited {
		if !v {
			t.Errorf("point %d not visited", i)
		}
	}
}

func TestCluster_Deterministic(t *testing.T) {
	c := mustClusterer(t, 1.0, 4)
	pts := threeBlobs()
	first := c.Cluster(pts)
	for i := 0; i < 5; i++ {
		if diff := cmp.Diff(first, c.Cluster(pts)); diff != "" {
			t.Fatalf("run %d differs (-first +got):\n%s", i, diff)
		}
	}
}

func TestCluster_SortedMatchesExhaustive(t *testing.T) {
	c := mustClusterer(t, 1.0, 4)

	pts := threeBlobs()
	sorted := append([][]float64(nil), pts...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i][0] < sorted[j][0] })
	if !sortedByFirstCoordinate(sorted) || sortedByFirstCoordinate(pts) {
		t.Fatal("fixture ordering not as expected")
	}

	sizes := func(r Result) []int {
		var s []int
		for _, cl := range r.Clusters {
			s = append(s, len(cl))
		}
		sort.Ints(s)
		return s
	}
	if diff := cmp.Diff(sizes(c.Cluster(pts)), sizes(c.Cluster(sorted))); diff != "" {
		t.Errorf("cluster sizes differ between pruned and exhaustive scans:\n%s", diff)
	}
}

func TestCluster_FirstSeedWins(t *testing.T) {
	// 1.7 is a border point reachable from both groups but core in neither.
	pts := [][]float64{{0}, {0.3}, {0.6}, {0.9}, {1.7}, {2.5}, {2.8}, {3.1}, {3.4}}
	c := mustClusterer(t, 1.0, 4)
	res := c.Cluster(pts)

	if res.NClusters() != 2 {
		t.Fatalf("clusters = %d, want 2", res.NClusters())
	}
	labels := res.Labels()
	if labels[4] != 0 {
		t.Errorf("border point label = %d, want 0 (first cluster)", labels[4])
	}
	if len(res.Clusters[1]) != 4 {
		t.Errorf("second cluster size = %d, want 4", len(res.Clusters[1]))
	}
}

func TestCluster_NoiseLaterClaimedAsBorder(t *testing.T) {
	pts := [][]float64{{0}, {0.8}, {1.1}, {1.4}, {1.7}, {20}}
	c := mustClusterer(t, 1.0, 4)
	res := c.Cluster(pts)

	if res.NClusters() != 1 {
		t.Fatalf("clusters = %d, want 1", res.NClusters())
	}
	if res.Noise[0] {
		t.Error("point 0 should have been reclaimed as a border point")
	}
	if !res.Noise[5] {
		t.Error("isolated point should be noise")
	}
	if got := res.Labels(); got[0] != 0 || got[5] != -1 {
		t.Errorf("labels = %v", got)
	}
}

func TestCluster_BreadthFirstOrder(t *testing.T) {
	pts := [][]float64{{0}, {0.6}, {1.2}, {1.8}}
	c := mustClusterer(t, 1.0, 2)
	res := c.Cluster(pts)
	if diff := cmp.Diff([][]int{{0, 1, 2, 3}}, res.Clusters); diff != "" {
		t.Errorf("expansion order (-want +got):\n%s", diff)
	}
}

func TestCluster_Empty(t *testing.T) {
	c := mustClusterer(t, 1.0, 1)
	res := c.Cluster(nil)
	if res.NClusters() != 0 || len(res.Visited) != 0 || len(res.Noise) != 0 {
		t.Errorf("unexpected result for empty input: %+v", res)
	}
}

func TestCluster_MinPointsOneMakesSingletons(t *testing.T) {
	c := mustClusterer(t, 0.1, 1)
	res := c.Cluster([][]float64{{0, 0}, {5, 5}})
	if res.NClusters() != 2 || res.NNoise() != 0 {
		t.Errorf("clusters=%d noise=%d, want 2 and 0", res.NClusters(), res.NNoise())
	}
}

func TestNewClusterer_InvalidParams(t *testing.T) {
	tests := []struct {
		name   string
		params Params
	}{
		{"zero radius", Params{Radius: 0, MinPoints: 3}},
		{"negative radius", Params{Radius: -1, MinPoints: 3}},
		{"zero min points", Params{Radius: 1, MinPoints: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClusterer(tt.params)
			if !errors.Is(err, spectral.ErrInvalidConfig) {
				t.Errorf("err = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestNewClusterer_CustomMetric(t *testing.T) {
	manhattan := func(a, b []float64) float64 {
		d := 0.0
		for i := range a {
			x := a[i] - b[i]
			if x < 0 {
				x = -x
			}
			d += x
		}
		return d
	}
	// (0,0)-(0.6,0.6) is 0.85 Euclidean but 1.2 Manhattan.
	pts := [][]float64{{0, 0}, {0.6, 0.6}}
	euc := mustClusterer(t, 1.0, 2)
	man, err := NewClusterer(Params{Radius: 1.0, MinPoints: 2, Metric: manhattan})
	if err != nil {
		t.Fatal(err)
	}
	if euc.Cluster(pts).NClusters() != 1 {
		t.Error("euclidean: expected one cluster")
	}
	if man.Cluster(pts).NClusters() != 0 {
		t.Error("manhattan: expected no clusters")
	}
}
