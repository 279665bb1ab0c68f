package spectral

import "gonum.org/v1/gonum/mat"

// ClusterState is the lifecycle state of a streaming cluster.
type ClusterState int

const (
	ClusterActive ClusterState = iota
	ClusterFinalized
)

func (s ClusterState) String() string {
	switch s {
	case ClusterActive:
		return "active"
	case ClusterFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// Cluster is a group of discriminated points that are contiguous in
// frequency and time across slices. The multi-slice accumulator emits it
// once no slice has extended it within the inactivity window.
type Cluster struct {
	ID            int
	Component     uint
	AcquisitionID uint64
	State         ClusterState

	FirstSlice uint64
	LastSlice  uint64
	NSlices    int

	// TimeInRunC is the run time of the first slice, TimeLength the span
	// from the first slice's start to the last slice's end.
	TimeInRunC float64
	TimeLength float64

	MinBin             uint
	MaxBin             uint
	MinFrequency       float64
	MaxFrequency       float64
	FrequencyWidth     float64
	MeanStartFrequency float64
	MeanEndFrequency   float64
	Threshold          float64

	Points []DiscriminatedPoint

	// Waterfall holds one row per framed slice and one column per framed
	// bin starting at WaterfallMinBin. The first WaterfallPreRows rows are
	// the pre-cluster frame. Nil when no spectra were supplied.
	Waterfall        *mat.Dense
	WaterfallMinBin  uint
	WaterfallPreRows int
}
