// Package spectral holds the value types shared by the clustering and track
// building stages: discriminated points, per-slice point sets, slice headers,
// and the track and cluster records handed to downstream observers.
package spectral

import (
	"math"
	"sort"
)

// DiscriminatedPoint is one frequency bin in one time slice whose amplitude
// exceeded the discrimination threshold. It is a value type and is copied
// between containers; nothing holds a pointer into another stage's points.
type DiscriminatedPoint struct {
	BinIndex              uint
	Amplitude             float64
	LocalMean             float64
	LocalVariance         float64
	Threshold             float64
	NeighborhoodAmplitude float64
	TimeInRunC            float64
	TimeInAcq             float64
	Frequency             float64
	AcquisitionID         uint64
	Component             uint
}

// SNR is the peak amplitude over the local mean.
func (p DiscriminatedPoint) SNR() float64 {
	return safeDiv(p.Amplitude, p.LocalMean)
}

// WideSNR is the neighborhood amplitude over the local mean.
func (p DiscriminatedPoint) WideSNR() float64 {
	return safeDiv(p.NeighborhoodAmplitude, p.LocalMean)
}

// NUP is the number of standard deviations the peak amplitude sits above the
// local mean.
func (p DiscriminatedPoint) NUP() float64 {
	return safeDiv(p.Amplitude-p.LocalMean, math.Sqrt(p.LocalVariance))
}

// WideNUP is NUP computed with the neighborhood amplitude.
func (p DiscriminatedPoint) WideNUP() float64 {
	return safeDiv(p.NeighborhoodAmplitude-p.LocalMean, math.Sqrt(p.LocalVariance))
}

// LessTimeFreq orders points by time in run, then by frequency.
func LessTimeFreq(a, b DiscriminatedPoint) bool {
	if a.TimeInRunC != b.TimeInRunC {
		return a.TimeInRunC < b.TimeInRunC
	}
	return a.Frequency < b.Frequency
}

// SortByTimeFreq sorts points in place by (TimeInRunC, Frequency).
func SortByTimeFreq(points []DiscriminatedPoint) {
	sort.SliceStable(points, func(i, j int) bool {
		return LessTimeFreq(points[i], points[j])
	})
}

// safeDiv returns 0 for a zero denominator so a point with an unset noise
// estimate contributes nothing instead of Inf/NaN.
func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
