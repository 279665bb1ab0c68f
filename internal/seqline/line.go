// Package seqline builds tracks by following points slice by slice: each
// point either extends the line whose predicted frequency it matches or
// starts a new one.
package seqline

import (
	"sort"

	"github.com/banshee-data/spectral-tracks/internal/spectral"
)

// Sums are the linear-regression accumulators of a line, with time (TimeInRunC)
// as x and frequency as y.
type Sums struct {
	N  int
	X  float64
	Y  float64
	XY float64
	XX float64
}

func (s *Sums) add(p spectral.DiscriminatedPoint, sign float64) {
	t, f := p.TimeInRunC, p.Frequency
	s.N += int(sign)
	s.X += sign * t
	s.Y += sign * f
	s.XY += sign * t * f
	s.XX += sign * t * t
}

// Totals are the running amplitude, SNR and NUP totals of a line.
type Totals struct {
	Power     float64
	WidePower float64
	SNR       float64
	WideSNR   float64
	NUP       float64
	WideNUP   float64
}

func (t *Totals) add(p spectral.DiscriminatedPoint, sign float64) {
	t.Power += sign * p.Amplitude
	t.WidePower += sign * p.NeighborhoodAmplitude
	t.SNR += sign * p.SNR()
	t.WideSNR += sign * p.WideSNR()
	t.NUP += sign * p.NUP()
	t.WideNUP += sign * p.WideNUP()
}

// Line is an ordered run of points with incrementally maintained regression
// sums. The zero value is an empty line.
type Line struct {
	points []spectral.DiscriminatedPoint
	sums   Sums
	totals Totals
}

// NewLine returns a line holding the given points.
func NewLine(points ...spectral.DiscriminatedPoint) *Line {
	l := &Line{}
	for _, p := range points {
		l.AddPoint(p)
	}
	return l
}

// AddPoint inserts p in (time, frequency) order. A point with the same time
// and frequency as an existing member is ignored and AddPoint returns false.
func (l *Line) AddPoint(p spectral.DiscriminatedPoint) bool {
	i := sort.Search(len(l.points), func(i int) bool {
		return !spectral.LessTimeFreq(l.points[i], p)
	})
	if i < len(l.points) && !spectral.LessTimeFreq(p, l.points[i]) {
		return false
	}
	l.points = append(l.points, spectral.DiscriminatedPoint{})
	copy(l.points[i+1:], l.points[i:])
	l.points[i] = p
	l.sums.add(p, 1)
	l.totals.add(p, 1)
	return true
}

// NPoints returns the number of members.
func (l *Line) NPoints() int { return len(l.points) }

// Points returns a copy of the members in (time, frequency) order.
func (l *Line) Points() []spectral.DiscriminatedPoint {
	out := make([]spectral.DiscriminatedPoint, len(l.points))
	copy(out, l.points)
	return out
}

// First returns the earliest member. It panics on an empty line.
func (l *Line) First() spectral.DiscriminatedPoint { return l.points[0] }

// Last returns the latest member. It panics on an empty line.
func (l *Line) Last() spectral.DiscriminatedPoint { return l.points[len(l.points)-1] }

// Sums returns the incrementally maintained regression sums.
func (l *Line) Sums() Sums { return l.sums }

// Totals returns the running amplitude, SNR and NUP totals.
func (l *Line) Totals() Totals { return l.totals }

// RecomputedSums rebuilds the regression sums from the members.
func (l *Line) RecomputedSums() Sums {
	var s Sums
	for _, p := range l.points {
		s.add(p, 1)
	}
	return s
}

// LineSNRTrimming drops low-SNR members from the ends of the line, first
// from the front and then from the back, while more than minPoints remain.
// Interior members are never removed. It returns the number removed.
func (l *Line) LineSNRTrimming(threshold float64, minPoints int) int {
	removed := 0
	for len(l.points) > minPoints && l.points[0].SNR() < threshold {
		l.remove(0)
		removed++
	}
	for len(l.points) > minPoints && l.points[len(l.points)-1].SNR() < threshold {
		l.remove(len(l.points) - 1)
		removed++
	}
	return removed
}

func (l *Line) remove(i int) {
	p := l.points[i]
	l.sums.add(p, -1)
	l.totals.add(p, -1)
	l.points = append(l.points[:i], l.points[i+1:]...)
	if len(l.points) == 0 {
		l.sums = Sums{}
		l.totals = Totals{}
	}
}

// Fit returns the least-squares slope and intercept of frequency against
// time. ok is false when the fit is degenerate: fewer than two members or
// all members at one time.
func (l *Line) Fit() (slope, intercept float64, ok bool) {
	if len(l.points) < 2 || l.First().TimeInRunC == l.Last().TimeInRunC {
		return 0, 0, false
	}
	s := l.sums
	n := float64(s.N)
	den := n*s.XX - s.X*s.X
	if den == 0 {
		return 0, 0, false
	}
	slope = (n*s.XY - s.X*s.Y) / den
	intercept = (s.Y - slope*s.X) / n
	return slope, intercept, true
}

// Track converts the line into a track record. The record is cut when the
// fit is degenerate.
func (l *Line) Track() spectral.TrackRecord {
	var rec spectral.TrackRecord
	if len(l.points) == 0 {
		rec.IsCut = true
		return rec
	}
	first, last := l.First(), l.Last()
	rec = spectral.TrackRecord{
		Component:       first.Component,
		AcquisitionID:   first.AcquisitionID,
		StartTimeInRunC: first.TimeInRunC,
		EndTimeInRunC:   last.TimeInRunC,
		StartTimeInAcq:  first.TimeInAcq,
		EndTimeInAcq:    last.TimeInAcq,
		StartFrequency:  first.Frequency,
		EndFrequency:    last.Frequency,
		TimeLength:      last.TimeInRunC - first.TimeInRunC,
		FrequencyWidth:  last.Frequency - first.Frequency,
		TotalPower:      l.totals.Power,
		TotalWidePower:  l.totals.WidePower,
		TotalSNR:        l.totals.SNR,
		TotalWideSNR:    l.totals.WideSNR,
		TotalNUP:        l.totals.NUP,
		TotalWideNUP:    l.totals.WideNUP,
		NPoints:         len(l.points),
		Points:          l.Points(),
	}
	slope, intercept, ok := l.Fit()
	if !ok {
		rec.IsCut = true
		return rec
	}
	rec.Slope = slope
	rec.Intercept = intercept
	return rec
}
