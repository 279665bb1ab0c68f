package seqline

import (
	"fmt"
	"math"
	"sort"

	"github.com/banshee-data/spectral-tracks/internal/monitoring"
	"github.com/banshee-data/spectral-tracks/internal/spectral"
)

// SlopeMethod selects how a line's running slope is estimated.
type SlopeMethod string

const (
	// SlopeRegression uses the least-squares fit over all members.
	SlopeRegression SlopeMethod = "regression"
	// SlopeWeightedLastPointRef averages the slopes from each of the last
	// NSlopePoints members to the latest member, weighted by wide SNR.
	SlopeWeightedLastPointRef SlopeMethod = "weighted-last-point-ref"
)

// Cut rejects a track whose value is not strictly above Threshold.
type Cut struct {
	Enabled   bool
	Threshold float64
}

func (c Cut) pass(v float64) bool {
	return !c.Enabled || v > c.Threshold
}

// Cuts are the optional quality cuts applied to closed lines. Totals use the
// wide (neighborhood) variants; averages divide them by the time length.
type Cuts struct {
	TotalPower   Cut
	AveragePower Cut
	TotalSNR     Cut
	AverageSNR   Cut
	TotalNUP     Cut
	AverageNUP   Cut
}

func (c Cuts) pass(rec spectral.TrackRecord) bool {
	avg := func(v float64) float64 {
		if rec.TimeLength == 0 {
			return math.Inf(-1)
		}
		return v / rec.TimeLength
	}
	return c.TotalPower.pass(rec.TotalWidePower) &&
		c.AveragePower.pass(avg(rec.TotalWidePower)) &&
		c.TotalSNR.pass(rec.TotalWideSNR) &&
		c.AverageSNR.pass(avg(rec.TotalWideSNR)) &&
		c.TotalNUP.pass(rec.TotalWideNUP) &&
		c.AverageNUP.pass(avg(rec.TotalWideNUP))
}

// FinderConfig holds the sequential track finder parameters. Times are in
// seconds and frequencies in Hz.
type FinderConfig struct {
	TimeGapTolerance    float64
	FrequencyAcceptance float64
	// InitialFrequencyAcceptance applies to lines holding a single point;
	// 0 means FrequencyAcceptance.
	InitialFrequencyAcceptance float64
	InitialSlope               float64
	MinPoints                  int
	MinSlope                   float64
	TrimmingThreshold          float64
	// MinBin and MaxBin bound the bins considered; MaxBin 0 is unbounded.
	MinBin       uint
	MaxBin       uint
	SlopeMethod  SlopeMethod
	NSlopePoints int
	Cuts         Cuts
}

// DefaultFinderConfig returns the default finder parameters.
func DefaultFinderConfig() FinderConfig {
	return FinderConfig{
		TimeGapTolerance:    0.0005,
		FrequencyAcceptance: 56166.05,
		InitialSlope:        3e8,
		MinPoints:           3,
		MinSlope:            0,
		TrimmingThreshold:   6,
		SlopeMethod:         SlopeRegression,
		NSlopePoints:        10,
	}
}

// Validate checks the parameters.
func (c FinderConfig) Validate() error {
	switch {
	case c.TimeGapTolerance < 0:
		return fmt.Errorf("%w: time gap tolerance must not be negative", spectral.ErrInvalidConfig)
	case !(c.FrequencyAcceptance > 0):
		return fmt.Errorf("%w: frequency acceptance must be positive", spectral.ErrInvalidConfig)
	case c.InitialFrequencyAcceptance < 0:
		return fmt.Errorf("%w: initial frequency acceptance must not be negative", spectral.ErrInvalidConfig)
	case c.MinPoints < 1:
		return fmt.Errorf("%w: min points must be at least 1", spectral.ErrInvalidConfig)
	case c.MaxBin != 0 && c.MaxBin < c.MinBin:
		return fmt.Errorf("%w: max bin %d below min bin %d", spectral.ErrInvalidConfig, c.MaxBin, c.MinBin)
	}
	switch c.SlopeMethod {
	case SlopeRegression:
	case SlopeWeightedLastPointRef:
		if c.NSlopePoints < 2 {
			return fmt.Errorf("%w: weighted slope needs at least 2 slope points", spectral.ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown slope method %q", spectral.ErrInvalidConfig, c.SlopeMethod)
	}
	return nil
}

func (c FinderConfig) initialAcceptance() float64 {
	if c.InitialFrequencyAcceptance > 0 {
		return c.InitialFrequencyAcceptance
	}
	return c.FrequencyAcceptance
}

// FinderOption configures a TrackFinder.
type FinderOption func(*TrackFinder)

// WithObserver registers an observer called for every emitted track.
func WithObserver(o spectral.TrackObserver) FinderOption {
	return func(f *TrackFinder) {
		if o != nil {
			f.observers = append(f.observers, o)
		}
	}
}

type activeLine struct {
	line  *Line
	slope float64
}

// TrackFinder follows lines through a stream of slices. Each component is
// tracked independently. Not safe for concurrent use.
type TrackFinder struct {
	cfg       FinderConfig
	observers spectral.TrackFanout

	lines  [][]*activeLine
	nextID uint64
}

// NewTrackFinder creates a finder.
func NewTrackFinder(cfg FinderConfig, opts ...FinderOption) (*TrackFinder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	f := &TrackFinder{cfg: cfg}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Config returns the finder parameters.
func (f *TrackFinder) Config() FinderConfig { return f.cfg }

// NActiveLines returns the number of open lines across components.
func (f *TrackFinder) NActiveLines() int {
	n := 0
	for _, ls := range f.lines {
		n += len(ls)
	}
	return n
}

// ProcessSlice feeds one slice of points and returns the tracks closed by it.
func (f *TrackFinder) ProcessSlice(h spectral.SliceHeader, points *spectral.PointSet) []spectral.TrackRecord {
	for len(f.lines) < points.NComponents() {
		f.lines = append(f.lines, nil)
	}

	var out []spectral.TrackRecord
	for c := range f.lines {
		comp := uint(c)
		out = f.closeStale(comp, h.CenterTimeInRun(), out)
		pts := f.slicePoints(h, points, comp)
		for _, p := range pts {
			out = f.processPoint(comp, p, out)
		}
	}
	return out
}

// Finish closes every open line and returns the resulting tracks.
func (f *TrackFinder) Finish() []spectral.TrackRecord {
	var out []spectral.TrackRecord
	for c, ls := range f.lines {
		for _, l := range ls {
			out = f.close(l, out)
		}
		f.lines[c] = nil
	}
	return out
}

// slicePoints returns the usable points of one component placed at the slice
// center, strongest first.
func (f *TrackFinder) slicePoints(h spectral.SliceHeader, points *spectral.PointSet, comp uint) []spectral.DiscriminatedPoint {
	all := points.Sorted(comp)
	pts := all[:0]
	for _, p := range all {
		if p.BinIndex < f.cfg.MinBin || (f.cfg.MaxBin != 0 && p.BinIndex > f.cfg.MaxBin) {
			continue
		}
		p = h.Place(p, comp)
		if p.Amplitude == 0 || p.Frequency == 0 {
			continue
		}
		pts = append(pts, p)
	}
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].Amplitude > pts[j].Amplitude })
	return pts
}

// closeStale closes the lines of comp that ended more than the gap tolerance
// before now, so a component missing from a slice still ages.
func (f *TrackFinder) closeStale(comp uint, now float64, out []spectral.TrackRecord) []spectral.TrackRecord {
	lines := f.lines[comp]
	kept := lines[:0]
	for _, l := range lines {
		if l.line.Last().TimeInRunC < now-f.cfg.TimeGapTolerance {
			out = f.close(l, out)
			continue
		}
		kept = append(kept, l)
	}
	f.lines[comp] = kept
	return out
}

func (f *TrackFinder) processPoint(comp uint, p spectral.DiscriminatedPoint, out []spectral.TrackRecord) []spectral.TrackRecord {
	lines := f.lines[comp]
	matched := false
	for i := 0; i < len(lines); {
		l := lines[i]
		end := l.line.Last()
		if end.TimeInRunC < p.TimeInRunC-f.cfg.TimeGapTolerance {
			out = f.close(l, out)
			lines = append(lines[:i], lines[i+1:]...)
			continue
		}
		if p.TimeInRunC > end.TimeInRunC && f.accepts(l, p) {
			l.line.AddPoint(p)
			l.slope = f.slopeOf(l.line)
			matched = true
			break
		}
		i++
	}
	if !matched {
		lines = append(lines, &activeLine{line: NewLine(p), slope: f.cfg.InitialSlope})
	}
	f.lines[comp] = lines
	return out
}

func (f *TrackFinder) accepts(l *activeLine, p spectral.DiscriminatedPoint) bool {
	end := l.line.Last()
	predicted := end.Frequency + l.slope*(p.TimeInAcq-end.TimeInAcq)
	acceptance := f.cfg.FrequencyAcceptance
	if l.line.NPoints() == 1 {
		acceptance = f.cfg.initialAcceptance()
	}
	return math.Abs(p.Frequency-predicted) < acceptance
}

func (f *TrackFinder) slopeOf(l *Line) float64 {
	if f.cfg.SlopeMethod == SlopeWeightedLastPointRef {
		return weightedLastPointSlope(l, f.cfg.NSlopePoints, f.cfg.InitialSlope)
	}
	slope, _, ok := l.Fit()
	if !ok {
		return f.cfg.InitialSlope
	}
	return slope
}

// weightedLastPointSlope averages the slope from each of the last n members
// to the latest member, weighted by the member's wide SNR.
func weightedLastPointSlope(l *Line, n int, fallback float64) float64 {
	pts := l.points
	if len(pts) > n {
		pts = pts[len(pts)-n:]
	}
	end := pts[len(pts)-1]
	var sum, wsum float64
	for _, p := range pts[:len(pts)-1] {
		dt := end.TimeInRunC - p.TimeInRunC
		if p.Frequency == end.Frequency || dt == 0 {
			continue
		}
		w := p.WideSNR()
		sum += w * (end.Frequency - p.Frequency) / dt
		wsum += w
	}
	if wsum == 0 {
		return fallback
	}
	return sum / wsum
}

func (f *TrackFinder) close(l *activeLine, out []spectral.TrackRecord) []spectral.TrackRecord {
	line := l.line
	if line.NPoints() >= f.cfg.MinPoints {
		if n := line.LineSNRTrimming(f.cfg.TrimmingThreshold, f.cfg.MinPoints); n > 0 {
			l.slope = f.slopeOf(line)
		}
	}
	if line.NPoints() < f.cfg.MinPoints {
		return out
	}
	if l.slope < f.cfg.MinSlope {
		monitoring.Debugf("[seqline] line with %d points dropped: slope %g below %g", line.NPoints(), l.slope, f.cfg.MinSlope)
		return out
	}

	rec := line.Track()
	if rec.IsCut {
		monitoring.Debugf("[seqline] line with %d points dropped: %v", line.NPoints(), spectral.ErrDegenerateInput)
		return out
	}
	if f.cfg.SlopeMethod != SlopeRegression {
		rec.Slope = l.slope
		rec.Intercept = rec.StartFrequency - l.slope*rec.StartTimeInRunC
	}
	if !f.cfg.Cuts.pass(rec) {
		monitoring.Debugf("[seqline] line with %d points rejected by cuts", line.NPoints())
		return out
	}

	f.nextID++
	rec.CandidateID = f.nextID
	f.observers.OnTrackEmitted(rec)
	return append(out, rec)
}
