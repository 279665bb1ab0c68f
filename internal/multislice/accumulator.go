// Package multislice accumulates discriminated points across consecutive
// time slices into clusters that are contiguous in frequency and time.
package multislice

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/spectral-tracks/internal/monitoring"
	"github.com/banshee-data/spectral-tracks/internal/spectral"
)

// Config holds the accumulator parameters.
type Config struct {
	// MaxFrequencySeparationBins is the largest bin gap, inclusive, that
	// still joins two points into one group.
	MaxFrequencySeparationBins uint
	// MinTimeBins is the inactivity window: a cluster not extended for this
	// many consecutive slices is finalized.
	MinTimeBins uint
	// FrequencyBinWidth converts bin indices to frequency when the slice
	// header does not carry a bin width.
	FrequencyBinWidth float64

	// MinClusterSlices drops finalized clusters spanning fewer slices.
	MinClusterSlices uint
	// FramingTimeBins and FramingFreqBins widen the waterfall around the
	// cluster's own slices and bins.
	FramingTimeBins uint
	FramingFreqBins uint
}

// DefaultConfig returns the default accumulator parameters.
func DefaultConfig() Config {
	return Config{
		MaxFrequencySeparationBins: 1,
		MinTimeBins:                1,
		FrequencyBinWidth:          1,
		MinClusterSlices:           1,
	}
}

// Validate checks the parameters.
func (c Config) Validate() error {
	if c.MinTimeBins < 1 {
		return fmt.Errorf("%w: min time bins must be at least 1", spectral.ErrInvalidConfig)
	}
	if !(c.FrequencyBinWidth > 0) {
		return fmt.Errorf("%w: frequency bin width must be positive, got %v", spectral.ErrInvalidConfig, c.FrequencyBinWidth)
	}
	return nil
}

// Spectrum holds one slice's amplitude spectrum per component, indexed
// [component][bin]. A nil or short outer slice means no spectrum for the
// missing components.
type Spectrum [][]float64

func (s Spectrum) component(c uint) []float64 {
	if int(c) < len(s) {
		return s[c]
	}
	return nil
}

// Option configures an Accumulator.
type Option func(*Accumulator)

// WithObserver registers an observer called for every emitted cluster.
func WithObserver(o spectral.ClusterObserver) Option {
	return func(a *Accumulator) {
		if o != nil {
			a.observers = append(a.observers, o)
		}
	}
}

type sliceInfo struct {
	number      uint64
	timeInRun   float64
	sliceLength float64
	binWidth    float64
}

type member struct {
	timeBin int
	point   spectral.DiscriminatedPoint
}

type cluster struct {
	id        int
	component uint

	members []member
	endMin  uint
	endMax  uint
	skip    uint

	slices  map[int]sliceInfo
	spectra map[int][]float64
}

func (c *cluster) timeRange() (first, last int) {
	first, last = c.members[0].timeBin, c.members[0].timeBin
	for _, m := range c.members[1:] {
		if m.timeBin < first {
			first = m.timeBin
		}
		if m.timeBin > last {
			last = m.timeBin
		}
	}
	return first, last
}

func (c *cluster) absorb(o *cluster) {
	c.members = append(c.members, o.members...)
	for k, v := range o.slices {
		c.slices[k] = v
	}
	for k, v := range o.spectra {
		c.spectra[k] = v
	}
}

type frame struct {
	timeBin  int
	spectrum []float64
}

type group struct {
	first, last uint
	points      []spectral.DiscriminatedPoint
	matched     int // arena ID of the cluster the group joined, or -1
}

// Accumulator builds multi-slice clusters from a stream of point sets. Each
// component is clustered independently. Not safe for concurrent use.
type Accumulator struct {
	cfg       Config
	observers []spectral.ClusterObserver

	// arena is indexed by cluster ID; finalized entries are set to nil.
	arena   []*cluster
	active  [][]int
	almost  [][]int
	history [][]frame
	timeBin int
}

// New creates an accumulator.
func New(cfg Config, opts ...Option) (*Accumulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &Accumulator{cfg: cfg}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Config returns the accumulator parameters.
func (a *Accumulator) Config() Config { return a.cfg }

// NActive returns the number of clusters not yet emitted, including those
// waiting for post-cluster spectra.
func (a *Accumulator) NActive() int {
	n := 0
	for c := range a.active {
		n += len(a.active[c]) + len(a.almost[c])
	}
	return n
}

// FindClusters adds one slice of points and returns the clusters finalized
// by it, in the order they went cold. spectrum may be nil.
func (a *Accumulator) FindClusters(points *spectral.PointSet, spectrum Spectrum, header spectral.SliceHeader) ([]spectral.Cluster, error) {
	nComp := points.NComponents()
	if len(spectrum) > nComp {
		nComp = len(spectrum)
	}
	for c := 0; c < nComp; c++ {
		spec := spectrum.component(uint(c))
		if spec == nil {
			continue
		}
		for bin := range points.Component(uint(c)) {
			if int(bin) >= len(spec) {
				return nil, fmt.Errorf("%w: slice %d component %d: bin %d outside spectrum of %d bins",
					spectral.ErrDegenerateInput, header.SliceNumber, c, bin, len(spec))
			}
		}
	}
	a.grow(nComp)

	info := sliceInfo{
		number:      header.SliceNumber,
		timeInRun:   header.TimeInRun,
		sliceLength: header.SliceLength,
		binWidth:    header.BinWidth,
	}
	if info.binWidth <= 0 {
		info.binWidth = a.cfg.FrequencyBinWidth
	}

	var out []spectral.Cluster
	for c := range a.active {
		comp := uint(c)
		pts := points.Sorted(comp)
		for i := range pts {
			a.fillPoint(&pts[i], comp, header, info.binWidth)
		}
		out = a.processComponent(comp, pts, spectrum.component(comp), info, out)
	}
	monitoring.Debugf("[multislice] slice %d (time bin %d): %d points, %d clusters pending, %d emitted",
		header.SliceNumber, a.timeBin, points.Len(), a.NActive(), len(out))
	a.timeBin++
	return out, nil
}

// CompleteAllClusters finalizes every remaining cluster in creation order
// within each component, emitting clusters still waiting for post-cluster
// spectra with what they have. The accumulator can be reused afterwards.
func (a *Accumulator) CompleteAllClusters() []spectral.Cluster {
	var out []spectral.Cluster
	for c := range a.active {
		for _, id := range a.almost[c] {
			out = a.finalize(id, out)
		}
		for _, id := range a.active[c] {
			cl := a.arena[id]
			if cl == nil {
				out = a.finalize(id, out)
				continue
			}
			if first, last := cl.timeRange(); uint(last-first+1) < a.cfg.MinClusterSlices {
				a.drop(id, last-first+1)
				continue
			}
			out = a.finalize(id, out)
		}
		a.almost[c] = nil
		a.active[c] = nil
		a.history[c] = nil
	}
	return out
}

func (a *Accumulator) grow(n int) {
	for len(a.active) < n {
		a.active = append(a.active, nil)
		a.almost = append(a.almost, nil)
		a.history = append(a.history, nil)
	}
}

// fillPoint completes fields the discriminator may have left unset.
func (a *Accumulator) fillPoint(p *spectral.DiscriminatedPoint, comp uint, h spectral.SliceHeader, binWidth float64) {
	p.Component = comp
	if p.TimeInRunC == 0 && p.TimeInAcq == 0 {
		p.TimeInRunC = h.CenterTimeInRun()
		p.TimeInAcq = h.CenterTimeInAcq()
	}
	if p.Frequency == 0 {
		p.Frequency = (float64(p.BinIndex) + 0.5) * binWidth
	}
	if p.AcquisitionID == 0 {
		p.AcquisitionID = h.AcquisitionID(comp)
	}
}

func (a *Accumulator) groupPoints(pts []spectral.DiscriminatedPoint) []*group {
	var groups []*group
	var g *group
	for _, p := range pts {
		if g == nil || p.BinIndex-g.last > a.cfg.MaxFrequencySeparationBins {
			g = &group{first: p.BinIndex, matched: -1}
			groups = append(groups, g)
		}
		g.last = p.BinIndex
		g.points = append(g.points, p)
	}
	return groups
}

func (a *Accumulator) processComponent(comp uint, pts []spectral.DiscriminatedPoint, spec []float64, info sliceInfo, out []spectral.Cluster) []spectral.Cluster {
	sep := a.cfg.MaxFrequencySeparationBins
	t := a.timeBin
	groups := a.groupPoints(pts)

	active := a.active[comp]
	added := make(map[int]bool, len(active))
	merged := make(map[int]bool)
	type binRange struct{ min, max uint }
	newRange := make(map[int]binRange, len(active))

	for _, g := range groups {
		for _, id := range active {
			if merged[id] {
				continue
			}
			cl := a.arena[id]
			if !(cl.endMin <= g.last+sep && g.first <= cl.endMax+sep) {
				continue
			}
			if g.matched < 0 {
				g.matched = id
				for _, p := range g.points {
					cl.members = append(cl.members, member{timeBin: t, point: p})
				}
				cl.slices[t] = info
				r, ok := newRange[id]
				if !ok {
					r = binRange{g.first, g.last}
				}
				if g.first < r.min {
					r.min = g.first
				}
				if g.last > r.max {
					r.max = g.last
				}
				newRange[id] = r
				added[id] = true
				continue
			}
			// a second cluster also reaches this group: fold it into the
			// first one
			a.arena[g.matched].absorb(cl)
			merged[id] = true
			// an earlier group may already have extended cl in this slice;
			// keep its bins in the surviving cluster's end range
			if r, ok := newRange[id]; ok {
				into := newRange[g.matched]
				if r.min < into.min {
					into.min = r.min
				}
				if r.max > into.max {
					into.max = r.max
				}
				newRange[g.matched] = into
				delete(newRange, id)
			}
			monitoring.Debugf("[multislice] component %d: cluster %d merged into %d", comp, id, g.matched)
		}
	}

	for id, r := range newRange {
		if merged[id] {
			continue
		}
		cl := a.arena[id]
		cl.endMin, cl.endMax = r.min, r.max
		cl.skip = 0
	}

	if spec != nil {
		for _, id := range active {
			if !merged[id] {
				a.arena[id].spectra[t] = spec
			}
		}
		for _, id := range a.almost[comp] {
			a.arena[id].spectra[t] = spec
		}
	}

	framing := int(a.cfg.FramingTimeBins)

	var almost []int
	for _, id := range a.almost[comp] {
		_, last := a.arena[id].timeRange()
		if t-last >= framing {
			out = a.finalize(id, out)
			continue
		}
		almost = append(almost, id)
	}

	var still []int
	for _, id := range active {
		if merged[id] {
			a.arena[id] = nil
			continue
		}
		cl := a.arena[id]
		if added[id] {
			still = append(still, id)
			continue
		}
		cl.skip++
		if cl.skip < a.cfg.MinTimeBins {
			still = append(still, id)
			continue
		}
		first, last := cl.timeRange()
		switch {
		case uint(last-first+1) < a.cfg.MinClusterSlices:
			a.drop(id, last-first+1)
		case t-last >= framing:
			out = a.finalize(id, out)
		default:
			almost = append(almost, id)
		}
	}

	for _, g := range groups {
		if g.matched >= 0 {
			continue
		}
		cl := &cluster{
			id:        len(a.arena),
			component: comp,
			endMin:    g.first,
			endMax:    g.last,
			slices:    map[int]sliceInfo{t: info},
			spectra:   make(map[int][]float64),
		}
		for _, p := range g.points {
			cl.members = append(cl.members, member{timeBin: t, point: p})
		}
		for _, f := range a.history[comp] {
			cl.spectra[f.timeBin] = f.spectrum
		}
		if spec != nil {
			cl.spectra[t] = spec
		}
		a.arena = append(a.arena, cl)
		still = append(still, cl.id)
	}

	if framing > 0 && spec != nil {
		h := append(a.history[comp], frame{timeBin: t, spectrum: spec})
		if len(h) > framing {
			h = h[len(h)-framing:]
		}
		a.history[comp] = h
	}

	a.active[comp] = still
	a.almost[comp] = almost
	return out
}

func (a *Accumulator) drop(id, nSlices int) {
	monitoring.Debugf("[multislice] cluster %d spans %d slices, below minimum %d; dropped",
		id, nSlices, a.cfg.MinClusterSlices)
	a.arena[id] = nil
}

func (a *Accumulator) finalize(id int, out []spectral.Cluster) []spectral.Cluster {
	cl := a.arena[id]
	if cl == nil {
		monitoring.Logf("[multislice] %v: cluster %d finalized twice; skipping", spectral.ErrInvariant, id)
		return out
	}
	a.arena[id] = nil
	rec := a.record(cl)
	for _, o := range a.observers {
		o.OnClusterEmitted(rec)
	}
	return append(out, rec)
}

func (a *Accumulator) record(cl *cluster) spectral.Cluster {
	sort.SliceStable(cl.members, func(i, j int) bool {
		if cl.members[i].timeBin != cl.members[j].timeBin {
			return cl.members[i].timeBin < cl.members[j].timeBin
		}
		return cl.members[i].point.BinIndex < cl.members[j].point.BinIndex
	})

	firstT, lastT := cl.timeRange()
	firstInfo, lastInfo := cl.slices[firstT], cl.slices[lastT]
	rec := spectral.Cluster{
		ID:         cl.id,
		Component:  cl.component,
		State:      spectral.ClusterFinalized,
		FirstSlice: firstInfo.number,
		LastSlice:  lastInfo.number,
		NSlices:    lastT - firstT + 1,
		TimeInRunC: firstInfo.timeInRun,
		TimeLength: lastInfo.timeInRun + lastInfo.sliceLength - firstInfo.timeInRun,
		MinBin:     cl.members[0].point.BinIndex,
		MaxBin:     cl.members[0].point.BinIndex,
		Points:     make([]spectral.DiscriminatedPoint, 0, len(cl.members)),
	}

	var startSum, startW, endSum, endW, thresh float64
	for _, m := range cl.members {
		p := m.point
		rec.Points = append(rec.Points, p)
		if p.BinIndex < rec.MinBin {
			rec.MinBin = p.BinIndex
		}
		if p.BinIndex > rec.MaxBin {
			rec.MaxBin = p.BinIndex
		}
		if m.timeBin == firstT {
			startSum += p.Amplitude * p.Frequency
			startW += p.Amplitude
		}
		if m.timeBin == lastT {
			endSum += p.Amplitude * p.Frequency
			endW += p.Amplitude
		}
		thresh += p.Threshold
	}
	rec.AcquisitionID = rec.Points[0].AcquisitionID
	rec.MeanStartFrequency = weightedMean(startSum, startW)
	rec.MeanEndFrequency = weightedMean(endSum, endW)
	rec.Threshold = thresh / float64(len(cl.members))

	bw := firstInfo.binWidth
	rec.MinFrequency = float64(rec.MinBin) * bw
	rec.MaxFrequency = float64(rec.MaxBin)*bw + bw
	rec.FrequencyWidth = rec.MaxFrequency - rec.MinFrequency

	a.fillWaterfall(cl, &rec, firstT, lastT)
	return rec
}

func weightedMean(sum, w float64) float64 {
	if w == 0 {
		return 0
	}
	return sum / w
}

func (a *Accumulator) fillWaterfall(cl *cluster, rec *spectral.Cluster, firstT, lastT int) {
	if len(cl.spectra) == 0 {
		return
	}
	nBins := 0
	for _, s := range cl.spectra {
		if len(s) > nBins {
			nBins = len(s)
		}
	}
	if nBins == 0 {
		return
	}

	ff := int(a.cfg.FramingFreqBins)
	lo := int(rec.MinBin) - ff
	if lo < 0 {
		lo = 0
	}
	hi := int(rec.MaxBin) + ff
	if hi > nBins-1 {
		hi = nBins - 1
	}
	if hi < lo {
		return
	}

	ft := int(a.cfg.FramingTimeBins)
	row0 := firstT - ft
	rows := lastT - firstT + 1 + 2*ft
	w := mat.NewDense(rows, hi-lo+1, nil)
	for tb, s := range cl.spectra {
		r := tb - row0
		if r < 0 || r >= rows {
			continue
		}
		for bin := lo; bin <= hi && bin < len(s); bin++ {
			w.Set(r, bin-lo, s[bin])
		}
	}
	rec.Waterfall = w
	rec.WaterfallMinBin = uint(lo)
	rec.WaterfallPreRows = ft
}
