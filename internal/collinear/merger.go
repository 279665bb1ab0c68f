// Package collinear merges track fragments that lie on one straight line in
// the time-frequency plane into a single envelope track.
package collinear

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/spectral-tracks/internal/monitoring"
	"github.com/banshee-data/spectral-tracks/internal/spectral"
)

// Config holds the merge tolerances. Both radii divide the corresponding
// variance term, so larger radii merge more aggressively.
type Config struct {
	// SlopeRadius is in Hz (slope deviation times track length).
	SlopeRadius float64
	// FrequencyRadius is in Hz (intercept deviation).
	FrequencyRadius float64
}

// DefaultConfig returns unit radii.
func DefaultConfig() Config {
	return Config{SlopeRadius: 1, FrequencyRadius: 1}
}

// Validate checks that both radii are positive.
func (c Config) Validate() error {
	if !(c.SlopeRadius > 0) {
		return fmt.Errorf("%w: slope radius must be positive, got %v", spectral.ErrInvalidConfig, c.SlopeRadius)
	}
	if !(c.FrequencyRadius > 0) {
		return fmt.Errorf("%w: frequency radius must be positive, got %v", spectral.ErrInvalidConfig, c.FrequencyRadius)
	}
	return nil
}

type status int

const (
	ungrouped status = iota
	grouped
	removed
)

// Merger groups collinear tracks. It holds no state between calls and is
// safe for concurrent use.
type Merger struct {
	cfg Config
}

// New creates a merger.
func New(cfg Config) (*Merger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Merger{cfg: cfg}, nil
}

// Config returns the merge tolerances.
func (m *Merger) Config() Config { return m.cfg }

// Merge returns one track per collinear group, component by component in
// ascending order. Cut tracks are ignored and the input is never modified.
func (m *Merger) Merge(tracks []spectral.TrackRecord) []spectral.TrackRecord {
	byComp := make(map[uint][]spectral.TrackRecord)
	for _, t := range tracks {
		if t.IsCut {
			continue
		}
		if !finite(t.Slope) || !finite(t.Intercept) || !finite(t.TimeLength) {
			monitoring.Logf("[collinear] skipping candidate %d of component %d: non-finite fit: %v",
				t.CandidateID, t.Component, spectral.ErrDegenerateInput)
			continue
		}
		byComp[t.Component] = append(byComp[t.Component], t)
	}
	comps := make([]uint, 0, len(byComp))
	for c := range byComp {
		comps = append(comps, c)
	}
	sort.Slice(comps, func(i, j int) bool { return comps[i] < comps[j] })

	var out []spectral.TrackRecord
	for _, c := range comps {
		out = m.mergeComponent(byComp[c], out)
	}
	monitoring.Debugf("[collinear] merged %d tracks into %d", len(tracks), len(out))
	return out
}

// MergeAndEmit merges tracks and passes each result to obs in order.
func (m *Merger) MergeAndEmit(tracks []spectral.TrackRecord, obs spectral.TrackObserver) []spectral.TrackRecord {
	out := m.Merge(tracks)
	if obs != nil {
		for _, t := range out {
			obs.OnTrackEmitted(t)
		}
	}
	return out
}

func (m *Merger) mergeComponent(tracks []spectral.TrackRecord, out []spectral.TrackRecord) []spectral.TrackRecord {
	st := make([]status, len(tracks))
	for {
		members := m.findGroup(tracks, st)
		if len(members) == 0 {
			return out
		}
		for _, i := range members {
			st[i] = grouped
		}
		for i := range st {
			if st[i] == removed {
				st[i] = ungrouped
			}
		}
		out = append(out, envelope(tracks, members))
	}
}

// findGroup drops the worst-fitting track until the remaining ungrouped
// tracks are collinear, then tries to win removed tracks back one at a time.
func (m *Merger) findGroup(tracks []spectral.TrackRecord, st []status) []int {
	members := withStatus(st, ungrouped)
	if len(members) == 0 {
		return nil
	}
	for {
		mq, mf := means(tracks, members)
		if m.totalVariance(tracks, members, mq, mf) <= float64(len(members)) {
			break
		}
		worst, worstDelta := -1, math.Inf(-1)
		for _, i := range members {
			if d := m.delta(tracks[i], mq, mf); d > worstDelta {
				worst, worstDelta = i, d
			}
		}
		if worst < 0 {
			monitoring.Logf("[collinear] no track to remove from a group of %d: %v", len(members), spectral.ErrInvariant)
			break
		}
		st[worst] = removed
		members = withStatus(st, ungrouped)
	}

	for {
		candidates := withStatus(st, removed)
		if len(candidates) == 0 {
			break
		}
		mq, mf := means(tracks, members)
		best, bestDelta := -1, math.Inf(1)
		for _, i := range candidates {
			if d := m.delta(tracks[i], mq, mf); d < bestDelta {
				best, bestDelta = i, d
			}
		}
		trial := append(append([]int(nil), members...), best)
		sort.Ints(trial)
		tq, tf := means(tracks, trial)
		if m.totalVariance(tracks, trial, tq, tf) > float64(len(trial)) {
			break
		}
		st[best] = ungrouped
		members = trial
	}
	return members
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func withStatus(st []status, want status) []int {
	var idx []int
	for i, s := range st {
		if s == want {
			idx = append(idx, i)
		}
	}
	return idx
}

func means(tracks []spectral.TrackRecord, idx []int) (slope, intercept float64) {
	q := make([]float64, len(idx))
	f := make([]float64, len(idx))
	for k, i := range idx {
		q[k] = tracks[i].Slope
		f[k] = tracks[i].Intercept
	}
	return stat.Mean(q, nil), stat.Mean(f, nil)
}

func (m *Merger) totalVariance(tracks []spectral.TrackRecord, idx []int, mq, mf float64) float64 {
	var varQ, varF float64
	for _, i := range idx {
		t := tracks[i]
		dq := (t.Slope - mq) * t.TimeLength
		df := t.Intercept - mf
		varQ += dq * dq
		varF += df * df
	}
	n := float64(len(idx))
	varQ /= n
	varF /= n
	return varQ/(m.cfg.SlopeRadius*m.cfg.SlopeRadius) + varF/(m.cfg.FrequencyRadius*m.cfg.FrequencyRadius)
}

func (m *Merger) delta(t spectral.TrackRecord, mq, mf float64) float64 {
	dq := (t.Slope - mq) * t.TimeLength / m.cfg.SlopeRadius
	df := (t.Intercept - mf) / m.cfg.FrequencyRadius
	return dq*dq + df*df
}

// envelope builds the track spanning all members. A single member is
// returned as is.
func envelope(tracks []spectral.TrackRecord, members []int) spectral.TrackRecord {
	if len(members) == 1 {
		return tracks[members[0]].Clone()
	}

	first := tracks[members[0]]
	rec := spectral.TrackRecord{
		Component:     first.Component,
		AcquisitionID: first.AcquisitionID,
		CandidateID:   first.CandidateID,
		NMerged:       len(members),
	}
	startT, endT := first.StartTimeInRunC, first.EndTimeInRunC
	startF, endF := first.StartFrequency, first.EndFrequency
	rec.StartTimeInAcq, rec.EndTimeInAcq = first.StartTimeInAcq, first.EndTimeInAcq
	for _, i := range members {
		t := tracks[i]
		startT = math.Min(startT, t.StartTimeInRunC)
		endT = math.Max(endT, t.EndTimeInRunC)
		startF = math.Min(startF, t.StartFrequency)
		endF = math.Max(endF, t.EndFrequency)
		rec.StartTimeInAcq = math.Min(rec.StartTimeInAcq, t.StartTimeInAcq)
		rec.EndTimeInAcq = math.Max(rec.EndTimeInAcq, t.EndTimeInAcq)

		rec.TotalPower += t.TotalPower
		rec.TotalWidePower += t.TotalWidePower
		rec.TotalSNR += t.TotalSNR
		rec.TotalWideSNR += t.TotalWideSNR
		rec.TotalNUP += t.TotalNUP
		rec.TotalWideNUP += t.TotalWideNUP
		rec.NPoints += t.NPoints
		rec.Points = append(rec.Points, t.Points...)
	}
	spectral.SortByTimeFreq(rec.Points)
	rec.SetEnvelope(startT, endT, startF, endF)
	if rec.IsCut {
		monitoring.Debugf("[collinear] group of %d tracks has zero time length: %v", len(members), spectral.ErrDegenerateInput)
	}
	return rec
}
