package spectral

// TrackRecord is a reconstructed, roughly linear frequency-vs-time
// trajectory. Records are immutable once emitted; merging produces a new
// record spanning its members rather than editing them.
type TrackRecord struct {
	Component     uint
	AcquisitionID uint64
	CandidateID   uint64

	StartTimeInRunC float64
	EndTimeInRunC   float64
	StartTimeInAcq  float64
	EndTimeInAcq    float64
	StartFrequency  float64
	EndFrequency    float64
	TimeLength      float64
	FrequencyWidth  float64
	Slope           float64
	Intercept       float64

	TotalPower     float64
	TotalWidePower float64
	TotalSNR       float64
	TotalWideSNR   float64
	TotalNUP       float64
	TotalWideNUP   float64

	NPoints int
	// NMerged is the number of fragments a merged record was built from;
	// 0 for a record that never went through a merge.
	NMerged int
	IsCut   bool

	Points []DiscriminatedPoint
}

// Clone returns a copy with its own Points slice.
func (t TrackRecord) Clone() TrackRecord {
	if t.Points != nil {
		pts := make([]DiscriminatedPoint, len(t.Points))
		copy(pts, t.Points)
		t.Points = pts
	}
	return t
}

// SetEnvelope fills the time and frequency extents and derives length,
// width, slope and intercept from them. A zero time length leaves slope and
// intercept at zero and marks the record cut.
func (t *TrackRecord) SetEnvelope(startT, endT, startF, endF float64) {
	t.StartTimeInRunC = startT
	t.EndTimeInRunC = endT
	t.StartFrequency = startF
	t.EndFrequency = endF
	t.TimeLength = endT - startT
	t.FrequencyWidth = endF - startF
	if t.TimeLength == 0 {
		t.Slope = 0
		t.Intercept = 0
		t.IsCut = true
		return
	}
	t.Slope = t.FrequencyWidth / t.TimeLength
	t.Intercept = startF - t.Slope*startT
}

// AddTotals accumulates the power, SNR and NUP totals of p.
func (t *TrackRecord) AddTotals(p DiscriminatedPoint) {
	t.TotalPower += p.Amplitude
	t.TotalWidePower += p.NeighborhoodAmplitude
	t.TotalSNR += p.SNR()
	t.TotalWideSNR += p.WideSNR()
	t.TotalNUP += p.NUP()
	t.TotalWideNUP += p.WideNUP()
}
