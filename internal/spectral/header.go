package spectral

// SliceHeader describes the time slice a PointSet was discriminated from.
type SliceHeader struct {
	TimeInRun      float64  `json:"time_in_run"`
	TimeInAcq      float64  `json:"time_in_acq"`
	SliceLength    float64  `json:"slice_length"`
	SliceNumber    uint64   `json:"slice_number"`
	SampleRate     float64  `json:"sample_rate"`
	BinWidth       float64  `json:"bin_width"`
	AcquisitionIDs []uint64 `json:"acquisition_ids,omitempty"`
}

// AcquisitionID returns the acquisition ID for a component, falling back to
// the first entry (or 0) when the header carries fewer IDs than components.
func (h SliceHeader) AcquisitionID(component uint) uint64 {
	if int(component) < len(h.AcquisitionIDs) {
		return h.AcquisitionIDs[component]
	}
	if len(h.AcquisitionIDs) > 0 {
		return h.AcquisitionIDs[0]
	}
	return 0
}

// CenterTimeInRun is the run time of the middle of the slice.
func (h SliceHeader) CenterTimeInRun() float64 {
	return h.TimeInRun + 0.5*h.SliceLength
}

// CenterTimeInAcq is the acquisition time of the middle of the slice.
func (h SliceHeader) CenterTimeInAcq() float64 {
	return h.TimeInAcq + 0.5*h.SliceLength
}

// Place returns p positioned in this slice: at the slice center in time, at
// the center of its bin in frequency when no frequency is set, and tagged
// with the component and its acquisition ID.
func (h SliceHeader) Place(p DiscriminatedPoint, component uint) DiscriminatedPoint {
	p.Component = component
	p.TimeInRunC = h.CenterTimeInRun()
	p.TimeInAcq = h.CenterTimeInAcq()
	if p.Frequency == 0 {
		p.Frequency = (float64(p.BinIndex) + 0.5) * h.BinWidth
	}
	if p.AcquisitionID == 0 {
		p.AcquisitionID = h.AcquisitionID(component)
	}
	return p
}
