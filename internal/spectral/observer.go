package spectral

// TrackObserver receives every emitted track record.
type TrackObserver interface {
	OnTrackEmitted(TrackRecord)
}

// TrackObserverFunc adapts a function to TrackObserver.
type TrackObserverFunc func(TrackRecord)

// OnTrackEmitted calls f(t).
func (f TrackObserverFunc) OnTrackEmitted(t TrackRecord) { f(t) }

// ClusterObserver receives every finalized multi-slice cluster.
type ClusterObserver interface {
	OnClusterEmitted(Cluster)
}

// ClusterObserverFunc adapts a function to ClusterObserver.
type ClusterObserverFunc func(Cluster)

// OnClusterEmitted calls f(c).
func (f ClusterObserverFunc) OnClusterEmitted(c Cluster) { f(c) }

// TrackFanout forwards each record to every observer in order.
type TrackFanout []TrackObserver

// OnTrackEmitted implements TrackObserver.
func (fo TrackFanout) OnTrackEmitted(t TrackRecord) {
	for _, o := range fo {
		if o != nil {
			o.OnTrackEmitted(t)
		}
	}
}

// TrackCollector appends every record it observes. Not safe for concurrent
// use; stages emit from a single goroutine.
type TrackCollector struct {
	Tracks []TrackRecord
}

// OnTrackEmitted implements TrackObserver.
func (c *TrackCollector) OnTrackEmitted(t TrackRecord) {
	c.Tracks = append(c.Tracks, t)
}
