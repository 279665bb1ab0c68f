package store

import (
	"sync"

	"github.com/banshee-data/spectral-tracks/internal/monitoring"
	"github.com/banshee-data/spectral-tracks/internal/spectral"
)

// TrackSink records every observed track and cluster under one run. Write
// failures are logged and the first one is kept for Err.
type TrackSink struct {
	store *Store
	runID string

	mu  sync.Mutex
	err error
}

// NewTrackSink returns a sink writing to runID.
func NewTrackSink(s *Store, runID string) *TrackSink {
	return &TrackSink{store: s, runID: runID}
}

// RunID returns the run the sink writes to.
func (k *TrackSink) RunID() string { return k.runID }

// OnTrackEmitted implements spectral.TrackObserver.
func (k *TrackSink) OnTrackEmitted(t spectral.TrackRecord) {
	_, err := k.store.RecordTrack(k.runID, t)
	k.keep(err)
}

// OnClusterEmitted implements spectral.ClusterObserver.
func (k *TrackSink) OnClusterEmitted(c spectral.Cluster) {
	k.keep(k.store.RecordCluster(k.runID, c))
}

func (k *TrackSink) keep(err error) {
	if err == nil {
		return
	}
	monitoring.Logf("[store] run %s: %v", k.runID, err)
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.err == nil {
		k.err = err
	}
}

// Err returns the first write error, if any.
func (k *TrackSink) Err() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.err
}
