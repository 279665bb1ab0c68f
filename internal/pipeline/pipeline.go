// Package pipeline runs a stream of slices through the clustering and track
// building stages. One goroutine reads slices from the source and queues
// them; one worker drains the queue so every stage sees slices in order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/spectral-tracks/internal/collinear"
	"github.com/banshee-data/spectral-tracks/internal/ingest"
	"github.com/banshee-data/spectral-tracks/internal/monitoring"
	"github.com/banshee-data/spectral-tracks/internal/multislice"
	"github.com/banshee-data/spectral-tracks/internal/queue"
	"github.com/banshee-data/spectral-tracks/internal/spectral"
)

// DefaultQueueTimeout bounds each worker wait for the next slice.
const DefaultQueueTimeout = 250 * time.Millisecond

// Source yields slices until it returns io.EOF. *ingest.Reader is a Source.
type Source interface {
	Next() (ingest.Slice, error)
}

// Config wires the stages of one run. MultiSlice and Merger are optional;
// Finder is required.
type Config struct {
	// RunID names the run; a random UUID is used when empty.
	RunID      string
	Source     Source
	MultiSlice *multislice.Accumulator
	Finder     TrackBuilder
	Merger     *collinear.Merger
	// Observers receive the run's final tracks: merged tracks when a
	// merger is set, otherwise each track as the finder closes it.
	Observers []spectral.TrackObserver
	// ClusterObservers receive every finalized multi-slice cluster.
	ClusterObservers []spectral.ClusterObserver
	QueueTimeout     time.Duration
	// KeepPoints collects every placed point into Result.Points.
	KeepPoints bool
}

// Result summarises a run.
type Result struct {
	RunID    string
	Slices   int
	Clusters []spectral.Cluster
	// Tracks are the finder's tracks before merging.
	Tracks []spectral.TrackRecord
	// Merged is nil when no merger is configured.
	Merged []spectral.TrackRecord
	Points []spectral.DiscriminatedPoint
}

// Final returns the tracks observers saw: merged when available.
func (r Result) Final() []spectral.TrackRecord {
	if r.Merged != nil {
		return r.Merged
	}
	return r.Tracks
}

// Pipeline executes one run. It is not reusable.
type Pipeline struct {
	cfg   Config
	queue *queue.Queue[ingest.Slice]
	obs   spectral.TrackFanout

	producerDone atomic.Bool
	result       Result
}

// New validates cfg and returns a pipeline.
func New(cfg Config, opts ...queue.Option) (*Pipeline, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("pipeline needs a source: %w", spectral.ErrInvalidConfig)
	}
	if cfg.Finder == nil {
		return nil, fmt.Errorf("pipeline needs a track builder: %w", spectral.ErrInvalidConfig)
	}
	if cfg.QueueTimeout <= 0 {
		cfg.QueueTimeout = DefaultQueueTimeout
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	return &Pipeline{
		cfg:    cfg,
		queue:  queue.New[ingest.Slice](opts...),
		obs:    spectral.TrackFanout(cfg.Observers),
		result: Result{RunID: cfg.RunID},
	}, nil
}

// Run reads the source to the end and returns the run's result. A source
// error or a cancelled context stops the run; the partial result is
// returned with the error.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	monitoring.Logf("[pipeline] run %s started", p.cfg.RunID)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.produce(gctx) })
	g.Go(func() error { return p.work(gctx) })
	if err := g.Wait(); err != nil {
		monitoring.Logf("[pipeline] run %s stopped after %d slices: %v", p.cfg.RunID, p.result.Slices, err)
		return p.result, err
	}
	monitoring.Logf("[pipeline] run %s: %d slices, %d clusters, %d tracks, %d final",
		p.cfg.RunID, p.result.Slices, len(p.result.Clusters), len(p.result.Tracks), len(p.result.Final()))
	return p.result, nil
}

func (p *Pipeline) produce(ctx context.Context) error {
	defer func() {
		p.producerDone.Store(true)
		p.queue.Interrupt()
	}()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		s, err := p.cfg.Source.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read slice: %w", err)
		}
		p.queue.Push(s)
	}
}

func (p *Pipeline) work(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		s, ok := p.queue.TimedWaitAndPop(p.cfg.QueueTimeout)
		if ok {
			p.process(s)
			continue
		}
		if p.producerDone.Load() && p.queue.Empty() {
			break
		}
	}
	p.finish()
	return nil
}

func (p *Pipeline) process(s ingest.Slice) {
	p.result.Slices++
	if p.cfg.KeepPoints {
		for c := 0; c < s.Points.NComponents(); c++ {
			for _, pt := range s.Points.Sorted(uint(c)) {
				p.result.Points = append(p.result.Points, s.Header.Place(pt, uint(c)))
			}
		}
	}

	if p.cfg.MultiSlice != nil {
		clusters, err := p.cfg.MultiSlice.FindClusters(s.Points, s.Spectrum, s.Header)
		if err != nil {
			monitoring.Logf("[pipeline] slice %d skipped by multislice: %v", s.Header.SliceNumber, err)
		}
		p.addClusters(clusters)
	}

	p.addTracks(p.cfg.Finder.ProcessSlice(s.Header, s.Points))
}

func (p *Pipeline) finish() {
	if p.cfg.MultiSlice != nil {
		p.addClusters(p.cfg.MultiSlice.CompleteAllClusters())
	}
	p.addTracks(p.cfg.Finder.Finish())

	if p.cfg.Merger != nil {
		p.result.Merged = p.cfg.Merger.MergeAndEmit(p.result.Tracks, p.obs)
		if p.result.Merged == nil {
			p.result.Merged = []spectral.TrackRecord{}
		}
	}
}

func (p *Pipeline) addClusters(clusters []spectral.Cluster) {
	for _, c := range clusters {
		for _, o := range p.cfg.ClusterObservers {
			o.OnClusterEmitted(c)
		}
	}
	p.result.Clusters = append(p.result.Clusters, clusters...)
}

func (p *Pipeline) addTracks(tracks []spectral.TrackRecord) {
	p.result.Tracks = append(p.result.Tracks, tracks...)
	if p.cfg.Merger != nil {
		return
	}
	for _, t := range tracks {
		p.obs.OnTrackEmitted(t)
	}
}
