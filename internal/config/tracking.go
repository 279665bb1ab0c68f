package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/spectral-tracks/internal/collinear"
	"github.com/banshee-data/spectral-tracks/internal/dbscan"
	"github.com/banshee-data/spectral-tracks/internal/multislice"
	"github.com/banshee-data/spectral-tracks/internal/seqline"
)

// DefaultConfigPath is the path to the canonical tracking defaults file.
const DefaultConfigPath = "config/tracking.defaults.json"

// Track builders selectable in the pipeline section.
const (
	TrackBuilderSeqLine = "seqline"
	TrackBuilderDBSCAN  = "dbscan"
)

// TrackingConfig is the root tuning document for a tracking run. Every field
// is optional; the Get* accessors and the section builders fall back to the
// defaults for anything left out, so partial files are safe.
type TrackingConfig struct {
	DBSCAN     *DBSCANSection     `json:"dbscan,omitempty"`
	MultiSlice *MultiSliceSection `json:"multislice,omitempty"`
	SeqLine    *SeqLineSection    `json:"seqline,omitempty"`
	Collinear  *CollinearSection  `json:"collinear,omitempty"`
	Pipeline   *PipelineSection   `json:"pipeline,omitempty"`
}

// DBSCANSection tunes point clustering in scaled (time, frequency) space.
type DBSCANSection struct {
	TimeRadius      *float64 `json:"time_radius,omitempty"`
	FrequencyRadius *float64 `json:"frequency_radius,omitempty"`
	MinPoints       *int     `json:"min_points,omitempty"`
}

// MultiSliceSection tunes the streaming cluster accumulator.
type MultiSliceSection struct {
	MaxFrequencySeparationBins *int     `json:"max_frequency_separation_bins,omitempty"`
	MinTimeBins                *int     `json:"min_time_bins,omitempty"`
	FrequencyBinWidth          *float64 `json:"frequency_bin_width,omitempty"`
	MinClusterSlices           *int     `json:"min_cluster_slices,omitempty"`
	FramingTimeBins            *int     `json:"framing_time_bins,omitempty"`
	FramingFreqBins            *int     `json:"framing_freq_bins,omitempty"`
}

// SeqLineSection tunes the sequential track finder.
type SeqLineSection struct {
	TimeGapTolerance           *float64     `json:"time_gap_tolerance,omitempty"`
	FrequencyAcceptance        *float64     `json:"frequency_acceptance,omitempty"`
	InitialFrequencyAcceptance *float64     `json:"initial_frequency_acceptance,omitempty"`
	InitialSlope               *float64     `json:"initial_slope,omitempty"`
	MinPoints                  *int         `json:"min_points,omitempty"`
	MinSlope                   *float64     `json:"min_slope,omitempty"`
	TrimmingThreshold          *float64     `json:"trimming_threshold,omitempty"`
	MinBin                     *int         `json:"min_bin,omitempty"`
	MaxBin                     *int         `json:"max_bin,omitempty"`
	SlopeMethod                *string      `json:"slope_method,omitempty"`
	NSlopePoints               *int         `json:"n_slope_points,omitempty"`
	Cuts                       *CutsSection `json:"cuts,omitempty"`
}

// CutsSection enables a quality cut for every threshold that is set.
type CutsSection struct {
	TotalPower   *float64 `json:"total_power,omitempty"`
	AveragePower *float64 `json:"average_power,omitempty"`
	TotalSNR     *float64 `json:"total_snr,omitempty"`
	AverageSNR   *float64 `json:"average_snr,omitempty"`
	TotalNUP     *float64 `json:"total_nup,omitempty"`
	AverageNUP   *float64 `json:"average_nup,omitempty"`
}

// CollinearSection tunes the collinear track merger.
type CollinearSection struct {
	Enabled         *bool    `json:"enabled,omitempty"`
	SlopeRadius     *float64 `json:"slope_radius,omitempty"`
	FrequencyRadius *float64 `json:"frequency_radius,omitempty"`
}

// PipelineSection tunes the slice pipeline.
type PipelineSection struct {
	TrackBuilder *string `json:"track_builder,omitempty"`
	QueueTimeout *string `json:"queue_timeout,omitempty"` // duration string like "250ms"
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTrackingConfig returns a TrackingConfig with all sections nil.
// Use LoadTrackingConfig to load actual values from the defaults file.
func EmptyTrackingConfig() *TrackingConfig {
	return &TrackingConfig{}
}

// LoadTrackingConfig loads a TrackingConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
func LoadTrackingConfig(path string) (*TrackingConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTrackingConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tracking defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TrackingConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from cmd/spectracks/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTrackingConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid. Each section is
// converted to its component configuration and checked there, so the file
// is rejected for exactly the values the components would refuse.
func (c *TrackingConfig) Validate() error {
	for _, n := range []struct {
		name string
		v    *int
	}{
		{"dbscan.min_points", c.dbscan().MinPoints},
		{"multislice.max_frequency_separation_bins", c.multiSlice().MaxFrequencySeparationBins},
		{"multislice.min_time_bins", c.multiSlice().MinTimeBins},
		{"multislice.min_cluster_slices", c.multiSlice().MinClusterSlices},
		{"multislice.framing_time_bins", c.multiSlice().FramingTimeBins},
		{"multislice.framing_freq_bins", c.multiSlice().FramingFreqBins},
		{"seqline.min_bin", c.seqLine().MinBin},
		{"seqline.max_bin", c.seqLine().MaxBin},
	} {
		if n.v != nil && *n.v < 0 {
			return fmt.Errorf("%s must be non-negative, got %d", n.name, *n.v)
		}
	}

	if _, err := dbscan.NewTrackClusterer(c.DBSCANParams()); err != nil {
		return fmt.Errorf("dbscan: %w", err)
	}
	if err := c.MultiSliceConfig().Validate(); err != nil {
		return fmt.Errorf("multislice: %w", err)
	}
	if err := c.FinderConfig().Validate(); err != nil {
		return fmt.Errorf("seqline: %w", err)
	}
	if err := c.CollinearConfig().Validate(); err != nil {
		return fmt.Errorf("collinear: %w", err)
	}

	if p := c.pipeline(); p.QueueTimeout != nil && *p.QueueTimeout != "" {
		if _, err := time.ParseDuration(*p.QueueTimeout); err != nil {
			return fmt.Errorf("invalid pipeline.queue_timeout '%s': %w", *p.QueueTimeout, err)
		}
	}
	switch b := c.GetTrackBuilder(); b {
	case TrackBuilderSeqLine, TrackBuilderDBSCAN:
	default:
		return fmt.Errorf("pipeline.track_builder must be %q or %q, got %q", TrackBuilderSeqLine, TrackBuilderDBSCAN, b)
	}
	return nil
}

func (c *TrackingConfig) dbscan() DBSCANSection {
	if c.DBSCAN == nil {
		return DBSCANSection{}
	}
	return *c.DBSCAN
}

func (c *TrackingConfig) multiSlice() MultiSliceSection {
	if c.MultiSlice == nil {
		return MultiSliceSection{}
	}
	return *c.MultiSlice
}

func (c *TrackingConfig) seqLine() SeqLineSection {
	if c.SeqLine == nil {
		return SeqLineSection{}
	}
	return *c.SeqLine
}

func (c *TrackingConfig) collinear() CollinearSection {
	if c.Collinear == nil {
		return CollinearSection{}
	}
	return *c.Collinear
}

func (c *TrackingConfig) pipeline() PipelineSection {
	if c.Pipeline == nil {
		return PipelineSection{}
	}
	return *c.Pipeline
}

func floatOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func uintOr(p *int, def uint) uint {
	if p == nil || *p < 0 {
		return def
	}
	return uint(*p)
}

// DBSCANParams builds the track clusterer parameters.
func (c *TrackingConfig) DBSCANParams() dbscan.TrackClusterParams {
	s := c.dbscan()
	p := dbscan.DefaultTrackClusterParams()
	p.TimeRadius = floatOr(s.TimeRadius, p.TimeRadius)
	p.FrequencyRadius = floatOr(s.FrequencyRadius, p.FrequencyRadius)
	p.MinPoints = uintOr(s.MinPoints, p.MinPoints)
	return p
}

// MultiSliceConfig builds the accumulator configuration.
func (c *TrackingConfig) MultiSliceConfig() multislice.Config {
	s := c.multiSlice()
	m := multislice.DefaultConfig()
	m.MaxFrequencySeparationBins = uintOr(s.MaxFrequencySeparationBins, m.MaxFrequencySeparationBins)
	m.MinTimeBins = uintOr(s.MinTimeBins, m.MinTimeBins)
	m.FrequencyBinWidth = floatOr(s.FrequencyBinWidth, m.FrequencyBinWidth)
	m.MinClusterSlices = uintOr(s.MinClusterSlices, m.MinClusterSlices)
	m.FramingTimeBins = uintOr(s.FramingTimeBins, m.FramingTimeBins)
	m.FramingFreqBins = uintOr(s.FramingFreqBins, m.FramingFreqBins)
	return m
}

// FinderConfig builds the sequential track finder configuration.
func (c *TrackingConfig) FinderConfig() seqline.FinderConfig {
	s := c.seqLine()
	f := seqline.DefaultFinderConfig()
	f.TimeGapTolerance = floatOr(s.TimeGapTolerance, f.TimeGapTolerance)
	f.FrequencyAcceptance = floatOr(s.FrequencyAcceptance, f.FrequencyAcceptance)
	f.InitialFrequencyAcceptance = floatOr(s.InitialFrequencyAcceptance, f.InitialFrequencyAcceptance)
	f.InitialSlope = floatOr(s.InitialSlope, f.InitialSlope)
	f.MinPoints = intOr(s.MinPoints, f.MinPoints)
	f.MinSlope = floatOr(s.MinSlope, f.MinSlope)
	f.TrimmingThreshold = floatOr(s.TrimmingThreshold, f.TrimmingThreshold)
	f.MinBin = uintOr(s.MinBin, f.MinBin)
	f.MaxBin = uintOr(s.MaxBin, f.MaxBin)
	if s.SlopeMethod != nil {
		f.SlopeMethod = seqline.SlopeMethod(*s.SlopeMethod)
	}
	f.NSlopePoints = intOr(s.NSlopePoints, f.NSlopePoints)
	if s.Cuts != nil {
		f.Cuts = seqline.Cuts{
			TotalPower:   cut(s.Cuts.TotalPower),
			AveragePower: cut(s.Cuts.AveragePower),
			TotalSNR:     cut(s.Cuts.TotalSNR),
			AverageSNR:   cut(s.Cuts.AverageSNR),
			TotalNUP:     cut(s.Cuts.TotalNUP),
			AverageNUP:   cut(s.Cuts.AverageNUP),
		}
	}
	return f
}

func cut(threshold *float64) seqline.Cut {
	if threshold == nil {
		return seqline.Cut{}
	}
	return seqline.Cut{Enabled: true, Threshold: *threshold}
}

// CollinearConfig builds the merger configuration.
func (c *TrackingConfig) CollinearConfig() collinear.Config {
	s := c.collinear()
	m := collinear.DefaultConfig()
	m.SlopeRadius = floatOr(s.SlopeRadius, m.SlopeRadius)
	m.FrequencyRadius = floatOr(s.FrequencyRadius, m.FrequencyRadius)
	return m
}

// GetCollinearEnabled reports whether closed tracks go through the merger.
func (c *TrackingConfig) GetCollinearEnabled() bool {
	if s := c.collinear(); s.Enabled != nil {
		return *s.Enabled
	}
	return true
}

// GetTrackBuilder returns the pipeline's track builder or the default.
func (c *TrackingConfig) GetTrackBuilder() string {
	if s := c.pipeline(); s.TrackBuilder != nil && *s.TrackBuilder != "" {
		return *s.TrackBuilder
	}
	return TrackBuilderSeqLine
}

// GetQueueTimeout parses and returns the queue timeout as a time.Duration.
func (c *TrackingConfig) GetQueueTimeout() time.Duration {
	s := c.pipeline()
	if s.QueueTimeout == nil || *s.QueueTimeout == "" {
		return 250 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*s.QueueTimeout)
	if err != nil {
		return 250 * time.Millisecond // default on parse error
	}
	return d
}
