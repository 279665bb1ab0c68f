package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/spectral-tracks/internal/seqline"
	"github.com/banshee-data/spectral-tracks/internal/spectral"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestEmptyConfigUsesDefaults(t *testing.T) {
	cfg := EmptyTrackingConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty config should be valid: %v", err)
	}

	ms := cfg.MultiSliceConfig()
	if ms.MaxFrequencySeparationBins != 1 || ms.MinTimeBins != 1 || ms.MinClusterSlices != 1 {
		t.Errorf("MultiSliceConfig() = %+v", ms)
	}
	f := cfg.FinderConfig()
	if f.TimeGapTolerance != 0.0005 || f.FrequencyAcceptance != 56166.05 || f.InitialSlope != 3e8 {
		t.Errorf("FinderConfig() = %+v", f)
	}
	if f.SlopeMethod != seqline.SlopeRegression {
		t.Errorf("SlopeMethod = %q, want regression", f.SlopeMethod)
	}
	if c := cfg.CollinearConfig(); c.SlopeRadius != 1 || c.FrequencyRadius != 1 {
		t.Errorf("CollinearConfig() = %+v", c)
	}
	if p := cfg.DBSCANParams(); p.MinPoints != 3 {
		t.Errorf("DBSCANParams().MinPoints = %d, want 3", p.MinPoints)
	}
	if !cfg.GetCollinearEnabled() {
		t.Error("GetCollinearEnabled() = false, want true")
	}
	if cfg.GetTrackBuilder() != TrackBuilderSeqLine {
		t.Errorf("GetTrackBuilder() = %q", cfg.GetTrackBuilder())
	}
	if cfg.GetQueueTimeout() != 250*time.Millisecond {
		t.Errorf("GetQueueTimeout() = %v", cfg.GetQueueTimeout())
	}
}

func TestLoadTrackingConfig(t *testing.T) {
	path := writeConfig(t, "tracking.json", `{
  "multislice": {"max_frequency_separation_bins": 3, "min_time_bins": 2, "framing_time_bins": 1},
  "seqline": {"min_points": 5, "slope_method": "weighted-last-point-ref", "cuts": {"total_snr": 12.5}},
  "collinear": {"enabled": false, "frequency_radius": 2000},
  "pipeline": {"track_builder": "dbscan", "queue_timeout": "1s"}
}`)

	cfg, err := LoadTrackingConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	ms := cfg.MultiSliceConfig()
	if ms.MaxFrequencySeparationBins != 3 || ms.MinTimeBins != 2 || ms.FramingTimeBins != 1 {
		t.Errorf("MultiSliceConfig() = %+v", ms)
	}
	f := cfg.FinderConfig()
	if f.MinPoints != 5 {
		t.Errorf("MinPoints = %d, want 5", f.MinPoints)
	}
	if f.SlopeMethod != seqline.SlopeWeightedLastPointRef {
		t.Errorf("SlopeMethod = %q", f.SlopeMethod)
	}
	if !f.Cuts.TotalSNR.Enabled || f.Cuts.TotalSNR.Threshold != 12.5 {
		t.Errorf("TotalSNR cut = %+v", f.Cuts.TotalSNR)
	}
	if f.Cuts.TotalPower.Enabled {
		t.Error("TotalPower cut enabled without a threshold")
	}
	if c := cfg.CollinearConfig(); c.FrequencyRadius != 2000 || c.SlopeRadius != 1 {
		t.Errorf("CollinearConfig() = %+v", c)
	}
	if cfg.GetCollinearEnabled() {
		t.Error("GetCollinearEnabled() = true, want false")
	}
	if cfg.GetTrackBuilder() != TrackBuilderDBSCAN {
		t.Errorf("GetTrackBuilder() = %q", cfg.GetTrackBuilder())
	}
	if cfg.GetQueueTimeout() != time.Second {
		t.Errorf("GetQueueTimeout() = %v", cfg.GetQueueTimeout())
	}
}

func TestLoadDefaultConfigFile(t *testing.T) {
	cfg, err := LoadTrackingConfig("../../config/tracking.defaults.json")
	if err != nil {
		t.Fatalf("Failed to load defaults: %v", err)
	}
	// the file must agree with the built-in defaults
	empty := EmptyTrackingConfig()
	if cfg.MultiSliceConfig() != empty.MultiSliceConfig() {
		t.Errorf("multislice defaults differ: file %+v, built-in %+v", cfg.MultiSliceConfig(), empty.MultiSliceConfig())
	}
	if cfg.FinderConfig() != empty.FinderConfig() {
		t.Errorf("seqline defaults differ: file %+v, built-in %+v", cfg.FinderConfig(), empty.FinderConfig())
	}
	if cfg.CollinearConfig() != empty.CollinearConfig() {
		t.Errorf("collinear defaults differ")
	}
	if cfg.DBSCANParams() != empty.DBSCANParams() {
		t.Errorf("dbscan defaults differ")
	}
	if cfg.GetQueueTimeout() != empty.GetQueueTimeout() {
		t.Errorf("queue timeout differs")
	}
}

func TestLoadExampleConfigFile(t *testing.T) {
	cfg, err := LoadTrackingConfig("../../config/tracking.example.json")
	if err != nil {
		t.Fatalf("Failed to load example: %v", err)
	}
	if got := cfg.MultiSliceConfig().FramingFreqBins; got != 4 {
		t.Errorf("FramingFreqBins = %d, want 4", got)
	}
	if got := cfg.FinderConfig().TimeGapTolerance; got != 0.0005 {
		t.Errorf("TimeGapTolerance = %v, want default 0.0005", got)
	}
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	if cfg.GetTrackBuilder() != TrackBuilderSeqLine {
		t.Errorf("GetTrackBuilder() = %q", cfg.GetTrackBuilder())
	}
}

func TestLoadTrackingConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
		want string
	}{
		{
			name: "missing file",
			path: func(*testing.T) string { return "/nonexistent/path/to/config.json" },
			want: "failed to stat",
		},
		{
			name: "non-json extension",
			path: func(*testing.T) string { return "/some/path/config.yaml" },
			want: ".json extension",
		},
		{
			name: "path traversal still needs .json",
			path: func(*testing.T) string { return "../../etc/passwd" },
			want: ".json extension",
		},
		{
			name: "invalid json",
			path: func(t *testing.T) string { return writeConfig(t, "bad.json", `{"multislice": `) },
			want: "failed to parse",
		},
		{
			name: "too large",
			path: func(t *testing.T) string {
				return writeConfig(t, "large.json", string(make([]byte, 2*1024*1024)))
			},
			want: "too large",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadTrackingConfig(tt.path(t))
			if err == nil {
				t.Fatal("expected an error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name       string
		cfg        *TrackingConfig
		wantErr    bool
		wantConfig bool
	}{
		{name: "empty config is valid", cfg: &TrackingConfig{}},
		{
			name:       "zero inactivity window",
			cfg:        &TrackingConfig{MultiSlice: &MultiSliceSection{MinTimeBins: ptrInt(0)}},
			wantErr:    true,
			wantConfig: true,
		},
		{
			name:    "negative separation",
			cfg:     &TrackingConfig{MultiSlice: &MultiSliceSection{MaxFrequencySeparationBins: ptrInt(-1)}},
			wantErr: true,
		},
		{
			name:       "zero bin width",
			cfg:        &TrackingConfig{MultiSlice: &MultiSliceSection{FrequencyBinWidth: ptrFloat64(0)}},
			wantErr:    true,
			wantConfig: true,
		},
		{
			name:       "unknown slope method",
			cfg:        &TrackingConfig{SeqLine: &SeqLineSection{SlopeMethod: ptrString("hough")}},
			wantErr:    true,
			wantConfig: true,
		},
		{
			name:       "zero collinear radius",
			cfg:        &TrackingConfig{Collinear: &CollinearSection{SlopeRadius: ptrFloat64(0)}},
			wantErr:    true,
			wantConfig: true,
		},
		{
			name:       "zero dbscan radius",
			cfg:        &TrackingConfig{DBSCAN: &DBSCANSection{TimeRadius: ptrFloat64(0)}},
			wantErr:    true,
			wantConfig: true,
		},
		{
			name:    "bad queue timeout",
			cfg:     &TrackingConfig{Pipeline: &PipelineSection{QueueTimeout: ptrString("soon")}},
			wantErr: true,
		},
		{
			name:    "unknown track builder",
			cfg:     &TrackingConfig{Pipeline: &PipelineSection{TrackBuilder: ptrString("hough")}},
			wantErr: true,
		},
		{
			name: "disabled merger is still valid",
			cfg:  &TrackingConfig{Collinear: &CollinearSection{Enabled: ptrBool(false)}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantConfig && !errors.Is(err, spectral.ErrInvalidConfig) {
				t.Errorf("Validate() error = %v, want ErrInvalidConfig in chain", err)
			}
		})
	}
}

func TestGetQueueTimeoutFallsBackOnParseError(t *testing.T) {
	cfg := &TrackingConfig{Pipeline: &PipelineSection{QueueTimeout: ptrString("nope")}}
	if got := cfg.GetQueueTimeout(); got != 250*time.Millisecond {
		t.Errorf("GetQueueTimeout() = %v, want 250ms", got)
	}
}
