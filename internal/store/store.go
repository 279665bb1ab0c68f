// Package store persists tracking runs, their tracks and their finalized
// clusters in SQLite. The schema is managed by embedded migrations.
package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/spectral-tracks/internal/monitoring"
	"github.com/banshee-data/spectral-tracks/internal/spectral"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrRunNotFound is returned for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

type Store struct {
	*sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// connection PRAGMAs. It does not migrate; call MigrateUp.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection keeps the PRAGMAs in effect for every statement
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return &Store{db}, nil
}

// OpenAndMigrate opens the database and brings the schema up to date.
func OpenAndMigrate(path string) (*Store, error) {
	s, err := Open(path)
	if err != nil {
		return nil, err
	}
	if err := s.MigrateUp(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// MigrateUp runs all pending migrations up to the latest version.
// Returns nil if no migrations were needed (already at latest version).
func (s *Store) MigrateUp() error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	// Closing m would close the underlying DB connection.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateDown rolls back the most recent migration.
func (s *Store) MigrateDown() error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}
	return nil
}

// MigrateVersion returns the current migration version and dirty state.
// Returns 0, false, nil if no migrations have been applied yet.
func (s *Store) MigrateVersion() (version uint, dirty bool, err error) {
	m, err := s.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (s *Store) newMigrate() (*migrate.Migrate, error) {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to access migrations directory: %w", err)
	}
	src, err := iofs.New(sub, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}
	driver, err := sqlite.WithInstance(s.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}
	return m, nil
}

// migrateLogger implements migrate.Logger
type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Logf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return monitoring.DebugEnabled()
}

// Run is one stored tracking run.
type Run struct {
	RunID      string
	Source     string
	ConfigJSON string
	StartedAt  time.Time
	FinishedAt *time.Time
	NSlices    int
	NClusters  int
	NTracks    int
}

// BeginRun records a new run and returns its ID.
func (s *Store) BeginRun(source, configJSON string) (string, error) {
	runID := uuid.NewString()
	if configJSON == "" {
		configJSON = "{}"
	}
	_, err := s.Exec(`INSERT INTO runs (run_id, source, config_json, started_at) VALUES (?, ?, ?, ?)`,
		runID, source, configJSON, time.Now().Unix())
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}
	return runID, nil
}

// FinishRun stamps the run's finish time and counts.
func (s *Store) FinishRun(runID string, nSlices, nClusters, nTracks int) error {
	res, err := s.Exec(`UPDATE runs SET finished_at = ?,
		n_slices = ?, n_clusters = ?, n_tracks = ? WHERE run_id = ?`,
		time.Now().Unix(), nSlices, nClusters, nTracks, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", runID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run %s: %w", runID, ErrRunNotFound)
	}
	return nil
}

// GetRun loads one run.
func (s *Store) GetRun(runID string) (Run, error) {
	var r Run
	var startedAtUnix int64
	var finishedAtUnix sql.NullInt64
	err := s.QueryRow(`SELECT run_id, source, config_json, started_at, finished_at,
		n_slices, n_clusters, n_tracks FROM runs WHERE run_id = ?`, runID).Scan(
		&r.RunID, &r.Source, &r.ConfigJSON, &startedAtUnix, &finishedAtUnix,
		&r.NSlices, &r.NClusters, &r.NTracks)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("get run %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("failed to query run: %w", err)
	}
	r.StartedAt = time.Unix(startedAtUnix, 0)
	if finishedAtUnix.Valid {
		finished := time.Unix(finishedAtUnix.Int64, 0)
		r.FinishedAt = &finished
	}
	return r, nil
}

// RecordTrack stores one track under runID and returns its track ID.
// Tracks keep their insertion order within a run.
func (s *Store) RecordTrack(runID string, t spectral.TrackRecord) (string, error) {
	trackID := uuid.NewString()
	_, err := s.Exec(`INSERT INTO tracks (
			track_id, run_id, component, acquisition_id, candidate_id,
			start_time_in_run, end_time_in_run, start_time_in_acq, end_time_in_acq,
			start_frequency, end_frequency, slope, intercept,
			total_power, total_wide_power, total_snr, total_wide_snr, total_nup, total_wide_nup,
			n_points, n_merged, is_cut, seq
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
			(SELECT COUNT(*) FROM tracks WHERE run_id = ?))`,
		trackID, runID, t.Component, int64(t.AcquisitionID), int64(t.CandidateID),
		t.StartTimeInRunC, t.EndTimeInRunC, t.StartTimeInAcq, t.EndTimeInAcq,
		t.StartFrequency, t.EndFrequency, t.Slope, t.Intercept,
		t.TotalPower, t.TotalWidePower, t.TotalSNR, t.TotalWideSNR, t.TotalNUP, t.TotalWideNUP,
		t.NPoints, t.NMerged, t.IsCut, runID,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert track: %w", err)
	}
	return trackID, nil
}

// ListTracks returns the tracks of a run in the order they were recorded.
// Points are not stored, so the returned records carry none.
func (s *Store) ListTracks(runID string) ([]spectral.TrackRecord, error) {
	rows, err := s.Query(`SELECT component, acquisition_id, candidate_id,
			start_time_in_run, end_time_in_run, start_time_in_acq, end_time_in_acq,
			start_frequency, end_frequency, slope, intercept,
			total_power, total_wide_power, total_snr, total_wide_snr, total_nup, total_wide_nup,
			n_points, n_merged, is_cut
		FROM tracks WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()

	var out []spectral.TrackRecord
	for rows.Next() {
		var t spectral.TrackRecord
		var acq, cand int64
		if err := rows.Scan(&t.Component, &acq, &cand,
			&t.StartTimeInRunC, &t.EndTimeInRunC, &t.StartTimeInAcq, &t.EndTimeInAcq,
			&t.StartFrequency, &t.EndFrequency, &t.Slope, &t.Intercept,
			&t.TotalPower, &t.TotalWidePower, &t.TotalSNR, &t.TotalWideSNR, &t.TotalNUP, &t.TotalWideNUP,
			&t.NPoints, &t.NMerged, &t.IsCut); err != nil {
			return nil, fmt.Errorf("failed to scan track: %w", err)
		}
		t.AcquisitionID = uint64(acq)
		t.CandidateID = uint64(cand)
		t.TimeLength = t.EndTimeInRunC - t.StartTimeInRunC
		t.FrequencyWidth = t.EndFrequency - t.StartFrequency
		out = append(out, t)
	}
	return out, rows.Err()
}

// RecordCluster stores the summary of a finalized cluster. Points and the
// waterfall are not stored.
func (s *Store) RecordCluster(runID string, c spectral.Cluster) error {
	_, err := s.Exec(`INSERT INTO clusters (
			run_id, cluster_id, component, acquisition_id, first_slice, last_slice,
			n_slices, n_points, time_in_run, time_length, min_frequency, max_frequency,
			mean_start_freq, mean_end_freq, threshold
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, c.ID, c.Component, int64(c.AcquisitionID), int64(c.FirstSlice), int64(c.LastSlice),
		c.NSlices, len(c.Points), c.TimeInRunC, c.TimeLength, c.MinFrequency, c.MaxFrequency,
		c.MeanStartFrequency, c.MeanEndFrequency, c.Threshold,
	)
	if err != nil {
		return fmt.Errorf("failed to insert cluster %d: %w", c.ID, err)
	}
	return nil
}

// CountClusters returns the number of clusters stored for a run.
func (s *Store) CountClusters(runID string) (int, error) {
	var n int
	if err := s.QueryRow(`SELECT COUNT(*) FROM clusters WHERE run_id = ?`, runID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count clusters: %w", err)
	}
	return n, nil
}
