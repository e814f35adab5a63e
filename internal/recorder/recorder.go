// Package recorder persists pipeline output to an optional sqlite database,
// keyed by a per-process run ID. Recording is opt-in: a nil *Recorder is a
// valid no-op so callers do not need to branch on whether it was configured.
package recorder

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/rajiv-sit/RadarProcessor/internal/radarcore"
)

// Recorder owns a sqlite connection and the run ID under which all rows
// written during this process are grouped.
type Recorder struct {
	db    *sql.DB
	runID string
}

// Open creates (or reuses) the sqlite database at path, applies pending
// migrations from migrationsDir, and returns a Recorder scoped to a fresh
// run ID.
func Open(path, migrationsDir string) (*Recorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open recorder database %q: %w", path, err)
	}
	if err := migrateUp(db, migrationsDir); err != nil {
		db.Close()
		return nil, err
	}
	return &Recorder{db: db, runID: uuid.NewString()}, nil
}

func migrateUp(db *sql.DB, migrationsDir string) error {
	absPath, err := filepath.Abs(migrationsDir)
	if err != nil {
		return fmt.Errorf("resolve migrations dir %q: %w", migrationsDir, err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite migration driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(fmt.Sprintf("file://%s", absPath), "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations from %q: %w", migrationsDir, err)
	}
	return nil
}

// RunID returns the UUID this Recorder tags every row with.
func (r *Recorder) RunID() string {
	if r == nil {
		return ""
	}
	return r.runID
}

// Close releases the underlying database handle. Safe to call on a nil
// Recorder.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	return r.db.Close()
}

// RecordDetections writes one row per enhanced detection produced by a
// corner or front radar frame.
func (r *Recorder) RecordDetections(sensor radarcore.SensorIndex, timestampUs int64, detections []radarcore.EnhancedDetection) error {
	if r == nil || len(detections) == 0 {
		return nil
	}
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin detection batch: %w", err)
	}
	stmt, err := tx.Prepare(`
		INSERT INTO detections (
			run_id, sensor, timestamp_us, range_m, azimuth_rad, range_rate_ms,
			amplitude_dbsm, is_stationary, is_moveable, fused_track_index
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare detection insert: %w", err)
	}
	defer stmt.Close()

	for _, d := range detections {
		if _, err := stmt.Exec(
			r.runID, int(sensor), timestampUs, d.RangeM, d.AzimuthRad, d.RangeRateMs,
			d.AmplitudeDBsm, d.IsStationary, d.IsMoveable, d.FusedTrackIndex,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert detection: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit detection batch: %w", err)
	}
	return nil
}

// RecordOdometry writes one row per ego-velocity estimate.
func (r *Recorder) RecordOdometry(est radarcore.OdometryEstimate) error {
	if r == nil {
		return nil
	}
	_, err := r.db.Exec(`
		INSERT INTO odometry (run_id, timestamp_us, longitudinal_ms, lateral_ms, inlier_count, valid)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.runID, est.TimestampUs, est.VLon, est.VLat, est.InlierCount, est.Valid)
	if err != nil {
		return fmt.Errorf("insert odometry estimate: %w", err)
	}
	return nil
}

// RecordTracks writes one row per enhanced track produced by a fusion frame.
func (r *Recorder) RecordTracks(timestampUs int64, tracks []radarcore.EnhancedTrack) error {
	if r == nil || len(tracks) == 0 {
		return nil
	}
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin track batch: %w", err)
	}
	stmt, err := tx.Prepare(`
		INSERT INTO tracks (
			run_id, timestamp_us, track_id, longitudinal_m, lateral_m,
			length_m, width_m, height_m, object_class, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare track insert: %w", err)
	}
	defer stmt.Close()

	for _, tr := range tracks {
		if _, err := stmt.Exec(
			r.runID, timestampUs, tr.ID, tr.LongitudinalM, tr.LateralM,
			tr.LengthM, tr.WidthM, tr.HeightM, int(tr.ObjectClassification), int(tr.Status),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert track: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit track batch: %w", err)
	}
	return nil
}
