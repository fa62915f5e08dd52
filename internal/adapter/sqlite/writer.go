// Package sqlite writes report batches as columnar SQLite databases, one
// file per batch, with IODA-style MetaData, ObsValue, ObsError and PreQC
// groups. Missing values are stored as NULL.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/couchcryptid/prepbufr-etl/internal/domain"
	"github.com/couchcryptid/prepbufr-etl/internal/observability"
)

// Extension is the file suffix of written batches.
const Extension = ".db"

const schema = `
CREATE TABLE batch (
	name TEXT NOT NULL,
	platform TEXT,
	window_start TEXT NOT NULL,
	window_hours REAL NOT NULL,
	label TEXT NOT NULL,
	message_date INTEGER NOT NULL,
	run_id TEXT,
	created_at TEXT NOT NULL
);
CREATE TABLE MetaData (
	location INTEGER PRIMARY KEY,
	station_id TEXT NOT NULL,
	latitude REAL NOT NULL,
	longitude REAL NOT NULL,
	dateTime INTEGER NOT NULL,
	time_offset REAL NOT NULL,
	station_type INTEGER NOT NULL,
	height REAL,
	air_pressure REAL
);
CREATE TABLE ObsValue (
	location INTEGER PRIMARY KEY REFERENCES MetaData(location),
	air_pressure REAL,
	height REAL,
	eastward_wind REAL,
	northward_wind REAL,
	air_temperature REAL,
	specific_humidity REAL
);
CREATE TABLE ObsError (
	location INTEGER PRIMARY KEY REFERENCES MetaData(location),
	air_pressure REAL,
	height REAL,
	eastward_wind REAL,
	northward_wind REAL,
	air_temperature REAL,
	specific_humidity REAL
);
CREATE TABLE PreQC (
	location INTEGER PRIMARY KEY REFERENCES MetaData(location),
	air_pressure INTEGER NOT NULL,
	height INTEGER NOT NULL,
	eastward_wind INTEGER NOT NULL,
	northward_wind INTEGER NOT NULL,
	air_temperature INTEGER NOT NULL,
	specific_humidity INTEGER NOT NULL
);`

// Writer writes one database per report batch into a directory.
// It implements pipeline.BatchLoader.
type Writer struct {
	dir     string
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewWriter creates a writer that places databases under dir.
func NewWriter(dir string, metrics *observability.Metrics, logger *slog.Logger) *Writer {
	return &Writer{dir: dir, metrics: metrics, logger: logger}
}

// Path returns the database file a batch is written to.
func (w *Writer) Path(batch domain.ReportBatch) string {
	return filepath.Join(w.dir, batch.Name+Extension)
}

// LoadBatch builds the batch database beside its final path and renames it
// into place, replacing any earlier file. Empty batches produce no file.
func (w *Writer) LoadBatch(ctx context.Context, batch domain.ReportBatch) error {
	if len(batch.Reports) == 0 {
		w.logger.Info("no reports, skipping", "batch", batch.Name)
		return nil
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	path := w.Path(batch)
	tmp := filepath.Join(w.dir, "."+batch.Name+Extension+".tmp")
	_ = os.Remove(tmp)
	defer os.Remove(tmp) //nolint:errcheck // no-op after rename

	if err := writeDB(ctx, tmp, batch); err != nil {
		return fmt.Errorf("write batch %s: %w", batch.Name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename output: %w", err)
	}

	w.metrics.BatchesWritten.WithLabelValues("sqlite").Inc()
	w.logger.Info("gridded batch written", "path", path, "locations", len(batch.Reports))
	return nil
}

func writeDB(ctx context.Context, path string, batch domain.ReportBatch) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=DELETE"); err != nil {
		return fmt.Errorf("failed to set journal mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO batch (name, platform, window_start, window_hours, label, message_date, run_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		batch.Name,
		nullString(batch.Group),
		batch.Start.UTC().Format(time.RFC3339),
		batch.Duration.Hours(),
		batch.Label.UTC().Format(time.RFC3339),
		domain.CycleDate(batch.Label),
		nullString(batch.RunID),
		batch.CreatedAt.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("failed to insert batch row: %w", err)
	}

	stmts := map[string]string{
		"meta": `INSERT INTO MetaData (location, station_id, latitude, longitude, dateTime, time_offset, station_type, height, air_pressure)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		"value": `INSERT INTO ObsValue (location, air_pressure, height, eastward_wind, northward_wind, air_temperature, specific_humidity)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
		"error": `INSERT INTO ObsError (location, air_pressure, height, eastward_wind, northward_wind, air_temperature, specific_humidity)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
		"qc": `INSERT INTO PreQC (location, air_pressure, height, eastward_wind, northward_wind, air_temperature, specific_humidity)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
	}
	prepared := make(map[string]*sql.Stmt, len(stmts))
	for k, q := range stmts {
		stmt, err := tx.PrepareContext(ctx, q)
		if err != nil {
			return fmt.Errorf("failed to prepare %s insert statement: %w", k, err)
		}
		defer stmt.Close()
		prepared[k] = stmt
	}

	label := batch.Label.Unix()
	for i, r := range batch.Reports {
		k, th := r.Kinematic, r.Thermo
		offset := r.Header.HoursOffset

		if _, err := prepared["meta"].ExecContext(ctx,
			i, r.Header.PlatformID, r.Header.Latitude, r.Header.Longitude,
			label+int64(math.Round(offset*3600)), offset, r.Header.StationType,
			nullFloat(k.Altitude.Value), nullFloat(k.Pressure.Value),
		); err != nil {
			return fmt.Errorf("failed to insert metadata for location %d: %w", i, err)
		}
		if _, err := prepared["value"].ExecContext(ctx, i,
			nullFloat(k.Pressure.Value), nullFloat(k.Altitude.Value), nullFloat(k.WindU.Value), nullFloat(k.WindV.Value),
			nullFloat(th.Temperature.Value), nullFloat(th.SpecificHumidity.Value),
		); err != nil {
			return fmt.Errorf("failed to insert values for location %d: %w", i, err)
		}
		if _, err := prepared["error"].ExecContext(ctx, i,
			nullFloat(k.Pressure.Error), nullFloat(k.Altitude.Error), nullFloat(k.WindU.Error), nullFloat(k.WindV.Error),
			nullFloat(th.Temperature.Error), nullFloat(th.SpecificHumidity.Error),
		); err != nil {
			return fmt.Errorf("failed to insert errors for location %d: %w", i, err)
		}
		if _, err := prepared["qc"].ExecContext(ctx, i,
			int(k.Pressure.Quality), int(k.Altitude.Quality), int(k.WindU.Quality), int(k.WindV.Quality),
			int(th.Temperature.Quality), int(th.SpecificHumidity.Quality),
		); err != nil {
			return fmt.Errorf("failed to insert quality markers for location %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

func nullFloat(o domain.Optional) sql.NullFloat64 {
	v, ok := o.Get()
	return sql.NullFloat64{Float64: v, Valid: ok}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
