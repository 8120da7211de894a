package store

import (
	"database/sql"
	"fmt"
	"log"
	"time"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "Initial schema",
		SQL: `
CREATE TABLE IF NOT EXISTS fire_detections (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    latitude REAL NOT NULL,
    longitude REAL NOT NULL,
    frp REAL,
    brightness REAL,
    confidence TEXT,
    acquired_at DATETIME NOT NULL,
    satellite TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(latitude, longitude, acquired_at, satellite)
);

CREATE TABLE IF NOT EXISTS weather_observations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp DATETIME NOT NULL,
    latitude REAL NOT NULL,
    longitude REAL NOT NULL,
    wind_speed REAL,
    wind_direction REAL,
    temperature REAL,
    humidity REAL,
    pressure REAL,
    is_forecast BOOLEAN NOT NULL DEFAULT FALSE,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(timestamp, latitude, longitude, is_forecast)
);

CREATE TABLE IF NOT EXISTS pollutant_readings (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp DATETIME NOT NULL,
    region TEXT NOT NULL,
    psi_24h REAL,
    pm25_24h REAL,
    pm10_24h REAL,
    o3_sub_index REAL,
    co_sub_index REAL,
    no2_one_hour REAL,
    so2_sub_index REAL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(timestamp, region)
);

CREATE TABLE IF NOT EXISTS predictions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    created_at DATETIME NOT NULL,
    target_timestamp DATETIME NOT NULL,
    horizon TEXT NOT NULL,
    predicted_psi REAL NOT NULL,
    confidence_lower REAL NOT NULL,
    confidence_upper REAL NOT NULL,
    fire_risk_score REAL,
    wind_transport_score REAL,
    baseline_score REAL,
    model_version TEXT,
    degraded_sources TEXT,
    actual_psi REAL,
    absolute_error REAL,
    squared_error REAL,
    within_interval BOOLEAN,
    scored_at DATETIME
);

CREATE TABLE IF NOT EXISTS validation_metrics (
    horizon TEXT NOT NULL,
    date DATE NOT NULL,
    sample_count INTEGER NOT NULL,
    mae REAL NOT NULL,
    rmse REAL NOT NULL,
    alert_precision REAL,
    updated_at DATETIME NOT NULL,
    PRIMARY KEY (horizon, date)
);

CREATE INDEX IF NOT EXISTS idx_fires_acquired ON fire_detections(acquired_at);
CREATE INDEX IF NOT EXISTS idx_weather_time ON weather_observations(timestamp);
CREATE INDEX IF NOT EXISTS idx_pollutants_region_time ON pollutant_readings(region, timestamp);
CREATE INDEX IF NOT EXISTS idx_predictions_target ON predictions(target_timestamp, horizon);
CREATE INDEX IF NOT EXISTS idx_predictions_unscored ON predictions(target_timestamp) WHERE actual_psi IS NULL;
`,
	},
}

func (s *Store) Migrate() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("get applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		log.Printf("migrations: applying %d - %s", m.Version, m.Description)

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Description, time.Now().UTC(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}

		log.Printf("migrations: completed %d", m.Version)
	}

	return nil
}

func (s *Store) ensureMigrationsTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME
		)
	`)
	return err
}

func (s *Store) getAppliedMigrations() (map[int]bool, error) {
	rows, err := s.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (s *Store) MigrationVersion() (int, error) {
	var version sql.NullInt64
	err := s.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}
