package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/jlim/hazecast/internal/models"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// InsertFireDetections writes a batch of detections, skipping rows already
// seen for the same (position, time, satellite). Returns the number actually
// inserted.
func (s *Store) InsertFireDetections(ctx context.Context, fires []models.FireDetection) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	inserted := 0
	for _, f := range fires {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO fire_detections (latitude, longitude, frp, brightness, confidence, acquired_at, satellite)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(latitude, longitude, acquired_at, satellite) DO NOTHING
		`, f.Latitude, f.Longitude, f.FRP, f.Brightness, f.Confidence, f.AcquiredAt.UTC(), f.Satellite)
		if err != nil {
			return 0, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += int(n)
	}
	return inserted, tx.Commit()
}

// FireDetectionsBetween returns detections acquired in [from, to), oldest
// first.
func (s *Store) FireDetectionsBetween(ctx context.Context, from, to time.Time) ([]models.FireDetection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, latitude, longitude, frp, brightness, confidence, acquired_at, satellite, created_at
		FROM fire_detections
		WHERE acquired_at >= ? AND acquired_at < ?
		ORDER BY acquired_at
	`, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fires []models.FireDetection
	for rows.Next() {
		var f models.FireDetection
		if err := rows.Scan(&f.ID, &f.Latitude, &f.Longitude, &f.FRP, &f.Brightness,
			&f.Confidence, &f.AcquiredAt, &f.Satellite, &f.CreatedAt); err != nil {
			return nil, err
		}
		fires = append(fires, f)
	}
	return fires, rows.Err()
}

// InsertWeatherObservations writes a batch of observations. Forecast rows
// for an hour are replaced when a fresher forecast run covers it.
func (s *Store) InsertWeatherObservations(ctx context.Context, obs []models.WeatherObservation) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	inserted := 0
	for _, o := range obs {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO weather_observations (timestamp, latitude, longitude, wind_speed, wind_direction, temperature, humidity, pressure, is_forecast)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(timestamp, latitude, longitude, is_forecast) DO UPDATE SET
				wind_speed = excluded.wind_speed,
				wind_direction = excluded.wind_direction,
				temperature = excluded.temperature,
				humidity = excluded.humidity,
				pressure = excluded.pressure
		`, o.Timestamp.UTC(), o.Latitude, o.Longitude, o.WindSpeed, o.WindDirection,
			o.Temperature, o.Humidity, o.Pressure, o.IsForecast)
		if err != nil {
			return 0, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += int(n)
	}
	return inserted, tx.Commit()
}

// WeatherObservationsBetween returns observations with timestamps in
// [from, to), oldest first. Forecast rows sort before observed rows for the
// same hour so a consumer overwriting per slot ends up with real data.
func (s *Store) WeatherObservationsBetween(ctx context.Context, from, to time.Time) ([]models.WeatherObservation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, latitude, longitude, wind_speed, wind_direction, temperature, humidity, pressure, is_forecast, created_at
		FROM weather_observations
		WHERE timestamp >= ? AND timestamp < ?
		ORDER BY timestamp, is_forecast DESC
	`, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var obs []models.WeatherObservation
	for rows.Next() {
		var o models.WeatherObservation
		if err := rows.Scan(&o.ID, &o.Timestamp, &o.Latitude, &o.Longitude, &o.WindSpeed,
			&o.WindDirection, &o.Temperature, &o.Humidity, &o.Pressure, &o.IsForecast, &o.CreatedAt); err != nil {
			return nil, err
		}
		obs = append(obs, o)
	}
	return obs, rows.Err()
}

// InsertPollutantReadings upserts readings keyed by (timestamp, region);
// the feed republishes the same hour with corrections.
func (s *Store) InsertPollutantReadings(ctx context.Context, readings []models.PollutantReading) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	written := 0
	for _, r := range readings {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO pollutant_readings (timestamp, region, psi_24h, pm25_24h, pm10_24h, o3_sub_index, co_sub_index, no2_one_hour, so2_sub_index)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(timestamp, region) DO UPDATE SET
				psi_24h = excluded.psi_24h,
				pm25_24h = excluded.pm25_24h,
				pm10_24h = excluded.pm10_24h,
				o3_sub_index = excluded.o3_sub_index,
				co_sub_index = excluded.co_sub_index,
				no2_one_hour = excluded.no2_one_hour,
				so2_sub_index = excluded.so2_sub_index
		`, r.Timestamp.UTC(), r.Region, r.PSI24h, r.PM25_24h, r.PM10_24h,
			r.O3SubIndex, r.COSubIndex, r.NO2OneHour, r.SO2SubIndex)
		if err != nil {
			return 0, err
		}
		written++
	}
	return written, tx.Commit()
}

// PollutantReadingsBetween returns readings for one region in [from, to),
// oldest first.
func (s *Store) PollutantReadingsBetween(ctx context.Context, region string, from, to time.Time) ([]models.PollutantReading, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, region, psi_24h, pm25_24h, pm10_24h, o3_sub_index, co_sub_index, no2_one_hour, so2_sub_index, created_at
		FROM pollutant_readings
		WHERE region = ? AND timestamp >= ? AND timestamp < ?
		ORDER BY timestamp
	`, region, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanReadings(rows)
}

// LatestNationalPSI returns the most recent national reading with a valid
// index value.
func (s *Store) LatestNationalPSI(ctx context.Context) (float64, time.Time, bool, error) {
	var psi float64
	var ts time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT psi_24h, timestamp FROM pollutant_readings
		WHERE region = ? AND psi_24h IS NOT NULL
		ORDER BY timestamp DESC LIMIT 1
	`, models.RegionNational).Scan(&psi, &ts)
	if err == sql.ErrNoRows {
		return 0, time.Time{}, false, nil
	}
	if err != nil {
		return 0, time.Time{}, false, err
	}
	return psi, ts, true, nil
}

// NationalPSIAt finds the national reading nearest t within the tolerance.
// When no national row exists in the window it falls back to the mean of the
// regional readings at the nearest covered timestamp.
func (s *Store) NationalPSIAt(ctx context.Context, t time.Time, tolerance time.Duration) (float64, bool, error) {
	from, to := t.Add(-tolerance).UTC(), t.Add(tolerance).UTC()

	var psi float64
	err := s.db.QueryRowContext(ctx, `
		SELECT psi_24h FROM pollutant_readings
		WHERE region = ? AND psi_24h IS NOT NULL AND timestamp >= ? AND timestamp <= ?
		ORDER BY ABS(strftime('%s', timestamp) - strftime('%s', ?)) LIMIT 1
	`, models.RegionNational, from, to, t.UTC()).Scan(&psi)
	if err == nil {
		return psi, true, nil
	}
	if err != sql.ErrNoRows {
		return 0, false, err
	}

	// Regional fallback: mean over the timestamp closest to t.
	var mean sql.NullFloat64
	err = s.db.QueryRowContext(ctx, `
		SELECT AVG(psi_24h) FROM pollutant_readings
		WHERE region != ? AND psi_24h IS NOT NULL AND timestamp = (
			SELECT timestamp FROM pollutant_readings
			WHERE region != ? AND psi_24h IS NOT NULL AND timestamp >= ? AND timestamp <= ?
			ORDER BY ABS(strftime('%s', timestamp) - strftime('%s', ?)) LIMIT 1
		)
	`, models.RegionNational, models.RegionNational, from, to, t.UTC()).Scan(&mean)
	if err != nil {
		return 0, false, err
	}
	return mean.Float64, mean.Valid, nil
}

func scanReadings(rows *sql.Rows) ([]models.PollutantReading, error) {
	var readings []models.PollutantReading
	for rows.Next() {
		var r models.PollutantReading
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.Region, &r.PSI24h, &r.PM25_24h, &r.PM10_24h,
			&r.O3SubIndex, &r.COSubIndex, &r.NO2OneHour, &r.SO2SubIndex, &r.CreatedAt); err != nil {
			return nil, err
		}
		readings = append(readings, r)
	}
	return readings, rows.Err()
}
