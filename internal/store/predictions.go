package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/jlim/hazecast/internal/models"
)

// AppendPrediction writes a new prediction and fills in its assigned ID.
// Predictions are append-only; the only later mutation is outcome scoring.
func (s *Store) AppendPrediction(ctx context.Context, p *models.Prediction) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO predictions (created_at, target_timestamp, horizon, predicted_psi, confidence_lower, confidence_upper,
			fire_risk_score, wind_transport_score, baseline_score, model_version, degraded_sources)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.CreatedAt.UTC(), p.TargetTimestamp.UTC(), p.Horizon, p.PredictedPSI, p.ConfidenceLower, p.ConfidenceUpper,
		p.FireRiskScore, p.WindTransportScore, p.BaselineScore, p.ModelVersion, p.DegradedSources)
	if err != nil {
		return err
	}
	p.ID, err = res.LastInsertId()
	return err
}

// PredictionsInRange returns predictions for a horizon whose target falls in
// [from, to), oldest target first. An empty horizon matches all horizons.
func (s *Store) PredictionsInRange(ctx context.Context, horizon string, from, to time.Time) ([]models.Prediction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, target_timestamp, horizon, predicted_psi, confidence_lower, confidence_upper,
			fire_risk_score, wind_transport_score, baseline_score, model_version, degraded_sources,
			actual_psi, absolute_error, squared_error, within_interval, scored_at
		FROM predictions
		WHERE (? = '' OR horizon = ?) AND target_timestamp >= ? AND target_timestamp < ?
		ORDER BY target_timestamp
	`, horizon, horizon, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPredictions(rows)
}

// UnscoredBefore returns predictions that have matured (target before t) and
// have no outcome yet.
func (s *Store) UnscoredBefore(ctx context.Context, t time.Time) ([]models.Prediction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, target_timestamp, horizon, predicted_psi, confidence_lower, confidence_upper,
			fire_risk_score, wind_transport_score, baseline_score, model_version, degraded_sources,
			actual_psi, absolute_error, squared_error, within_interval, scored_at
		FROM predictions
		WHERE actual_psi IS NULL AND target_timestamp < ?
		ORDER BY target_timestamp
	`, t.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPredictions(rows)
}

// ScoredPredictions returns scored predictions for a horizon with targets in
// [from, to).
func (s *Store) ScoredPredictions(ctx context.Context, horizon string, from, to time.Time) ([]models.Prediction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, target_timestamp, horizon, predicted_psi, confidence_lower, confidence_upper,
			fire_risk_score, wind_transport_score, baseline_score, model_version, degraded_sources,
			actual_psi, absolute_error, squared_error, within_interval, scored_at
		FROM predictions
		WHERE actual_psi IS NOT NULL AND horizon = ? AND target_timestamp >= ? AND target_timestamp < ?
		ORDER BY target_timestamp
	`, horizon, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPredictions(rows)
}

// RecordOutcome persists the scoring fields of a prediction. The guard on
// actual_psi makes a duplicate score attempt a no-op at the database level,
// so concurrent scorers cannot double-write an outcome.
func (s *Store) RecordOutcome(ctx context.Context, p models.Prediction) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE predictions
		SET actual_psi = ?, absolute_error = ?, squared_error = ?, within_interval = ?, scored_at = ?
		WHERE id = ? AND actual_psi IS NULL
	`, p.ActualPSI, p.AbsoluteError, p.SquaredError, p.WithinInterval, p.ScoredAt, p.ID)
	return err
}

// UpsertMetricsBucket replaces the aggregate row for a (horizon, day).
func (s *Store) UpsertMetricsBucket(ctx context.Context, m models.ValidationMetrics) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO validation_metrics (horizon, date, sample_count, mae, rmse, alert_precision, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(horizon, date) DO UPDATE SET
			sample_count = excluded.sample_count,
			mae = excluded.mae,
			rmse = excluded.rmse,
			alert_precision = excluded.alert_precision,
			updated_at = excluded.updated_at
	`, m.Horizon, m.Date.UTC(), m.SampleCount, m.MAE, m.RMSE, m.AlertPrecision, m.UpdatedAt.UTC())
	return err
}

// MetricsBuckets returns a horizon's daily aggregates with dates in
// [from, to), oldest first.
func (s *Store) MetricsBuckets(ctx context.Context, horizon string, from, to time.Time) ([]models.ValidationMetrics, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT horizon, date, sample_count, mae, rmse, alert_precision, updated_at
		FROM validation_metrics
		WHERE horizon = ? AND date >= ? AND date < ?
		ORDER BY date
	`, horizon, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var buckets []models.ValidationMetrics
	for rows.Next() {
		var m models.ValidationMetrics
		if err := rows.Scan(&m.Horizon, &m.Date, &m.SampleCount, &m.MAE, &m.RMSE, &m.AlertPrecision, &m.UpdatedAt); err != nil {
			return nil, err
		}
		buckets = append(buckets, m)
	}
	return buckets, rows.Err()
}

func scanPredictions(rows *sql.Rows) ([]models.Prediction, error) {
	var preds []models.Prediction
	for rows.Next() {
		var p models.Prediction
		if err := rows.Scan(&p.ID, &p.CreatedAt, &p.TargetTimestamp, &p.Horizon, &p.PredictedPSI,
			&p.ConfidenceLower, &p.ConfidenceUpper, &p.FireRiskScore, &p.WindTransportScore,
			&p.BaselineScore, &p.ModelVersion, &p.DegradedSources, &p.ActualPSI, &p.AbsoluteError,
			&p.SquaredError, &p.WithinInterval, &p.ScoredAt); err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return preds, rows.Err()
}
