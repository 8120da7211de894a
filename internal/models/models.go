package models

import (
	"database/sql"
	"time"
)

// Horizons supported by the forecaster, shortest first.
var Horizons = []string{"24h", "48h", "72h", "7d"}

// HorizonHours maps a horizon label to its lead time in hours.
var HorizonHours = map[string]int{
	"24h": 24,
	"48h": 48,
	"72h": 72,
	"7d":  168,
}

// FireDetection is a single satellite observation of a hotspot. Detections
// are not deduplicated across satellites; each pass is independent evidence.
type FireDetection struct {
	ID         int64
	Latitude   float64
	Longitude  float64
	FRP        sql.NullFloat64 // fire radiative power, MW
	Brightness sql.NullFloat64 // kelvin
	Confidence string          // "low", "nominal", "high"
	AcquiredAt time.Time
	Satellite  string
	CreatedAt  time.Time
}

type WeatherObservation struct {
	ID            int64
	Timestamp     time.Time
	Latitude      float64
	Longitude     float64
	WindSpeed     sql.NullFloat64 // km/h
	WindDirection sql.NullFloat64 // degrees, 0 = north, direction wind blows from
	Temperature   sql.NullFloat64
	Humidity      sql.NullFloat64
	Pressure      sql.NullFloat64
	IsForecast    bool
	CreatedAt     time.Time
}

const (
	RegionNational = "national"
	RegionNorth    = "north"
	RegionSouth    = "south"
	RegionEast     = "east"
	RegionWest     = "west"
	RegionCentral  = "central"
)

// CompassRegions are the five reporting regions excluding the national
// aggregate.
var CompassRegions = []string{RegionNorth, RegionSouth, RegionEast, RegionWest, RegionCentral}

// PollutantReading is one (timestamp, region) row of the pollutant index
// feed. The national PSI24h value is the forecast target.
type PollutantReading struct {
	ID          int64
	Timestamp   time.Time
	Region      string
	PSI24h      sql.NullFloat64
	PM25_24h    sql.NullFloat64
	PM10_24h    sql.NullFloat64
	O3SubIndex  sql.NullFloat64
	COSubIndex  sql.NullFloat64
	NO2OneHour  sql.NullFloat64
	SO2SubIndex sql.NullFloat64
	CreatedAt   time.Time
}

// Prediction is one forecast for one horizon. ActualPSI and the error fields
// stay null until the validation engine scores the record, which happens at
// most once.
type Prediction struct {
	ID                 int64
	CreatedAt          time.Time
	TargetTimestamp    time.Time
	Horizon            string
	PredictedPSI       float64
	ConfidenceLower    float64
	ConfidenceUpper    float64
	FireRiskScore      float64
	WindTransportScore float64
	BaselineScore      float64
	ModelVersion       string
	DegradedSources    string // comma-separated source names that used fallbacks
	ActualPSI          sql.NullFloat64
	AbsoluteError      sql.NullFloat64
	SquaredError       sql.NullFloat64
	WithinInterval     sql.NullBool
	ScoredAt           sql.NullTime
}

// Scored reports whether the prediction has already been matched against a
// realized reading.
func (p Prediction) Scored() bool {
	return p.ActualPSI.Valid
}

// ValidationMetrics is one (horizon, date) aggregate bucket, recomputed
// idempotently as predictions mature.
type ValidationMetrics struct {
	Horizon        string
	Date           time.Time // UTC midnight of the target day
	SampleCount    int
	MAE            float64
	RMSE           float64
	AlertPrecision sql.NullFloat64
	UpdatedAt      time.Time
}
