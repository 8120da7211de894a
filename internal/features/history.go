package features

import (
	"math"
	"time"

	"github.com/jlim/hazecast/internal/geo"
	"github.com/jlim/hazecast/internal/models"
)

// Lags holds the pollutant history features: index values at fixed offsets
// before the reference time plus short and long rate-of-change terms.
type Lags struct {
	Lag1h      float64
	Lag6h      float64
	Lag12h     float64
	Lag24h     float64
	Trend1h6h  float64
	Trend6h24h float64
}

// LagFeatures computes lag and trend features from a national pollutant
// series sorted ascending by timestamp. Each lag takes the nearest reading at
// or before reference−offset; when no reading exists that far back it
// forward-fills from fallbackPSI (the current reading), which is the
// documented sentinel for a series with no prior data.
func LagFeatures(readings []models.PollutantReading, ref time.Time, fallbackPSI float64) Lags {
	lag := func(offset time.Duration) float64 {
		return valueAtOrBefore(readings, ref.Add(-offset), fallbackPSI)
	}

	l := Lags{
		Lag1h:  lag(1 * time.Hour),
		Lag6h:  lag(6 * time.Hour),
		Lag12h: lag(12 * time.Hour),
		Lag24h: lag(24 * time.Hour),
	}
	l.Trend1h6h = l.Lag1h - l.Lag6h
	l.Trend6h24h = l.Lag6h - l.Lag24h
	return l
}

// valueAtOrBefore returns the PSI of the latest national reading at or before
// t. The series is scanned from the end since lookups cluster near the
// reference time.
func valueAtOrBefore(readings []models.PollutantReading, t time.Time, fallback float64) float64 {
	for i := len(readings) - 1; i >= 0; i-- {
		r := readings[i]
		if r.Region != models.RegionNational || !r.PSI24h.Valid {
			continue
		}
		if !r.Timestamp.After(t) {
			return r.PSI24h.Float64
		}
	}
	return fallback
}

// Temporal holds the calendar features of a reference timestamp.
type Temporal struct {
	Hour      int
	DayOfWeek int // Monday = 0
	Month     int
	DayOfYear int
	Season    int
}

// Season labels derived purely from the calendar month.
const (
	SeasonSouthwestMonsoon = 0 // Jun-Sep, the haze season
	SeasonNortheastMonsoon = 1 // Dec-Mar, the wet season
	SeasonInterMonsoon     = 2
)

// TemporalFeatures extracts calendar features from a timestamp. The season is
// a deterministic month lookup, not learned.
func TemporalFeatures(t time.Time) Temporal {
	return Temporal{
		Hour:      t.Hour(),
		DayOfWeek: (int(t.Weekday()) + 6) % 7,
		Month:     int(t.Month()),
		DayOfYear: t.YearDay(),
		Season:    seasonOf(t.Month()),
	}
}

func seasonOf(m time.Month) int {
	switch m {
	case time.June, time.July, time.August, time.September:
		return SeasonSouthwestMonsoon
	case time.December, time.January, time.February, time.March:
		return SeasonNortheastMonsoon
	default:
		return SeasonInterMonsoon
	}
}

// BandStats aggregates the detections falling inside one distance band.
type BandStats struct {
	Count   int
	FRPSum  float64
	FRPMean float64
}

// Distance bands from the city, in km. The last band is open-ended.
var distanceBands = []struct {
	Name string
	Min  float64
	Max  float64
}{
	{"near", 0, 250},
	{"medium", 250, 500},
	{"far", 500, 1000},
	{"very_far", 1000, math.Inf(1)},
}

// FireBandFeatures aggregates detections into the four distance bands from
// the city. Empty bands produce zeros, never NaN.
func FireBandFeatures(fires []models.FireDetection, cityLat, cityLon float64) [4]BandStats {
	var stats [4]BandStats

	for _, f := range fires {
		d := geo.Haversine(cityLat, cityLon, f.Latitude, f.Longitude)
		for i, band := range distanceBands {
			if d >= band.Min && d < band.Max {
				stats[i].Count++
				if f.FRP.Valid && !math.IsNaN(f.FRP.Float64) {
					stats[i].FRPSum += f.FRP.Float64
				}
				break
			}
		}
	}

	for i := range stats {
		if stats[i].Count > 0 {
			stats[i].FRPMean = stats[i].FRPSum / float64(stats[i].Count)
		}
	}

	return stats
}
