package features

import (
	"math"
	"time"

	"github.com/jlim/hazecast/internal/geo"
	"github.com/jlim/hazecast/internal/models"
)

const (
	// FRP at which the intensity weight saturates, so a handful of extreme
	// fires cannot dominate unboundedly.
	frpSaturationMW = 100.0

	// Characteristic scales of the exponential decay terms.
	distanceScaleKm   = 1000.0
	recencyScaleHours = 24.0

	// Wind direction is not considered here; the transport simulator owns
	// that. A neutral constant keeps the two scores independent.
	windFavorabilityNeutral = 0.5

	fireRiskScale = 10.0
)

// FireRiskScore folds a window of fire detections into a single 0-100
// composite. Per-detection contribution is the product of an FRP intensity
// weight, an exponential distance decay toward the target city, and an
// exponential recency decay against the reference time. Missing or NaN FRP
// counts as zero intensity rather than failing the whole score.
func FireRiskScore(fires []models.FireDetection, cityLat, cityLon float64, ref time.Time) float64 {
	if len(fires) == 0 {
		return 0
	}

	var sum float64
	for _, f := range fires {
		frp := 0.0
		if f.FRP.Valid && !math.IsNaN(f.FRP.Float64) && f.FRP.Float64 > 0 {
			frp = f.FRP.Float64
		}
		intensity := math.Min(frp/frpSaturationMW, 1.0)

		dist := geo.Haversine(cityLat, cityLon, f.Latitude, f.Longitude)
		distanceWeight := math.Exp(-dist / distanceScaleKm)

		age := ref.Sub(f.AcquiredAt).Hours()
		if age < 0 {
			age = 0
		}
		recencyWeight := math.Exp(-age / recencyScaleHours)

		sum += intensity * distanceWeight * recencyWeight * windFavorabilityNeutral
	}

	return math.Min(fireRiskScale*sum, 100)
}
