package features

import (
	"math"

	"github.com/jlim/hazecast/internal/geo"
	"github.com/jlim/hazecast/internal/models"
)

const (
	// Fires within this great-circle radius of each other merge into one
	// cluster. Regional hotspot groups in Sumatra/Kalimantan span tens of km.
	clusterRadiusKm = 50.0

	// Fraction of the wind displacement smoke actually travels per hour,
	// accounting for settling and dispersion.
	dispersionFactor = 0.7

	// Rough km per degree of latitude at the equator.
	kmPerDegree = 111.0

	// Proximity ramp: full score inside the inner radius, zero beyond the
	// outer radius, linear in between.
	proximityInnerKm = 50.0
	proximityOuterKm = 200.0

	// FRP weighting divisor for cluster contributions.
	clusterFRPScale = 1000.0

	// TransportSimulationHours fixes the trajectory length so the assembled
	// vector is horizon-independent.
	TransportSimulationHours = 24
)

// Cluster is a spatial group of fire detections reduced to its centroid and
// combined radiative power.
type Cluster struct {
	Lat      float64
	Lon      float64
	TotalFRP float64
	Count    int
}

// WindSample is one hour of wind at a point. Direction uses the
// meteorological convention: the bearing the wind blows from.
type WindSample struct {
	SpeedKmh     float64
	DirectionDeg float64
	Valid        bool
}

// WindField answers "what is the hourly wind series nearest this point",
// ordered from the reference hour onward. Implementations must be
// deterministic for identical inputs.
type WindField interface {
	SeriesNear(lat, lon float64) []WindSample
}

// ClusterFires groups detections by spatial density: any two detections
// within clusterRadiusKm of each other share a cluster (minimum cluster size
// one, so isolated hotspots stand alone). Detections are visited in input
// order and cluster membership grows breadth-first, so the result is fully
// deterministic for a given input slice.
func ClusterFires(fires []models.FireDetection) []Cluster {
	if len(fires) == 0 {
		return nil
	}

	assigned := make([]bool, len(fires))
	var clusters []Cluster

	for i := range fires {
		if assigned[i] {
			continue
		}

		// Breadth-first expansion of the eps-neighbour graph from seed i.
		member := []int{i}
		assigned[i] = true
		for qi := 0; qi < len(member); qi++ {
			cur := fires[member[qi]]
			for j := range fires {
				if assigned[j] {
					continue
				}
				d := geo.Haversine(cur.Latitude, cur.Longitude, fires[j].Latitude, fires[j].Longitude)
				if d <= clusterRadiusKm {
					assigned[j] = true
					member = append(member, j)
				}
			}
		}

		var c Cluster
		for _, idx := range member {
			f := fires[idx]
			c.Lat += f.Latitude
			c.Lon += f.Longitude
			if f.FRP.Valid && !math.IsNaN(f.FRP.Float64) && f.FRP.Float64 > 0 {
				c.TotalFRP += f.FRP.Float64
			}
			c.Count++
		}
		c.Lat /= float64(c.Count)
		c.Lon /= float64(c.Count)
		clusters = append(clusters, c)
	}

	return clusters
}

// simulateTrajectory advects a point hour-by-hour along the wind series.
// Invalid samples hold the last known wind vector; leading invalid samples
// are skipped without movement. The returned path includes the start point.
func simulateTrajectory(startLat, startLon float64, wind []WindSample, hours int) [][2]float64 {
	path := [][2]float64{{startLat, startLon}}

	var last WindSample
	haveWind := false

	for hour := 0; hour < hours && hour < len(wind); hour++ {
		s := wind[hour]
		if s.Valid {
			last = s
			haveWind = true
		}
		if !haveWind {
			continue
		}

		lat := path[len(path)-1][0]
		lon := path[len(path)-1][1]

		// Meteorological direction is where the wind comes from, so the
		// velocity vector points the opposite way.
		dirRad := last.DirectionDeg * math.Pi / 180
		u := -last.SpeedKmh * math.Sin(dirRad)
		v := -last.SpeedKmh * math.Cos(dirRad)

		dLat := v * dispersionFactor / kmPerDegree
		dLon := u * dispersionFactor / (kmPerDegree * math.Cos(lat*math.Pi/180))

		path = append(path, [2]float64{lat + dLat, lon + dLon})
	}

	return path
}

// proximityScore converts the closest approach distance into 0-100.
func proximityScore(minDistanceKm float64) float64 {
	switch {
	case minDistanceKm < proximityInnerKm:
		return 100
	case minDistanceKm < proximityOuterKm:
		return 100 * (1 - (minDistanceKm-proximityInnerKm)/(proximityOuterKm-proximityInnerKm))
	default:
		return 0
	}
}

// WindTransportScore estimates how likely smoke from the given clusters is to
// reach the city under the supplied wind field. Each cluster's trajectory is
// simulated for simHours, its closest approach converted to a proximity score
// and weighted by cluster FRP. A cluster with no valid wind sample at all
// contributes zero rather than poisoning the sum.
func WindTransportScore(clusters []Cluster, field WindField, cityLat, cityLon float64, simHours int) float64 {
	if len(clusters) == 0 || field == nil {
		return 0
	}
	if simHours <= 0 {
		simHours = TransportSimulationHours
	}

	var total float64
	for _, c := range clusters {
		wind := field.SeriesNear(c.Lat, c.Lon)
		if !anyValid(wind) {
			continue
		}

		path := simulateTrajectory(c.Lat, c.Lon, wind, simHours)

		minDist := math.Inf(1)
		for _, p := range path {
			d := geo.Haversine(p[0], p[1], cityLat, cityLon)
			if d < minDist {
				minDist = d
			}
		}

		total += proximityScore(minDist) * (c.TotalFRP / clusterFRPScale)
	}

	return math.Min(total, 100)
}

func anyValid(wind []WindSample) bool {
	for _, s := range wind {
		if s.Valid {
			return true
		}
	}
	return false
}
