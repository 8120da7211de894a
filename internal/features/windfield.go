package features

import (
	"sort"
	"time"

	"github.com/jlim/hazecast/internal/geo"
	"github.com/jlim/hazecast/internal/models"
)

type gridPoint struct {
	lat, lon float64
	series   []WindSample
}

// GridWindField backs the transport simulator with hourly wind series at a
// fixed set of reference points, resolving queries to the nearest point.
type GridWindField struct {
	points []gridPoint
}

// NewGridWindField buckets weather observations into hourly slots starting at
// start, one series per distinct (lat, lon). Observations outside
// [start, start+hours) are ignored; a slot with no observation stays invalid
// so the simulator can apply its hold-last policy. Points are ordered by
// (lat, lon) so nearest-point ties resolve the same way on every call.
func NewGridWindField(obs []models.WeatherObservation, start time.Time, hours int) *GridWindField {
	type key struct{ lat, lon float64 }
	byPoint := make(map[key][]WindSample)

	for _, o := range obs {
		offset := int(o.Timestamp.Sub(start).Hours())
		if offset < 0 || offset >= hours {
			continue
		}
		k := key{o.Latitude, o.Longitude}
		series, ok := byPoint[k]
		if !ok {
			series = make([]WindSample, hours)
		}
		if o.WindSpeed.Valid && o.WindDirection.Valid {
			series[offset] = WindSample{
				SpeedKmh:     o.WindSpeed.Float64,
				DirectionDeg: o.WindDirection.Float64,
				Valid:        true,
			}
		}
		byPoint[k] = series
	}

	field := &GridWindField{}
	for k, series := range byPoint {
		field.points = append(field.points, gridPoint{lat: k.lat, lon: k.lon, series: series})
	}
	sort.Slice(field.points, func(i, j int) bool {
		if field.points[i].lat != field.points[j].lat {
			return field.points[i].lat < field.points[j].lat
		}
		return field.points[i].lon < field.points[j].lon
	})

	return field
}

// SeriesNear returns the series at the grid point closest to (lat, lon), or
// nil when the field is empty.
func (f *GridWindField) SeriesNear(lat, lon float64) []WindSample {
	var best []WindSample
	bestDist := -1.0
	for _, p := range f.points {
		d := geo.Haversine(lat, lon, p.lat, p.lon)
		if bestDist < 0 || d < bestDist {
			bestDist = d
			best = p.series
		}
	}
	return best
}

// Empty reports whether the field holds no grid points at all.
func (f *GridWindField) Empty() bool {
	return len(f.points) == 0
}
