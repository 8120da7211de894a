package features

import (
	"database/sql"
	"math"
	"testing"

	"github.com/jlim/hazecast/internal/models"
)

type constField struct {
	samples []WindSample
}

func (f constField) SeriesNear(lat, lon float64) []WindSample { return f.samples }

func steadyWind(speedKmh, directionDeg float64, hours int) constField {
	samples := make([]WindSample, hours)
	for i := range samples {
		samples[i] = WindSample{SpeedKmh: speedKmh, DirectionDeg: directionDeg, Valid: true}
	}
	return constField{samples: samples}
}

func fireAt(lat, lon, frp float64) models.FireDetection {
	return models.FireDetection{
		Latitude:  lat,
		Longitude: lon,
		FRP:       sql.NullFloat64{Float64: frp, Valid: true},
	}
}

func TestClusterFiresEmpty(t *testing.T) {
	if got := ClusterFires(nil); got != nil {
		t.Errorf("ClusterFires(nil) = %v, want nil", got)
	}
}

func TestClusterFiresGrouping(t *testing.T) {
	fires := []models.FireDetection{
		fireAt(0.0, 102.0, 40),
		fireAt(0.1, 102.1, 60), // ~17 km from the first, same cluster
		fireAt(-3.0, 110.0, 25),
	}

	clusters := ClusterFires(fires)
	if len(clusters) != 2 {
		t.Fatalf("len(clusters) = %d, want 2", len(clusters))
	}
	if clusters[0].Count != 2 {
		t.Errorf("first cluster count = %d, want 2", clusters[0].Count)
	}
	if math.Abs(clusters[0].TotalFRP-100) > 1e-9 {
		t.Errorf("first cluster FRP = %v, want 100", clusters[0].TotalFRP)
	}
	if math.Abs(clusters[0].Lat-0.05) > 1e-9 {
		t.Errorf("first cluster centroid lat = %v, want 0.05", clusters[0].Lat)
	}
	if clusters[1].Count != 1 || math.Abs(clusters[1].TotalFRP-25) > 1e-9 {
		t.Errorf("second cluster = %+v, want isolated fire with FRP 25", clusters[1])
	}
}

func TestClusterFiresDeterministic(t *testing.T) {
	fires := []models.FireDetection{
		fireAt(0.0, 102.0, 40),
		fireAt(0.1, 102.1, 60),
		fireAt(-3.0, 110.0, 25),
		fireAt(-3.1, 110.1, 15),
	}

	first := ClusterFires(fires)
	for run := 0; run < 10; run++ {
		got := ClusterFires(fires)
		if len(got) != len(first) {
			t.Fatalf("run %d: cluster count changed: %d vs %d", run, len(got), len(first))
		}
		for i := range got {
			if got[i] != first[i] {
				t.Fatalf("run %d: cluster %d differs: %+v vs %+v", run, i, got[i], first[i])
			}
		}
	}
}

func TestProximityScore(t *testing.T) {
	tests := []struct {
		distKm float64
		want   float64
	}{
		{0, 100},
		{49.9, 100},
		{50, 100},
		{125, 50},
		{199, 100.0 * (1 - 149.0/150.0)},
		{200, 0},
		{1000, 0},
	}

	for _, tt := range tests {
		if got := proximityScore(tt.distKm); math.Abs(got-tt.want) > 1e-6 {
			t.Errorf("proximityScore(%v) = %v, want %v", tt.distKm, got, tt.want)
		}
	}
}

func TestSimulateTrajectoryHoldsLastWind(t *testing.T) {
	// One valid hour then a gap: the last known vector keeps advecting.
	wind := []WindSample{
		{SpeedKmh: 20, DirectionDeg: 0, Valid: true}, // from the north, pushes south
		{Valid: false},
		{Valid: false},
	}

	path := simulateTrajectory(2.0, 103.0, wind, 3)
	if len(path) != 4 {
		t.Fatalf("len(path) = %d, want 4 (start + 3 steps)", len(path))
	}
	for i := 1; i < len(path); i++ {
		if path[i][0] >= path[i-1][0] {
			t.Errorf("step %d: wind from north should move point south: %v -> %v", i, path[i-1][0], path[i][0])
		}
	}
}

func TestSimulateTrajectoryNoWind(t *testing.T) {
	wind := []WindSample{{Valid: false}, {Valid: false}}
	path := simulateTrajectory(2.0, 103.0, wind, 2)
	if len(path) != 1 {
		t.Errorf("point should not move without any wind sample, path = %v", path)
	}
}

func TestWindTransportScoreEmpty(t *testing.T) {
	if got := WindTransportScore(nil, steadyWind(20, 90, 24), DefaultCityLat, DefaultCityLon, 24); got != 0 {
		t.Errorf("score(no clusters) = %v, want 0", got)
	}
}

func TestWindTransportScoreTowardCity(t *testing.T) {
	// Cluster ~330 km due east of the city; easterly wind (from 90 deg)
	// advects it west toward the city at 25*0.7 km/h, closing most of the
	// distance within 24 hours.
	clusters := []Cluster{{Lat: DefaultCityLat, Lon: DefaultCityLon + 3.0, TotalFRP: 1000, Count: 5}}
	got := WindTransportScore(clusters, steadyWind(25, 90, 24), DefaultCityLat, DefaultCityLon, 24)
	if got <= 0 || got > 100 {
		t.Fatalf("score = %v, want within (0, 100]", got)
	}
}

func TestWindTransportScoreNeverCloseContributesZero(t *testing.T) {
	// Cluster 1000+ km north with wind pushing it further north.
	clusters := []Cluster{{Lat: DefaultCityLat + 10, Lon: DefaultCityLon, TotalFRP: 5000, Count: 3}}
	got := WindTransportScore(clusters, steadyWind(30, 180, 24), DefaultCityLat, DefaultCityLon, 24)
	if got != 0 {
		t.Errorf("score = %v, want 0 for trajectory never within 200 km", got)
	}
}

func TestWindTransportScoreMissingWindFailsSoft(t *testing.T) {
	clusters := []Cluster{{Lat: DefaultCityLat + 0.5, Lon: DefaultCityLon, TotalFRP: 2000, Count: 2}}
	invalid := constField{samples: []WindSample{{Valid: false}, {Valid: false}}}
	got := WindTransportScore(clusters, invalid, DefaultCityLat, DefaultCityLon, 24)
	if got != 0 {
		t.Errorf("score = %v, want 0 when no wind sample is valid", got)
	}
	if math.IsNaN(got) {
		t.Error("score must never be NaN")
	}
}

func TestWindTransportScoreCap(t *testing.T) {
	// A massive cluster sitting on the city saturates the cap.
	clusters := []Cluster{{Lat: DefaultCityLat, Lon: DefaultCityLon, TotalFRP: 1e6, Count: 100}}
	got := WindTransportScore(clusters, steadyWind(5, 0, 24), DefaultCityLat, DefaultCityLon, 24)
	if got != 100 {
		t.Errorf("score = %v, want clamp at 100", got)
	}
}
