package ingest

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jlim/hazecast/internal/features"
	"github.com/jlim/hazecast/internal/models"
	"github.com/jlim/hazecast/internal/store"
)

func TestParseFIRMSCSV(t *testing.T) {
	body := []byte(`latitude,longitude,bright_ti4,scan,track,acq_date,acq_time,satellite,confidence,version,frp,daynight
-2.15,104.32,331.2,0.39,0.36,2025-09-15,530,N,h,2.0NRT,45.6,D
0.88,102.11,305.4,0.41,0.37,2025-09-15,531,N,n,2.0NRT,,N
-6.5,110.2,310.0,0.40,0.36,2025-09-15,1745,N,l,2.0NRT,12.3,N
`)

	fires, err := parseFIRMSCSV(body, "VIIRS_SNPP_NRT")
	if err != nil {
		t.Fatalf("parseFIRMSCSV: %v", err)
	}
	if len(fires) != 3 {
		t.Fatalf("len = %d, want 3", len(fires))
	}

	f := fires[0]
	if f.Latitude != -2.15 || f.Longitude != 104.32 {
		t.Errorf("position = %v, %v", f.Latitude, f.Longitude)
	}
	if !f.FRP.Valid || f.FRP.Float64 != 45.6 {
		t.Errorf("FRP = %+v, want 45.6", f.FRP)
	}
	if f.Confidence != "high" {
		t.Errorf("confidence = %q, want high", f.Confidence)
	}
	want := time.Date(2025, 9, 15, 5, 30, 0, 0, time.UTC)
	if !f.AcquiredAt.Equal(want) {
		t.Errorf("acquired = %v, want %v (530 pads to 0530)", f.AcquiredAt, want)
	}

	if fires[1].FRP.Valid {
		t.Errorf("empty frp cell should scan as null, got %+v", fires[1].FRP)
	}
	if fires[1].Confidence != "nominal" || fires[2].Confidence != "low" {
		t.Errorf("confidence labels = %q, %q", fires[1].Confidence, fires[2].Confidence)
	}
}

func TestParseFIRMSCSVEmpty(t *testing.T) {
	headerOnly := []byte("latitude,longitude,bright_ti4,acq_date,acq_time,confidence,frp\n")
	fires, err := parseFIRMSCSV(headerOnly, "VIIRS_SNPP_NRT")
	if err != nil {
		t.Fatalf("parseFIRMSCSV: %v", err)
	}
	if fires != nil {
		t.Errorf("quiet window should yield no detections, got %v", fires)
	}
}

func TestParseFIRMSCSVMissingColumn(t *testing.T) {
	body := []byte("latitude,longitude\n-2.1,104.3\n")
	if _, err := parseFIRMSCSV(body, "VIIRS_SNPP_NRT"); err == nil {
		t.Error("csv without acquisition columns must fail")
	}
}

func TestRegionalReadingsNationalMean(t *testing.T) {
	ts := time.Date(2025, 9, 15, 10, 0, 0, 0, time.UTC)
	psi := map[string]*float64{}
	for i, region := range models.CompassRegions {
		v := float64(50 + 10*i)
		psi[region] = &v
	}

	readings := regionalReadings(map[string]map[string]*float64{
		"psi_twenty_four_hourly": psi,
	}, ts)

	if len(readings) != 6 {
		t.Fatalf("len = %d, want 5 regions + national", len(readings))
	}
	national := readings[len(readings)-1]
	if national.Region != models.RegionNational {
		t.Fatalf("last reading region = %q", national.Region)
	}
	if math.Abs(national.PSI24h.Float64-70) > 1e-9 {
		t.Errorf("national PSI = %v, want mean 70", national.PSI24h.Float64)
	}
}

func TestRegionalReadingsNoPSI(t *testing.T) {
	readings := regionalReadings(map[string]map[string]*float64{}, time.Now())
	for _, r := range readings {
		if r.Region == models.RegionNational {
			t.Error("no regional PSI values: national row must not be synthesized")
		}
	}
}

func TestHourlyToObservations(t *testing.T) {
	speed := 14.5
	var data openMeteoResponse
	data.Hourly.Time = []string{"2025-09-15T00:00", "2025-09-15T01:00", "2025-09-15T02:00"}
	data.Hourly.WindSpeed = []*float64{&speed, nil, &speed}
	data.Hourly.WindDirection = []*float64{nil, nil, nil}

	from := time.Date(2025, 9, 15, 0, 0, 0, 0, time.UTC)
	obs, err := hourlyToObservations(data, Point{Lat: 1.35, Lon: 103.8}, from, from.Add(time.Hour), true)
	if err != nil {
		t.Fatalf("hourlyToObservations: %v", err)
	}
	if len(obs) != 2 {
		t.Fatalf("len = %d, want 2 (02:00 outside range)", len(obs))
	}
	if !obs[0].WindSpeed.Valid || obs[0].WindSpeed.Float64 != 14.5 {
		t.Errorf("obs[0] wind speed = %+v", obs[0].WindSpeed)
	}
	if obs[1].WindSpeed.Valid {
		t.Errorf("nil series entry should be null, got %+v", obs[1].WindSpeed)
	}
	if !obs[0].IsForecast {
		t.Error("forecast flag lost")
	}
}

type stubFires struct {
	fires []models.FireDetection
	err   error
}

func (s stubFires) FetchDetections(context.Context, BBox, int) ([]models.FireDetection, error) {
	return s.fires, s.err
}

type stubWeather struct {
	obs []models.WeatherObservation
	err error
}

func (s stubWeather) FetchObservations(context.Context, []Point, time.Time, time.Time, Mode) ([]models.WeatherObservation, error) {
	return s.obs, s.err
}

type stubPollutants struct {
	readings []models.PollutantReading
	err      error
}

func (s stubPollutants) FetchReadings(context.Context) ([]models.PollutantReading, error) {
	return s.readings, s.err
}

func TestCollectPartialFailure(t *testing.T) {
	now := time.Date(2025, 9, 15, 12, 0, 0, 0, time.UTC)
	collector := NewCollector(
		stubFires{err: errors.New("gateway timeout")},
		stubWeather{obs: []models.WeatherObservation{{Timestamp: now}}},
		stubPollutants{readings: []models.PollutantReading{{Timestamp: now, Region: models.RegionNational}}},
	)

	snap := collector.Collect(context.Background(), now)

	if snap.Available(SourceFires) {
		t.Error("fire source should be tagged unavailable")
	}
	if reason := snap.Unavailable[SourceFires]; reason == "" {
		t.Error("unavailable source must carry its reason")
	}
	if !snap.Available(SourceWeather) || !snap.Available(SourcePollutants) {
		t.Errorf("healthy sources flagged: %v", snap.Unavailable)
	}
	if len(snap.Weather) != 1 || len(snap.Readings) != 1 {
		t.Errorf("joined data lost: %d weather, %d readings", len(snap.Weather), len(snap.Readings))
	}
}

func TestCollectEmptySuccessIsNotUnavailable(t *testing.T) {
	snap := NewCollector(stubFires{}, stubWeather{}, stubPollutants{}).Collect(context.Background(), time.Now())
	if len(snap.Unavailable) != 0 {
		t.Errorf("empty but successful fetches flagged: %v", snap.Unavailable)
	}
	if !snap.Available(SourceFires) {
		t.Error("zero fires on a quiet day is not an outage")
	}
}

func setupInputsStore(t *testing.T, ref time.Time) *store.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	st := store.New(db)
	if err := st.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	ctx := context.Background()

	if _, err := st.InsertFireDetections(ctx, []models.FireDetection{
		{Latitude: -1.2, Longitude: 103.5, FRP: sql.NullFloat64{Float64: 30, Valid: true},
			AcquiredAt: ref.Add(-10 * time.Hour), Satellite: "VIIRS_SNPP"},
	}); err != nil {
		t.Fatalf("insert fires: %v", err)
	}

	if _, err := st.InsertWeatherObservations(ctx, []models.WeatherObservation{
		{Timestamp: ref, Latitude: 0, Longitude: 103,
			WindSpeed:     sql.NullFloat64{Float64: 15, Valid: true},
			WindDirection: sql.NullFloat64{Float64: 180, Valid: true}, IsForecast: true},
	}); err != nil {
		t.Fatalf("insert weather: %v", err)
	}

	if _, err := st.InsertPollutantReadings(ctx, []models.PollutantReading{
		{Timestamp: ref.Add(-time.Hour), Region: models.RegionNational, PSI24h: sql.NullFloat64{Float64: 62, Valid: true}},
	}); err != nil {
		t.Fatalf("insert readings: %v", err)
	}
	return st
}

func TestInputsAt(t *testing.T) {
	ref := time.Date(2025, 9, 15, 12, 0, 0, 0, time.UTC)
	st := setupInputsStore(t, ref)

	in, err := InputsAt(context.Background(), st, ref, nil)
	if err != nil {
		t.Fatalf("InputsAt: %v", err)
	}

	if !in.FiresAvailable || len(in.Fires) != 1 {
		t.Errorf("fires = %d available=%v", len(in.Fires), in.FiresAvailable)
	}
	if !in.WindAvailable {
		t.Error("wind should be available with forecast rows present")
	}
	if !in.HistoryAvailable || !in.CurrentPSIAvailable || in.CurrentPSI != 62 {
		t.Errorf("history=%v current=%v psi=%v", in.HistoryAvailable, in.CurrentPSIAvailable, in.CurrentPSI)
	}

	// The inputs must assemble cleanly with nothing degraded.
	v := features.NewAssembler().Assemble(ref, in)
	if len(v.Degraded) != 0 {
		t.Errorf("degraded = %v", v.Degraded)
	}
}

func TestInputsAtDegradedSource(t *testing.T) {
	ref := time.Date(2025, 9, 15, 12, 0, 0, 0, time.UTC)
	st := setupInputsStore(t, ref)

	stale := func(source string) bool { return source != SourceFires }
	in, err := InputsAt(context.Background(), st, ref, stale)
	if err != nil {
		t.Fatalf("InputsAt: %v", err)
	}
	if in.FiresAvailable {
		t.Error("stale fire source must be marked unavailable even with stored rows")
	}
	if !in.WindAvailable || !in.CurrentPSIAvailable {
		t.Error("other sources should stay available")
	}
}
