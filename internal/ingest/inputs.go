package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/jlim/hazecast/internal/features"
	"github.com/jlim/hazecast/internal/models"
	"github.com/jlim/hazecast/internal/store"
)

const (
	// Detections older than this carry no useful risk signal.
	fireFeatureLookback = 72 * time.Hour

	// Pollutant history window for the lag features, with an hour of slack
	// past the longest lag.
	historyLookback = 25 * time.Hour
)

// InputsAt builds feature-assembly inputs from stored data at a reference
// time. The available func reports per-source fetch health so the live path
// can distinguish "no fires" from "fire feed down"; passing nil treats every
// source as healthy, which is what historical builds want since the stored
// record is all there ever will be.
//
// A store error is returned as-is: it is an infrastructure failure, not a
// degraded source.
func InputsAt(ctx context.Context, st *store.Store, ref time.Time, available func(source string) bool) (features.Inputs, error) {
	ok := func(source string) bool {
		return available == nil || available(source)
	}

	var in features.Inputs

	fires, err := st.FireDetectionsBetween(ctx, ref.Add(-fireFeatureLookback), ref)
	if err != nil {
		return in, fmt.Errorf("inputs: fires: %w", err)
	}
	in.Fires = fires
	in.FiresAvailable = ok(SourceFires)

	weather, err := st.WeatherObservationsBetween(ctx, ref, ref.Add(forecastWindowHours*time.Hour))
	if err != nil {
		return in, fmt.Errorf("inputs: weather: %w", err)
	}
	field := features.NewGridWindField(weather, ref, forecastWindowHours)
	in.Wind = field
	in.WindAvailable = ok(SourceWeather) && !field.Empty()

	history, err := st.PollutantReadingsBetween(ctx, models.RegionNational, ref.Add(-historyLookback), ref.Add(time.Second))
	if err != nil {
		return in, fmt.Errorf("inputs: pollutants: %w", err)
	}
	in.History = history
	in.HistoryAvailable = ok(SourcePollutants) && len(history) > 0

	for i := len(history) - 1; i >= 0; i-- {
		if history[i].PSI24h.Valid {
			in.CurrentPSI = history[i].PSI24h.Float64
			in.CurrentPSIAvailable = ok(SourcePollutants)
			break
		}
	}

	return in, nil
}
