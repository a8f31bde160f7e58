package services

import (
	"context"
	"fmt"
	"time"

	contractx "github.com/sjin4861/deepcatch-agent/agent/contract"
)

// StaticWeather serves a deterministic marine forecast derived from the
// target date. It stands in for the regional marine API and keeps the
// pipeline fully functional offline.
type StaticWeather struct{}

func NewStaticWeather() *StaticWeather {
	return &StaticWeather{}
}

var tidePhases = []string{"neap tide", "waxing tide", "spring tide", "waning tide"}

func (s *StaticWeather) Forecast(_ context.Context, date string) (contractx.WeatherReport, error) {
	target, err := resolveTargetDate(date)
	if err != nil {
		return contractx.WeatherReport{}, err
	}

	// Day-of-year drives the synthetic variation so repeated calls for the
	// same date agree.
	seed := target.YearDay()
	windSpeed := 2.0 + float64(seed%7)*0.8
	waveHeight := 0.3 + float64(seed%5)*0.15
	moonAge := float64(seed % 30)
	phase := tidePhases[(seed/7)%len(tidePhases)]

	report := contractx.WeatherReport{
		TargetDate: target.Format("2006-01-02"),
		Sunrise:    sunriseFor(target),
		Wind:       fmt.Sprintf("average wind %.1f m/s, wave height %.2f m", windSpeed, waveHeight),
		Tide:       fmt.Sprintf("%s, high tide 04:50 / 17:10, low tide 11:00 / 23:20", phase),
		TidePhase:  phase,
		MoonAge:    moonAge,
		BestWindow: "05:30-09:00",
		Summary:    summaryFor(windSpeed, waveHeight),
	}
	return report, nil
}

func resolveTargetDate(date string) (time.Time, error) {
	if date == "" {
		// No date collected yet: suggest the next weekend day.
		t := time.Now().UTC()
		for t.Weekday() != time.Saturday {
			t = t.AddDate(0, 0, 1)
		}
		return t, nil
	}
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized plan date %q: %w", date, err)
	}
	return t, nil
}

func sunriseFor(t time.Time) string {
	// Coarse seasonal curve around an 05:48 equinox sunrise.
	offset := (int(t.Month()) - 6) * 9
	if offset < 0 {
		offset = -offset
	}
	return time.Date(0, 1, 1, 5, 48, 0, 0, time.UTC).
		Add(time.Duration(offset) * time.Minute).
		Format("15:04")
}

func summaryFor(windSpeed, waveHeight float64) string {
	switch {
	case windSpeed > 6.5 || waveHeight > 0.9:
		return "Rough conditions expected; a sheltered pier is the safer pick."
	case windSpeed > 4.5:
		return "Breezy but workable; mornings look calmer than afternoons."
	default:
		return "Calm seas and light wind, a good day to be on the water."
	}
}
