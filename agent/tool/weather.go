package tool

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/sjin4861/deepcatch-agent/agent/contract"
	statex "github.com/sjin4861/deepcatch-agent/agent/state"
)

// WeatherCapability looks up marine conditions and tide windows for the
// plan date. Read-only against external services, safe to re-run.
type WeatherCapability struct{}

func NewWeatherCapability() *WeatherCapability { return &WeatherCapability{} }

func (w *WeatherCapability) Name() string  { return statex.ActionWeather }
func (w *WeatherCapability) Priority() int { return 10 }

func (w *WeatherCapability) AppliesTo(rc contractx.RunContext) bool {
	return rc.ActionRequested(statex.ActionWeather)
}

func (w *WeatherCapability) Execute(ctx context.Context, rc contractx.RunContext) (contractx.Output, error) {
	var out contractx.Output

	date := rc.State.Plan.Date
	report, err := rc.Services.WeatherForecast(ctx, date)
	if err != nil {
		log.Warn().Err(err).Str("capability", w.Name()).Msg("weather lookup failed")
		out.AddToolResult(failedResult(w.Name(), err, rc.Now))
		return out, nil
	}

	if date == "" && report.TargetDate != "" {
		out.AddUpdate(statex.UpdatePlanDate, report.TargetDate)
	}

	content := fmt.Sprintf(
		"Date: %s\nSunrise: %s\nWind: %s\nTide: %s\nBest window: %s\n%s",
		report.TargetDate, report.Sunrise, report.Wind, report.Tide, report.BestWindow, report.Summary,
	)
	metadata := map[string]any{
		"targetDate": report.TargetDate,
		"wind":       report.Wind,
		"tide":       report.Tide,
		"bestWindow": report.BestWindow,
	}
	if report.TidePhase != "" {
		metadata["tidePhase"] = report.TidePhase
		metadata["moonAge"] = report.MoonAge
	}

	out.AddToolResult(newToolResult(
		"weather-"+report.TargetDate,
		w.Name(),
		"Weather and tide outlook",
		content,
		metadata,
		rc.Now,
	))
	return out, nil
}
