package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"

	contractx "github.com/sjin4861/deepcatch-agent/agent/contract"
	statex "github.com/sjin4861/deepcatch-agent/agent/state"
	telephonyx "github.com/sjin4861/deepcatch-agent/pkg/telephony"
)

// WeatherProvider and CatchProvider abstract the data sources behind the
// facade so tests can swap them without a network.
type WeatherProvider interface {
	Forecast(ctx context.Context, date string) (contractx.WeatherReport, error)
}

type CatchProvider interface {
	Stats(ctx context.Context) (contractx.CatchReport, error)
}

// Caller is the slice of the telephony client the facade needs.
type Caller interface {
	PlaceCall(ctx context.Context, req telephonyx.CallRequest) (string, error)
}

// Facade implements the external-collaborator surface capabilities consume.
type Facade struct {
	db      *bun.DB
	weather WeatherProvider
	catch   CatchProvider
	caller  Caller
	now     func() time.Time
}

var _ contractx.Services = (*Facade)(nil)

type Option func(*Facade)

func WithWeatherProvider(p WeatherProvider) Option {
	return func(f *Facade) { f.weather = p }
}

func WithCatchProvider(p CatchProvider) Option {
	return func(f *Facade) { f.catch = p }
}

func WithClock(now func() time.Time) Option {
	return func(f *Facade) { f.now = now }
}

// New builds the facade. db may be nil only when every data-backed call is
// replaced through options; caller may be nil, in which case StartCall fails
// with ErrExternalService.
func New(db *bun.DB, caller Caller, opts ...Option) *Facade {
	f := &Facade{
		db:      db,
		weather: NewStaticWeather(),
		catch:   NewStaticCatch(),
		caller:  caller,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Facade) WeatherForecast(ctx context.Context, date string) (contractx.WeatherReport, error) {
	report, err := f.weather.Forecast(ctx, date)
	if err != nil {
		return contractx.WeatherReport{}, fmt.Errorf("%w: weather forecast: %v", contractx.ErrExternalService, err)
	}
	return report, nil
}

func (f *Facade) CatchStats(ctx context.Context) (contractx.CatchReport, error) {
	report, err := f.catch.Stats(ctx)
	if err != nil {
		return contractx.CatchReport{}, fmt.Errorf("%w: catch statistics: %v", contractx.ErrExternalService, err)
	}
	return report, nil
}

func (f *Facade) StartCall(ctx context.Context, plan statex.PlanSnapshot, business contractx.Business) (string, error) {
	if f.caller == nil {
		return "", fmt.Errorf("%w: telephony is not configured", contractx.ErrExternalService)
	}
	if strings.TrimSpace(business.Phone) == "" {
		return "", fmt.Errorf("%w: business %q has no phone number", contractx.ErrValidation, business.Name)
	}

	sid, err := f.caller.PlaceCall(ctx, telephonyx.CallRequest{
		ToNumber: business.Phone,
		Script:   reservationScript(plan, business),
	})
	if err != nil {
		return "", fmt.Errorf("%w: place call to %s: %v", contractx.ErrExternalService, business.Name, err)
	}
	return sid, nil
}

// reservationScript is the instruction payload for the voice agent that
// conducts the reservation call.
func reservationScript(plan statex.PlanSnapshot, business contractx.Business) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Call %s to book a fishing trip.", business.Name)
	if plan.Date != "" {
		fmt.Fprintf(&b, " Date: %s.", plan.Date)
	}
	if plan.Time != "" {
		fmt.Fprintf(&b, " Time: %s.", plan.Time)
	}
	if plan.Participants > 0 {
		fmt.Fprintf(&b, " Party of %d.", plan.Participants)
	}
	if plan.FishingType != "" {
		fmt.Fprintf(&b, " Trip type: %s.", plan.FishingType)
	}
	if plan.Budget != "" {
		fmt.Fprintf(&b, " Budget: %s.", plan.Budget)
	}
	if plan.Gear != "" {
		fmt.Fprintf(&b, " Gear: %s.", plan.Gear)
	}
	if plan.TargetSpecies != "" {
		fmt.Fprintf(&b, " Target species: %s.", plan.TargetSpecies)
	}
	b.WriteString(" Confirm availability and price, then report back.")
	return b.String()
}

func (f *Facade) requireDB() error {
	if f.db == nil {
		return errors.New("database handle is not configured")
	}
	return nil
}
