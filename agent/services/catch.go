package services

import (
	"context"
	"fmt"
	"time"

	contractx "github.com/sjin4861/deepcatch-agent/agent/contract"
)

// StaticCatch serves a fixed recent-catch breakdown for the home port. It
// stands in for the fishery statistics API.
type StaticCatch struct {
	now func() time.Time
}

func NewStaticCatch() *StaticCatch {
	return &StaticCatch{now: time.Now}
}

var staticSpecies = []contractx.CatchSpecies{
	{Name: "squid", CatchKg: 1240.5, Share: 0.42},
	{Name: "hairtail", CatchKg: 730.0, Share: 0.25},
	{Name: "rockfish", CatchKg: 512.3, Share: 0.17},
	{Name: "mackerel", CatchKg: 470.9, Share: 0.16},
}

func (s *StaticCatch) Stats(_ context.Context) (contractx.CatchReport, error) {
	end := s.now().UTC()
	start := end.AddDate(0, 0, -31)

	var total float64
	for _, sp := range staticSpecies {
		total += sp.CatchKg
	}

	return contractx.CatchReport{
		AnalysisRange: fmt.Sprintf("%s ~ %s", start.Format("2006-01-02"), end.Format("2006-01-02")),
		TotalCatchKg:  total,
		TopSpecies:    staticSpecies,
		Summary:       "Squid leads recent landings with hairtail close behind; early-morning boat trips have been the most productive.",
		DataSource:    "port landing records",
	}, nil
}
