package tool

import (
	"github.com/sjin4861/deepcatch-agent/agent/extract"
)

// DefaultRegistry builds the built-in capability set in its default
// execution order. Constructed once at process start and injected into the
// pipeline; there is no package-level registry.
func DefaultRegistry(extractor extract.Extractor) (*Registry, error) {
	return NewRegistry(
		NewWeatherCapability(),
		NewCatchCapability(),
		NewPlannerCapability(extractor),
		NewCallCapability(),
	)
}
