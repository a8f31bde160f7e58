package extract

import (
	"context"

	statex "github.com/sjin4861/deepcatch-agent/agent/state"
)

// Result is what slot extraction produced for one message: state updates
// keyed by the agent/state update constants, human-readable summary lines,
// and which fields were filled by defaults rather than user input.
type Result struct {
	Updates         map[string]any
	Summary         []string
	DefaultsApplied []string
}

func (r *Result) add(key string, value any) {
	if r.Updates == nil {
		r.Updates = make(map[string]any, 8)
	}
	r.Updates[key] = value
}

// Extractor pulls plan fields out of an inbound message given the current
// snapshot. Implementations must not mutate the snapshot.
type Extractor interface {
	Extract(ctx context.Context, message string, plan statex.PlanSnapshot) (Result, error)
}
