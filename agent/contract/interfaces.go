package contract

import (
	"context"

	statex "github.com/sjin4861/deepcatch-agent/agent/state"
)

// Capability is the contract every pluggable tool implements. AppliesTo
// must be side-effect free; Execute must guard its own idempotency for
// externally visible effects.
type Capability interface {
	Name() string
	Priority() int
	AppliesTo(rc RunContext) bool
	Execute(ctx context.Context, rc RunContext) (Output, error)
}

// Services is the external-collaborator facade consumed by capabilities.
type Services interface {
	LoadPlan(ctx context.Context, sessionID string) (statex.PlanSnapshot, error)
	SavePlan(ctx context.Context, sessionID string, plan statex.PlanSnapshot) error
	ListBusinesses(ctx context.Context, filter BusinessFilter) ([]Business, error)
	StartCall(ctx context.Context, plan statex.PlanSnapshot, business Business) (string, error)
	WeatherForecast(ctx context.Context, date string) (WeatherReport, error)
	CatchStats(ctx context.Context) (CatchReport, error)
}

// ComposeRequest carries everything the composer may use for a reply.
type ComposeRequest struct {
	UserMessage   string
	History       []statex.Message
	Plan          statex.PlanSnapshot
	Missing       []string
	ToolResults   []statex.ToolResult
	CallSuggested bool

	// NeedsBusiness is set when the user asked for the reservation call but
	// no business has been selected yet.
	NeedsBusiness bool
}

// Composer turns accumulated turn outputs into a natural-language reply.
type Composer interface {
	Compose(ctx context.Context, req ComposeRequest) (string, error)
}
