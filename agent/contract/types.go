package contract

import (
	"time"

	statex "github.com/sjin4861/deepcatch-agent/agent/state"
)

// ChatRequest is the transport-agnostic inbound shape.
type ChatRequest struct {
	SessionID string `json:"sessionId,omitempty"`
	Message   string `json:"message"`
}

// ChatResponse is returned for every inbound message, even when every
// capability failed.
type ChatResponse struct {
	Message       string              `json:"message"`
	ToolResults   []statex.ToolResult `json:"toolResults"`
	CallSuggested bool                `json:"callSuggested"`
}

// RunContext is handed to capabilities during a pass. State is the shared
// mutable session state; Actions is the requested-action list derived at
// intake.
type RunContext struct {
	State    *statex.ConversationState
	Services Services
	Actions  []string
	Now      time.Time
}

func (rc RunContext) ActionRequested(name string) bool {
	for _, a := range rc.Actions {
		if a == name {
			return true
		}
	}
	return false
}

// Output carries a capability's effects: state-field updates keyed by the
// update constants in agent/state, tool results to upsert, and follow-up
// actions for later turns.
type Output struct {
	Updates     map[string]any
	ToolResults []statex.ToolResult
	FollowUps   []string
}

func (o *Output) AddUpdate(key string, value any) {
	if o.Updates == nil {
		o.Updates = make(map[string]any, 4)
	}
	o.Updates[key] = value
}

func (o *Output) AddToolResult(tr statex.ToolResult) {
	o.ToolResults = append(o.ToolResults, tr)
}

func (o *Output) AddFollowUp(name string) {
	o.FollowUps = append(o.FollowUps, name)
}

// Business is a bookable fishing operator from the directory.
type Business struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Location string `json:"location,omitempty"`
}

type BusinessFilter struct {
	Location string
	Name     string
}

// WeatherReport describes marine conditions for a target date.
type WeatherReport struct {
	TargetDate string  `json:"target_date"`
	Sunrise    string  `json:"sunrise"`
	Wind       string  `json:"wind"`
	Tide       string  `json:"tide"`
	TidePhase  string  `json:"tide_phase,omitempty"`
	MoonAge    float64 `json:"moon_age,omitempty"`
	BestWindow string  `json:"best_window"`
	Summary    string  `json:"summary"`
}

// CatchSpecies is one entry of a catch report's top-species breakdown.
type CatchSpecies struct {
	Name    string  `json:"name"`
	CatchKg float64 `json:"catch_kg"`
	Share   float64 `json:"share"`
}

type CatchReport struct {
	AnalysisRange string         `json:"analysis_range"`
	TotalCatchKg  float64        `json:"total_catch_kg"`
	TopSpecies    []CatchSpecies `json:"top_species"`
	Summary       string         `json:"summary"`
	DataSource    string         `json:"data_source,omitempty"`
}

type CallEventType string

const (
	CallEventStarted       CallEventType = "started"
	CallEventStatusChanged CallEventType = "status_changed"
	CallEventTranscript    CallEventType = "transcript"
	CallEventSlots         CallEventType = "slots"
	CallEventCompleted     CallEventType = "completed"
	CallEventFailed        CallEventType = "failed"
)

// CallEvent arrives out-of-band from the telephony subsystem, keyed by the
// call identifier returned from StartCall.
type CallEvent struct {
	CallSID    string         `json:"call_sid"`
	SessionID  string         `json:"session_id"`
	Type       CallEventType  `json:"type"`
	Status     string         `json:"status,omitempty"`
	Transcript string         `json:"transcript,omitempty"`
	Slots      map[string]any `json:"slots,omitempty"`
	Error      string         `json:"error,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}
