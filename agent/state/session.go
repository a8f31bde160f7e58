package state

import (
	"errors"
	"time"
)

type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
	RoleTool      ChatRole = "tool"
)

type Message struct {
	Role      ChatRole  `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type Stage string

const (
	StageCollecting Stage = "collecting"
	StageReady      Stage = "ready"
	StageCalling    Stage = "calling"
	StageCompleted  Stage = "completed"
)

// ToolResult is one entry in the append-only output log. IDs are stable per
// logical fact; re-emitting the same ID replaces the earlier entry.
type ToolResult struct {
	ID        string         `json:"id"`
	ToolName  string         `json:"toolName"`
	Title     string         `json:"title,omitempty"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// FollowUpAction is a deferred action queued by a capability for a later
// turn. A stale action is never executed.
type FollowUpAction struct {
	Name      string    `json:"name"`
	Stale     bool      `json:"stale,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	ActionWeather = "weather"
	ActionCatch   = "catch"
	ActionPlanner = "planner"
	ActionCall    = "call"

	FollowUpConfirmBusiness = "confirm_business"
	FollowUpCallStatus      = "check_call_status"
)

// PlanSnapshot holds the reservation fields collected so far.
type PlanSnapshot struct {
	PlanID        string `json:"plan_id"`
	Date          string `json:"date,omitempty"`
	Time          string `json:"time,omitempty"`
	Location      string `json:"location,omitempty"`
	Departure     string `json:"departure,omitempty"`
	Participants  int    `json:"participants,omitempty"`
	FishingType   string `json:"fishing_type,omitempty"`
	Budget        string `json:"budget,omitempty"`
	Gear          string `json:"gear,omitempty"`
	Transport     string `json:"transportation,omitempty"`
	TargetSpecies string `json:"target_species,omitempty"`

	CallSID    string `json:"call_sid,omitempty"`
	CallStatus string `json:"call_status,omitempty"`
}

const (
	FieldDate         = "date"
	FieldParticipants = "participants"
	FieldFishingType  = "fishing_type"
	FieldBudget       = "budget"
	FieldGear         = "gear"
	FieldTransport    = "transportation"
)

// RequiredPlanFields is the fixed required set, in ask-priority order.
var RequiredPlanFields = []string{
	FieldDate,
	FieldParticipants,
	FieldFishingType,
	FieldBudget,
	FieldGear,
	FieldTransport,
}

// FriendlyLabels maps field names to the wording used in replies.
var FriendlyLabels = map[string]string{
	FieldDate:         "trip date",
	FieldParticipants: "number of participants",
	FieldFishingType:  "fishing type",
	FieldBudget:       "budget",
	FieldGear:         "gear arrangement",
	FieldTransport:    "transportation",
}

func (p *PlanSnapshot) FieldValue(name string) (string, bool) {
	switch name {
	case FieldDate:
		return p.Date, p.Date != ""
	case FieldParticipants:
		if p.Participants > 0 {
			return "", true
		}
		return "", false
	case FieldFishingType:
		return p.FishingType, p.FishingType != ""
	case FieldBudget:
		return p.Budget, p.Budget != ""
	case FieldGear:
		return p.Gear, p.Gear != ""
	case FieldTransport:
		return p.Transport, p.Transport != ""
	default:
		return "", false
	}
}

// MissingFields returns required fields not yet collected, in priority order.
func (p *PlanSnapshot) MissingFields() []string {
	missing := make([]string, 0, len(RequiredPlanFields))
	for _, name := range RequiredPlanFields {
		if _, ok := p.FieldValue(name); !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

func (p *PlanSnapshot) Complete() bool {
	return len(p.MissingFields()) == 0
}

// CallPlaced reports whether an outbound call for this plan is already in
// flight or finished. Used as the idempotency guard for call placement.
func (p *PlanSnapshot) CallPlaced() bool {
	return p.CallSID != ""
}

var (
	ErrStateNotFound  = errors.New("conversation state not found")
	ErrNilState       = errors.New("conversation state is nil")
	ErrInvalidSession = errors.New("session id is empty")
)

// ConversationState is the per-session source of truth. It is mutated only
// inside pipeline stages and persisted between turns.
type ConversationState struct {
	SessionID string    `json:"session_id"`
	Messages  []Message `json:"messages,omitempty"`

	Plan    PlanSnapshot `json:"plan"`
	Stage   Stage        `json:"stage"`
	Missing []string     `json:"missing,omitempty"`

	ToolResults []ToolResult     `json:"tool_results,omitempty"`
	FollowUps   []FollowUpAction `json:"follow_ups,omitempty"`

	PreferredBusiness string         `json:"preferred_business,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

func NewConversationState(sessionID string, now time.Time) *ConversationState {
	return &ConversationState{
		SessionID: sessionID,
		Stage:     StageCollecting,
		Metadata:  make(map[string]any, 4),
		UpdatedAt: now.UTC(),
	}
}

func (s *ConversationState) Touch(now time.Time) {
	s.UpdatedAt = now.UTC()
}

func (s *ConversationState) AppendMessage(role ChatRole, content string, now time.Time) {
	s.Messages = append(s.Messages, Message{
		Role:      role,
		Content:   content,
		CreatedAt: now.UTC(),
	})
}

// SetMeta records an open metadata entry, initializing the map if needed.
func (s *ConversationState) SetMeta(key string, value any) {
	if s.Metadata == nil {
		s.Metadata = make(map[string]any, 4)
	}
	s.Metadata[key] = value
}

// UpsertToolResult replaces the entry with the same ID or appends a new one.
func (s *ConversationState) UpsertToolResult(tr ToolResult) {
	for i := range s.ToolResults {
		if s.ToolResults[i].ID == tr.ID {
			s.ToolResults[i] = tr
			return
		}
	}
	s.ToolResults = append(s.ToolResults, tr)
}

func (s *ConversationState) ToolResultByID(id string) (ToolResult, bool) {
	for i := range s.ToolResults {
		if s.ToolResults[i].ID == id {
			return s.ToolResults[i], true
		}
	}
	return ToolResult{}, false
}

// QueueFollowUp appends a pending action unless an identical live one exists.
func (s *ConversationState) QueueFollowUp(name string, now time.Time) {
	for i := range s.FollowUps {
		if s.FollowUps[i].Name == name && !s.FollowUps[i].Stale {
			return
		}
	}
	s.FollowUps = append(s.FollowUps, FollowUpAction{
		Name:      name,
		CreatedAt: now.UTC(),
	})
}

// MarkFollowUpsStale invalidates every pending follow-up. Called when an
// out-of-band outcome makes the queue moot.
func (s *ConversationState) MarkFollowUpsStale() {
	for i := range s.FollowUps {
		s.FollowUps[i].Stale = true
	}
}

// DrainFollowUps removes and returns the live follow-up names. Stale entries
// are dropped without being returned; each action is consumed at most once.
func (s *ConversationState) DrainFollowUps() []string {
	live := make([]string, 0, len(s.FollowUps))
	for i := range s.FollowUps {
		if !s.FollowUps[i].Stale {
			live = append(live, s.FollowUps[i].Name)
		}
	}
	s.FollowUps = nil
	return live
}

// RecomputeMissing rederives the missing list from the current plan. The
// list is never hand-appended anywhere else.
func (s *ConversationState) RecomputeMissing() {
	s.Missing = s.Plan.MissingFields()
}

func (s *ConversationState) Validate() error {
	if s == nil {
		return ErrNilState
	}
	if s.SessionID == "" {
		return ErrInvalidSession
	}
	return nil
}
