package state

// Update keys capabilities may write. Plan-field keys merge at field level
// so that same-field writes are last-writer-wins in execution order.
const (
	UpdatePlanDate          = "plan.date"
	UpdatePlanTime          = "plan.time"
	UpdatePlanLocation      = "plan.location"
	UpdatePlanDeparture     = "plan.departure"
	UpdatePlanParticipants  = "plan.participants"
	UpdatePlanFishingType   = "plan.fishing_type"
	UpdatePlanBudget        = "plan.budget"
	UpdatePlanGear          = "plan.gear"
	UpdatePlanTransport     = "plan.transportation"
	UpdatePlanTargetSpecies = "plan.target_species"
	UpdatePlanCallSID       = "plan.call_sid"
	UpdatePlanCallStatus    = "plan.call_status"

	UpdateStage             = "stage"
	UpdatePreferredBusiness = "preferred_business"
)

// ApplyUpdate merges one keyed update into the state. Unknown keys land in
// the open metadata map for forward compatibility. Returns true when the
// key targeted a structured field.
func (s *ConversationState) ApplyUpdate(key string, value any) bool {
	switch key {
	case UpdatePlanDate:
		s.Plan.Date = asString(value)
	case UpdatePlanTime:
		s.Plan.Time = asString(value)
	case UpdatePlanLocation:
		s.Plan.Location = asString(value)
	case UpdatePlanDeparture:
		s.Plan.Departure = asString(value)
	case UpdatePlanParticipants:
		s.Plan.Participants = asInt(value)
	case UpdatePlanFishingType:
		s.Plan.FishingType = asString(value)
	case UpdatePlanBudget:
		s.Plan.Budget = asString(value)
	case UpdatePlanGear:
		s.Plan.Gear = asString(value)
	case UpdatePlanTransport:
		s.Plan.Transport = asString(value)
	case UpdatePlanTargetSpecies:
		s.Plan.TargetSpecies = asString(value)
	case UpdatePlanCallSID:
		s.Plan.CallSID = asString(value)
	case UpdatePlanCallStatus:
		s.Plan.CallStatus = asString(value)
	case UpdateStage:
		s.Stage = Stage(asString(value))
	case UpdatePreferredBusiness:
		s.PreferredBusiness = asString(value)
	default:
		s.SetMeta(key, value)
		return false
	}
	return true
}

func asString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case Stage:
		return string(v)
	default:
		return ""
	}
}

func asInt(value any) int {
	switch v := value.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
