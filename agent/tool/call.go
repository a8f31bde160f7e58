package tool

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/sjin4861/deepcatch-agent/agent/contract"
	statex "github.com/sjin4861/deepcatch-agent/agent/state"
)

// CallCapability places the outbound reservation call. It only applies
// when the plan is complete, the user explicitly asked for a reservation
// call, and a business has been selected. The capability guards its own
// idempotency: one plan gets at most one outbound call.
type CallCapability struct{}

func NewCallCapability() *CallCapability { return &CallCapability{} }

func (c *CallCapability) Name() string  { return statex.ActionCall }
func (c *CallCapability) Priority() int { return 40 }

func (c *CallCapability) AppliesTo(rc contractx.RunContext) bool {
	return rc.ActionRequested(statex.ActionCall) &&
		rc.State.Plan.Complete() &&
		rc.State.PreferredBusiness != ""
}

func (c *CallCapability) Execute(ctx context.Context, rc contractx.RunContext) (contractx.Output, error) {
	var out contractx.Output
	plan := rc.State.Plan

	if plan.CallPlaced() {
		// Re-invocation for the same plan returns the existing identifier
		// instead of placing a second call.
		out.AddToolResult(newToolResult(
			callResultID(plan),
			c.Name(),
			"Reservation call",
			fmt.Sprintf("A call for this plan is already %s (sid %s).", callPhase(plan.CallStatus), plan.CallSID),
			map[string]any{"sid": plan.CallSID, "status": plan.CallStatus},
			rc.Now,
		))
		return out, nil
	}

	businesses, err := rc.Services.ListBusinesses(ctx, contractx.BusinessFilter{Name: rc.State.PreferredBusiness})
	if err != nil {
		log.Warn().Err(err).Str("capability", c.Name()).Msg("business lookup failed")
		out.AddToolResult(failedResult(c.Name(), err, rc.Now))
		return out, nil
	}
	if len(businesses) == 0 {
		out.AddToolResult(failedResult(c.Name(), contractx.ErrNoBusiness, rc.Now))
		return out, nil
	}
	business := businesses[0]

	sid, err := rc.Services.StartCall(ctx, plan, business)
	if err != nil {
		log.Warn().Err(err).Str("business", business.Name).Msg("call placement failed")
		out.AddToolResult(failedResult(c.Name(), err, rc.Now))
		return out, nil
	}

	out.AddUpdate(statex.UpdatePlanCallSID, sid)
	out.AddUpdate(statex.UpdatePlanCallStatus, "initiated")
	out.AddUpdate(statex.UpdateStage, statex.StageCalling)

	plan.CallSID = sid
	plan.CallStatus = "initiated"
	if err := rc.Services.SavePlan(ctx, rc.State.SessionID, plan); err != nil {
		log.Warn().Err(err).Str("session_id", rc.State.SessionID).Msg("plan snapshot persist failed")
	}

	out.AddToolResult(newToolResult(
		callResultID(plan),
		c.Name(),
		"Reservation call",
		fmt.Sprintf("Calling %s (%s) to book the trip. Status: initiated.", business.Name, business.Phone),
		map[string]any{
			"sid":      sid,
			"status":   "initiated",
			"business": business.Name,
			"phone":    business.Phone,
		},
		rc.Now,
	))
	out.AddFollowUp(statex.FollowUpCallStatus)
	return out, nil
}

func callResultID(plan statex.PlanSnapshot) string {
	if plan.PlanID != "" {
		return "call-" + plan.PlanID
	}
	return "call-result"
}

func callPhase(status string) string {
	if status == "" {
		return "in flight"
	}
	return status
}
