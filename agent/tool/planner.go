package tool

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/sjin4861/deepcatch-agent/agent/contract"
	"github.com/sjin4861/deepcatch-agent/agent/extract"
	statex "github.com/sjin4861/deepcatch-agent/agent/state"
)

// PlannerCapability extracts reservation fields from the inbound message
// and persists the updated snapshot. It runs whenever the plan is
// incomplete or the message carries plan-relevant terms.
type PlannerCapability struct {
	extractor extract.Extractor
}

func NewPlannerCapability(extractor extract.Extractor) *PlannerCapability {
	if extractor == nil {
		extractor = extract.NewHeuristicExtractor()
	}
	return &PlannerCapability{extractor: extractor}
}

func (p *PlannerCapability) Name() string  { return statex.ActionPlanner }
func (p *PlannerCapability) Priority() int { return 30 }

func (p *PlannerCapability) AppliesTo(rc contractx.RunContext) bool {
	return rc.ActionRequested(statex.ActionPlanner) || len(rc.State.Missing) > 0
}

func (p *PlannerCapability) Execute(ctx context.Context, rc contractx.RunContext) (contractx.Output, error) {
	var out contractx.Output

	message := lastUserMessage(rc.State)
	res, err := p.extractor.Extract(ctx, message, rc.State.Plan)
	if err != nil {
		log.Warn().Err(err).Str("capability", p.Name()).Msg("slot extraction failed")
		out.AddToolResult(failedResult(p.Name(), err, rc.Now))
		return out, nil
	}

	for key, value := range res.Updates {
		out.AddUpdate(key, value)
	}

	// Prospective snapshot after this pass's writes, used for stage and
	// persistence decisions.
	scratch := statex.ConversationState{Plan: rc.State.Plan}
	for key, value := range res.Updates {
		scratch.ApplyUpdate(key, value)
	}
	prospective := scratch.Plan

	if rc.State.Stage == statex.StageCollecting || rc.State.Stage == statex.StageReady {
		if prospective.Complete() {
			out.AddUpdate(statex.UpdateStage, statex.StageReady)
		} else {
			out.AddUpdate(statex.UpdateStage, statex.StageCollecting)
		}
	}

	if err := rc.Services.SavePlan(ctx, rc.State.SessionID, prospective); err != nil {
		log.Warn().Err(err).Str("session_id", rc.State.SessionID).Msg("plan snapshot persist failed")
	}

	out.AddToolResult(newToolResult(
		"plan-update",
		p.Name(),
		"Fishing plan update",
		strings.Join(res.Summary, "\n"),
		map[string]any{
			"plan":    prospective,
			"missing": prospective.MissingFields(),
		},
		rc.Now,
	))

	if prospective.Complete() && rc.State.PreferredBusiness == "" && !prospective.CallPlaced() {
		out.AddFollowUp(statex.FollowUpConfirmBusiness)
	}
	return out, nil
}

func lastUserMessage(st *statex.ConversationState) string {
	for i := len(st.Messages) - 1; i >= 0; i-- {
		if st.Messages[i].Role == statex.RoleUser {
			return st.Messages[i].Content
		}
	}
	return ""
}
