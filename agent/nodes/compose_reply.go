package pipelinenode

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	composerx "github.com/sjin4861/deepcatch-agent/agent/composer"
	contractx "github.com/sjin4861/deepcatch-agent/agent/contract"
	statex "github.com/sjin4861/deepcatch-agent/agent/state"
)

// ComposeReply produces the outbound message. The generative composer gets
// first shot; any failure degrades to the deterministic template.
func ComposeReply(
	ctx context.Context,
	in *GraphState,
	composer contractx.Composer,
	priorityOf func(string) int,
) (*GraphState, error) {
	if in == nil || in.State == nil {
		return nil, fmt.Errorf("%w: graph state is incomplete", contractx.ErrValidation)
	}

	callRequested := containsString(in.Actions, statex.ActionCall)
	plan := in.State.Plan

	in.NeedsBusiness = callRequested && plan.Complete() &&
		in.State.PreferredBusiness == "" && !plan.CallPlaced()
	in.CallSuggested = plan.Complete() && !plan.CallPlaced() && !callRequested

	consumeFollowUps(in)

	req := contractx.ComposeRequest{
		UserMessage:   in.Text,
		History:       in.State.Messages,
		Plan:          plan,
		Missing:       in.State.Missing,
		ToolResults:   in.PassResults(),
		CallSuggested: in.CallSuggested,
		NeedsBusiness: in.NeedsBusiness,
	}

	if composer != nil {
		reply, err := composer.Compose(ctx, req)
		if err == nil && strings.TrimSpace(reply) != "" {
			in.Reply = strings.TrimSpace(reply)
			return in, nil
		}
		log.Warn().Err(err).Str("session_id", in.SessionID).
			Msg("composer unavailable, using fallback template")
	}

	in.Reply = composerx.FallbackReply(req, priorityOf)
	return in, nil
}

// consumeFollowUps acts on the follow-ups that survived the pass: a pending
// business confirmation turns into the business question, a pending status
// check surfaces the call state as a tool result.
func consumeFollowUps(in *GraphState) {
	plan := in.State.Plan
	for _, name := range in.FollowUps {
		switch name {
		case statex.FollowUpConfirmBusiness:
			if plan.Complete() && in.State.PreferredBusiness == "" && !plan.CallPlaced() {
				in.NeedsBusiness = true
				in.CallSuggested = false
			}
		case statex.FollowUpCallStatus:
			if !plan.CallPlaced() {
				continue
			}
			status := plan.CallStatus
			if status == "" {
				status = "in_progress"
			}
			in.upsertPassResult(statex.ToolResult{
				ID:        "call-status",
				ToolName:  statex.ActionCall,
				Title:     "Reservation call status",
				Content:   fmt.Sprintf("The reservation call is %s.", strings.ReplaceAll(status, "_", " ")),
				Metadata:  map[string]any{"sid": plan.CallSID, "status": status},
				CreatedAt: in.Now,
			})
		default:
			log.Debug().Str("follow_up", name).Msg("unhandled follow-up drained")
		}
	}
	in.FollowUps = nil
}
