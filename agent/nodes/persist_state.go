package pipelinenode

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/sjin4861/deepcatch-agent/agent/contract"
	statex "github.com/sjin4861/deepcatch-agent/agent/state"
)

// PersistState saves the mutated session state and builds the response.
// Persistence is best-effort: a save failure is recorded and retried on
// the next turn, never propagated.
func PersistState(
	ctx context.Context,
	in *GraphState,
	store statex.Store,
) (GraphOutput, error) {
	if in == nil || in.State == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state is incomplete", contractx.ErrValidation)
	}

	in.State.AppendMessage(statex.RoleAssistant, in.Reply, in.Now)
	in.State.Touch(in.Now)

	if err := store.Save(ctx, in.State); err != nil {
		log.Error().Err(err).Str("session_id", in.SessionID).
			Msg("state persist failed, session continues in memory")
		in.State.SetMeta("persistence_degraded", true)
	} else if in.State.Metadata != nil {
		delete(in.State.Metadata, "persistence_degraded")
	}

	return GraphOutput{
		Response: contractx.ChatResponse{
			Message:       in.Reply,
			ToolResults:   in.PassResults(),
			CallSuggested: in.CallSuggested,
		},
	}, nil
}
