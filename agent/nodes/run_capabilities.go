package pipelinenode

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/sjin4861/deepcatch-agent/agent/contract"
	statex "github.com/sjin4861/deepcatch-agent/agent/state"
	toolx "github.com/sjin4861/deepcatch-agent/agent/tool"
)

// RunCapabilities executes the ordered applicable capabilities and merges
// their effects into the session state. A capability failure becomes a
// failed tool result; the pass always continues.
func RunCapabilities(
	ctx context.Context,
	in *GraphState,
	registry *toolx.Registry,
	services contractx.Services,
) (*GraphState, error) {
	if in == nil || in.State == nil {
		return nil, fmt.Errorf("%w: graph state is incomplete", contractx.ErrValidation)
	}

	written := make(map[string]string, 8)
	planChanged := false

	for _, capability := range registry.OrderFor(in.Actions) {
		rc := contractx.RunContext{
			State:    in.State,
			Services: services,
			Actions:  in.Actions,
			Now:      in.Now,
		}
		if !capability.AppliesTo(rc) {
			continue
		}

		out, err := safeExecute(ctx, capability, rc)
		if err != nil {
			log.Error().Err(err).Str("capability", capability.Name()).
				Msg("capability execution failed")
			in.upsertPassResult(executionFailureResult(capability.Name(), err, in.Now))
			continue
		}

		// Deterministic merge: sorted keys, last writer wins across
		// capabilities in execution order.
		keys := make([]string, 0, len(out.Updates))
		for key := range out.Updates {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if prev, conflict := written[key]; conflict {
				log.Warn().Str("field", key).Str("first_writer", prev).
					Str("overwritten_by", capability.Name()).
					Msg("same-field write conflict within pass")
			}
			if in.State.ApplyUpdate(key, out.Updates[key]) && strings.HasPrefix(key, "plan.") {
				planChanged = true
			}
			written[key] = capability.Name()
		}

		for _, tr := range out.ToolResults {
			in.upsertPassResult(tr)
		}
		for _, name := range out.FollowUps {
			in.State.QueueFollowUp(name, in.Now)
		}
	}

	// Follow-ups drained at intake were queued against the previous plan.
	// Once this pass changes a plan field they are superseded and dropped,
	// never executed.
	if planChanged && len(in.FollowUps) > 0 {
		log.Debug().Strs("follow_ups", in.FollowUps).
			Msg("dropping follow-ups superseded by new plan input")
		in.FollowUps = nil
	}

	in.State.RecomputeMissing()
	return in, nil
}

func safeExecute(
	ctx context.Context,
	capability contractx.Capability,
	rc contractx.RunContext,
) (out contractx.Output, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s panicked: %v", contractx.ErrCapabilityExecution, capability.Name(), r)
		}
	}()

	out, err = capability.Execute(ctx, rc)
	if err != nil {
		err = fmt.Errorf("%w: %s: %v", contractx.ErrCapabilityExecution, capability.Name(), err)
	}
	return out, err
}

func executionFailureResult(name string, err error, now time.Time) statex.ToolResult {
	return statex.ToolResult{
		ID:        name + "-error",
		ToolName:  name,
		Title:     "Capability failed",
		Content:   fmt.Sprintf("%s could not run right now: %v", name, err),
		Metadata:  map[string]any{"error": true},
		CreatedAt: now.UTC(),
	}
}

func (gs *GraphState) upsertPassResult(tr statex.ToolResult) {
	gs.State.UpsertToolResult(tr)
	for _, id := range gs.PassResultIDs {
		if id == tr.ID {
			return
		}
	}
	gs.PassResultIDs = append(gs.PassResultIDs, tr.ID)
}

// PassResults resolves this pass's upserted entries from the output log,
// in emission order.
func (gs *GraphState) PassResults() []statex.ToolResult {
	results := make([]statex.ToolResult, 0, len(gs.PassResultIDs))
	for _, id := range gs.PassResultIDs {
		if tr, ok := gs.State.ToolResultByID(id); ok {
			results = append(results, tr)
		}
	}
	return results
}
