package composer

import (
	"fmt"
	"strings"

	contractx "github.com/sjin4861/deepcatch-agent/agent/contract"
	statex "github.com/sjin4861/deepcatch-agent/agent/state"
)

// FallbackReply renders a deterministic reply from the turn's accumulated
// outputs when the generative composer is unavailable. priorityOf resolves
// a tool name to its registry priority; lower wins the lead sentence.
func FallbackReply(req contractx.ComposeRequest, priorityOf func(string) int) string {
	if req.NeedsBusiness {
		return "Your trip plan is all set. Which business would you like me to call for the reservation?"
	}

	var parts []string
	if lead := leadSentence(req.ToolResults, priorityOf); lead != "" {
		parts = append(parts, lead)
	}

	if len(req.Missing) > 0 {
		parts = append(parts, fmt.Sprintf(
			"To finish your trip plan, I still need: %s.",
			strings.Join(friendlyMissing(req.Missing), ", "),
		))
	} else if summary := planSummary(req.Plan); summary != "" {
		parts = append(parts, summary)
		if req.CallSuggested {
			parts = append(parts, "Want me to call the business and book it?")
		}
	}

	if len(parts) == 0 {
		return "I can help you plan a fishing trip. When would you like to go, and how many people are coming?"
	}
	return strings.Join(parts, " ")
}

// leadSentence picks the highest-priority successful tool result of the
// pass; a failed result is used only when nothing succeeded.
func leadSentence(results []statex.ToolResult, priorityOf func(string) int) string {
	best := pickResult(results, priorityOf, false)
	if best == nil {
		best = pickResult(results, priorityOf, true)
	}
	if best == nil {
		return ""
	}
	return strings.TrimSpace(best.Content)
}

func pickResult(results []statex.ToolResult, priorityOf func(string) int, includeFailed bool) *statex.ToolResult {
	var best *statex.ToolResult
	bestPriority := 0
	for i := range results {
		tr := &results[i]
		if isFailedResult(*tr) != includeFailed {
			continue
		}
		p := priorityOf(tr.ToolName)
		if best == nil || p < bestPriority {
			best = tr
			bestPriority = p
		}
	}
	return best
}

func isFailedResult(tr statex.ToolResult) bool {
	if tr.Metadata == nil {
		return false
	}
	failed, ok := tr.Metadata["error"].(bool)
	return ok && failed
}

func planSummary(plan statex.PlanSnapshot) string {
	if !plan.Complete() {
		return ""
	}
	summary := fmt.Sprintf(
		"Your trip is set: %s, %d people, %s, budget %s, gear %s, getting there by %s.",
		plan.Date, plan.Participants, plan.FishingType, plan.Budget, plan.Gear, plan.Transport,
	)
	if plan.TargetSpecies != "" {
		summary += fmt.Sprintf(" Target species: %s.", plan.TargetSpecies)
	}
	return summary
}
