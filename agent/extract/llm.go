package extract

import (
	"context"
	"encoding/json"
	"strings"

	openaisdk "github.com/openai/openai-go"
	"github.com/rs/zerolog/log"

	statex "github.com/sjin4861/deepcatch-agent/agent/state"
)

const extractSystemPrompt = `You are a terse planning assistant for a fishing trip chatbot.
You receive JSON with the latest user message, the current structured plan,
and the list of required fields still missing. Respond with exact JSON:
{"plan_updates": {"date": "...", "participants": 3, "fishing_type": "...",
"budget": "...", "gear": "...", "transportation": "...", "target_species": "..."},
"summary": ["..."]}
Only include keys the message actually provides. "participants" is an
integer. No prose outside the JSON object.`

type llmPayload struct {
	PlanUpdates map[string]any `json:"plan_updates"`
	Summary     []string       `json:"summary"`
}

// LLMExtractor asks the model for structured plan updates and falls back
// to the rule-based extractor on any model failure.
type LLMExtractor struct {
	client   *openaisdk.Client
	model    string
	fallback *HeuristicExtractor
}

func NewLLMExtractor(client *openaisdk.Client, model string) *LLMExtractor {
	return &LLMExtractor{
		client:   client,
		model:    strings.TrimSpace(model),
		fallback: NewHeuristicExtractor(),
	}
}

func (e *LLMExtractor) Extract(ctx context.Context, message string, plan statex.PlanSnapshot) (Result, error) {
	if e.client == nil || e.model == "" {
		return e.fallback.Extract(ctx, message, plan)
	}

	payload, err := json.Marshal(map[string]any{
		"latest_message":  message,
		"current_plan":    plan,
		"required_fields": plan.MissingFields(),
	})
	if err != nil {
		return e.fallback.Extract(ctx, message, plan)
	}

	completion, err := e.client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model: openaisdk.ChatModel(e.model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(extractSystemPrompt),
			openaisdk.UserMessage(string(payload)),
		},
	})
	if err != nil {
		log.Warn().Err(err).Msg("slot extraction model call failed, using heuristics")
		return e.fallback.Extract(ctx, message, plan)
	}
	if len(completion.Choices) == 0 {
		return e.fallback.Extract(ctx, message, plan)
	}

	var parsed llmPayload
	content := stripJSONFences(completion.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		log.Warn().Err(err).Msg("slot extraction output was not valid JSON, using heuristics")
		return e.fallback.Extract(ctx, message, plan)
	}

	var res Result
	for field, value := range parsed.PlanUpdates {
		key, ok := planUpdateKey(field)
		if !ok {
			continue
		}
		res.add(key, value)
		applyToSnapshot(&plan, key, value)
	}
	applyGearDefault(&res, plan)

	res.Summary = parsed.Summary
	if len(res.Summary) == 0 {
		res.Summary = summarize(plan, res.DefaultsApplied)
	}
	return res, nil
}

func planUpdateKey(field string) (string, bool) {
	switch field {
	case statex.FieldDate:
		return statex.UpdatePlanDate, true
	case statex.FieldParticipants:
		return statex.UpdatePlanParticipants, true
	case statex.FieldFishingType:
		return statex.UpdatePlanFishingType, true
	case statex.FieldBudget:
		return statex.UpdatePlanBudget, true
	case statex.FieldGear:
		return statex.UpdatePlanGear, true
	case statex.FieldTransport:
		return statex.UpdatePlanTransport, true
	case "target_species":
		return statex.UpdatePlanTargetSpecies, true
	case "time":
		return statex.UpdatePlanTime, true
	case "departure":
		return statex.UpdatePlanDeparture, true
	case "location":
		return statex.UpdatePlanLocation, true
	default:
		return "", false
	}
}

func applyToSnapshot(plan *statex.PlanSnapshot, key string, value any) {
	switch key {
	case statex.UpdatePlanParticipants:
		switch v := value.(type) {
		case float64:
			plan.Participants = int(v)
		case int:
			plan.Participants = v
		}
	case statex.UpdatePlanDate:
		plan.Date, _ = value.(string)
	case statex.UpdatePlanFishingType:
		plan.FishingType, _ = value.(string)
	case statex.UpdatePlanBudget:
		plan.Budget, _ = value.(string)
	case statex.UpdatePlanGear:
		plan.Gear, _ = value.(string)
	case statex.UpdatePlanTransport:
		plan.Transport, _ = value.(string)
	case statex.UpdatePlanTargetSpecies:
		plan.TargetSpecies, _ = value.(string)
	}
}

func stripJSONFences(content string) string {
	trimmed := strings.TrimSpace(content)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}
