package composer

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"

	contractx "github.com/sjin4861/deepcatch-agent/agent/contract"
	statex "github.com/sjin4861/deepcatch-agent/agent/state"
)

//go:embed template/reply.txt
var replyPromptRaw string

const historyWindow = 8

// Generative composes replies with a chat model behind a structured-output
// graph. Callers are expected to fall back to FallbackReply on error.
type Generative struct {
	runner compose.Runnable[map[string]any, replyLLMOutput]
}

type replyLLMOutput struct {
	Message string `json:"message"`
}

func NewGenerative(ctx context.Context, chatModel einomodel.BaseChatModel) (*Generative, error) {
	runner, err := compileReplyGraph(ctx, chatModel, strings.TrimSpace(replyPromptRaw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrComposerUnavailable, err)
	}
	return &Generative{runner: runner}, nil
}

func (g *Generative) Compose(ctx context.Context, req contractx.ComposeRequest) (string, error) {
	payload := map[string]any{
		"user_message":   req.UserMessage,
		"history":        recentHistory(req.History, historyWindow),
		"plan":           req.Plan,
		"missing":        friendlyMissing(req.Missing),
		"tool_results":   summarizeResults(req.ToolResults),
		"call_suggested": req.CallSuggested,
		"needs_business": req.NeedsBusiness,
	}
	input, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%w: marshal compose payload: %v", contractx.ErrComposerUnavailable, err)
	}

	out, err := g.runner.Invoke(ctx, map[string]any{"input": string(input)})
	if err != nil {
		return "", fmt.Errorf("%w: %v", contractx.ErrComposerUnavailable, err)
	}

	message := strings.TrimSpace(out.Message)
	if message == "" {
		return "", fmt.Errorf("%w: model returned an empty message", contractx.ErrComposerUnavailable)
	}
	return message, nil
}

func recentHistory(history []statex.Message, limit int) []map[string]string {
	start := 0
	if len(history) > limit {
		start = len(history) - limit
	}
	out := make([]map[string]string, 0, len(history)-start)
	for _, msg := range history[start:] {
		out = append(out, map[string]string{
			"role":    string(msg.Role),
			"content": msg.Content,
		})
	}
	return out
}

func summarizeResults(results []statex.ToolResult) []map[string]any {
	out := make([]map[string]any, 0, len(results))
	for _, tr := range results {
		out = append(out, map[string]any{
			"tool":    tr.ToolName,
			"title":   tr.Title,
			"content": tr.Content,
		})
	}
	return out
}

func friendlyMissing(missing []string) []string {
	out := make([]string, 0, len(missing))
	for _, field := range missing {
		if label, ok := statex.FriendlyLabels[field]; ok {
			out = append(out, label)
			continue
		}
		out = append(out, field)
	}
	return out
}
