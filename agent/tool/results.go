package tool

import (
	"fmt"
	"time"

	statex "github.com/sjin4861/deepcatch-agent/agent/state"
)

// newToolResult builds a result with a stable identifier. IDs are stable
// per logical fact so re-emission upserts instead of duplicating.
func newToolResult(id, toolName, title, content string, metadata map[string]any, now time.Time) statex.ToolResult {
	return statex.ToolResult{
		ID:        id,
		ToolName:  toolName,
		Title:     title,
		Content:   content,
		Metadata:  metadata,
		CreatedAt: now.UTC(),
	}
}

// failedResult records a capability or lookup failure as data. No error
// escapes a capability's Execute for external faults.
func failedResult(toolName string, err error, now time.Time) statex.ToolResult {
	return statex.ToolResult{
		ID:        toolName + "-error",
		ToolName:  toolName,
		Title:     "Lookup failed",
		Content:   fmt.Sprintf("could not check %s right now: %v", toolName, err),
		Metadata:  map[string]any{"error": true},
		CreatedAt: now.UTC(),
	}
}
