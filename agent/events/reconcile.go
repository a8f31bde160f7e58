package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	contractx "github.com/sjin4861/deepcatch-agent/agent/contract"
	statex "github.com/sjin4861/deepcatch-agent/agent/state"
)

// Reconciler folds out-of-band call events from the telephony subsystem
// back into the session state, so the next conversational turn sees the
// call's progress.
type Reconciler struct {
	store statex.Store
	now   func() time.Time
}

func NewReconciler(store statex.Store, now func() time.Time) *Reconciler {
	if now == nil {
		now = time.Now
	}
	return &Reconciler{store: store, now: now}
}

// Apply loads the session, folds the event in, and saves. Unlike the chat
// path, an unknown session here is an error: there is no user to degrade
// gracefully for.
func (r *Reconciler) Apply(ctx context.Context, ev contractx.CallEvent) error {
	sessionID := strings.TrimSpace(ev.SessionID)
	if sessionID == "" {
		return fmt.Errorf("%w: call event has no session id", contractx.ErrValidation)
	}

	st, err := r.store.Load(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load session for call event: %w", err)
	}

	now := r.now().UTC()
	if !ev.OccurredAt.IsZero() {
		now = ev.OccurredAt.UTC()
	}

	switch ev.Type {
	case contractx.CallEventStarted:
		st.ApplyUpdate(statex.UpdatePlanCallStatus, "in_progress")
		st.ApplyUpdate(statex.UpdateStage, statex.StageCalling)
	case contractx.CallEventStatusChanged:
		if ev.Status != "" {
			st.ApplyUpdate(statex.UpdatePlanCallStatus, ev.Status)
		}
	case contractx.CallEventTranscript:
		appendTranscript(st, ev.Transcript, now)
	case contractx.CallEventSlots:
		for key, value := range ev.Slots {
			st.ApplyUpdate(key, value)
		}
	case contractx.CallEventCompleted:
		st.ApplyUpdate(statex.UpdatePlanCallStatus, "completed")
		st.ApplyUpdate(statex.UpdateStage, statex.StageCompleted)
		// The outcome is in; any queued status check is moot.
		st.MarkFollowUpsStale()
		st.UpsertToolResult(statex.ToolResult{
			ID:        "call-outcome",
			ToolName:  statex.ActionCall,
			Title:     "Reservation call finished",
			Content:   completionContent(ev),
			CreatedAt: now,
		})
	case contractx.CallEventFailed:
		st.ApplyUpdate(statex.UpdatePlanCallStatus, "failed")
		st.ApplyUpdate(statex.UpdateStage, statex.StageReady)
		st.MarkFollowUpsStale()
		st.UpsertToolResult(statex.ToolResult{
			ID:        "call-outcome",
			ToolName:  statex.ActionCall,
			Title:     "Reservation call failed",
			Content:   failureContent(ev),
			Metadata:  map[string]any{"error": true},
			CreatedAt: now,
		})
	default:
		return fmt.Errorf("%w: unknown call event type %q", contractx.ErrValidation, ev.Type)
	}

	st.RecomputeMissing()
	st.Touch(now)
	if err := r.store.Save(ctx, st); err != nil {
		return fmt.Errorf("%w: save after call event: %v", contractx.ErrStatePersistence, err)
	}
	return nil
}

func appendTranscript(st *statex.ConversationState, line string, now time.Time) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	content := line
	if prev, ok := st.ToolResultByID("call-transcript"); ok && prev.Content != "" {
		content = prev.Content + "\n" + line
	}
	st.UpsertToolResult(statex.ToolResult{
		ID:        "call-transcript",
		ToolName:  statex.ActionCall,
		Title:     "Call transcript",
		Content:   content,
		CreatedAt: now,
	})
}

func completionContent(ev contractx.CallEvent) string {
	if ev.Status != "" {
		return fmt.Sprintf("The reservation call finished: %s.", ev.Status)
	}
	return "The reservation call finished."
}

func failureContent(ev contractx.CallEvent) string {
	if ev.Error != "" {
		return fmt.Sprintf("The reservation call could not be completed: %s.", ev.Error)
	}
	return "The reservation call could not be completed."
}
