package pipelinenode

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/sjin4861/deepcatch-agent/agent/contract"
	statex "github.com/sjin4861/deepcatch-agent/agent/state"
	toolx "github.com/sjin4861/deepcatch-agent/agent/tool"
)

var (
	ErrInvalidMessage = errors.New("message is empty")
	ErrInvalidSession = errors.New("session id is empty")
)

type GraphInput struct {
	SessionID string
	Text      string
}

type GraphOutput struct {
	Response contractx.ChatResponse
}

// GraphState is threaded through the pipeline stages for one pass.
type GraphState struct {
	SessionID string
	Text      string
	Now       time.Time

	State   *statex.ConversationState
	Actions []string

	// FollowUps holds the names drained from the session queue this pass.
	// They are discarded when extraction changes a plan field, otherwise
	// consumed by the compose stage.
	FollowUps []string

	// PassResultIDs tracks tool results upserted during this pass, in
	// emission order.
	PassResultIDs []string

	Reply         string
	CallSuggested bool
	NeedsBusiness bool
}

func ValidateRequest(in GraphInput, nowFn func() time.Time) (*GraphState, error) {
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		return nil, ErrInvalidSession
	}

	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, ErrInvalidMessage
	}

	return &GraphState{
		SessionID: sessionID,
		Text:      text,
		Now:       nowFn().UTC(),
	}, nil
}

// Intake loads or creates the session state, appends the inbound message,
// drains the queued follow-ups, and derives the requested actions. Storage
// failures never surface: the pass continues on an ephemeral state flagged
// as degraded.
func Intake(
	ctx context.Context,
	in *GraphState,
	store statex.Store,
	services contractx.Services,
) (*GraphState, error) {
	if in == nil {
		return nil, contractx.ErrValidation
	}

	st, err := store.Load(ctx, in.SessionID)
	if err != nil {
		if !errors.Is(err, statex.ErrStateNotFound) {
			log.Error().Err(err).Str("session_id", in.SessionID).
				Msg("state load failed, continuing with ephemeral state")
		}
		st = statex.NewConversationState(in.SessionID, in.Now)
		if !errors.Is(err, statex.ErrStateNotFound) {
			st.SetMeta("persistence_degraded", true)
		}
	}

	st.AppendMessage(statex.RoleUser, in.Text, in.Now)

	// Rederive before action derivation: a freshly created state has no
	// missing list yet, and a stale one would hide the planner this pass.
	st.RecomputeMissing()

	// Each queued follow-up is consumed at most once. Whether it actually
	// runs is decided after extraction: a pass that changes a plan field
	// supersedes the queue.
	in.FollowUps = st.DrainFollowUps()

	actions := toolx.DeriveActions(in.Text, st.Missing)

	if businesses, berr := services.ListBusinesses(ctx, contractx.BusinessFilter{}); berr == nil {
		names := make([]string, 0, len(businesses))
		for _, b := range businesses {
			names = append(names, b.Name)
		}
		if preferred := toolx.DetectBusiness(in.Text, names); preferred != "" {
			st.PreferredBusiness = preferred
		}
	} else {
		log.Debug().Err(berr).Msg("business directory unavailable at intake")
	}

	in.State = st
	in.Actions = actions
	return in, nil
}

func containsString(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
