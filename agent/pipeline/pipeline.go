package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cloudwego/eino/compose"

	contractx "github.com/sjin4861/deepcatch-agent/agent/contract"
	eventsx "github.com/sjin4861/deepcatch-agent/agent/events"
	pipelinenode "github.com/sjin4861/deepcatch-agent/agent/nodes"
	statex "github.com/sjin4861/deepcatch-agent/agent/state"
	toolx "github.com/sjin4861/deepcatch-agent/agent/tool"
)

var (
	ErrInvalidMessage = pipelinenode.ErrInvalidMessage
	ErrInvalidSession = pipelinenode.ErrInvalidSession
)

// Pipeline runs the intake, execute, and compose stages for chat turns and
// reconciles out-of-band call events. Turns for the same session are
// serialized; different sessions run concurrently.
type Pipeline struct {
	store    statex.Store
	services contractx.Services
	registry *toolx.Registry
	composer contractx.Composer

	graphRunner compose.Runnable[pipelinenode.GraphInput, pipelinenode.GraphOutput]
	reconciler  *eventsx.Reconciler

	now func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New wires the pipeline. composer may be nil; every turn then uses the
// deterministic fallback template.
func New(
	store statex.Store,
	services contractx.Services,
	registry *toolx.Registry,
	composer contractx.Composer,
) (*Pipeline, error) {
	if store == nil {
		return nil, errors.New("state store is required")
	}
	if services == nil {
		return nil, errors.New("services facade is required")
	}
	if registry == nil {
		return nil, errors.New("capability registry is required")
	}

	p := &Pipeline{
		store:    store,
		services: services,
		registry: registry,
		composer: composer,
		now:      time.Now,
		locks:    make(map[string]*sync.Mutex),
	}
	p.reconciler = eventsx.NewReconciler(store, func() time.Time { return p.now() })

	graphRunner, err := p.compileHandleMessageGraph(context.Background())
	if err != nil {
		return nil, err
	}
	p.graphRunner = graphRunner

	return p, nil
}

// HandleMessage processes one inbound chat message and always produces a
// response when the input itself is valid.
func (p *Pipeline) HandleMessage(ctx context.Context, req contractx.ChatRequest) (contractx.ChatResponse, error) {
	lock := p.sessionLock(req.SessionID)
	lock.Lock()
	defer lock.Unlock()

	out, err := p.graphRunner.Invoke(ctx, pipelinenode.GraphInput{
		SessionID: req.SessionID,
		Text:      req.Message,
	})
	if err != nil {
		return contractx.ChatResponse{}, err
	}
	return out.Response, nil
}

// ReconcileCallEvent folds a telephony event into the session state, under
// the same per-session lock as chat turns.
func (p *Pipeline) ReconcileCallEvent(ctx context.Context, ev contractx.CallEvent) error {
	lock := p.sessionLock(ev.SessionID)
	lock.Lock()
	defer lock.Unlock()

	return p.reconciler.Apply(ctx, ev)
}

func (p *Pipeline) sessionLock(sessionID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()

	lock, ok := p.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[sessionID] = lock
	}
	return lock
}
