package pipeline

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	pipelinenode "github.com/sjin4861/deepcatch-agent/agent/nodes"
)

func (p *Pipeline) compileHandleMessageGraph(
	ctx context.Context,
) (compose.Runnable[pipelinenode.GraphInput, pipelinenode.GraphOutput], error) {
	graph := compose.NewGraph[pipelinenode.GraphInput, pipelinenode.GraphOutput]()

	if err := graph.AddLambdaNode("validate_request",
		compose.InvokableLambda(func(ctx context.Context, in pipelinenode.GraphInput) (*pipelinenode.GraphState, error) {
			return pipelinenode.ValidateRequest(in, p.now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_request: %w", err)
	}

	if err := graph.AddLambdaNode("intake",
		compose.InvokableLambda(func(ctx context.Context, in *pipelinenode.GraphState) (*pipelinenode.GraphState, error) {
			return pipelinenode.Intake(ctx, in, p.store, p.services)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node intake: %w", err)
	}

	if err := graph.AddLambdaNode("run_capabilities",
		compose.InvokableLambda(func(ctx context.Context, in *pipelinenode.GraphState) (*pipelinenode.GraphState, error) {
			return pipelinenode.RunCapabilities(ctx, in, p.registry, p.services)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node run_capabilities: %w", err)
	}

	if err := graph.AddLambdaNode("compose_reply",
		compose.InvokableLambda(func(ctx context.Context, in *pipelinenode.GraphState) (*pipelinenode.GraphState, error) {
			return pipelinenode.ComposeReply(ctx, in, p.composer, p.registry.PriorityOf)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node compose_reply: %w", err)
	}

	if err := graph.AddLambdaNode("persist_state",
		compose.InvokableLambda(func(ctx context.Context, in *pipelinenode.GraphState) (pipelinenode.GraphOutput, error) {
			return pipelinenode.PersistState(ctx, in, p.store)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node persist_state: %w", err)
	}

	edges := [][2]string{
		{compose.START, "validate_request"},
		{"validate_request", "intake"},
		{"intake", "run_capabilities"},
		{"run_capabilities", "compose_reply"},
		{"compose_reply", "persist_state"},
		{"persist_state", compose.END},
	}

	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("pipeline.handle_message"))
	if err != nil {
		return nil, fmt.Errorf("compile pipeline graph: %w", err)
	}
	return runner, nil
}
