package mcpservice

import (
	"context"
	"errors"

	"github.com/netra-systems/zen-sub153/platform"
)

// Built-in tool categories.
const (
	CategoryAgents       = "agents"
	CategoryOptimization = "optimization"
	CategoryCorpus       = "corpus"
	CategorySynthetic    = "synthetic-data"
	CategoryThreads      = "threads"
	CategorySupply       = "supply"
)

type runAgentArgs struct {
	Input    string         `json:"input" jsonschema:"description=Request text handed to the agent"`
	Agent    string         `json:"agent,omitempty" jsonschema:"description=Agent name; defaults to supervisor"`
	ThreadID string         `json:"thread_id,omitempty" jsonschema:"description=Thread to append the exchange to"`
	Config   map[string]any `json:"config,omitempty"`
}

type agentStatusArgs struct {
	RunID string `json:"run_id" jsonschema:"description=Run identifier returned by run_agent"`
}

type noArgs struct{}

type analyzeWorkloadArgs struct {
	WorkloadData map[string]any `json:"workload_data"`
	Metrics      []string       `json:"metrics,omitempty" jsonschema:"description=Metrics to focus on such as cost or latency"`
}

type optimizePromptArgs struct {
	Prompt string `json:"prompt"`
	Target string `json:"target,omitempty" jsonschema:"enum=cost,enum=latency,enum=quality"`
}

type queryCorpusArgs struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty" jsonschema:"minimum=1,maximum=100"`
}

type syntheticDataArgs struct {
	Schema       map[string]any `json:"schema,omitempty"`
	Count        int            `json:"count,omitempty" jsonschema:"minimum=1,maximum=1000"`
	WorkloadType string         `json:"workload_type,omitempty"`
}

type createThreadArgs struct {
	Title    string         `json:"title,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type threadHistoryArgs struct {
	ThreadID string `json:"thread_id"`
	Limit    int    `json:"limit,omitempty" jsonschema:"minimum=1"`
}

type supplyCatalogArgs struct {
	Provider   string `json:"provider,omitempty"`
	Capability string `json:"capability,omitempty"`
}

type pipelineArgs struct {
	InputData        map[string]any `json:"input_data"`
	OptimizationGoal string         `json:"optimization_goal"`
	Steps            []string       `json:"steps,omitempty"`
}

// BuiltinTools returns the shipped tool set backed by svc.
func BuiltinTools(svc *platform.Services) []Tool {
	return []Tool{
		NewTool("run_agent", func(ctx context.Context, sessionID string, a runAgentArgs) (any, error) {
			return svc.Agents.RunAgent(ctx, platform.AgentRunRequest{
				Agent:     a.Agent,
				Input:     a.Input,
				ThreadID:  a.ThreadID,
				Config:    a.Config,
				SessionID: sessionID,
			})
		},
			WithToolDescription("Run a Netra agent against an input"),
			WithToolCategory(CategoryAgents),
			WithToolAsync(),
		),
		NewTool("get_agent_status", func(ctx context.Context, _ string, a agentStatusArgs) (any, error) {
			return svc.Agents.RunStatus(ctx, a.RunID)
		},
			WithToolDescription("Get the status of an agent run"),
			WithToolCategory(CategoryAgents),
		),
		NewTool("list_agents", func(ctx context.Context, _ string, _ noArgs) (any, error) {
			agents, err := svc.Agents.ListAgents(ctx)
			if err != nil {
				return nil, err
			}
			return map[string]any{"agents": agents}, nil
		},
			WithToolDescription("List the available agents"),
			WithToolCategory(CategoryAgents),
		),
		NewTool("analyze_workload", func(ctx context.Context, _ string, a analyzeWorkloadArgs) (any, error) {
			return svc.Optimization.AnalyzeWorkload(ctx, platform.WorkloadAnalysisRequest{WorkloadData: a.WorkloadData, Metrics: a.Metrics})
		},
			WithToolDescription("Analyze an AI workload and recommend optimizations"),
			WithToolCategory(CategoryOptimization),
		),
		NewTool("optimize_prompt", func(ctx context.Context, _ string, a optimizePromptArgs) (any, error) {
			return svc.Optimization.OptimizePrompt(ctx, a.Prompt, a.Target)
		},
			WithToolDescription("Optimize a prompt for cost, latency or quality"),
			WithToolCategory(CategoryOptimization),
		),
		NewTool("query_corpus", func(ctx context.Context, _ string, a queryCorpusArgs) (any, error) {
			limit := a.Limit
			if limit == 0 {
				limit = 10
			}
			docs, err := svc.Corpus.Search(ctx, a.Query, limit)
			if err != nil {
				return nil, err
			}
			return map[string]any{"query": a.Query, "results": docs}, nil
		},
			WithToolDescription("Search the document corpus"),
			WithToolCategory(CategoryCorpus),
		),
		NewTool("generate_synthetic_data", func(ctx context.Context, _ string, a syntheticDataArgs) (any, error) {
			return svc.SyntheticData.Generate(ctx, platform.SyntheticDataRequest{Schema: a.Schema, Count: a.Count, WorkloadType: a.WorkloadType})
		},
			WithToolDescription("Generate a synthetic dataset"),
			WithToolCategory(CategorySynthetic),
			WithToolAsync(),
		),
		NewTool("create_thread", func(ctx context.Context, sessionID string, a createThreadArgs) (any, error) {
			return svc.Threads.CreateThread(ctx, sessionID, a.Title, a.Metadata)
		},
			WithToolDescription("Create a conversation thread"),
			WithToolCategory(CategoryThreads),
			WithToolAuth(),
		),
		NewTool("get_thread_history", func(ctx context.Context, _ string, a threadHistoryArgs) (any, error) {
			msgs, err := svc.Threads.ListMessages(ctx, a.ThreadID, a.Limit)
			if err != nil {
				return nil, err
			}
			return map[string]any{"thread_id": a.ThreadID, "messages": msgs}, nil
		},
			WithToolDescription("Get the messages of a thread"),
			WithToolCategory(CategoryThreads),
		),
		NewTool("get_supply_catalog", func(ctx context.Context, _ string, a supplyCatalogArgs) (any, error) {
			models, err := svc.Supply.Catalog(ctx, platform.SupplyFilter{Provider: a.Provider, Capability: a.Capability})
			if err != nil && !errors.Is(err, platform.ErrNotFound) {
				return nil, err
			}
			return map[string]any{"models": models}, nil
		},
			WithToolDescription("List model supply options with pricing"),
			WithToolCategory(CategorySupply),
		),
		NewTool("execute_optimization_pipeline", func(ctx context.Context, _ string, a pipelineArgs) (any, error) {
			return svc.Optimization.RunPipeline(ctx, platform.PipelineRequest{InputData: a.InputData, OptimizationGoal: a.OptimizationGoal, Steps: a.Steps})
		},
			WithToolDescription("Run the full multi-agent optimization pipeline"),
			WithToolCategory(CategoryOptimization),
			WithToolAsync(),
		),
	}
}
