// Package platform declares the Netra platform services the MCP server
// fronts. The concrete agent, thread, corpus, synthetic-data and supply
// services live outside this module; the server depends only on these
// interfaces. NewMemory returns a self-contained implementation that backs
// the built-in catalog in development and tests.
package platform

import (
	"context"
	"errors"
	"time"

	"github.com/netra-systems/zen-sub153/mcp"
)

// ErrNotFound is returned by services when the addressed entity is absent.
var ErrNotFound = errors.New("not found")

// Agent describes a runnable agent.
type Agent struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Capabilities []string `json:"capabilities,omitempty"`
	Status       string   `json:"status"`
}

// AgentRunRequest asks an agent to process an input.
type AgentRunRequest struct {
	Agent     string         `json:"agent"`
	Input     string         `json:"input"`
	ThreadID  string         `json:"threadId,omitempty"`
	Config    map[string]any `json:"config,omitempty"`
	SessionID string         `json:"-"`
}

// AgentRun is the tracked state of an agent execution.
type AgentRun struct {
	RunID     string    `json:"runId"`
	Agent     string    `json:"agent"`
	ThreadID  string    `json:"threadId,omitempty"`
	Status    string    `json:"status"`
	Output    string    `json:"output,omitempty"`
	StartedAt time.Time `json:"startedAt"`
}

// AgentService runs agents and reports on them.
type AgentService interface {
	ListAgents(ctx context.Context) ([]Agent, error)
	GetAgent(ctx context.Context, name string) (*Agent, error)
	RunAgent(ctx context.Context, req AgentRunRequest) (*AgentRun, error)
	RunStatus(ctx context.Context, runID string) (*AgentRun, error)
}

// Thread is a conversation thread.
type Thread struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Owner     string         `json:"owner,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Message is one message within a thread.
type Message struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"threadId"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// ThreadService stores conversation threads.
type ThreadService interface {
	CreateThread(ctx context.Context, owner, title string, metadata map[string]any) (*Thread, error)
	ListThreads(ctx context.Context, owner string, limit int) ([]Thread, error)
	GetThread(ctx context.Context, id string) (*Thread, error)
	ListMessages(ctx context.Context, threadID string, limit int) ([]Message, error)
	AppendMessage(ctx context.Context, threadID, role, content string) (*Message, error)
}

// Document is a corpus entry.
type Document struct {
	ID      string         `json:"id"`
	Title   string         `json:"title"`
	Content string         `json:"content"`
	Tags    []string       `json:"tags,omitempty"`
	Score   float64        `json:"score,omitzero"`
	Meta    map[string]any `json:"metadata,omitempty"`
}

// CorpusService searches the document corpus.
type CorpusService interface {
	Search(ctx context.Context, query string, limit int) ([]Document, error)
	ListDocuments(ctx context.Context) ([]Document, error)
	GetDocument(ctx context.Context, id string) (*Document, error)
}

// SyntheticDataRequest describes a dataset to generate.
type SyntheticDataRequest struct {
	Schema       map[string]any `json:"schema,omitempty"`
	Count        int            `json:"count"`
	WorkloadType string         `json:"workloadType,omitempty"`
}

// Dataset is a generated synthetic dataset.
type Dataset struct {
	ID           string           `json:"id"`
	WorkloadType string           `json:"workloadType,omitempty"`
	Count        int              `json:"count"`
	Records      []map[string]any `json:"records,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
}

// SyntheticDataService generates and stores synthetic datasets.
type SyntheticDataService interface {
	Generate(ctx context.Context, req SyntheticDataRequest) (*Dataset, error)
	ListDatasets(ctx context.Context) ([]Dataset, error)
	GetDataset(ctx context.Context, id string) (*Dataset, error)
}

// SupplyModel is one model offering in the supply catalog.
type SupplyModel struct {
	Provider        string   `json:"provider"`
	Model           string   `json:"model"`
	InputCostPer1K  float64  `json:"inputCostPer1k"`
	OutputCostPer1K float64  `json:"outputCostPer1k"`
	ContextWindow   int      `json:"contextWindow"`
	Capabilities    []string `json:"capabilities,omitempty"`
	MedianLatencyMS int      `json:"medianLatencyMs,omitzero"`
}

// SupplyFilter narrows a catalog query.
type SupplyFilter struct {
	Provider   string `json:"provider,omitempty"`
	Capability string `json:"capability,omitempty"`
}

// SupplyService exposes the model supply catalog.
type SupplyService interface {
	Catalog(ctx context.Context, filter SupplyFilter) ([]SupplyModel, error)
}

// Metrics kinds understood by MetricsService.
const (
	MetricsCost        = "cost"
	MetricsPerformance = "performance"
	MetricsUsage       = "usage"
)

// MetricsService reports platform metrics.
type MetricsService interface {
	Overview(ctx context.Context) (map[string]any, error)
	Metrics(ctx context.Context, kind string) (map[string]any, error)
}

// WorkloadAnalysisRequest asks for a workload assessment.
type WorkloadAnalysisRequest struct {
	WorkloadData map[string]any `json:"workloadData"`
	Metrics      []string       `json:"metrics,omitempty"`
}

// PipelineRequest runs a multi-step optimization.
type PipelineRequest struct {
	InputData        map[string]any `json:"inputData"`
	OptimizationGoal string         `json:"optimizationGoal"`
	Steps            []string       `json:"steps,omitempty"`
}

// OptimizationRun is one recorded optimization.
type OptimizationRun struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	Goal      string         `json:"goal,omitempty"`
	Summary   map[string]any `json:"summary"`
	CreatedAt time.Time      `json:"createdAt"`
}

// OptimizationService analyzes and optimizes workloads.
type OptimizationService interface {
	AnalyzeWorkload(ctx context.Context, req WorkloadAnalysisRequest) (*OptimizationRun, error)
	OptimizePrompt(ctx context.Context, prompt, target string) (*OptimizationRun, error)
	RunPipeline(ctx context.Context, req PipelineRequest) (*OptimizationRun, error)
	History(ctx context.Context, limit int) ([]OptimizationRun, error)
}

// ModelConfig is the platform's configuration for a model.
type ModelConfig struct {
	Model       string  `json:"model"`
	Provider    string  `json:"provider"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"maxTokens"`
	Enabled     bool    `json:"enabled"`
}

// ModelConfigService exposes model configuration.
type ModelConfigService interface {
	ListModels(ctx context.Context) ([]ModelConfig, error)
	GetModel(ctx context.Context, model string) (*ModelConfig, error)
}

// Sampler produces model completions for sampling/createMessage.
type Sampler interface {
	CreateMessage(ctx context.Context, req *mcp.CreateMessageRequest) (*mcp.CreateMessageResult, error)
}

// Services bundles every collaborator the server delegates to.
type Services struct {
	Agents        AgentService
	Threads       ThreadService
	Corpus        CorpusService
	SyntheticData SyntheticDataService
	Supply        SupplyService
	Metrics       MetricsService
	Optimization  OptimizationService
	Models        ModelConfigService
	Sampler       Sampler
}
