package platform

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Memory is an in-process implementation of every platform service. It is
// seeded with a small agent roster, corpus, supply catalog and model set.
type Memory struct {
	clock clockwork.Clock

	mu       sync.RWMutex
	agents   []Agent
	runs     map[string]*AgentRun
	threads  map[string]*Thread
	messages map[string][]Message
	docs     []Document
	datasets map[string]*Dataset
	supply   []SupplyModel
	models   []ModelConfig
	opt      []OptimizationRun
	calls    map[string]int
}

// MemoryOption configures NewMemory.
type MemoryOption func(*Memory)

// WithClock overrides the clock used for timestamps.
func WithClock(c clockwork.Clock) MemoryOption {
	return func(m *Memory) { m.clock = c }
}

// NewMemory returns a seeded in-memory platform.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		clock:    clockwork.NewRealClock(),
		runs:     make(map[string]*AgentRun),
		threads:  make(map[string]*Thread),
		messages: make(map[string][]Message),
		datasets: make(map[string]*Dataset),
		calls:    make(map[string]int),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.agents = []Agent{
		{Name: "supervisor", Description: "Routes requests to specialist agents", Capabilities: []string{"routing", "planning"}, Status: "ready"},
		{Name: "triage", Description: "Classifies incoming optimization requests", Capabilities: []string{"classification"}, Status: "ready"},
		{Name: "data", Description: "Collects and summarizes workload telemetry", Capabilities: []string{"analysis", "metrics"}, Status: "ready"},
		{Name: "optimization", Description: "Proposes cost and latency optimizations", Capabilities: []string{"optimization", "cost"}, Status: "ready"},
		{Name: "reporting", Description: "Produces human readable reports", Capabilities: []string{"summarization"}, Status: "ready"},
	}
	m.docs = []Document{
		{ID: "doc-routing", Title: "Model routing strategies", Content: "Route simple prompts to smaller models and escalate on low confidence.", Tags: []string{"routing", "cost"}},
		{ID: "doc-caching", Title: "Prompt caching", Content: "Cache deterministic completions keyed by normalized prompt text to cut cost.", Tags: []string{"caching", "cost", "latency"}},
		{ID: "doc-batching", Title: "Request batching", Content: "Batch embedding requests to improve throughput and reduce per call latency.", Tags: []string{"latency", "throughput"}},
	}
	m.supply = []SupplyModel{
		{Provider: "openai", Model: "gpt-4o", InputCostPer1K: 0.0025, OutputCostPer1K: 0.01, ContextWindow: 128000, Capabilities: []string{"chat", "vision", "tools"}, MedianLatencyMS: 900},
		{Provider: "openai", Model: "gpt-4o-mini", InputCostPer1K: 0.00015, OutputCostPer1K: 0.0006, ContextWindow: 128000, Capabilities: []string{"chat", "tools"}, MedianLatencyMS: 450},
		{Provider: "anthropic", Model: "claude-3-5-sonnet", InputCostPer1K: 0.003, OutputCostPer1K: 0.015, ContextWindow: 200000, Capabilities: []string{"chat", "vision", "tools"}, MedianLatencyMS: 1100},
		{Provider: "google", Model: "gemini-1.5-flash", InputCostPer1K: 0.000075, OutputCostPer1K: 0.0003, ContextWindow: 1000000, Capabilities: []string{"chat", "vision"}, MedianLatencyMS: 400},
	}
	m.models = []ModelConfig{
		{Model: "gpt-4o", Provider: "openai", Temperature: 0.2, MaxTokens: 4096, Enabled: true},
		{Model: "gpt-4o-mini", Provider: "openai", Temperature: 0.2, MaxTokens: 4096, Enabled: true},
		{Model: "claude-3-5-sonnet", Provider: "anthropic", Temperature: 0.3, MaxTokens: 8192, Enabled: false},
	}
	return m
}

// Services returns every service backed by m, with sampler as the
// sampling backend (nil uses CannedSampler).
func (m *Memory) Services(sampler Sampler) *Services {
	if sampler == nil {
		sampler = CannedSampler{}
	}
	return &Services{
		Agents:        m,
		Threads:       m,
		Corpus:        m,
		SyntheticData: m,
		Supply:        m,
		Metrics:       m,
		Optimization:  m,
		Models:        m,
		Sampler:       sampler,
	}
}

func (m *Memory) count(op string) {
	m.calls[op]++
}

// ListAgents implements AgentService.
func (m *Memory) ListAgents(_ context.Context) ([]Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.agents), nil
}

// GetAgent implements AgentService.
func (m *Memory) GetAgent(_ context.Context, name string) (*Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.agents {
		if a.Name == name {
			return &a, nil
		}
	}
	return nil, fmt.Errorf("agent %q: %w", name, ErrNotFound)
}

// RunAgent implements AgentService. Runs complete synchronously.
func (m *Memory) RunAgent(ctx context.Context, req AgentRunRequest) (*AgentRun, error) {
	if req.Agent == "" {
		req.Agent = "supervisor"
	}
	if _, err := m.GetAgent(ctx, req.Agent); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count("agents.run")
	run := &AgentRun{
		RunID:     uuid.NewString(),
		Agent:     req.Agent,
		ThreadID:  req.ThreadID,
		Status:    "completed",
		Output:    fmt.Sprintf("%s agent processed %d characters of input", req.Agent, len(req.Input)),
		StartedAt: m.clock.Now().UTC(),
	}
	m.runs[run.RunID] = run
	if req.ThreadID != "" {
		if _, ok := m.threads[req.ThreadID]; ok {
			m.appendLocked(req.ThreadID, "user", req.Input)
			m.appendLocked(req.ThreadID, "assistant", run.Output)
		}
	}
	out := *run
	return &out, nil
}

// RunStatus implements AgentService.
func (m *Memory) RunStatus(_ context.Context, runID string) (*AgentRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run %q: %w", runID, ErrNotFound)
	}
	out := *run
	return &out, nil
}

// CreateThread implements ThreadService.
func (m *Memory) CreateThread(_ context.Context, owner, title string, metadata map[string]any) (*Thread, error) {
	if title == "" {
		title = "Untitled thread"
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count("threads.create")
	th := &Thread{
		ID:        "thread_" + uuid.NewString(),
		Title:     title,
		Owner:     owner,
		Metadata:  metadata,
		CreatedAt: m.clock.Now().UTC(),
	}
	m.threads[th.ID] = th
	out := *th
	return &out, nil
}

// ListThreads implements ThreadService. An empty owner lists every thread.
func (m *Memory) ListThreads(_ context.Context, owner string, limit int) ([]Thread, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Thread, 0, len(m.threads))
	for _, th := range m.threads {
		if owner == "" || th.Owner == owner {
			out = append(out, *th)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetThread implements ThreadService.
func (m *Memory) GetThread(_ context.Context, id string) (*Thread, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	th, ok := m.threads[id]
	if !ok {
		return nil, fmt.Errorf("thread %q: %w", id, ErrNotFound)
	}
	out := *th
	return &out, nil
}

// ListMessages implements ThreadService. The most recent limit messages are
// returned in chronological order.
func (m *Memory) ListMessages(_ context.Context, threadID string, limit int) ([]Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.threads[threadID]; !ok {
		return nil, fmt.Errorf("thread %q: %w", threadID, ErrNotFound)
	}
	msgs := m.messages[threadID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return slices.Clone(msgs), nil
}

// AppendMessage implements ThreadService.
func (m *Memory) AppendMessage(_ context.Context, threadID, role, content string) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.threads[threadID]; !ok {
		return nil, fmt.Errorf("thread %q: %w", threadID, ErrNotFound)
	}
	msg := m.appendLocked(threadID, role, content)
	return &msg, nil
}

func (m *Memory) appendLocked(threadID, role, content string) Message {
	msg := Message{
		ID:        uuid.NewString(),
		ThreadID:  threadID,
		Role:      role,
		Content:   content,
		CreatedAt: m.clock.Now().UTC(),
	}
	m.messages[threadID] = append(m.messages[threadID], msg)
	return msg
}

// Search implements CorpusService with a naive term-overlap score.
func (m *Memory) Search(_ context.Context, query string, limit int) ([]Document, error) {
	terms := strings.Fields(strings.ToLower(query))
	m.mu.Lock()
	m.count("corpus.search")
	docs := slices.Clone(m.docs)
	m.mu.Unlock()

	var out []Document
	for _, d := range docs {
		hay := strings.ToLower(d.Title + " " + d.Content + " " + strings.Join(d.Tags, " "))
		var hits int
		for _, t := range terms {
			if strings.Contains(hay, t) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		d.Score = float64(hits) / float64(len(terms))
		out = append(out, d)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListDocuments implements CorpusService.
func (m *Memory) ListDocuments(_ context.Context) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.docs), nil
}

// GetDocument implements CorpusService.
func (m *Memory) GetDocument(_ context.Context, id string) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, d := range m.docs {
		if d.ID == id {
			return &d, nil
		}
	}
	return nil, fmt.Errorf("document %q: %w", id, ErrNotFound)
}

// maxSyntheticRecords bounds generated datasets.
const maxSyntheticRecords = 1000

// Generate implements SyntheticDataService. Records follow the requested
// schema's property names with deterministic placeholder values.
func (m *Memory) Generate(_ context.Context, req SyntheticDataRequest) (*Dataset, error) {
	if req.Count <= 0 {
		req.Count = 10
	}
	if req.Count > maxSyntheticRecords {
		return nil, fmt.Errorf("count %d exceeds maximum of %d", req.Count, maxSyntheticRecords)
	}
	if req.WorkloadType == "" {
		req.WorkloadType = "chat"
	}
	fields := []string{"prompt", "completion", "latency_ms", "tokens"}
	if props, ok := req.Schema["properties"].(map[string]any); ok && len(props) > 0 {
		fields = fields[:0]
		for k := range props {
			fields = append(fields, k)
		}
		sort.Strings(fields)
	}
	records := make([]map[string]any, req.Count)
	for i := range records {
		rec := make(map[string]any, len(fields))
		for _, f := range fields {
			rec[f] = fmt.Sprintf("%s-%s-%d", req.WorkloadType, f, i)
		}
		records[i] = rec
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.count("synthetic.generate")
	ds := &Dataset{
		ID:           "dataset_" + uuid.NewString(),
		WorkloadType: req.WorkloadType,
		Count:        req.Count,
		Records:      records,
		CreatedAt:    m.clock.Now().UTC(),
	}
	m.datasets[ds.ID] = ds
	out := *ds
	return &out, nil
}

// ListDatasets implements SyntheticDataService. Records are omitted.
func (m *Memory) ListDatasets(_ context.Context) ([]Dataset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Dataset, 0, len(m.datasets))
	for _, ds := range m.datasets {
		d := *ds
		d.Records = nil
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetDataset implements SyntheticDataService.
func (m *Memory) GetDataset(_ context.Context, id string) (*Dataset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ds, ok := m.datasets[id]
	if !ok {
		return nil, fmt.Errorf("dataset %q: %w", id, ErrNotFound)
	}
	out := *ds
	return &out, nil
}

// Catalog implements SupplyService.
func (m *Memory) Catalog(_ context.Context, filter SupplyFilter) ([]SupplyModel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []SupplyModel
	for _, s := range m.supply {
		if filter.Provider != "" && !strings.EqualFold(s.Provider, filter.Provider) {
			continue
		}
		if filter.Capability != "" && !slices.Contains(s.Capabilities, filter.Capability) {
			continue
		}
		out = append(out, s)
	}
	if len(out) == 0 && filter.Provider != "" {
		return nil, fmt.Errorf("provider %q: %w", filter.Provider, ErrNotFound)
	}
	return out, nil
}

// Overview implements MetricsService.
func (m *Memory) Overview(ctx context.Context) (map[string]any, error) {
	out := make(map[string]any, 3)
	for _, kind := range []string{MetricsCost, MetricsPerformance, MetricsUsage} {
		v, err := m.Metrics(ctx, kind)
		if err != nil {
			return nil, err
		}
		out[kind] = v
	}
	return out, nil
}

// Metrics implements MetricsService.
func (m *Memory) Metrics(_ context.Context, kind string) (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var total int
	for _, n := range m.calls {
		total += n
	}
	switch kind {
	case MetricsCost:
		return map[string]any{"currency": "USD", "total": float64(total) * 0.002, "per_request": 0.002}, nil
	case MetricsPerformance:
		return map[string]any{"p50_ms": 420, "p95_ms": 1250, "error_rate": 0.0}, nil
	case MetricsUsage:
		calls := make(map[string]int, len(m.calls))
		for k, v := range m.calls {
			calls[k] = v
		}
		return map[string]any{"requests": total, "threads": len(m.threads), "datasets": len(m.datasets), "by_operation": calls}, nil
	default:
		return nil, fmt.Errorf("metrics kind %q: %w", kind, ErrNotFound)
	}
}

// AnalyzeWorkload implements OptimizationService.
func (m *Memory) AnalyzeWorkload(_ context.Context, req WorkloadAnalysisRequest) (*OptimizationRun, error) {
	metrics := req.Metrics
	if len(metrics) == 0 {
		metrics = []string{"cost", "latency"}
	}
	recs := make([]string, 0, len(metrics))
	for _, mt := range metrics {
		switch mt {
		case "cost":
			recs = append(recs, "route low complexity prompts to gpt-4o-mini")
		case "latency":
			recs = append(recs, "enable prompt caching for repeated system prompts")
		default:
			recs = append(recs, "collect more telemetry for "+mt)
		}
	}
	return m.recordRun("workload_analysis", "", map[string]any{
		"metrics":         metrics,
		"fields":          len(req.WorkloadData),
		"recommendations": recs,
	}), nil
}

// OptimizePrompt implements OptimizationService.
func (m *Memory) OptimizePrompt(_ context.Context, prompt, target string) (*OptimizationRun, error) {
	if target == "" {
		target = "cost"
	}
	optimized := strings.Join(strings.Fields(prompt), " ")
	return m.recordRun("prompt_optimization", target, map[string]any{
		"original_length":  len(prompt),
		"optimized_length": len(optimized),
		"optimized_prompt": optimized,
	}), nil
}

// RunPipeline implements OptimizationService.
func (m *Memory) RunPipeline(_ context.Context, req PipelineRequest) (*OptimizationRun, error) {
	steps := req.Steps
	if len(steps) == 0 {
		steps = []string{"triage", "data", "optimization", "reporting"}
	}
	results := make([]map[string]any, 0, len(steps))
	for _, s := range steps {
		results = append(results, map[string]any{"step": s, "status": "completed"})
	}
	return m.recordRun("pipeline", req.OptimizationGoal, map[string]any{
		"steps": results,
	}), nil
}

// History implements OptimizationService, newest first.
func (m *Memory) History(_ context.Context, limit int) ([]OptimizationRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := slices.Clone(m.opt)
	slices.Reverse(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) recordRun(kind, goal string, summary map[string]any) *OptimizationRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count("optimization." + kind)
	run := OptimizationRun{
		ID:        "opt_" + uuid.NewString(),
		Kind:      kind,
		Goal:      goal,
		Summary:   summary,
		CreatedAt: m.clock.Now().UTC(),
	}
	m.opt = append(m.opt, run)
	return &run
}

// ListModels implements ModelConfigService.
func (m *Memory) ListModels(_ context.Context) ([]ModelConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.models), nil
}

// GetModel implements ModelConfigService.
func (m *Memory) GetModel(_ context.Context, model string) (*ModelConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, mc := range m.models {
		if mc.Model == model {
			return &mc, nil
		}
	}
	return nil, fmt.Errorf("model %q: %w", model, ErrNotFound)
}
