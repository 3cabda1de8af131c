package mcpservice

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/netra-systems/zen-sub153/platform"
)

func TestBuiltinCatalog(t *testing.T) {
	svc := platform.NewMemory().Services(nil)
	regs := NewBuiltinRegistries(svc)
	ctx := context.Background()

	tools := regs.Tools.List(ctx, "s")
	if len(tools) != 11 {
		t.Fatalf("listed %d tools, want 11", len(tools))
	}
	for _, tl := range tools {
		var schema map[string]any
		if err := json.Unmarshal(tl.InputSchema, &schema); err != nil || schema["type"] != "object" {
			t.Fatalf("tool %s has bad input schema %s", tl.Name, tl.InputSchema)
		}
	}
	if got := len(regs.Resources.List(ctx, "s")); got != 8 {
		t.Fatalf("listed %d resources, want 8", got)
	}
	if caps := regs.Capabilities(); !caps.Tools || !caps.Resources || !caps.Prompts || caps.Sampling {
		t.Fatalf("Capabilities() = %+v", caps)
	}
}

func TestBuiltinToolCalls(t *testing.T) {
	svc := platform.NewMemory().Services(nil)
	reg := NewToolRegistry(nil, BuiltinTools(svc)...)
	ctx := context.Background()

	tests := []struct {
		tool    string
		args    map[string]any
		session string
		want    string
		isError bool
	}{
		{tool: "list_agents", want: "supervisor"},
		{tool: "run_agent", args: map[string]any{"input": "reduce latency"}, want: "runId"},
		{tool: "run_agent", args: map[string]any{}, isError: true, want: "invalid input"},
		{tool: "query_corpus", args: map[string]any{"query": "caching"}, want: "doc-caching"},
		{tool: "create_thread", args: map[string]any{"title": "Q3"}, session: "s1", want: "Q3"},
		{tool: "create_thread", args: map[string]any{"title": "Q3"}, isError: true, want: "authentication required"},
		{tool: "get_thread_history", args: map[string]any{"thread_id": "missing"}, isError: true, want: "not found"},
		{tool: "get_supply_catalog", args: map[string]any{"provider": "openai"}, want: "models"},
		{tool: "optimize_prompt", args: map[string]any{"prompt": "Please kindly summarize", "target": "cost"}, want: "optimized"},
		{tool: "optimize_prompt", args: map[string]any{"prompt": "x", "target": "vibes"}, isError: true, want: "invalid input"},
	}
	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			session := tt.session
			if session == "" && tt.tool != "create_thread" {
				session = "s"
			}
			res := reg.Execute(ctx, tt.tool, tt.args, session)
			if res.IsError != tt.isError {
				t.Fatalf("IsError = %v, want %v: %+v", res.IsError, tt.isError, res.Content)
			}
			if !strings.Contains(strings.ToLower(res.Content[0].Text), strings.ToLower(tt.want)) {
				t.Fatalf("content %q does not contain %q", res.Content[0].Text, tt.want)
			}
		})
	}
}
