package mcpservice

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/netra-systems/zen-sub153/mcp"
)

func rawArgs(t *testing.T, m map[string]any) map[string]json.RawMessage {
	t.Helper()
	out := make(map[string]json.RawMessage, len(m))
	for k, v := range m {
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal %s: %v", k, err)
		}
		out[k] = b
	}
	return out
}

func TestRender(t *testing.T) {
	got := Render("Hello {{ name }}, budget {{budget}} {{missing}}", map[string]string{"name": "Ada", "budget": "10"})
	want := "Hello Ada, budget 10 {{missing}}"
	if got != want {
		t.Fatalf("Render() = %q, want %q", got, want)
	}
	if diff := cmp.Diff([]string{"a", "b"}, Placeholders("{{a}} {{ b }} {{a}}")); diff != "" {
		t.Fatalf("Placeholders mismatch (-want +got):\n%s", diff)
	}
}

func TestGetPrompt(t *testing.T) {
	reg := NewPromptRegistry(nil, Prompt{
		Name:      "plan",
		Arguments: []mcp.PromptArgument{{Name: "goal", Required: true}, {Name: "limits"}},
		Template:  "Goal: {{goal}} Limits: {{limits}}",
	})
	ctx := context.Background()

	res, err := reg.Get(ctx, "plan", rawArgs(t, map[string]any{
		"goal":   "cut cost",
		"limits": map[string]int{"usd": 500},
	}), "s")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	want := []mcp.PromptMessage{{Role: mcp.RoleUser, Content: mcp.TextContent(`Goal: cut cost Limits: {"usd":500}`)}}
	if diff := cmp.Diff(want, res.Messages); diff != "" {
		t.Fatalf("messages mismatch (-want +got):\n%s", diff)
	}

	_, err = reg.Get(ctx, "plan", nil, "s")
	var req *RequiredError
	if !errors.As(err, &req) || req.Field != "goal" {
		t.Fatalf("expected RequiredError for goal, got %v", err)
	}

	_, err = reg.Get(ctx, "nope", nil, "s")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestBuiltinPromptsRender(t *testing.T) {
	reg := NewPromptRegistry(nil, BuiltinPrompts()...)
	if reg.Len() != 7 {
		t.Fatalf("Len() = %d, want 7", reg.Len())
	}
	for _, p := range BuiltinPrompts() {
		args := map[string]any{}
		for _, a := range p.Arguments {
			args[a.Name] = "x"
		}
		res, err := reg.Get(context.Background(), p.Name, rawArgs(t, args), "s")
		if err != nil {
			t.Fatalf("Get(%s): %v", p.Name, err)
		}
		if len(Placeholders(res.Messages[0].Content.Text)) != 0 {
			t.Fatalf("prompt %s left placeholders: %q", p.Name, res.Messages[0].Content.Text)
		}
	}
}

func TestLoadPromptDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "triage.tmpl"), []byte("# Triage an incident\nSeverity {{level}} for {{service}}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}

	reg := NewPromptRegistry(nil)
	names, err := LoadPromptDir(dir, reg)
	if err != nil {
		t.Fatalf("LoadPromptDir: %v", err)
	}
	if diff := cmp.Diff([]string{"triage"}, names); diff != "" {
		t.Fatalf("names mismatch (-want +got):\n%s", diff)
	}
	list := reg.List(context.Background(), "")
	if len(list) != 1 || list[0].Description != "Triage an incident" || len(list[0].Arguments) != 2 {
		t.Fatalf("listing = %+v", list)
	}
}

func TestWatchPromptDir(t *testing.T) {
	dir := t.TempDir()
	reg := NewPromptRegistry(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- WatchPromptDir(ctx, dir, reg) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	waitFor := func(msg string, cond func() bool) {
		t.Helper()
		deadline := time.Now().Add(5 * time.Second)
		for !cond() {
			if time.Now().After(deadline) {
				t.Fatalf("timed out waiting for %s", msg)
			}
			time.Sleep(10 * time.Millisecond)
		}
	}

	path := filepath.Join(dir, "hello.tmpl")
	// The watcher may not be armed yet; keep writing until it sees the file.
	waitFor("registration", func() bool {
		_ = os.WriteFile(path, []byte("Hi {{who}}"), 0o644)
		return reg.Len() == 1
	})

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	waitFor("removal", func() bool { return reg.Len() == 0 })
}
