package mcpservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/netra-systems/zen-sub153/mcp"
	"github.com/netra-systems/zen-sub153/platform"
)

const jsonMimeType = "application/json"

func jsonBlocks(uri string, v any) ([]mcp.ContentBlock, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", uri, err)
	}
	return []mcp.ContentBlock{{Type: mcp.ContentTypeText, URI: uri, MimeType: jsonMimeType, Text: string(b)}}, nil
}

// serve adapts a platform lookup to a ResourceHandler, translating
// platform.ErrNotFound into a NotFoundError.
func serve(fn func(ctx context.Context, u *ResourceURI, sessionID string) (any, error)) ResourceHandler {
	return ResourceFunc(func(ctx context.Context, u *ResourceURI, sessionID string) ([]mcp.ContentBlock, error) {
		v, err := fn(ctx, u, sessionID)
		if err != nil {
			if errors.Is(err, platform.ErrNotFound) {
				return nil, &NotFoundError{Type: "resource", Name: u.Raw}
			}
			return nil, err
		}
		return jsonBlocks(u.Raw, v)
	})
}

// BuiltinRoutes returns the category routes backed by svc.
func BuiltinRoutes(svc *platform.Services) []Route {
	return []Route{
		{
			Category: "threads",
			Arity:    []int{0, 1, 2},
			Handler: serve(func(ctx context.Context, u *ResourceURI, sessionID string) (any, error) {
				switch len(u.Segments) {
				case 0:
					threads, err := svc.Threads.ListThreads(ctx, "", 50)
					return map[string]any{"threads": threads}, err
				case 1:
					return svc.Threads.GetThread(ctx, u.Segments[0])
				}
				if u.Segments[1] != "messages" {
					return nil, &InvalidURIError{URI: u.Raw, Kind: ErrInvalidPath}
				}
				msgs, err := svc.Threads.ListMessages(ctx, u.Segments[0], 0)
				return map[string]any{"thread_id": u.Segments[0], "messages": msgs}, err
			}),
		},
		{
			Category: "agents",
			Arity:    []int{0, 1},
			Handler: serve(func(ctx context.Context, u *ResourceURI, _ string) (any, error) {
				if len(u.Segments) == 1 {
					return svc.Agents.GetAgent(ctx, u.Segments[0])
				}
				agents, err := svc.Agents.ListAgents(ctx)
				return map[string]any{"agents": agents}, err
			}),
		},
		{
			Category: "corpus",
			Arity:    []int{0, 1},
			Handler: serve(func(ctx context.Context, u *ResourceURI, _ string) (any, error) {
				if len(u.Segments) == 1 {
					return svc.Corpus.GetDocument(ctx, u.Segments[0])
				}
				docs, err := svc.Corpus.ListDocuments(ctx)
				return map[string]any{"documents": docs}, err
			}),
		},
		{
			Category: "metrics",
			Arity:    []int{0, 1},
			Handler: serve(func(ctx context.Context, u *ResourceURI, _ string) (any, error) {
				if len(u.Segments) == 0 {
					return svc.Metrics.Overview(ctx)
				}
				switch kind := u.Segments[0]; kind {
				case platform.MetricsCost, platform.MetricsPerformance, platform.MetricsUsage:
					return svc.Metrics.Metrics(ctx, kind)
				default:
					return nil, &InvalidURIError{URI: u.Raw, Kind: ErrInvalidPath}
				}
			}),
		},
		{
			Category: "synthetic-data",
			Arity:    []int{0, 1},
			Handler: serve(func(ctx context.Context, u *ResourceURI, _ string) (any, error) {
				if len(u.Segments) == 1 {
					return svc.SyntheticData.GetDataset(ctx, u.Segments[0])
				}
				ds, err := svc.SyntheticData.ListDatasets(ctx)
				return map[string]any{"datasets": ds}, err
			}),
		},
		{
			Category: "supply",
			Arity:    []int{0, 1},
			Handler: serve(func(ctx context.Context, u *ResourceURI, _ string) (any, error) {
				var filter platform.SupplyFilter
				if len(u.Segments) == 1 {
					filter.Provider = u.Segments[0]
				}
				models, err := svc.Supply.Catalog(ctx, filter)
				return map[string]any{"models": models}, err
			}),
		},
		{
			Category: "optimization-history",
			Arity:    []int{0},
			Handler: serve(func(ctx context.Context, _ *ResourceURI, _ string) (any, error) {
				runs, err := svc.Optimization.History(ctx, 100)
				return map[string]any{"runs": runs}, err
			}),
		},
		{
			Category: "model-config",
			Arity:    []int{0, 1},
			Handler: serve(func(ctx context.Context, u *ResourceURI, _ string) (any, error) {
				if len(u.Segments) == 1 {
					return svc.Models.GetModel(ctx, u.Segments[0])
				}
				models, err := svc.Models.ListModels(ctx)
				return map[string]any{"models": models}, err
			}),
		},
	}
}

// BuiltinResources returns the listing descriptors for every category.
func BuiltinResources() []Resource {
	entry := func(category, name, desc string) Resource {
		return Resource{URI: URIScheme + category, Name: name, Description: desc, MimeType: jsonMimeType, Category: category}
	}
	return []Resource{
		entry("threads", "Threads", "Conversation threads; netra://threads/<id> and netra://threads/<id>/messages"),
		entry("agents", "Agents", "Available agents; netra://agents/<name> for status"),
		entry("corpus", "Corpus", "Corpus documents; netra://corpus/<id>"),
		entry("metrics", "Metrics", "Platform metrics; netra://metrics/cost, performance or usage"),
		entry("synthetic-data", "Synthetic datasets", "Generated datasets; netra://synthetic-data/<id>"),
		entry("supply", "Supply catalog", "Model supply catalog; netra://supply/<provider>"),
		entry("optimization-history", "Optimization history", "Recent optimization runs"),
		entry("model-config", "Model configuration", "Model settings; netra://model-config/<model>"),
	}
}

// NewBuiltinResources builds a resource registry holding the built-in
// descriptors and routes.
func NewBuiltinResources(svc *platform.Services, opts ...Option) *ResourceRegistry {
	r := NewResourceRegistry(opts, BuiltinResources()...)
	for _, rt := range BuiltinRoutes(svc) {
		r.HandleCategory(rt)
	}
	return r
}
