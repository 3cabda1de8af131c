package mcpservice

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/netra-systems/zen-sub153/history"
	"github.com/netra-systems/zen-sub153/mcp"
)

// URIScheme prefixes every resource URI served by the registry.
const URIScheme = "netra://"

// ResourceURI is a parsed netra:// URI: the category plus the remaining
// path segments.
type ResourceURI struct {
	Raw      string
	Category string
	Segments []string
}

// ParseResourceURI splits a netra:// URI into category and segments. An empty
// segment anywhere in the path is an invalid path.
func ParseResourceURI(raw string) (*ResourceURI, error) {
	rest, ok := strings.CutPrefix(raw, URIScheme)
	if !ok {
		return nil, &InvalidURIError{URI: raw, Kind: ErrInvalidScheme}
	}
	rest = strings.TrimSuffix(rest, "/")
	if rest == "" {
		return nil, &InvalidURIError{URI: raw, Kind: ErrInvalidScheme}
	}
	parts := strings.Split(rest, "/")
	if slices.Contains(parts[1:], "") {
		return nil, &InvalidURIError{URI: raw, Kind: ErrInvalidPath}
	}
	return &ResourceURI{Raw: raw, Category: parts[0], Segments: parts[1:]}, nil
}

// ResourceHandler reads the contents behind a URI.
type ResourceHandler interface {
	Read(ctx context.Context, uri *ResourceURI, sessionID string) ([]mcp.ContentBlock, error)
}

// ResourceFunc adapts a function into a ResourceHandler.
type ResourceFunc func(ctx context.Context, uri *ResourceURI, sessionID string) ([]mcp.ContentBlock, error)

// Read implements ResourceHandler.
func (f ResourceFunc) Read(ctx context.Context, uri *ResourceURI, sessionID string) ([]mcp.ContentBlock, error) {
	return f(ctx, uri, sessionID)
}

// Resource is a registered resource descriptor. A descriptor with a Handler
// serves reads of exactly its URI; descriptors without one are listing
// entries whose reads are served by the category route.
type Resource struct {
	URI          string
	Name         string
	Description  string
	MimeType     string
	Category     string
	Handler      ResourceHandler
	AuthRequired bool
	Permissions  []string
}

// Summary returns the public listing fields.
func (r Resource) Summary() mcp.Resource {
	return mcp.Resource{
		URI:         r.URI,
		Name:        r.Name,
		Description: r.Description,
		MimeType:    r.MimeType,
		Category:    r.Category,
	}
}

// Route serves every read under one category. Arity lists the accepted
// segment counts after the category; any other count is an invalid path.
type Route struct {
	Category string
	Arity    []int
	Handler  ResourceHandler
}

// ResourceRegistry owns resource descriptors and category routes.
type ResourceRegistry struct {
	mu        sync.RWMutex
	resources map[string]Resource
	routes    map[string]Route

	opts     options
	notifier ChangeNotifier
}

// NewResourceRegistry constructs a registry holding defs.
func NewResourceRegistry(opts []Option, defs ...Resource) *ResourceRegistry {
	r := &ResourceRegistry{
		resources: make(map[string]Resource),
		routes:    make(map[string]Route),
		opts:      newOptions(opts),
	}
	for _, d := range defs {
		r.Register(d)
	}
	return r
}

// Register inserts or overwrites a resource by URI.
func (r *ResourceRegistry) Register(res Resource) {
	r.mu.Lock()
	_, exists := r.resources[res.URI]
	r.resources[res.URI] = res
	r.mu.Unlock()
	if exists {
		r.opts.logger.Warn("resources.register.overwrite", slog.String("uri", res.URI))
	}
	r.notifier.Notify()
}

// Unregister removes a resource if present.
func (r *ResourceRegistry) Unregister(uri string) bool {
	r.mu.Lock()
	_, ok := r.resources[uri]
	delete(r.resources, uri)
	r.mu.Unlock()
	if ok {
		r.notifier.Notify()
	}
	return ok
}

// HandleCategory installs or replaces the route for a category.
func (r *ResourceRegistry) HandleCategory(rt Route) {
	r.mu.Lock()
	_, exists := r.routes[rt.Category]
	r.routes[rt.Category] = rt
	r.mu.Unlock()
	if exists {
		r.opts.logger.Warn("resources.route.overwrite", slog.String("category", rt.Category))
	}
}

// Len reports how many resources are registered.
func (r *ResourceRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.resources)
}

// List returns the public summaries visible to the session, sorted by URI.
func (r *ResourceRegistry) List(ctx context.Context, sessionID string) []mcp.Resource {
	r.mu.RLock()
	all := make([]Resource, 0, len(r.resources))
	for _, res := range r.resources {
		all = append(all, res)
	}
	r.mu.RUnlock()

	out := make([]mcp.Resource, 0, len(all))
	for _, res := range all {
		if r.opts.allowed(ctx, sessionID, res.Permissions) {
			out = append(out, res.Summary())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URI < out[j].URI })
	return out
}

// Clear removes every resource and route and releases change subscribers.
func (r *ResourceRegistry) Clear() {
	r.mu.Lock()
	r.resources = make(map[string]Resource)
	r.routes = make(map[string]Route)
	r.mu.Unlock()
	r.notifier.Close()
}

// Subscribe returns a change signal channel, see ChangeNotifier.Subscribe.
func (r *ResourceRegistry) Subscribe() (<-chan struct{}, func()) {
	return r.notifier.Subscribe()
}

// Read resolves uri and returns its content blocks. Every read, successful
// or not, appends one access record.
func (r *ResourceRegistry) Read(ctx context.Context, uri string, sessionID string) (blocks []mcp.ContentBlock, err error) {
	start := r.opts.clock.Now()
	defer func() {
		p := recover()
		if p != nil {
			err = fmt.Errorf("resource handler panicked: %v", p)
		}
		rec := history.AccessRecord{
			URI:       uri,
			SessionID: sessionID,
			ElapsedMS: r.opts.clock.Since(start).Milliseconds(),
			Status:    history.StatusSuccess,
			At:        start,
		}
		if err != nil {
			rec.Status = history.StatusFailure
			rec.Error = err.Error()
			r.opts.logger.WarnContext(ctx, "resources.read.fail",
				slog.String("uri", uri),
				slog.String("session_id", sessionID),
				slog.String("err", err.Error()),
			)
		}
		r.opts.accesses.Record(ctx, rec)
		if p != nil {
			panic(p)
		}
	}()

	parsed, err := ParseResourceURI(uri)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	desc, hasDesc := r.resources[uri]
	route, hasRoute := r.routes[parsed.Category]
	r.mu.RUnlock()

	if hasDesc {
		if desc.AuthRequired && sessionID == "" {
			return nil, Failf("%w: %s", ErrAuthRequired, uri)
		}
		if !r.opts.allowed(ctx, sessionID, desc.Permissions) {
			return nil, Failf("%w: %s", ErrPermissionDenied, uri)
		}
		if desc.Handler != nil {
			return desc.Handler.Read(ctx, parsed, sessionID)
		}
	}

	if !hasRoute {
		return nil, &InvalidURIError{URI: uri, Kind: ErrInvalidScheme}
	}
	if !slices.Contains(route.Arity, len(parsed.Segments)) {
		return nil, &InvalidURIError{URI: uri, Kind: ErrInvalidPath}
	}
	return route.Handler.Read(ctx, parsed, sessionID)
}
