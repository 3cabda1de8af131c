package engine

import (
	"context"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/netra-systems/zen-sub153/mcp"
	"github.com/netra-systems/zen-sub153/mcpservice"
	"github.com/netra-systems/zen-sub153/platform"
	"github.com/netra-systems/zen-sub153/sessions"
)

// Defaults reported in serverInfo.
const (
	DefaultServerName    = "netra-mcp-server"
	DefaultServerVersion = "1.0.0"
)

// Engine is the protocol core shared by every transport. It owns no I/O:
// transports hand it raw JSON-RPC payloads together with the session id they
// resolved and write back whatever it returns.
type Engine struct {
	regs    *mcpservice.Registries
	store   *sessions.Store
	sampler platform.Sampler

	log          *slog.Logger
	clock        clockwork.Clock
	info         mcp.ImplementationInfo
	instructions string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a custom logger for the Engine.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithClock overrides the clock used for ping timestamps and durations.
func WithClock(c clockwork.Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithSampler enables sampling/createMessage backed by s.
func WithSampler(s platform.Sampler) Option {
	return func(e *Engine) { e.sampler = s }
}

// WithServerInfo overrides the name and version reported by initialize.
func WithServerInfo(name, version string) Option {
	return func(e *Engine) {
		if name != "" {
			e.info.Name = name
		}
		if version != "" {
			e.info.Version = version
		}
	}
}

// WithInstructions sets the free-form instructions returned by initialize.
func WithInstructions(s string) Option {
	return func(e *Engine) { e.instructions = s }
}

// NewEngine builds an engine over the given registries and session store. A
// nil regs disables tools, resources and prompts; a nil store gets a default
// one.
func NewEngine(regs *mcpservice.Registries, store *sessions.Store, opts ...Option) *Engine {
	if regs == nil {
		regs = &mcpservice.Registries{}
	}
	if store == nil {
		store = sessions.NewStore()
	}
	e := &Engine{
		regs:  regs,
		store: store,
		log:   slog.Default(),
		clock: clockwork.NewRealClock(),
		info:  mcp.ImplementationInfo{Name: DefaultServerName, Version: DefaultServerVersion},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Sessions returns the session store.
func (e *Engine) Sessions() *sessions.Store { return e.store }

// Registries returns the registries served by the engine.
func (e *Engine) Registries() *mcpservice.Registries { return e.regs }

// ServerInfo returns the reported implementation name and version.
func (e *Engine) ServerInfo() mcp.ImplementationInfo { return e.info }

// Capabilities reports the surfaces this engine serves.
func (e *Engine) Capabilities() mcp.ServerCapabilities {
	caps := e.regs.Capabilities()
	caps.Sampling = e.sampler != nil
	return caps
}

// Close clears every registry and releases change subscribers.
func (e *Engine) Close() {
	e.regs.Clear()
}

type transportKey struct{}

// WithTransport records on ctx which transport a request arrived on; the
// value seeds the transport kind of sessions created by initialize.
func WithTransport(ctx context.Context, kind mcp.TransportKind) context.Context {
	return context.WithValue(ctx, transportKey{}, kind)
}

// TransportFrom returns the transport recorded by WithTransport.
func TransportFrom(ctx context.Context) (mcp.TransportKind, bool) {
	k, ok := ctx.Value(transportKey{}).(mcp.TransportKind)
	return k, ok
}
