package mcpservice

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/netra-systems/zen-sub153/history"
)

// PermissionFunc resolves the permissions granted to a session. Listing and
// execution consult it for descriptors that declare a permission list.
type PermissionFunc func(ctx context.Context, sessionID string) []string

// Option configures a registry.
type Option func(*options)

type options struct {
	logger      *slog.Logger
	clock       clockwork.Clock
	permissions PermissionFunc
	toolTimeout time.Duration
	executions  history.Recorder[history.ExecutionRecord]
	accesses    history.Recorder[history.AccessRecord]
}

func newOptions(opts []Option) options {
	o := options{
		logger: slog.Default(),
		clock:  clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.executions == nil {
		o.executions = history.NewRing[history.ExecutionRecord](history.DefaultCapacity)
	}
	if o.accesses == nil {
		o.accesses = history.NewRing[history.AccessRecord](history.DefaultCapacity)
	}
	return o
}

// WithLogger sets the logger used for registry warnings and failures.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides the clock used for elapsed-time measurement.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithPermissions enables permission-based filtering.
func WithPermissions(fn PermissionFunc) Option {
	return func(o *options) { o.permissions = fn }
}

// WithToolTimeout bounds every tool invocation. Zero disables the bound.
func WithToolTimeout(d time.Duration) Option {
	return func(o *options) { o.toolTimeout = d }
}

// WithExecutionLog sets the recorder for tool executions. The default is a
// ring of history.DefaultCapacity records.
func WithExecutionLog(r history.Recorder[history.ExecutionRecord]) Option {
	return func(o *options) { o.executions = r }
}

// WithAccessLog sets the recorder for resource reads.
func WithAccessLog(r history.Recorder[history.AccessRecord]) Option {
	return func(o *options) { o.accesses = r }
}

// allowed reports whether the granted set covers every required permission.
func (o *options) allowed(ctx context.Context, sessionID string, required []string) bool {
	if len(required) == 0 || o.permissions == nil {
		return true
	}
	have := make(map[string]struct{})
	for _, p := range o.permissions(ctx, sessionID) {
		have[p] = struct{}{}
	}
	if _, ok := have["*"]; ok {
		return true
	}
	for _, p := range required {
		if _, ok := have[p]; !ok {
			return false
		}
	}
	return true
}
