package streaminghttp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jonboulle/clockwork"

	"github.com/netra-systems/zen-sub153/auth"
	"github.com/netra-systems/zen-sub153/broker"
	"github.com/netra-systems/zen-sub153/broker/memory"
	"github.com/netra-systems/zen-sub153/internal/engine"
	"github.com/netra-systems/zen-sub153/internal/jsonrpc"
	"github.com/netra-systems/zen-sub153/internal/logctx"
	"github.com/netra-systems/zen-sub153/internal/wellknown"
)

var (
	_ http.Handler         = (*Handler)(nil)
	_ engine.MessageWriter = (*Handler)(nil)
)

var (
	jsonMediaType         = contenttype.NewMediaType("application/json")
	eventStreamMediaType  = contenttype.NewMediaType("text/event-stream")
	eventStreamMediaTypes = []contenttype.MediaType{eventStreamMediaType}
)

const (
	lastEventIDHeader     = "Last-Event-ID"
	mcpSessionIDHeader    = "Mcp-Session-Id"
	wwwAuthenticateHeader = "WWW-Authenticate"

	// AnonymousSession is the session id shared by unauthenticated HTTP
	// callers that present no Mcp-Session-Id header.
	AnonymousSession = "anonymous"

	DefaultBasePath     = "/mcp"
	DefaultHeartbeat    = 30 * time.Second
	DefaultMaxBodyBytes = 4 << 20

	prmPathPrefix = "/.well-known/oauth-protected-resource"
)

// writeJSONError emits a transport-level rejection. It does not use JSON-RPC
// framing. Shape: {"error":{"code":<httpStatus>,"message":"<reason>"}}
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	if ct := w.Header().Get("Content-Type"); ct == "" || ct == jsonMediaType.String() {
		w.Header().Set("Content-Type", jsonMediaType.String())
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": status, "message": msg}})
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Option configures the Handler.
type Option func(*Handler)

// WithLogger sets the logger. It is wrapped so request details on the
// context are rendered as attributes.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// WithBroker sets the broker queuing server-initiated messages for SSE
// delivery. The default is an in-memory broker.
func WithBroker(b broker.Broker) Option {
	return func(h *Handler) {
		if b != nil {
			h.broker = b
		}
	}
}

// WithAuthenticator enables bearer-token identification of callers.
func WithAuthenticator(a auth.Authenticator) Option {
	return func(h *Handler) { h.auth = a }
}

// WithRequireAuth rejects requests without a bearer token.
func WithRequireAuth(require bool) Option {
	return func(h *Handler) { h.requireAuth = require }
}

// WithHeartbeat sets the SSE heartbeat interval.
func WithHeartbeat(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.heartbeat = d
		}
	}
}

// WithClock overrides the clock driving heartbeats.
func WithClock(c clockwork.Clock) Option {
	return func(h *Handler) {
		if c != nil {
			h.clock = c
		}
	}
}

// WithCORS sets the allowed cross-origin request origins.
func WithCORS(origins ...string) Option {
	return func(h *Handler) { h.origins = origins }
}

// WithBasePath mounts the endpoints under p instead of /mcp.
func WithBasePath(p string) Option {
	return func(h *Handler) {
		p = "/" + strings.Trim(p, "/")
		if p != "/" {
			h.basePath = p
		}
	}
}

// WithResourceMetadata publishes an OAuth protected resource metadata
// document and references it from WWW-Authenticate challenges.
func WithResourceMetadata(md wellknown.ProtectedResourceMetadata) Option {
	return func(h *Handler) { h.prm = &md }
}

// WithRealm sets the realm advertised in WWW-Authenticate challenges. It is
// omitted when empty.
func WithRealm(realm string) Option {
	return func(h *Handler) { h.realm = strings.TrimSpace(realm) }
}

// WithMaxBodyBytes bounds the size of POST bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBody = n
		}
	}
}

// Handler serves the engine over HTTP: JSON-RPC posts, REST convenience
// routes and a per-session Server-Sent Events stream.
type Handler struct {
	eng    *engine.Engine
	router chi.Router
	log    *slog.Logger
	clock  clockwork.Clock
	broker broker.Broker

	auth        auth.Authenticator
	requireAuth bool
	realm       string
	prm         *wellknown.ProtectedResourceMetadata

	heartbeat time.Duration
	origins   []string
	basePath  string
	maxBody   int64

	mu      sync.Mutex
	streams map[string]int
}

// New builds a Handler over eng.
func New(eng *engine.Engine, opts ...Option) (*Handler, error) {
	if eng == nil {
		return nil, errors.New("engine is required")
	}
	h := &Handler{
		eng:       eng,
		log:       slog.Default(),
		clock:     clockwork.NewRealClock(),
		heartbeat: DefaultHeartbeat,
		basePath:  DefaultBasePath,
		maxBody:   DefaultMaxBodyBytes,
		origins:   []string{"*"},
		streams:   make(map[string]int),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.requireAuth && h.auth == nil {
		return nil, errors.New("authentication required but no authenticator configured")
	}
	if h.broker == nil {
		h.broker = memory.New()
	}
	if _, ok := h.log.Handler().(logctx.Handler); !ok {
		h.log = logctx.New(h.log.Handler())
	}
	h.router = h.routes()
	return h, nil
}

func (h *Handler) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", mcpSessionIDHeader, lastEventIDHeader},
		ExposedHeaders:   []string{mcpSessionIDHeader, wwwAuthenticateHeader},
		AllowCredentials: false,
		MaxAge:           600,
	}))

	r.Route(h.basePath, func(r chi.Router) {
		r.Get("/health", h.handleHealth)
		r.Get("/stream", h.handleStream)
		r.Post("/", h.handlePost)
		r.Post("/batch", h.handleBatch)
		for route, method := range restRoutes {
			r.Post(route, h.handleREST(method))
		}
	})

	if h.prm != nil {
		r.Get(h.prmPath(), h.handleProtectedResourceMetadata)
	}
	return r
}

func (h *Handler) prmPath() string { return prmPathPrefix + h.basePath }

// prmURL is the absolute metadata URL when the resource is known, else the
// path alone.
func (h *Handler) prmURL() string {
	if h.prm == nil {
		return ""
	}
	if res := strings.TrimSuffix(h.prm.Resource, h.basePath); strings.HasPrefix(res, "http") {
		return strings.TrimSuffix(res, "/") + h.prmPath()
	}
	return h.prmPath()
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	info := h.eng.ServerInfo()
	body, _ := json.Marshal(map[string]any{
		"status":   "ok",
		"server":   info,
		"sessions": h.eng.Sessions().Len(),
		"streams":  h.openStreams(),
	})
	writeJSON(w, http.StatusOK, body)
}

func (h *Handler) handleProtectedResourceMetadata(w http.ResponseWriter, r *http.Request) {
	body, err := json.Marshal(h.prm)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode protected resource metadata")
		return
	}
	writeJSON(w, http.StatusOK, body)
}

// SendToSession queues msg for the SSE stream of session id.
func (h *Handler) SendToSession(ctx context.Context, id string, msg jsonrpc.Message) error {
	_, err := h.broker.Publish(ctx, id, msg)
	return err
}

// Broadcast queues msg for every live session except those in exclude.
// Failures are logged per session and the first one is returned.
func (h *Handler) Broadcast(ctx context.Context, msg jsonrpc.Message, exclude ...string) error {
	var first error
	for _, sess := range h.eng.Sessions().List() {
		if slices.Contains(exclude, sess.ID) {
			continue
		}
		if err := h.SendToSession(ctx, sess.ID, msg); err != nil {
			h.log.WarnContext(ctx, "http.broadcast.fail", slog.String("session_id", sess.ID), slog.String("err", err.Error()))
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// WriteMessage broadcasts msg to every session.
func (h *Handler) WriteMessage(ctx context.Context, msg jsonrpc.Message) error {
	return h.Broadcast(ctx, msg)
}

// Forget drops the queued messages of session id, typically once the session
// expired.
func (h *Handler) Forget(ctx context.Context, id string) {
	if err := h.broker.Cleanup(ctx, id); err != nil {
		h.log.WarnContext(ctx, "http.session.cleanup.fail", slog.String("session_id", id), slog.String("err", err.Error()))
	}
}

func (h *Handler) openStreams() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, c := range h.streams {
		n += c
	}
	return n
}

func (h *Handler) trackStream(id string, delta int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.streams[id] += delta
	if h.streams[id] <= 0 {
		delete(h.streams, id)
	}
}
