// Package websocket serves the engine over WebSocket connections. Each
// connection owns a fresh session; its requests are executed strictly in
// arrival order by a single worker.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/netra-systems/zen-sub153/auth"
	"github.com/netra-systems/zen-sub153/internal/engine"
	"github.com/netra-systems/zen-sub153/internal/jsonrpc"
	"github.com/netra-systems/zen-sub153/internal/logctx"
	"github.com/netra-systems/zen-sub153/mcp"
	"github.com/netra-systems/zen-sub153/sessions"
)

const (
	DefaultHeartbeat = 30 * time.Second
	DefaultQueueSize = 64
	DefaultReadLimit = 4 << 20

	// APIKeyParam is the query parameter carrying the connection's API key.
	APIKeyParam = "api_key"
	// UserStateKey is the session state key holding the authenticated subject.
	UserStateKey = "user"
)

// ErrUnknownConnection is returned by SendToSession for ids without a live
// connection.
var ErrUnknownConnection = errors.New("no connection for session")

var errPeerClosed = errors.New("peer closed connection")

var _ engine.MessageWriter = (*Handler)(nil)

// Option configures a Handler.
type Option func(*Handler)

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
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

// WithAuthenticator checks the api_key query parameter of new connections.
func WithAuthenticator(a auth.Authenticator) Option {
	return func(h *Handler) { h.auth = a }
}

// WithRequireKey rejects connections without an api_key.
func WithRequireKey(require bool) Option {
	return func(h *Handler) { h.requireKey = require }
}

func WithHeartbeat(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.heartbeat = d
		}
	}
}

// WithQueueSize bounds the number of received messages waiting for the
// worker. A full queue stops reading from the socket.
func WithQueueSize(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

// WithRateLimit throttles inbound messages per connection. Messages over the
// limit are answered with a rate limit error and not executed.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(h *Handler) {
		h.limit = limit
		h.burst = burst
	}
}

// WithOriginPatterns sets the host patterns accepted for cross-origin
// connections.
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Handler) { h.origins = patterns }
}

// WithReadLimit bounds the size of one inbound message.
func WithReadLimit(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.readLimit = n
		}
	}
}

// Handler accepts WebSocket connections and tracks them by session id.
type Handler struct {
	eng   *engine.Engine
	log   *slog.Logger
	clock clockwork.Clock

	auth       auth.Authenticator
	requireKey bool

	heartbeat time.Duration
	queueSize int
	readLimit int64
	limit     rate.Limit
	burst     int
	origins   []string

	mu    sync.RWMutex
	conns map[string]*conn
}

type conn struct {
	id string
	ws *websocket.Conn
}

func (c *conn) write(ctx context.Context, msg []byte) error {
	return c.ws.Write(ctx, websocket.MessageText, msg)
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
		queueSize: DefaultQueueSize,
		readLimit: DefaultReadLimit,
		conns:     make(map[string]*conn),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.requireKey && h.auth == nil {
		return nil, errors.New("api key required but no authenticator configured")
	}
	if _, ok := h.log.Handler().(logctx.Handler); !ok {
		h.log = logctx.New(h.log.Handler())
	}
	return h, nil
}

// ServeHTTP upgrades the request and serves the connection until either side
// closes it.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := engine.WithTransport(r.Context(), mcp.TransportWebSocket)
	ctx = logctx.WithRequestData(ctx, &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		UserAgent:  r.UserAgent(),
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})

	user, ok := h.checkKey(ctx, w, r)
	if !ok {
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		h.log.WarnContext(ctx, "ws.accept.fail", slog.String("err", err.Error()))
		return
	}
	ws.SetReadLimit(h.readLimit)

	c := &conn{id: uuid.NewString(), ws: ws}
	store := h.eng.Sessions()
	store.Create(ctx, sessions.CreateParams{ID: c.id, Transport: mcp.TransportWebSocket, ProtocolVersion: mcp.LatestProtocolVersion})
	if user != nil {
		_ = store.SetState(c.id, sessions.PermissionsKey, user.Permissions())
		_ = store.SetState(c.id, UserStateKey, user.UserID())
	}
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: c.id, Transport: string(mcp.TransportWebSocket)})

	h.add(c)
	defer func() {
		h.remove(c.id)
		store.Delete(c.id)
	}()
	h.log.InfoContext(ctx, "ws.conn.open")

	err = h.run(ctx, c)
	switch {
	case err == nil:
		_ = ws.Close(websocket.StatusNormalClosure, "")
		h.log.InfoContext(ctx, "ws.conn.close")
	default:
		_ = ws.CloseNow()
		h.log.WarnContext(ctx, "ws.conn.fail", slog.String("err", err.Error()))
	}
}

func (h *Handler) checkKey(ctx context.Context, w http.ResponseWriter, r *http.Request) (auth.UserInfo, bool) {
	key := r.URL.Query().Get(APIKeyParam)
	if h.auth == nil {
		return nil, true
	}
	if key == "" {
		if h.requireKey {
			http.Error(w, "api key required", http.StatusUnauthorized)
			h.log.InfoContext(ctx, "ws.auth.missing")
			return nil, false
		}
		return nil, true
	}
	ui, err := h.auth.CheckAuthentication(ctx, key)
	switch {
	case err == nil:
		return ui, true
	case errors.Is(err, auth.ErrInsufficientScope):
		http.Error(w, "insufficient scope", http.StatusForbidden)
	case errors.Is(err, auth.ErrUnauthorized):
		http.Error(w, "invalid api key", http.StatusUnauthorized)
	default:
		http.Error(w, "authentication failed", http.StatusInternalServerError)
	}
	h.log.InfoContext(ctx, "ws.auth.fail", slog.String("err", err.Error()))
	return nil, false
}

// run greets the peer and then drives the receive loop, the worker and the
// heartbeat until one of them stops. A clean close by the peer returns nil.
func (h *Handler) run(ctx context.Context, c *conn) error {
	hello, err := jsonrpc.NewNotification(mcp.ConnectionEstablishedNotification, mcp.ConnectionEstablishedParams{
		SessionID:  c.id,
		ServerInfo: h.eng.ServerInfo(),
	})
	if err != nil {
		return err
	}
	if err := wsjson.Write(ctx, c.ws, hello); err != nil {
		return fmt.Errorf("write greeting: %w", err)
	}

	var limiter *rate.Limiter
	if h.limit > 0 {
		limiter = rate.NewLimiter(h.limit, h.burst)
	}

	queue := make(chan []byte, h.queueSize)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(queue)
		return h.receive(gctx, c, limiter, queue)
	})
	g.Go(func() error {
		for data := range queue {
			out := h.eng.HandleBytes(gctx, c.id, data)
			if out == nil {
				continue
			}
			if err := c.write(gctx, out); err != nil {
				return fmt.Errorf("write response: %w", err)
			}
		}
		return nil
	})
	g.Go(func() error {
		return h.beat(gctx, c)
	})

	err = g.Wait()
	if errors.Is(err, errPeerClosed) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (h *Handler) receive(ctx context.Context, c *conn, limiter *rate.Limiter, queue chan<- []byte) error {
	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return errPeerClosed
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read: %w", err)
		}
		if limiter != nil && !limiter.Allow() {
			if err := h.reject(ctx, c, data); err != nil {
				return err
			}
			continue
		}
		select {
		case queue <- data:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// reject answers a throttled message without executing it. Notifications get
// no answer.
func (h *Handler) reject(ctx context.Context, c *conn, data []byte) error {
	var id *jsonrpc.RequestID
	if req, err := jsonrpc.DecodeRequest(data); err == nil {
		if req.IsNotification() {
			return nil
		}
		id = req.ID
	}
	h.log.WarnContext(ctx, "ws.message.rate_limited")
	return wsjson.Write(ctx, c.ws, jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeRateLimited, "Rate limit exceeded", nil))
}

func (h *Handler) beat(ctx context.Context, c *conn) error {
	t := h.clock.NewTicker(h.heartbeat)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.Chan():
			msg, err := engine.Notification(mcp.HeartbeatNotification, mcp.HeartbeatParams{
				Timestamp: h.clock.Now().UTC().Format(time.RFC3339),
			})
			if err != nil {
				return err
			}
			if err := c.write(ctx, msg); err != nil {
				return fmt.Errorf("write heartbeat: %w", err)
			}
		}
	}
}

func (h *Handler) add(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c.id] = c
}

func (h *Handler) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, id)
}

// Connections reports the number of live connections.
func (h *Handler) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// SendToSession writes msg to the connection owning session id.
func (h *Handler) SendToSession(ctx context.Context, id string, msg jsonrpc.Message) error {
	h.mu.RLock()
	c, ok := h.conns[id]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConnection, id)
	}
	return c.write(ctx, msg)
}

// Broadcast writes msg to every connection except those in exclude. Failures
// are logged per connection and the first one is returned.
func (h *Handler) Broadcast(ctx context.Context, msg jsonrpc.Message, exclude ...string) error {
	h.mu.RLock()
	targets := make([]*conn, 0, len(h.conns))
	for id, c := range h.conns {
		if !slices.Contains(exclude, id) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	var first error
	for _, c := range targets {
		if err := c.write(ctx, msg); err != nil {
			h.log.WarnContext(ctx, "ws.broadcast.fail", slog.String("session_id", c.id), slog.String("err", err.Error()))
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// WriteMessage broadcasts msg to every connection.
func (h *Handler) WriteMessage(ctx context.Context, msg jsonrpc.Message) error {
	return h.Broadcast(ctx, msg)
}
