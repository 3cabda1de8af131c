package websocket_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/netra-systems/zen-sub153/auth"
	"github.com/netra-systems/zen-sub153/internal/engine"
	"github.com/netra-systems/zen-sub153/mcp"
	"github.com/netra-systems/zen-sub153/mcpservice"
	"github.com/netra-systems/zen-sub153/platform"
	"github.com/netra-systems/zen-sub153/sessions"
	mcpws "github.com/netra-systems/zen-sub153/websocket"
)

type wireMessage struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newEngine() *engine.Engine {
	store := sessions.NewStore()
	svc := platform.NewMemory().Services(nil)
	regs := mcpservice.NewBuiltinRegistries(svc, mcpservice.WithPermissions(store.Permissions))
	return engine.NewEngine(regs, store,
		engine.WithServerInfo("ws-test", "0.0.1"),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func mustServer(t *testing.T, eng *engine.Engine, opts ...mcpws.Option) (*mcpws.Handler, *httptest.Server) {
	t.Helper()
	base := []mcpws.Option{mcpws.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}
	h, err := mcpws.New(eng, append(base, opts...)...)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return h, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) (*websocket.Conn, string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/mcp/ws" + query
	c, _, err := websocket.Dial(ctx, u, nil)
	if err != nil {
		t.Fatalf("Dial(%s): %v", u, err)
	}
	t.Cleanup(func() { _ = c.CloseNow() })

	hello := read(t, c)
	if hello.Method != mcp.ConnectionEstablishedNotification {
		t.Fatalf("first message method = %q, want %q", hello.Method, mcp.ConnectionEstablishedNotification)
	}
	var params mcp.ConnectionEstablishedParams
	if err := json.Unmarshal(hello.Params, &params); err != nil || params.SessionID == "" {
		t.Fatalf("connection.established params %s (err %v)", hello.Params, err)
	}
	return c, params.SessionID
}

func read(t *testing.T, c *websocket.Conn) wireMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var msg wireMessage
	if err := wsjson.Read(ctx, c, &msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func send(t *testing.T, c *websocket.Conn, payload string) {
	t.Helper()
	if err := c.Write(context.Background(), websocket.MessageText, []byte(payload)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestConnectionOpensSession(t *testing.T) {
	eng := newEngine()
	h, srv := mustServer(t, eng)
	_, id := dial(t, srv, "")

	sess, ok := eng.Sessions().Get(id)
	if !ok {
		t.Fatalf("session %s not created", id)
	}
	if sess.Transport != mcp.TransportWebSocket {
		t.Fatalf("Transport = %q, want websocket", sess.Transport)
	}
	if h.Connections() != 1 {
		t.Fatalf("Connections() = %d, want 1", h.Connections())
	}
}

func TestRequestsAnsweredInOrder(t *testing.T) {
	_, srv := mustServer(t, newEngine())
	c, _ := dial(t, srv, "")

	send(t, c, `{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	send(t, c, `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	send(t, c, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"list_agents"}}`)
	send(t, c, `{"jsonrpc":"2.0","id":3,"method":"ping"}`)

	var ids []string
	for range 3 {
		ids = append(ids, string(read(t, c).ID))
	}
	if diff := cmp.Diff([]string{"1", "2", "3"}, ids); diff != "" {
		t.Fatalf("response order mismatch (-want +got):\n%s", diff)
	}
}

func TestMalformedMessage(t *testing.T) {
	_, srv := mustServer(t, newEngine())
	c, _ := dial(t, srv, "")

	send(t, c, `{not json`)
	msg := read(t, c)
	if msg.Error == nil || msg.Error.Code != -32700 {
		t.Fatalf("expected parse error, got %+v", msg)
	}
}

func TestHeartbeat(t *testing.T) {
	clock := clockwork.NewFakeClock()
	_, srv := mustServer(t, newEngine(), mcpws.WithClock(clock))
	c, _ := dial(t, srv, "")

	clock.BlockUntil(1)
	clock.Advance(mcpws.DefaultHeartbeat)
	if msg := read(t, c); msg.Method != mcp.HeartbeatNotification {
		t.Fatalf("expected heartbeat, got %+v", msg)
	}
}

func TestAPIKey(t *testing.T) {
	eng := newEngine()
	keys := auth.Static{"k1": {ID: "user-1", Perms: []string{"*"}}}
	_, srv := mustServer(t, eng, mcpws.WithAuthenticator(keys), mcpws.WithRequireKey(true))
	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/mcp/ws"

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{name: "missing", query: "", want: http.StatusUnauthorized},
		{name: "wrong", query: "?api_key=nope", want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := websocket.Dial(context.Background(), base+tt.query, nil)
			if err == nil {
				t.Fatalf("expected dial to fail")
			}
			if resp == nil || resp.StatusCode != tt.want {
				t.Fatalf("response = %+v, want status %d", resp, tt.want)
			}
		})
	}

	_, id := dial(t, srv, "?api_key=k1")
	if diff := cmp.Diff([]string{"*"}, eng.Sessions().Permissions(context.Background(), id)); diff != "" {
		t.Fatalf("permissions mismatch (-want +got):\n%s", diff)
	}
}

func TestInboundRateLimit(t *testing.T) {
	_, srv := mustServer(t, newEngine(), mcpws.WithRateLimit(rate.Every(time.Hour), 1))
	c, _ := dial(t, srv, "")

	send(t, c, `{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	if msg := read(t, c); msg.Error != nil {
		t.Fatalf("first ping failed: %+v", msg.Error)
	}
	send(t, c, `{"jsonrpc":"2.0","id":2,"method":"ping"}`)
	msg := read(t, c)
	if msg.Error == nil || msg.Error.Code != -32004 || string(msg.ID) != "2" {
		t.Fatalf("expected rate limit error for id 2, got %+v", msg)
	}
}

func TestSendAndBroadcast(t *testing.T) {
	h, srv := mustServer(t, newEngine())
	c1, _ := dial(t, srv, "")
	c2, id2 := dial(t, srv, "")
	ctx := context.Background()

	msg, _ := engine.Notification(mcp.ToolsListChangedNotification, nil)
	if err := h.Broadcast(ctx, msg, id2); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if got := read(t, c1); got.Method != mcp.ToolsListChangedNotification {
		t.Fatalf("c1 received %+v", got)
	}

	direct, _ := engine.Notification(mcp.PromptsListChangedNotification, nil)
	if err := h.SendToSession(ctx, id2, direct); err != nil {
		t.Fatalf("SendToSession: %v", err)
	}
	if got := read(t, c2); got.Method != mcp.PromptsListChangedNotification {
		t.Fatalf("c2 should only see the direct message, got %+v", got)
	}

	if err := h.SendToSession(ctx, "missing", direct); err == nil {
		t.Fatalf("expected error for unknown session")
	}
}

func TestDisconnectDropsSession(t *testing.T) {
	eng := newEngine()
	h, srv := mustServer(t, eng)
	c, id := dial(t, srv, "")

	_ = c.Close(websocket.StatusNormalClosure, "bye")
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := eng.Sessions().Get(id); !ok && h.Connections() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("session %s still present after disconnect", id)
}

func TestNewValidatesOptions(t *testing.T) {
	if _, err := mcpws.New(nil); err == nil {
		t.Fatalf("expected error for nil engine")
	}
	if _, err := mcpws.New(newEngine(), mcpws.WithRequireKey(true)); err == nil {
		t.Fatalf("expected error when a key is required without an authenticator")
	}
}
