package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"

	"github.com/netra-systems/zen-sub153/internal/jsonrpc"
	"github.com/netra-systems/zen-sub153/mcp"
	"github.com/netra-systems/zen-sub153/mcpservice"
	"github.com/netra-systems/zen-sub153/platform"
	"github.com/netra-systems/zen-sub153/sessions"
)

var epoch = time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)

type harness struct {
	eng   *Engine
	clock clockwork.FakeClock
	logs  *bytes.Buffer
}

func newHarness(t *testing.T, storeOpts []sessions.Option, opts ...Option) *harness {
	t.Helper()
	clock := clockwork.NewFakeClockAt(epoch)
	logs := &bytes.Buffer{}
	log := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	store := sessions.NewStore(append([]sessions.Option{sessions.WithClock(clock)}, storeOpts...)...)
	svc := platform.NewMemory(platform.WithClock(clock)).Services(nil)
	regs := mcpservice.NewBuiltinRegistries(svc, mcpservice.WithPermissions(store.Permissions), mcpservice.WithLogger(log))
	base := []Option{WithClock(clock), WithLogger(log), WithSampler(svc.Sampler)}
	return &harness{eng: NewEngine(regs, store, append(base, opts...)...), clock: clock, logs: logs}
}

type wireResponse struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      json.RawMessage  `json:"id"`
	Result  json.RawMessage  `json:"result"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (h *harness) call(t *testing.T, sessionID, payload string) wireResponse {
	t.Helper()
	out := h.eng.HandleBytes(context.Background(), sessionID, []byte(payload))
	if out == nil {
		t.Fatalf("no response for %s", payload)
	}
	var resp wireResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		t.Fatalf("decode response %s: %v", out, err)
	}
	return resp
}

func errCode(r wireResponse) int {
	if r.Error == nil {
		return 0
	}
	return r.Error.Code
}

func TestNotificationsNeverAnswered(t *testing.T) {
	h := newHarness(t, nil)
	for _, payload := range []string{
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","method":"ping"}`,
		`{"jsonrpc":"2.0","method":"no/such/method"}`,
		`{"jsonrpc":"2.0","method":"tools/call","params":{}}`,
		`[{"jsonrpc":"2.0","method":"ping"},{"jsonrpc":"2.0","method":"tools/list"}]`,
	} {
		if out := h.eng.HandleBytes(context.Background(), "s", []byte(payload)); out != nil {
			t.Fatalf("HandleBytes(%s) = %s, want nil", payload, out)
		}
	}
}

func TestProtocolErrors(t *testing.T) {
	h := newHarness(t, nil)
	tests := []struct {
		name    string
		payload string
		code    int
		id      string
	}{
		{name: "parse", payload: `{"jsonrpc":`, code: -32700},
		{name: "version", payload: `{"jsonrpc":"1.0","id":1,"method":"ping"}`, code: -32600, id: "1"},
		{name: "method type", payload: `{"jsonrpc":"2.0","id":"x","method":3}`, code: -32600, id: `"x"`},
		{name: "unknown method", payload: `{"jsonrpc":"2.0","id":2,"method":"tools/delete"}`, code: -32601, id: "2"},
		{name: "bad params", payload: `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":5}}`, code: -32602, id: "3"},
		{name: "missing name", payload: `{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{}}`, code: -32000, id: "4"},
		{name: "bad uri", payload: `{"jsonrpc":"2.0","id":5,"method":"resources/read","params":{"uri":"http://threads"}}`, code: -32000, id: "5"},
		{name: "missing prompt", payload: `{"jsonrpc":"2.0","id":6,"method":"prompts/get","params":{"name":"nope"}}`, code: -32000, id: "6"},
		{name: "null id", payload: `{"jsonrpc":"2.0","id":null,"method":"tools/delete"}`, code: -32601, id: "null"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := h.call(t, "s", tt.payload)
			if errCode(resp) != tt.code {
				t.Fatalf("code = %d, want %d (%+v)", errCode(resp), tt.code, resp.Error)
			}
			if string(resp.ID) != tt.id {
				t.Fatalf("id = %q, want %q", resp.ID, tt.id)
			}
		})
	}
	if !strings.Contains(h.logs.String(), "engine.handle_request.business") || !strings.Contains(h.logs.String(), "level=WARN") {
		t.Fatalf("expected business errors logged at warn:\n%s", h.logs.String())
	}
}

func TestBatchIsolation(t *testing.T) {
	h := newHarness(t, nil)
	payload := `[
		{"jsonrpc":"2.0","id":1,"method":"ping"},
		{"jsonrpc":"1.0","id":2,"method":"ping"},
		{"jsonrpc":"2.0","method":"notifications/initialized"},
		{"jsonrpc":"2.0","id":3,"method":"nope"},
		42,
		{"jsonrpc":"2.0","id":4,"method":"tools/list"}
	]`
	out := h.eng.HandleBytes(context.Background(), "s", []byte(payload))
	var resps []wireResponse
	if err := json.Unmarshal(out, &resps); err != nil {
		t.Fatalf("decode batch: %v (%s)", err, out)
	}
	var codes []int
	for _, r := range resps {
		codes = append(codes, errCode(r))
	}
	if diff := cmp.Diff([]int{0, -32600, -32601, -32600, 0}, codes); diff != "" {
		t.Fatalf("batch codes mismatch (-want +got):\n%s", diff)
	}

	if out := h.eng.HandleBytes(context.Background(), "s", []byte(`[]`)); out != nil {
		t.Fatalf("empty batch = %s, want nil", out)
	}
}

func TestInitializeThenCall(t *testing.T) {
	h := newHarness(t, nil, WithServerInfo("netra-test", "9.9.9"))
	ctx := WithTransport(context.Background(), mcp.TransportStdio)

	out := h.eng.HandleBytes(ctx, "", []byte(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","clientInfo":{"name":"cli","version":"1"}}}`))
	var init struct {
		Result mcp.InitializeResult `json:"result"`
	}
	if err := json.Unmarshal(out, &init); err != nil {
		t.Fatalf("decode initialize: %v", err)
	}
	res := init.Result
	if res.SessionID == "" {
		t.Fatalf("initialize returned no session id: %s", out)
	}
	want := mcp.ServerCapabilities{Tools: true, Resources: true, Prompts: true, Sampling: true}
	if diff := cmp.Diff(want, res.Capabilities); diff != "" {
		t.Fatalf("capabilities mismatch (-want +got):\n%s", diff)
	}
	if res.ServerInfo.Name != "netra-test" {
		t.Fatalf("serverInfo = %+v", res.ServerInfo)
	}
	sess, ok := h.eng.Sessions().Get(res.SessionID)
	if !ok || sess.Transport != mcp.TransportStdio || sess.Client.Name != "cli" {
		t.Fatalf("session = %+v, %v", sess, ok)
	}

	resp := h.call(t, res.SessionID, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"list_agents","arguments":{}}}`)
	var call mcp.CallToolResult
	if err := json.Unmarshal(resp.Result, &call); err != nil {
		t.Fatalf("decode call: %v", err)
	}
	if call.IsError || !strings.Contains(call.Content[0].Text, "supervisor") {
		t.Fatalf("call result = %+v", call)
	}
	sess, _ = h.eng.Sessions().Get(res.SessionID)
	if sess.RequestCount != 1 {
		t.Fatalf("RequestCount = %d, want 1", sess.RequestCount)
	}
}

func TestInitializeReusesSessionID(t *testing.T) {
	h := newHarness(t, nil)
	resp := h.call(t, "stdio-1", `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)
	var res mcp.InitializeResult
	if err := json.Unmarshal(resp.Result, &res); err != nil {
		t.Fatal(err)
	}
	if res.SessionID != "stdio-1" || res.ProtocolVersion != mcp.LatestProtocolVersion {
		t.Fatalf("initialize = %+v", res)
	}
}

func TestInitializeSessionIDParam(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	victim := h.eng.Sessions().Create(ctx, sessions.CreateParams{ID: "victim", Transport: mcp.TransportWebSocket})
	h.clock.Advance(time.Minute)

	initialize := func(transportID, param string) mcp.InitializeResult {
		t.Helper()
		resp := h.call(t, transportID, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"sessionId":"`+param+`"}}`)
		var res mcp.InitializeResult
		if err := json.Unmarshal(resp.Result, &res); err != nil {
			t.Fatalf("decode initialize: %v", err)
		}
		return res
	}

	if res := initialize("", "victim"); res.SessionID == "victim" || res.SessionID == "" {
		t.Fatalf("initialize adopted an existing session: %+v", res)
	}
	got, _ := h.eng.Sessions().Get("victim")
	if !got.CreatedAt.Equal(victim.CreatedAt) || got.Transport != mcp.TransportWebSocket {
		t.Fatalf("existing session was refreshed: %+v", got)
	}

	if res := initialize("conn-1", "victim"); res.SessionID != "conn-1" {
		t.Fatalf("SessionID = %q, want the transport id conn-1", res.SessionID)
	}
	if res := initialize("", "fresh"); res.SessionID != "fresh" {
		t.Fatalf("SessionID = %q, want the unused proposal fresh", res.SessionID)
	}
}

func TestToolFailureIsSuccessfulResponse(t *testing.T) {
	h := newHarness(t, nil)
	resp := h.call(t, "s", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"no_such_tool"}}`)
	if resp.Error != nil {
		t.Fatalf("unexpected error %+v", resp.Error)
	}
	var call mcp.CallToolResult
	if err := json.Unmarshal(resp.Result, &call); err != nil {
		t.Fatal(err)
	}
	if !call.IsError || !strings.Contains(call.Content[0].Text, "no_such_tool") {
		t.Fatalf("call = %+v", call)
	}
}

func TestRateLimit(t *testing.T) {
	h := newHarness(t, []sessions.Option{sessions.WithRateLimit(3)})
	h.call(t, "s", `{"jsonrpc":"2.0","id":0,"method":"initialize","params":{"sessionId":"s"}}`)

	for i := range 3 {
		h.clock.Advance(time.Second)
		if resp := h.call(t, "s", `{"jsonrpc":"2.0","id":1,"method":"ping"}`); resp.Error != nil {
			t.Fatalf("request %d rejected: %+v", i+1, resp.Error)
		}
	}
	resp := h.call(t, "s", `{"jsonrpc":"2.0","id":9,"method":"ping"}`)
	if errCode(resp) != -32004 || string(resp.ID) != "9" {
		t.Fatalf("4th request = %+v", resp)
	}

	h.clock.Advance(time.Minute)
	if resp := h.call(t, "s", `{"jsonrpc":"2.0","id":10,"method":"ping"}`); resp.Error != nil {
		t.Fatalf("request after window rejected: %+v", resp.Error)
	}
}

func TestPing(t *testing.T) {
	h := newHarness(t, nil)
	resp := h.call(t, "s", `{"jsonrpc":"2.0","id":"p","method":"ping"}`)
	var ping mcp.PingResult
	if err := json.Unmarshal(resp.Result, &ping); err != nil {
		t.Fatal(err)
	}
	if ping.Timestamp != epoch.Format(time.RFC3339) {
		t.Fatalf("timestamp = %q", ping.Timestamp)
	}
}

type panicSampler struct{}

func (panicSampler) CreateMessage(context.Context, *mcp.CreateMessageRequest) (*mcp.CreateMessageResult, error) {
	panic("sampler exploded")
}

func TestPanicBecomesInternalError(t *testing.T) {
	h := newHarness(t, nil, WithSampler(panicSampler{}))
	resp := h.call(t, "s", `{"jsonrpc":"2.0","id":7,"method":"sampling/createMessage","params":{"messages":[{"role":"user","content":{"type":"text","text":"hi"}}]}}`)
	if errCode(resp) != -32603 || !strings.Contains(resp.Error.Message, "sampler exploded") {
		t.Fatalf("response = %+v", resp.Error)
	}
	if string(resp.ID) != "7" {
		t.Fatalf("id = %s", resp.ID)
	}
	if !strings.Contains(h.logs.String(), "engine.handle_request.panic") {
		t.Fatalf("panic not logged:\n%s", h.logs.String())
	}
}

func TestSamplingDefault(t *testing.T) {
	h := newHarness(t, nil)
	resp := h.call(t, "s", `{"jsonrpc":"2.0","id":1,"method":"sampling/createMessage","params":{"messages":[{"role":"user","content":{"type":"text","text":"hi"}}]}}`)
	var res mcp.CreateMessageResult
	if err := json.Unmarshal(resp.Result, &res); err != nil || res.Role != mcp.RoleAssistant {
		t.Fatalf("createMessage = %s, %v", resp.Result, err)
	}
	resp = h.call(t, "s", `{"jsonrpc":"2.0","id":2,"method":"sampling/createMessage","params":{}}`)
	if errCode(resp) != -32000 {
		t.Fatalf("missing messages = %+v", resp.Error)
	}
}

func TestDisabledCapabilities(t *testing.T) {
	regs := &mcpservice.Registries{Tools: mcpservice.NewToolRegistry(nil)}
	eng := NewEngine(regs, nil)
	if caps := eng.Capabilities(); !caps.Tools || caps.Resources || caps.Prompts || caps.Sampling {
		t.Fatalf("Capabilities() = %+v", caps)
	}
	for _, method := range []string{"resources/list", "prompts/list", "sampling/createMessage"} {
		out := eng.HandleValue(context.Background(), "", map[string]any{"jsonrpc": "2.0", "id": 1, "method": method})
		resp, ok := out.(*jsonrpc.Response)
		if !ok || resp.Error == nil || resp.Error.Code != jsonrpc.ErrorCodeMethodNotFound {
			t.Fatalf("%s = %#v", method, out)
		}
	}
}

func TestHandleValueBatch(t *testing.T) {
	h := newHarness(t, nil)
	out := h.eng.HandleValue(context.Background(), "s", []any{
		map[string]any{"jsonrpc": "2.0", "id": 1, "method": "ping"},
		map[string]any{"jsonrpc": "2.0", "method": "ping"},
	})
	resps, ok := out.([]*jsonrpc.Response)
	if !ok || len(resps) != 1 || resps[0].ID.String() != "1" {
		t.Fatalf("HandleValue = %#v", out)
	}
	if out := h.eng.HandleValue(context.Background(), "s", `{"jsonrpc":"2.0","method":"ping"}`); out != nil {
		t.Fatalf("notification = %#v, want nil", out)
	}
	out = h.eng.HandleValue(context.Background(), "s", `{"jsonrpc":"2.0","id":9,"method":"ping"}`)
	text, ok := out.(string)
	if !ok || !strings.Contains(text, `"id":9`) || !strings.Contains(text, `"result"`) {
		t.Fatalf("string input = %#v, want the encoded reply as a string", out)
	}
}

func TestParseErrorMessage(t *testing.T) {
	h := newHarness(t, nil)
	for _, payload := range []string{`{"jsonrpc":`, `[{"jsonrpc":"2.0"`} {
		resp := h.call(t, "s", payload)
		if errCode(resp) != -32700 {
			t.Fatalf("code = %d, want -32700", errCode(resp))
		}
		msg := resp.Error.Message
		if !strings.HasPrefix(msg, "Parse error: ") || strings.Contains(strings.ToLower(msg[len("Parse error: "):]), "parse error") {
			t.Fatalf("message = %q, want a single Parse error prefix", msg)
		}
	}
}

func TestPermissionFilteringViaSessionState(t *testing.T) {
	h := newHarness(t, nil)
	h.eng.Registries().Tools.Register(mcpservice.Tool{
		Name:        "admin_only",
		Permissions: []string{"admin"},
		Handler: mcpservice.ToolFunc(func(context.Context, map[string]any, string) (any, error) {
			return "ok", nil
		}),
	})
	h.call(t, "", `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"sessionId":"boss"}}`)
	if err := h.eng.Sessions().SetState("boss", sessions.PermissionsKey, []string{"admin"}); err != nil {
		t.Fatal(err)
	}

	count := func(sessionID string) int {
		resp := h.call(t, sessionID, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
		var res mcp.ListToolsResult
		if err := json.Unmarshal(resp.Result, &res); err != nil {
			t.Fatal(err)
		}
		return len(res.Tools)
	}
	if guest, boss := count("guest"), count("boss"); boss != guest+1 {
		t.Fatalf("guest sees %d tools, boss sees %d", guest, boss)
	}
}

func TestWatchListChanges(t *testing.T) {
	h := newHarness(t, nil)
	got := make(chan string, 4)
	w := MessageWriterFunc(func(_ context.Context, msg jsonrpc.Message) error {
		var n jsonrpc.Request
		if err := json.Unmarshal(msg, &n); err != nil {
			return err
		}
		got <- n.Method
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.eng.WatchListChanges(ctx, w)
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for {
		h.eng.Registries().Prompts.Register(mcpservice.Prompt{Name: "late", Template: "x"})
		select {
		case m := <-got:
			if m != mcp.PromptsListChangedNotification {
				t.Fatalf("notification = %q", m)
			}
			cancel()
			<-done
			return
		case <-time.After(20 * time.Millisecond):
		case <-deadline:
			t.Fatalf("no list_changed notification")
		}
	}
}
