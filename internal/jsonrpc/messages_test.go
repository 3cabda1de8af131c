package jsonrpc

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestDecodeRequest(t *testing.T) {
	tests := []struct {
		name       string
		in         string
		wantMethod string
		wantID     any
		notify     bool
		wantParse  bool
		wantReason bool
	}{
		{name: "numeric id", in: `{"jsonrpc":"2.0","id":7,"method":"ping"}`, wantMethod: "ping", wantID: int64(7)},
		{name: "id above 2^53", in: `{"jsonrpc":"2.0","id":9007199254740993,"method":"ping"}`, wantMethod: "ping", wantID: int64(9007199254740993)},
		{name: "id above int64", in: `{"jsonrpc":"2.0","id":18446744073709551617,"method":"ping"}`, wantMethod: "ping", wantID: json.Number("18446744073709551617")},
		{name: "string id", in: `{"jsonrpc":"2.0","id":"a","method":"ping","params":{}}`, wantMethod: "ping", wantID: "a"},
		{name: "null id", in: `{"jsonrpc":"2.0","id":null,"method":"ping"}`, wantMethod: "ping", wantID: nil},
		{name: "notification", in: `{"jsonrpc":"2.0","method":"notifications/initialized"}`, wantMethod: "notifications/initialized", notify: true},
		{name: "null params", in: `{"jsonrpc":"2.0","id":1,"method":"ping","params":null}`, wantMethod: "ping", wantID: int64(1)},
		{name: "syntax error", in: `{"jsonrpc":`, wantParse: true},
		{name: "not an object", in: `"ping"`, wantReason: true},
		{name: "wrong version", in: `{"jsonrpc":"1.0","id":1,"method":"ping"}`, wantReason: true},
		{name: "missing method", in: `{"jsonrpc":"2.0","id":1}`, wantReason: true},
		{name: "numeric method", in: `{"jsonrpc":"2.0","id":1,"method":5}`, wantReason: true},
		{name: "scalar params", in: `{"jsonrpc":"2.0","id":1,"method":"ping","params":3}`, wantReason: true},
		{name: "object id", in: `{"jsonrpc":"2.0","id":{},"method":"ping"}`, wantReason: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := DecodeRequest([]byte(tt.in))
			if tt.wantParse {
				if !errors.Is(err, ErrParse) {
					t.Fatalf("err = %v, want ErrParse", err)
				}
				return
			}
			if tt.wantReason {
				var ire *InvalidRequestError
				if !errors.As(err, &ire) {
					t.Fatalf("err = %v, want *InvalidRequestError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if req.Method != tt.wantMethod {
				t.Fatalf("Method = %q, want %q", req.Method, tt.wantMethod)
			}
			if req.IsNotification() != tt.notify {
				t.Fatalf("IsNotification() = %v, want %v", req.IsNotification(), tt.notify)
			}
			if !tt.notify && req.ID.Value() != tt.wantID {
				t.Fatalf("ID = %#v, want %#v", req.ID.Value(), tt.wantID)
			}
		})
	}
}

func TestInvalidRequestKeepsID(t *testing.T) {
	_, err := DecodeRequest([]byte(`{"jsonrpc":"1.0","id":"abc","method":"ping"}`))
	var ire *InvalidRequestError
	if !errors.As(err, &ire) {
		t.Fatalf("err = %v, want *InvalidRequestError", err)
	}
	if ire.ID.String() != "abc" {
		t.Fatalf("ID = %q, want abc", ire.ID.String())
	}
}

func TestResponseIDEncoding(t *testing.T) {
	tests := []struct {
		name string
		id   *RequestID
		want string
	}{
		{name: "absent", id: nil, want: `{"jsonrpc":"2.0","error":{"code":-32700,"message":"Parse error"}}`},
		{name: "null", id: NullRequestID(), want: `{"jsonrpc":"2.0","error":{"code":-32700,"message":"Parse error"},"id":null}`},
		{name: "number", id: NewRequestID(3), want: `{"jsonrpc":"2.0","error":{"code":-32700,"message":"Parse error"},"id":3}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(NewErrorResponse(tt.id, ErrorCodeParseError, "Parse error", nil))
			if err != nil {
				t.Fatal(err)
			}
			if string(b) != tt.want {
				t.Fatalf("got %s, want %s", b, tt.want)
			}
		})
	}
}

func TestLargeIDRoundTrip(t *testing.T) {
	for _, lit := range []string{"9007199254740993", "18446744073709551617", "1.5", "-42"} {
		t.Run(lit, func(t *testing.T) {
			req, err := DecodeRequest([]byte(`{"jsonrpc":"2.0","id":` + lit + `,"method":"ping"}`))
			if err != nil {
				t.Fatalf("DecodeRequest: %v", err)
			}
			resp, err := NewResultResponse(req.ID, nil)
			if err != nil {
				t.Fatal(err)
			}
			b, err := json.Marshal(resp)
			if err != nil {
				t.Fatal(err)
			}
			want := `"id":` + lit
			if !strings.Contains(string(b), want) {
				t.Fatalf("response %s does not echo %s", b, want)
			}
			if req.ID.String() != lit {
				t.Fatalf("String() = %q, want %q", req.ID.String(), lit)
			}
		})
	}
}

func TestIsBatch(t *testing.T) {
	if !IsBatch([]byte("  [1]")) {
		t.Fatalf("expected array to be a batch")
	}
	if IsBatch([]byte(`{"a":1}`)) {
		t.Fatalf("object is not a batch")
	}
}
