package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ProtocolVersion is the supported JSON-RPC protocol version.
const ProtocolVersion = "2.0"

// Message is the raw JSON representation of a JSON-RPC message.
type Message []byte

// Request represents a JSON-RPC request (with an ID) or notification (without ID).
type Request struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Method         string          `json:"method"`
	Params         json.RawMessage `json:"params,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

// IsNotification reports whether the request carried no id member at all.
func (r *Request) IsNotification() bool { return r.ID == nil }

// Response represents a JSON-RPC response.
type Response struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *Error          `json:"error,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

// NewResultResponse builds a successful JSON-RPC response object.
func NewResultResponse(id *RequestID, result any) (*Response, error) {
	resultBytes, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	return &Response{
		JSONRPCVersion: ProtocolVersion,
		Result:         resultBytes,
		ID:             id,
	}, nil
}

// NewErrorResponse builds an error JSON-RPC response with the given code.
// The id member is emitted only when id is non-nil.
func NewErrorResponse(id *RequestID, code ErrorCode, message string, data any) *Response {
	return &Response{
		JSONRPCVersion: ProtocolVersion,
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    data,
		},
		ID: id,
	}
}

// NewNotification builds a server-initiated notification. Marshal failures of
// params are reported to the caller rather than silently dropped.
func NewNotification(method string, params any) (*Request, error) {
	n := &Request{JSONRPCVersion: ProtocolVersion, Method: method}
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal notification params: %w", err)
		}
		n.Params = b
	}
	return n, nil
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Data    any       `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// InvalidRequestError is returned by DecodeRequest when a message is valid JSON
// but not a valid JSON-RPC request. ID is populated whenever it could be
// recovered from the input so the error response can be correlated.
type InvalidRequestError struct {
	ID     *RequestID
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return "invalid request: " + e.Reason
}

// ErrParse wraps JSON syntax failures surfaced by DecodeRequest.
var ErrParse = errors.New("parse error")

// DecodeRequest parses a single JSON-RPC request object and enforces JSON-RPC
// 2.0 structure: version must be "2.0", method must be a string, params must
// be an object or array when present, and id must be a string, number or null
// when present. The returned error either wraps ErrParse or is an
// *InvalidRequestError.
func DecodeRequest(data []byte) (*Request, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		var syn *json.SyntaxError
		if errors.As(err, &syn) {
			return nil, fmt.Errorf("%w: %w", ErrParse, err)
		}
		return nil, &InvalidRequestError{Reason: "request must be a JSON object"}
	}
	return requestFromFields(fields)
}

func requestFromFields(fields map[string]json.RawMessage) (*Request, error) {
	req := &Request{}

	if rawID, ok := fields["id"]; ok {
		switch kindOf(rawID) {
		case kindString, kindNumber, kindNull:
			id := &RequestID{}
			if err := id.UnmarshalJSON(rawID); err != nil {
				return nil, &InvalidRequestError{Reason: err.Error()}
			}
			req.ID = id
		default:
			return nil, &InvalidRequestError{Reason: "id must be a string, number or null"}
		}
	}

	rawVersion, ok := fields["jsonrpc"]
	if !ok || json.Unmarshal(rawVersion, &req.JSONRPCVersion) != nil || req.JSONRPCVersion != ProtocolVersion {
		return nil, &InvalidRequestError{ID: req.ID, Reason: fmt.Sprintf("jsonrpc must be %q", ProtocolVersion)}
	}

	rawMethod, ok := fields["method"]
	if !ok || kindOf(rawMethod) != kindString {
		return nil, &InvalidRequestError{ID: req.ID, Reason: "method must be a string"}
	}
	if err := json.Unmarshal(rawMethod, &req.Method); err != nil || req.Method == "" {
		return nil, &InvalidRequestError{ID: req.ID, Reason: "method must be a non-empty string"}
	}

	if rawParams, ok := fields["params"]; ok {
		switch kindOf(rawParams) {
		case kindObject, kindArray:
			req.Params = rawParams
		case kindNull:
			// treated as omitted
		default:
			return nil, &InvalidRequestError{ID: req.ID, Reason: "params must be an object or array"}
		}
	}

	return req, nil
}

type jsonKind int

const (
	kindInvalid jsonKind = iota
	kindObject
	kindArray
	kindString
	kindNumber
	kindNull
	kindBool
)

func kindOf(raw json.RawMessage) jsonKind {
	b := bytes.TrimSpace(raw)
	if len(b) == 0 {
		return kindInvalid
	}
	switch b[0] {
	case '{':
		return kindObject
	case '[':
		return kindArray
	case '"':
		return kindString
	case 'n':
		return kindNull
	case 't', 'f':
		return kindBool
	default:
		return kindNumber
	}
}

// IsBatch reports whether data is a JSON array, ignoring leading whitespace.
func IsBatch(data []byte) bool {
	return kindOf(data) == kindArray
}
