package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// RequestID represents a JSON-RPC ID that can be a string, a number or an
// explicit JSON null. Decoded numbers that do not fit an int64 keep their
// literal text as a json.Number so they round-trip unchanged. A nil *RequestID means the id member was absent, which
// is what marks a notification; a non-nil RequestID holding no value is the
// `"id": null` case and still earns a response.
type RequestID struct {
	value any
}

// NewRequestID creates a new RequestID from a string or number. Any other type
// yields a null id.
func NewRequestID(value any) *RequestID {
	switch v := value.(type) {
	case string, int64, float64, json.Number:
		return &RequestID{value: v}
	case int:
		return &RequestID{value: int64(v)}
	case int32:
		return &RequestID{value: int64(v)}
	case uint32:
		return &RequestID{value: int64(v)}
	case float32:
		return &RequestID{value: float64(v)}
	default:
		return &RequestID{value: nil}
	}
}

// NullRequestID returns an id that serializes as JSON null.
func NullRequestID() *RequestID { return &RequestID{} }

// String returns the string representation of the ID
func (id *RequestID) String() string {
	if id == nil || id.value == nil {
		return ""
	}

	switch v := id.value.(type) {
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case json.Number:
		return v.String()
	default:
		panic("unreachable: RequestID contains unsupported type")
	}
}

// Value returns the underlying value (string, int64, float64, json.Number or
// nil).
func (id *RequestID) Value() any {
	if id == nil {
		return nil
	}
	return id.value
}

// IsNull reports whether the id is present but JSON null.
func (id *RequestID) IsNull() bool {
	return id != nil && id.value == nil
}

// MarshalJSON implements json.Marshaler
func (id *RequestID) MarshalJSON() ([]byte, error) {
	if id == nil || id.value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(id.value)
}

// UnmarshalJSON implements json.Unmarshaler
func (id *RequestID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		id.value = nil
		return nil
	}

	if n, err := strconv.ParseInt(string(data), 10, 64); err == nil {
		id.value = n
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err == nil {
		id.value = num
		return nil
	}

	// Try to unmarshal as a string
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		id.value = str
		return nil
	}

	return fmt.Errorf("JSON-RPC ID must be a string, number or null, got: %s", string(data))
}
