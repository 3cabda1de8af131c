package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/netra-systems/zen-sub153/internal/jsonrpc"
	"github.com/netra-systems/zen-sub153/mcpservice"
	"github.com/netra-systems/zen-sub153/sessions"
)

// errMethodUnavailable marks a known method whose capability is disabled.
var errMethodUnavailable = errors.New("method not available")

// panicError carries a recovered panic value and the stack at recovery.
type panicError struct {
	value any
	stack []byte
}

func (p *panicError) Error() string { return fmt.Sprintf("panic: %v", p.value) }

// ReasonNotFound tags the error data of a business error raised for a
// missing tool, resource or prompt.
const ReasonNotFound = "not_found"

// NotFoundData is the error data attached to not-found business errors.
type NotFoundData struct {
	Reason string `json:"reason"`
	Kind   string `json:"kind"`
	Name   string `json:"name"`
}

// classification is how an error is rendered on the wire and in logs.
type classification struct {
	code  jsonrpc.ErrorCode
	msg   string
	data  any
	level slog.Level
	event string
}

func classify(method string, err error) classification {
	var (
		ip *mcpservice.InvalidParamsError
		be *mcpservice.BusinessError
		nf *mcpservice.NotFoundError
		pe *panicError
	)
	switch {
	case errors.As(err, &pe):
		return classification{jsonrpc.ErrorCodeInternalError, "Internal error: " + pe.Error(), nil, slog.LevelError, "engine.handle_request.panic"}
	case errors.Is(err, sessions.ErrRateLimited):
		return classification{jsonrpc.ErrorCodeRateLimited, "Rate limit exceeded", nil, slog.LevelWarn, "engine.handle_request.rate_limited"}
	case errors.Is(err, errMethodUnavailable):
		return classification{jsonrpc.ErrorCodeMethodNotFound, "Method not found: " + method, nil, slog.LevelInfo, "engine.handle_request.unsupported"}
	case errors.As(err, &ip):
		return classification{jsonrpc.ErrorCodeInvalidParams, ip.Error(), nil, slog.LevelInfo, "engine.handle_request.invalid"}
	case mcpservice.IsBusinessError(err):
		var data any
		switch {
		case errors.As(err, &nf):
			data = NotFoundData{Reason: ReasonNotFound, Kind: nf.Type, Name: nf.Name}
		case errors.As(err, &be):
			data = be.Data
		}
		return classification{jsonrpc.ErrorCodeBusinessError, err.Error(), data, slog.LevelWarn, "engine.handle_request.business"}
	default:
		return classification{jsonrpc.ErrorCodeInternalError, "Internal error: " + err.Error(), nil, slog.LevelError, "engine.handle_request.fail"}
	}
}
