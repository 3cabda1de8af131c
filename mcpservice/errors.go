package mcpservice

import (
	"errors"
	"fmt"
)

// BusinessError is an expected domain failure (a client mistake rather than
// a server fault). The dispatcher reports it as JSON-RPC code -32000 and logs
// it at warn level.
type BusinessError struct {
	Message string
	Data    any

	cause error
}

func (e *BusinessError) Error() string { return e.Message }

func (e *BusinessError) Unwrap() error { return e.cause }

// Failf builds a BusinessError with a formatted message. A %w verb in format
// is honored, so errors.Is sees through to the wrapped sentinel.
func Failf(format string, a ...any) error {
	err := fmt.Errorf(format, a...)
	return &BusinessError{Message: err.Error(), cause: errors.Unwrap(err)}
}

// NotFoundError indicates a requested item (tool, resource, prompt) doesn't exist.
type NotFoundError struct {
	Type string // "tool", "resource", "prompt"
	Name string // identifier that wasn't found
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Type, e.Name)
}

// RequiredError indicates a required argument or params field was absent.
type RequiredError struct {
	Field string
}

func (e *RequiredError) Error() string {
	return fmt.Sprintf("missing required argument: %s", e.Field)
}

// InvalidParamsError indicates that the params object could not be decoded
// into the shape the method expects. It maps to JSON-RPC -32602.
type InvalidParamsError struct {
	Field  string // which field is invalid
	Reason string // why it's invalid
}

func (e *InvalidParamsError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid parameter %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid parameters: %s", e.Reason)
}

var (
	// ErrInvalidScheme is wrapped by InvalidURIError when the URI is not a
	// netra:// URI or names an unknown resource category.
	ErrInvalidScheme = errors.New("invalid resource URI scheme")
	// ErrInvalidPath is wrapped by InvalidURIError when the category is known
	// but the path has the wrong shape for it.
	ErrInvalidPath = errors.New("invalid resource path")

	// Tool execution failures. These never leave Execute as Go errors; they
	// are rendered into an isError result.
	ErrAuthRequired     = errors.New("authentication required")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidInput     = errors.New("invalid input")
	ErrNoHandler        = errors.New("no handler")
	ErrToolTimeout      = errors.New("tool execution timed out")
)

// InvalidURIError reports a resource URI that could not be routed.
type InvalidURIError struct {
	URI  string
	Kind error // ErrInvalidScheme or ErrInvalidPath
}

func (e *InvalidURIError) Error() string {
	return fmt.Sprintf("%v: %s", e.Kind, e.URI)
}

func (e *InvalidURIError) Unwrap() error { return e.Kind }

// IsBusinessError reports whether err is one of the expected domain failures
// surfaced by the registries.
func IsBusinessError(err error) bool {
	var (
		be  *BusinessError
		nf  *NotFoundError
		req *RequiredError
		uri *InvalidURIError
	)
	return errors.As(err, &be) || errors.As(err, &nf) || errors.As(err, &req) || errors.As(err, &uri)
}
