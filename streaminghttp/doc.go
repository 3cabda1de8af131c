// Package streaminghttp serves the engine over HTTP. It mounts as a standard
// net/http handler built on a chi router.
//
// Routes, relative to the base path (default /mcp):
//
//	POST /                       one JSON-RPC message; notifications get 202
//	POST /batch                  a JSON-RPC batch array
//	POST /tools/list, /tools/call, /resources/list, /resources/read,
//	     /prompts/list, /prompts/get, /sampling/createMessage
//	                             REST convenience routes; the body is the params
//	GET  /stream                 Server-Sent Events for the caller's session
//	GET  /health                 liveness and counters
//
// # Sessions
//
// A request routes under the authenticated subject when it carries a valid
// bearer token, else under its Mcp-Session-Id header, else under the shared
// "anonymous" session. Permissions of an authenticated principal are copied
// into the session state before dispatch.
//
// # Streaming
//
// Server-initiated messages are queued per session on a broker.Broker and
// drained by the SSE stream. A reconnecting client sends Last-Event-ID to
// resume after the last event it saw. Idle streams get a heartbeat event.
//
// # Errors
//
// Transport failures map to HTTP status codes with a small JSON body. JSON-RPC
// routes always answer 200 with JSON-RPC errors inline. REST routes map the
// error code onto a status: 400 for malformed input, 404 for unknown methods
// and missing objects, 429 when rate limited, 422 for other business errors
// and 500 otherwise.
//
// Example:
//
//	h, err := streaminghttp.New(eng, streaminghttp.WithBroker(b))
//	if err != nil {
//	    return err
//	}
//	http.ListenAndServe(":8080", h)
package streaminghttp
