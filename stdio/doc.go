// Package stdio implements a single-connection MCP transport over
// stdin/stdout. It is intended for running the server as a subprocess of an
// IDE assistant or CLI tool.
//
// Characteristics
//
//	Connection model : 1 process <-> 1 client
//	Auth             : OS user (recorded in the session state)
//	Sessions         : one process-owned session id, "stdio-<uuid>"
//	Framing          : newline-delimited JSON, flushed per message
//
// On startup the handler writes one server.info notification. It then reads
// one JSON value per line, passes it through the engine and writes the
// response, if any, followed by a newline. Serve returns when the reader hits
// EOF, the context is canceled or a read fails.
//
// Example:
//
//	h := stdio.NewHandler(eng)
//	if err := h.Serve(ctx); err != nil { log.Fatal(err) }
package stdio
