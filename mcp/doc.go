// Package mcp contains the protocol data types and constants shared by the
// Netra MCP server's dispatcher, registries and transports. It mirrors the
// wire representation of the Model Context Protocol while keeping the surface
// Go-friendly (exported structs with json tags, string constants for method
// names and enumerations).
//
// The package is free of transport logic: stdio, HTTP+SSE and WebSocket
// import these types but implement their own framing and session handling.
//
// # Method Names
//
// The set of JSON-RPC methods the server answers is closed. ParseMethod maps
// a wire string onto one of the Method constants and reports false for
// anything else, so the dispatcher can switch exhaustively over known values.
//
// # Capabilities
//
// ServerCapabilities is a set of boolean flags (tools, resources, prompts,
// sampling) returned from initialize. ClientCapabilities is kept as an opaque
// map since the server only records what the client declared.
//
// Example (tool result construction):
//
//	res := &mcp.CallToolResult{
//	    Content: []mcp.ContentBlock{mcp.TextContent("hello")},
//	}
package mcp
