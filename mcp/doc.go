// Package mcp provides the tool bridge: a transport agnostic way to
// discover and invoke tools that live in-process, in a child process
// speaking JSON-RPC over its standard streams, or behind an HTTP host.
//
// Every bridge normalizes failures into a chatmodel.ToolResult,
// so callers never handle transport errors from Invoke.
package mcp
