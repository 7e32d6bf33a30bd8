// Package tools defines the Tool interface and the Registry that publishes
// tool definitions and dispatches named invocations to handlers.
// Arguments are validated against the tool input schema before the handler runs.
package tools
