package chatmodel

import "github.com/cockroachdb/errors"

// Error taxonomy. Errors are classified with errors.Mark,
// test with errors.Is.
var (
	// ErrValidation is returned for malformed tool arguments or session input.
	ErrValidation = errors.New("validation error")
	// ErrTransport is returned for connectivity and timeout failures below the tool bridge.
	ErrTransport = errors.New("transport error")
	// ErrModelInvocation is returned when the model service call fails.
	ErrModelInvocation = errors.New("model invocation error")
	// ErrUnknownTool is returned when a tool is not in the catalog.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrInvalidChatContext is returned when the context does not carry a chat context.
	ErrInvalidChatContext = errors.New("invalid chat context")
)

// IsValidation returns true if err is classified as ErrValidation.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsTransport returns true if err is classified as ErrTransport.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}

// IsModelInvocation returns true if err is classified as ErrModelInvocation.
func IsModelInvocation(err error) bool {
	return errors.Is(err, ErrModelInvocation)
}
