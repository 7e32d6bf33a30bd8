// Package llms defines the model invocation contract: one blocking round trip
// to a language model service per call, carrying the system prompt, the
// conversation history and the tool catalog, and returning the ordered content
// blocks of the reply.
//
// Each subpackage adapts a provider SDK to the Model interface.
package llms
