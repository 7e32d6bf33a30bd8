// Package assistants provides the tool-use orchestrator of the support agent.
// An Agent binds a model, a tool bridge and the system prompt, and starts
// Sessions. A Session owns the conversation history and the user identity,
// and runs the model and tool round trips of each user turn.
package assistants
