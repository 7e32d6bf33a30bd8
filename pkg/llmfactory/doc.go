// Package llmfactory creates models from provider configuration,
// supporting Anthropic, Bedrock and Gemini providers and model selection by provider or model name.
package llmfactory
