package depth

import "context"

// Provider is a chat-style language model backend. Implementations live in
// provider/ subpackages; WithRetry composes transparent retry on top.
type Provider interface {
	// Name identifies the backend for logging and error reporting.
	Name() string

	// Chat sends a completion request. When req.Tools is non-empty the
	// response may contain ToolCalls; when req.ResponseSchema is set the
	// content should be JSON conforming to the schema.
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)

	// TokenLimit returns the model's context window in tokens, or 0 when
	// unknown. The report synthesizer uses it to size truncation retries.
	TokenLimit() int
}
