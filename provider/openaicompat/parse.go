package openaicompat

import (
	"encoding/json"

	"github.com/irfansofyana/depth"
)

// ParseResponse converts an OpenAI-format ChatResponse to a depth
// ChatResponse. It extracts content, tool calls, and usage from choices[0].
func ParseResponse(resp ChatResponse) (depth.ChatResponse, error) {
	var out depth.ChatResponse

	if len(resp.Choices) == 0 {
		return out, nil
	}

	choice := resp.Choices[0]
	if choice.Message != nil {
		out.Content = choice.Message.Content
		out.ToolCalls = ParseToolCalls(choice.Message.ToolCalls)
	}

	if resp.Usage != nil {
		out.Usage = depth.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}
	}

	return out, nil
}

// ParseToolCalls converts OpenAI tool call requests to depth ToolCalls.
// OpenAI returns function.arguments as a JSON string; we parse it into
// json.RawMessage.
func ParseToolCalls(tcs []ToolCallRequest) []depth.ToolCall {
	if len(tcs) == 0 {
		return nil
	}

	out := make([]depth.ToolCall, 0, len(tcs))
	for _, tc := range tcs {
		args := json.RawMessage(tc.Function.Arguments)
		// Guard against providers emitting malformed argument strings.
		if !json.Valid(args) {
			args = json.RawMessage(`{}`)
		}
		out = append(out, depth.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: args,
		})
	}
	return out
}
