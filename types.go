package depth

import "encoding/json"

// --- LLM protocol types ---

type ChatMessage struct {
	Role       string     `json:"role"` // "system", "user", "assistant", "tool"
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

type ToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

type ChatRequest struct {
	Messages       []ChatMessage    `json:"messages"`
	Tools          []ToolDefinition `json:"tools,omitempty"`
	ResponseSchema *ResponseSchema  `json:"response_schema,omitempty"`
}

type ChatResponse struct {
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Usage     Usage      `json:"usage"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add accumulates token counts from another usage value.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"` // JSON Schema
}

// ResponseSchema requests structured JSON output conforming to a JSON Schema.
// Providers that support native structured output enforce it server-side;
// others receive it as a formatting instruction.
type ResponseSchema struct {
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"schema"`
}

// --- Research domain types ---

// Finding is a deduplicated research note with a stable sequential reference
// id. IDs are assigned only at final-report time.
type Finding struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

// ResearchUnitResult is the outcome of one research unit: a compressed
// findings summary plus the raw tool/model observations behind it. A unit
// that failed carries the failure text in Err; it never aborts siblings.
type ResearchUnitResult struct {
	Topic    string   `json:"topic"`
	Summary  string   `json:"summary"`
	RawNotes []string `json:"raw_notes,omitempty"`
	Usage    Usage    `json:"usage"`
	Err      string   `json:"err,omitempty"`
}

// --- ChatMessage constructors ---

func UserMessage(text string) ChatMessage {
	return ChatMessage{Role: "user", Content: text}
}

func SystemMessage(text string) ChatMessage {
	return ChatMessage{Role: "system", Content: text}
}

func AssistantMessage(text string) ChatMessage {
	return ChatMessage{Role: "assistant", Content: text}
}

func ToolResultMessage(callID, content string) ChatMessage {
	return ChatMessage{Role: "tool", Content: content, ToolCallID: callID}
}
