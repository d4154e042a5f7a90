package depth

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// mockProvider pops scripted responses in order. Safe for concurrent use —
// research units share one provider during dispatch. A respond func, when
// set, overrides the script entirely.
type mockProvider struct {
	name       string
	tokenLimit int
	respond    func(req ChatRequest) (ChatResponse, error)

	mu        sync.Mutex
	responses []ChatResponse
	errs      []error // parallel to responses; nil entries succeed
	idx       int
	requests  []ChatRequest
}

func (m *mockProvider) Name() string {
	if m.name == "" {
		return "mock"
	}
	return m.name
}

func (m *mockProvider) TokenLimit() int { return m.tokenLimit }

func (m *mockProvider) Chat(_ context.Context, req ChatRequest) (ChatResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	if m.respond != nil {
		m.mu.Unlock()
		return m.respond(req)
	}
	if m.idx >= len(m.responses) {
		m.mu.Unlock()
		return ChatResponse{Content: "exhausted"}, nil
	}
	resp := m.responses[m.idx]
	var err error
	if m.idx < len(m.errs) {
		err = m.errs[m.idx]
	}
	m.idx++
	m.mu.Unlock()
	return resp, err
}

func (m *mockProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// mockTool is a scriptable tool with an execution counter.
type mockTool struct {
	defs []ToolDefinition

	mu      sync.Mutex
	calls   int
	result  ToolResult
	err     error
	execute func(name string, args json.RawMessage) (ToolResult, error)
}

func (m *mockTool) Definitions() []ToolDefinition { return m.defs }

func (m *mockTool) Execute(_ context.Context, name string, args json.RawMessage) (ToolResult, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.execute != nil {
		return m.execute(name, args)
	}
	return m.result, m.err
}

func (m *mockTool) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func searchToolDef() ToolDefinition {
	return ToolDefinition{
		Name:        "web_search",
		Description: "search the web",
		Parameters:  json.RawMessage(`{"type":"object"}`),
	}
}

func searchRegistry(result string) (*Registry, *mockTool) {
	tool := &mockTool{
		defs:   []ToolDefinition{searchToolDef()},
		result: ToolResult{Content: result},
	}
	return NewRegistry(tool), tool
}

// JSON builders for the structured-output stages.

func clarifyJSON(need bool, question, verification string) string {
	b, _ := json.Marshal(clarifyDecision{
		NeedClarification: need,
		Question:          question,
		Verification:      verification,
	})
	return string(b)
}

func briefJSON(brief string) string {
	b, _ := json.Marshal(researchBrief{ResearchBrief: brief})
	return string(b)
}

func topicsJSON(topics ...string) string {
	b, _ := json.Marshal(topicsResponse{
		Analysis:       "analysis",
		ResearchTopics: topics,
		Reasoning:      "reasoning",
	})
	return string(b)
}

func searchCall(id string) ToolCall {
	return ToolCall{ID: id, Name: "web_search", Args: json.RawMessage(fmt.Sprintf(`{"query":"q%s"}`, id))}
}
