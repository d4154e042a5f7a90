package depth

import (
	"context"
	"encoding/json"
	"strings"
)

// Structured-output strategies. Each schema the engine requests from the
// model is an explicit entry: the JSON Schema sent with the request, a parse
// function, and a typed fallback used when the model returns something
// unparseable (parse failures degrade, they never abort the pipeline).

// clarifyDecision is the clarification-stage verdict.
type clarifyDecision struct {
	NeedClarification bool   `json:"need_clarification"`
	Question          string `json:"question"`
	Verification      string `json:"verification"`
}

// researchBrief is the brief-stage output.
type researchBrief struct {
	ResearchBrief string `json:"research_brief"`
}

// topicsResponse is the supervisor's topic-generation output.
type topicsResponse struct {
	Analysis       string   `json:"analysis"`
	ResearchTopics []string `json:"research_topics"`
	Reasoning      string   `json:"reasoning"`
}

var (
	schemaClarify = &ResponseSchema{
		Name: "clarify_with_user",
		Schema: json.RawMessage(`{
  "type": "object",
  "properties": {
    "need_clarification": {"type": "boolean"},
    "question": {"type": "string"},
    "verification": {"type": "string"}
  },
  "required": ["need_clarification", "question", "verification"]
}`),
	}

	schemaBrief = &ResponseSchema{
		Name: "research_brief",
		Schema: json.RawMessage(`{
  "type": "object",
  "properties": {
    "research_brief": {"type": "string"}
  },
  "required": ["research_brief"]
}`),
	}

	schemaTopics = &ResponseSchema{
		Name: "research_topics",
		Schema: json.RawMessage(`{
  "type": "object",
  "properties": {
    "analysis": {"type": "string"},
    "research_topics": {"type": "array", "items": {"type": "string"}},
    "reasoning": {"type": "string"}
  },
  "required": ["analysis", "research_topics", "reasoning"]
}`),
	}
)

// schemaStrategy pairs a response schema with its typed fallback.
type schemaStrategy[T any] struct {
	schema   *ResponseSchema
	fallback T
}

// parse decodes model content into T. Markdown code fences around the JSON
// are stripped first (some backends wrap structured output despite the
// schema). On failure it returns the fallback and false.
func (s schemaStrategy[T]) parse(content string) (T, bool) {
	var out T
	cleaned := stripCodeFence(content)
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return s.fallback, false
	}
	return out, true
}

var (
	clarifyStrategy = schemaStrategy[clarifyDecision]{
		schema: schemaClarify,
		// Fail open: an unparseable verdict never blocks research.
		fallback: clarifyDecision{NeedClarification: false},
	}

	briefStrategy = schemaStrategy[researchBrief]{
		schema:   schemaBrief,
		fallback: researchBrief{},
	}

	topicsStrategy = schemaStrategy[topicsResponse]{
		schema: schemaTopics,
		// No topics parsed means the supervisor completes the session.
		fallback: topicsResponse{},
	}
)

// maxStructuredOutputRetries caps model re-asks when structured output fails
// to parse.
const maxStructuredOutputRetries = 3

// structuredCall requests structured output and parses it with the given
// strategy, re-asking the model on parse failure up to
// maxStructuredOutputRetries attempts. Returns the parsed value (or the
// strategy fallback), accumulated usage, and whether any attempt parsed.
// A model error aborts immediately; parse failures do not.
func structuredCall[T any](ctx context.Context, p Provider, strat schemaStrategy[T], messages []ChatMessage) (T, Usage, bool, error) {
	var usage Usage
	req := ChatRequest{Messages: messages, ResponseSchema: strat.schema}
	for attempt := 0; attempt < maxStructuredOutputRetries; attempt++ {
		resp, err := p.Chat(ctx, req)
		usage.Add(resp.Usage)
		if err != nil {
			return strat.fallback, usage, false, err
		}
		if out, ok := strat.parse(resp.Content); ok {
			return out, usage, true, nil
		}
	}
	return strat.fallback, usage, false, nil
}

// stripCodeFence removes a surrounding markdown code fence, if present.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:] // drop the language tag line
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
