package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/irfansofyana/depth"
)

// Provider implements depth.Provider for any OpenAI-compatible API.
// It uses the shared helpers in this package (BuildBody, ParseResponse) for
// body building and response parsing, and classifies context-window failures
// into depth.ErrTokenLimit so the engine's truncation strategies engage.
type Provider struct {
	apiKey     string
	model      string
	baseURL    string
	client     *http.Client
	name       string
	opts       []Option
	tokenLimit int
}

// NewProvider creates an OpenAI-compatible chat provider.
//
// baseURL is the API base (e.g. "https://api.openai.com/v1",
// "https://api.groq.com/openai/v1", "http://localhost:11434/v1").
// The /chat/completions path is appended automatically.
func NewProvider(apiKey, model, baseURL string, opts ...ProviderOption) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		client:  &http.Client{},
		name:    "openai",
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.tokenLimit == 0 {
		p.tokenLimit = lookupTokenLimit(model)
	}
	return p
}

// Name returns the provider name (default "openai", configurable via WithName).
func (p *Provider) Name() string { return p.name }

// TokenLimit returns the model's context window in tokens, or 0 when unknown.
func (p *Provider) TokenLimit() int { return p.tokenLimit }

// Chat sends a chat request and returns the complete response.
// When req.Tools is non-empty, the response may contain ToolCalls.
func (p *Provider) Chat(ctx context.Context, req depth.ChatRequest) (depth.ChatResponse, error) {
	body := BuildBody(req.Messages, req.Tools, p.model, req.ResponseSchema, p.opts...)

	payload, err := json.Marshal(body)
	if err != nil {
		return depth.ChatResponse{}, &depth.ErrLLM{Provider: p.name, Message: fmt.Sprintf("marshal request: %v", err)}
	}

	url := p.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return depth.ChatResponse{}, &depth.ErrLLM{Provider: p.name, Message: fmt.Sprintf("create request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return depth.ChatResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return depth.ChatResponse{}, p.httpErr(resp)
	}

	var chatResp ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return depth.ChatResponse{}, &depth.ErrLLM{Provider: p.name, Message: fmt.Sprintf("decode response: %v", err)}
	}
	if chatResp.Error != nil {
		return depth.ChatResponse{}, p.apiErr(chatResp.Error)
	}

	return ParseResponse(chatResp)
}

// httpErr reads the response body and classifies the failure. Context-window
// errors become depth.ErrTokenLimit; everything else is depth.ErrHTTP for the
// retry middleware.
func (p *Provider) httpErr(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	httpErr := &depth.ErrHTTP{
		Status:     resp.StatusCode,
		Body:       string(body),
		RetryAfter: depth.ParseRetryAfter(resp.Header.Get("Retry-After")),
	}
	if resp.StatusCode == http.StatusBadRequest && isContextLengthBody(string(body)) {
		return &depth.ErrTokenLimit{Model: p.model, Err: httpErr}
	}
	return httpErr
}

// apiErr classifies an error envelope returned with HTTP 200 (some gateways
// do this).
func (p *Provider) apiErr(e *APIError) error {
	llmErr := &depth.ErrLLM{Provider: p.name, Message: e.Message}
	if code, ok := e.Code.(string); ok && code == "context_length_exceeded" {
		return &depth.ErrTokenLimit{Model: p.model, Err: llmErr}
	}
	if isContextLengthBody(e.Message) {
		return &depth.ErrTokenLimit{Model: p.model, Err: llmErr}
	}
	return llmErr
}

// isContextLengthBody matches known context-window error phrasings.
func isContextLengthBody(body string) bool {
	b := strings.ToLower(body)
	return strings.Contains(b, "context_length_exceeded") ||
		strings.Contains(b, "context length") ||
		strings.Contains(b, "maximum context")
}

// Compile-time interface check.
var _ depth.Provider = (*Provider)(nil)
