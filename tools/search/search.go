// Package search provides the web research tool: Brave API search with
// parallel page fetching and readable-text extraction. It is the canonical
// search-type tool — its name marks it for the engine's search budgeting.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/irfansofyana/depth"
)

const (
	// fetchTimeout bounds each page fetch; a slow page degrades to its
	// snippet.
	fetchTimeout = 8 * time.Second
	// maxPageBytes caps how much of a page body is read.
	maxPageBytes = 512 << 10
	// maxExtractChars caps extracted text per page in the tool output.
	maxExtractChars = 8000
	// defaultResultCount is how many Brave results one query requests.
	defaultResultCount = 5
)

// Tool performs web searches via the Brave API and extracts readable page
// content. When a summarizer Provider is configured, page content is
// condensed through it before being returned to the researcher.
type Tool struct {
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
	summarizer depth.Provider // nil = return extracted text directly
}

// ToolOption configures a search Tool.
type ToolOption func(*Tool)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ToolOption {
	return func(t *Tool) { t.logger = l }
}

// WithSummarizer condenses fetched pages through the given model before
// returning them, trading a model call per search for much smaller
// observations.
func WithSummarizer(p depth.Provider) ToolOption {
	return func(t *Tool) { t.summarizer = p }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ToolOption {
	return func(t *Tool) { t.httpClient = c }
}

// New creates the web search tool. Requires a Brave API key.
func New(apiKey string, opts ...ToolOption) *Tool {
	t := &Tool{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     slog.New(discardHandler{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tool) Definitions() []depth.ToolDefinition {
	return []depth.ToolDefinition{{
		Name:        "web_search",
		Description: "Search the web and read the top results. Use for facts, current events, and anything requiring external evidence. Returns extracted page content with source URLs.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"query":{"type":"string","description":"Search query optimized for search engines"}},"required":["query"]}`),
	}}
}

func (t *Tool) Execute(ctx context.Context, _ string, args json.RawMessage) (depth.ToolResult, error) {
	var params struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return depth.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	if strings.TrimSpace(params.Query) == "" {
		return depth.ToolResult{Error: "query is required"}, nil
	}

	content, err := t.Search(ctx, params.Query)
	if err != nil {
		return depth.ToolResult{Error: err.Error()}, nil
	}
	return depth.ToolResult{Content: content}, nil
}

type searchResult struct {
	Title   string
	URL     string
	Snippet string
	Content string // extracted page text, may be empty
}

// Search runs one query: Brave search, parallel page fetch + extraction,
// optional summarization, formatted output.
func (t *Tool) Search(ctx context.Context, query string) (string, error) {
	results, err := t.braveSearch(ctx, query, defaultResultCount)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return fmt.Sprintf("No results found for %q.", query), nil
	}

	t.fetchAndExtract(ctx, results)

	if t.summarizer != nil {
		t.summarizePages(ctx, query, results)
	}

	return formatResults(query, results), nil
}

func (t *Tool) braveSearch(ctx context.Context, query string, count int) ([]*searchResult, error) {
	u := fmt.Sprintf("https://api.search.brave.com/res/v1/web/search?q=%s&count=%d",
		url.QueryEscape(query), count)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", t.apiKey)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("brave search error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("brave API %d: %s", resp.StatusCode, string(body))
	}

	var data struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("brave parse error: %w", err)
	}

	var results []*searchResult
	for _, r := range data.Web.Results {
		results = append(results, &searchResult{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: r.Description,
		})
	}
	return results, nil
}

// fetchAndExtract fetches all result pages in parallel and extracts readable
// text. Fetch failures leave Content empty; the snippet still carries the
// result.
func (t *Tool) fetchAndExtract(ctx context.Context, results []*searchResult) {
	var wg sync.WaitGroup
	for _, r := range results {
		wg.Add(1)
		go func(r *searchResult) {
			defer wg.Done()
			fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
			defer cancel()

			req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, r.URL, nil)
			if err != nil {
				return
			}
			req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; DepthBot/1.0)")

			resp, err := t.httpClient.Do(req)
			if err != nil {
				return
			}
			defer resp.Body.Close()
			if resp.StatusCode >= 400 {
				return
			}

			pageURL, err := url.Parse(r.URL)
			if err != nil {
				return
			}
			article, err := readability.FromReader(io.LimitReader(resp.Body, maxPageBytes), pageURL)
			if err != nil {
				t.logger.Debug("page extraction failed", "url", r.URL, "err", err)
				return
			}
			text := strings.TrimSpace(article.TextContent)
			if len(text) > maxExtractChars {
				text = text[:maxExtractChars]
			}
			r.Content = text
		}(r)
	}
	wg.Wait()
}

// summarizePages condenses each fetched page to what matters for the query.
// A summarization failure falls back to the raw extract.
func (t *Tool) summarizePages(ctx context.Context, query string, results []*searchResult) {
	for _, r := range results {
		if r.Content == "" {
			continue
		}
		resp, err := t.summarizer.Chat(ctx, depth.ChatRequest{Messages: []depth.ChatMessage{
			depth.SystemMessage("Summarize the web page content for the research query. Keep concrete facts, figures, and names. A few sentences."),
			depth.UserMessage(fmt.Sprintf("Query: %s\n\nPage (%s):\n%s", query, r.URL, r.Content)),
		}})
		if err != nil {
			t.logger.Debug("page summarization failed", "url", r.URL, "err", err)
			continue
		}
		if resp.Content != "" {
			r.Content = resp.Content
		}
	}
}

func formatResults(query string, results []*searchResult) string {
	var out strings.Builder
	fmt.Fprintf(&out, "Search results for %q:\n\n", query)
	for i, r := range results {
		fmt.Fprintf(&out, "[%d] %s\n%s\n", i+1, r.Title, r.URL)
		if r.Content != "" {
			out.WriteString(r.Content)
		} else if r.Snippet != "" {
			out.WriteString(r.Snippet)
		}
		out.WriteString("\n\n")
	}
	return strings.TrimSpace(out.String())
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

var _ depth.Tool = (*Tool)(nil)
