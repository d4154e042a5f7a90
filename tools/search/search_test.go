package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
)

// roundTripFunc lets a test intercept every outbound request.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func textResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func TestFormatResults(t *testing.T) {
	out := formatResults("go generics", []*searchResult{
		{Title: "First", URL: "https://a.example", Content: "extracted text"},
		{Title: "Second", URL: "https://b.example", Snippet: "only a snippet"},
	})

	if !strings.Contains(out, `Search results for "go generics":`) {
		t.Errorf("missing header:\n%s", out)
	}
	if !strings.Contains(out, "[1] First\nhttps://a.example\nextracted text") {
		t.Errorf("extracted content not preferred:\n%s", out)
	}
	if !strings.Contains(out, "[2] Second\nhttps://b.example\nonly a snippet") {
		t.Errorf("snippet fallback missing:\n%s", out)
	}
}

func TestExecuteValidatesArgs(t *testing.T) {
	tool := New("key")

	res, err := tool.Execute(context.Background(), "web_search", json.RawMessage(`{"query":""}`))
	if err != nil {
		t.Fatal(err)
	}
	if res.Error == "" {
		t.Error("empty query accepted")
	}

	res, err = tool.Execute(context.Background(), "web_search", json.RawMessage(`not json`))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Error, "invalid args") {
		t.Errorf("error = %q", res.Error)
	}
}

func TestSearchFetchesAndFormats(t *testing.T) {
	braveJSON := `{"web":{"results":[
		{"title":"Result One","url":"https://one.example/page","description":"snippet one"},
		{"title":"Result Two","url":"https://two.example/page","description":"snippet two"}
	]}}`
	pageHTML := `<html><body><article><p>Generics were added in Go 1.18 and use type parameters.</p></article></body></html>`

	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		switch r.URL.Host {
		case "api.search.brave.com":
			if got := r.Header.Get("X-Subscription-Token"); got != "key" {
				t.Errorf("token header = %q", got)
			}
			if got := r.URL.Query().Get("q"); got != "go generics" {
				t.Errorf("query = %q", got)
			}
			return textResponse(http.StatusOK, braveJSON), nil
		case "one.example":
			return textResponse(http.StatusOK, pageHTML), nil
		case "two.example":
			return textResponse(http.StatusNotFound, "gone"), nil
		default:
			t.Errorf("unexpected host %q", r.URL.Host)
			return textResponse(http.StatusInternalServerError, ""), nil
		}
	})}

	tool := New("key", WithHTTPClient(client))
	out, err := tool.Search(context.Background(), "go generics")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Generics were added in Go 1.18") {
		t.Errorf("page text not extracted:\n%s", out)
	}
	// Failed fetch degrades to the snippet.
	if !strings.Contains(out, "snippet two") {
		t.Errorf("snippet fallback missing:\n%s", out)
	}
}

func TestSearchNoResults(t *testing.T) {
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return textResponse(http.StatusOK, `{"web":{"results":[]}}`), nil
	})}

	tool := New("key", WithHTTPClient(client))
	out, err := tool.Search(context.Background(), "nothing")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "No results found") {
		t.Errorf("out = %q", out)
	}
}

func TestSearchBraveError(t *testing.T) {
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return textResponse(http.StatusUnauthorized, "bad key"), nil
	})}

	tool := New("key", WithHTTPClient(client))
	if _, err := tool.Search(context.Background(), "q"); err == nil {
		t.Fatal("expected error")
	} else if !strings.Contains(err.Error(), "brave API 401") {
		t.Errorf("err = %v", err)
	}
}
