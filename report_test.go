package depth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestDedupFindings(t *testing.T) {
	shared := strings.Repeat("p", findingDedupPrefix)
	notes := []string{
		"first finding",
		"",
		"   ",
		"first finding", // exact duplicate
		shared + " variant one",
		shared + " variant two", // same 100-char prefix, deduplicated
		"second finding",
	}
	findings := dedupFindings(notes)
	if len(findings) != 3 {
		t.Fatalf("got %d findings, want 3: %v", len(findings), findings)
	}
	for i, f := range findings {
		if f.ID != i+1 {
			t.Errorf("finding %d has ID %d, want sequential", i, f.ID)
		}
	}
	if findings[2].Text != "second finding" {
		t.Errorf("order not preserved: %v", findings)
	}
}

func TestNormalizeCitations(t *testing.T) {
	findings := []Finding{
		{ID: 3, Text: "third finding text"},
		{ID: 7, Text: "seventh finding text\nwith a second line"},
	}
	report, refs := normalizeCitations("Claim A [7]. Claim B [3]. Claim A again [7].", findings)

	if !strings.Contains(report, "Claim A [1]") || !strings.Contains(report, "Claim B [2]") ||
		!strings.Contains(report, "again [1]") {
		t.Errorf("citations not renumbered in first-referenced order:\n%s", report)
	}
	if len(refs) != 2 {
		t.Fatalf("refs = %v, want 2", refs)
	}
	// Reference lines are the finding's first line, in citation order.
	if refs[0] != "seventh finding text" || refs[1] != "third finding text" {
		t.Errorf("refs = %v", refs)
	}
	if !strings.Contains(report, "## References") {
		t.Errorf("references section missing:\n%s", report)
	}
	if !strings.Contains(report, "[1] seventh finding text") {
		t.Errorf("reference list not numbered:\n%s", report)
	}
}

func TestNormalizeCitationsUnknownID(t *testing.T) {
	report, refs := normalizeCitations("See [42].", []Finding{{ID: 1, Text: "only"}})
	if !strings.Contains(report, "[1]") {
		t.Errorf("unknown citation not renumbered: %s", report)
	}
	if len(refs) != 1 || refs[0] != "Source 42" {
		t.Errorf("refs = %v, want placeholder", refs)
	}
}

func TestNormalizeCitationsNoCitations(t *testing.T) {
	report, refs := normalizeCitations("No citations here.", nil)
	if refs != nil {
		t.Errorf("refs = %v, want nil", refs)
	}
	if strings.Contains(report, "References") {
		t.Errorf("references section added without citations: %s", report)
	}
}

func TestSynthesizeSuccess(t *testing.T) {
	p := &mockProvider{responses: []ChatResponse{
		{Content: "Report body [1].", Usage: Usage{InputTokens: 5, OutputTokens: 7}},
	}}
	synth := &reportSynthesizer{provider: p, logger: nopLogger}
	report, refs, usage, err := synth.synthesize(context.Background(), "brief",
		[]Finding{{ID: 1, Text: "the finding"}})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(report, "Report body [1]") {
		t.Errorf("report = %q", report)
	}
	if len(refs) != 1 {
		t.Errorf("refs = %v", refs)
	}
	if usage.InputTokens != 5 || usage.OutputTokens != 7 {
		t.Errorf("usage = %+v", usage)
	}
}

func TestSynthesizeUnknownTokenLimitFailsFast(t *testing.T) {
	p := &mockProvider{
		tokenLimit: 0,
		responses:  []ChatResponse{{}},
		errs:       []error{&ErrTokenLimit{Model: "m"}},
	}
	synth := &reportSynthesizer{provider: p, logger: nopLogger}
	_, _, _, err := synth.synthesize(context.Background(), "brief",
		[]Finding{{ID: 1, Text: "x"}})
	if err == nil {
		t.Fatal("want error when truncation is impossible")
	}
	var llmErr *ErrLLM
	if !errors.As(err, &llmErr) {
		t.Errorf("err = %T %v, want *ErrLLM", err, err)
	}
	if p.callCount() != 1 {
		t.Errorf("model called %d times, want 1 (no blind retries)", p.callCount())
	}
}

func TestSynthesizeTruncatesThenTerminalReport(t *testing.T) {
	tokenErr := &ErrTokenLimit{Model: "m"}
	p := &mockProvider{
		tokenLimit: 100,
		responses:  []ChatResponse{{}, {}, {}, {}},
		errs:       []error{tokenErr, tokenErr, tokenErr, tokenErr},
	}
	synth := &reportSynthesizer{provider: p, logger: nopLogger}
	report, refs, _, err := synth.synthesize(context.Background(), "brief",
		[]Finding{{ID: 1, Text: strings.Repeat("f", 2000)}})
	if err != nil {
		t.Fatalf("terminal failure must be a report, not an error: %v", err)
	}
	if !strings.Contains(report, "Report Generation Failed") {
		t.Errorf("report = %q", report)
	}
	if refs != nil {
		t.Errorf("refs = %v, want nil", refs)
	}
	// Initial attempt + maxReportRetries truncated attempts.
	if p.callCount() != maxReportRetries+1 {
		t.Errorf("model called %d times, want %d", p.callCount(), maxReportRetries+1)
	}
}

func TestSynthesizeRecoversAfterTruncation(t *testing.T) {
	p := &mockProvider{
		tokenLimit: 100,
		responses:  []ChatResponse{{}, {Content: "short report"}},
		errs:       []error{&ErrTokenLimit{Model: "m"}, nil},
	}
	synth := &reportSynthesizer{provider: p, logger: nopLogger}
	report, _, _, err := synth.synthesize(context.Background(), "brief",
		[]Finding{{ID: 1, Text: strings.Repeat("f", 2000)}})
	if err != nil {
		t.Fatal(err)
	}
	if report != "short report" {
		t.Errorf("report = %q", report)
	}
	// The second attempt saw a findings window capped at tokenLimit×4 chars.
	p.mu.Lock()
	second := p.requests[1].Messages[1].Content
	p.mu.Unlock()
	if len(second) > len("Research brief:\nbrief\n\nFindings:\n")+100*tokenCharRatio {
		t.Errorf("findings not truncated on retry: %d chars", len(second))
	}
}

func TestSynthesizeTruncationKeepsRunesIntact(t *testing.T) {
	p := &mockProvider{
		tokenLimit: 100,
		responses:  []ChatResponse{{}, {Content: "ok"}},
		errs:       []error{&ErrTokenLimit{Model: "m"}, nil},
	}
	synth := &reportSynthesizer{provider: p, logger: nopLogger}
	// Multi-byte findings: a byte-indexed cut would split the rune at the
	// window edge.
	_, _, _, err := synth.synthesize(context.Background(), "brief",
		[]Finding{{ID: 1, Text: strings.Repeat("é", 2000)}})
	if err != nil {
		t.Fatal(err)
	}
	p.mu.Lock()
	second := p.requests[1].Messages[1].Content
	p.mu.Unlock()
	if !utf8.ValidString(second) {
		t.Error("truncated findings window contains a split rune")
	}
	if !strings.HasSuffix(second, "é") {
		t.Errorf("window edge mangled: %q", second[len(second)-8:])
	}
}

func TestRenderHTML(t *testing.T) {
	html, err := RenderHTML("# Title\n\nSome **bold** text.\n\n| a | b |\n| --- | --- |\n| 1 | 2 |")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(html, "<h1") || !strings.Contains(html, "<strong>") {
		t.Errorf("markdown not rendered: %q", html)
	}
	if !strings.Contains(html, "<table>") {
		t.Errorf("GFM tables not enabled: %q", html)
	}
}
