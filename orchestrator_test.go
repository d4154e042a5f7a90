package depth

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestNewValidatesCollaborators(t *testing.T) {
	reg, _ := searchRegistry("hit")
	if _, err := New(nil, reg); err == nil {
		t.Error("nil provider must be rejected")
	}
	if _, err := New(&mockProvider{}, nil); err == nil {
		t.Error("nil tool provider must be rejected")
	}
	if _, err := New(&mockProvider{}, NewRegistry()); err == nil {
		t.Error("empty researcher tool set must be rejected")
	}
}

func TestRunRejectsEmptyRequest(t *testing.T) {
	reg, _ := searchRegistry("hit")
	e, err := New(&mockProvider{}, reg)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Run(context.Background(), Request{}); err == nil {
		t.Error("empty request must fail")
	}
}

func TestRunTerminalClarification(t *testing.T) {
	reg, _ := searchRegistry("hit")
	p := &mockProvider{responses: []ChatResponse{
		{Content: clarifyJSON(true, "Which region?", ""), Usage: Usage{InputTokens: 4}},
	}}
	e, err := New(p, reg)
	if err != nil {
		t.Fatal(err)
	}

	result, err := e.Run(context.Background(), Request{Question: "research the economy"})
	if err != nil {
		t.Fatal(err)
	}
	if !result.NeedsClarification {
		t.Fatal("want terminal clarification")
	}
	if result.ClarificationQuestion != "Which region?" {
		t.Errorf("question = %q", result.ClarificationQuestion)
	}
	if result.Report != "" {
		t.Errorf("no report expected, got %q", result.Report)
	}
	if result.Usage.InputTokens != 4 {
		t.Errorf("usage = %+v", result.Usage)
	}
	// Only the clarification call happened.
	if p.callCount() != 1 {
		t.Errorf("model called %d times, want 1", p.callCount())
	}
}

func TestRunFullSessionToReport(t *testing.T) {
	reg, _ := searchRegistry("search hit")
	p := &mockProvider{responses: []ChatResponse{
		{Content: clarifyJSON(false, "", "Researching X."), Usage: Usage{InputTokens: 1, OutputTokens: 1}},
		{Content: briefJSON("brief about X"), Usage: Usage{InputTokens: 1, OutputTokens: 1}},
		{Content: topicsJSON("one topic"), Usage: Usage{InputTokens: 1, OutputTokens: 1}},
		{Content: "unit observations", Usage: Usage{InputTokens: 1, OutputTokens: 1}},
		{Content: "unit summary about X", Usage: Usage{InputTokens: 1, OutputTokens: 1}},
		{Content: "Final report [1].", Usage: Usage{InputTokens: 1, OutputTokens: 1}},
	}}
	e, err := New(p, reg, WithBudget(Budget{MaxResearcherIterations: 2, AllowClarification: true}))
	if err != nil {
		t.Fatal(err)
	}

	result, err := e.Run(context.Background(), Request{Question: "research X"})
	if err != nil {
		t.Fatal(err)
	}
	if result.NeedsClarification {
		t.Fatal("unexpected clarification")
	}
	if result.Brief != "brief about X" {
		t.Errorf("brief = %q", result.Brief)
	}
	if !strings.Contains(result.Report, "Final report [1]") {
		t.Errorf("report = %q", result.Report)
	}
	if len(result.References) != 1 {
		t.Errorf("references = %v", result.References)
	}
	if result.Iterations != 1 || result.UnitsUsed != 1 {
		t.Errorf("iterations=%d units=%d, want 1/1", result.Iterations, result.UnitsUsed)
	}
	if result.CompletionReason != "approaching iteration limit" {
		t.Errorf("reason = %q", result.CompletionReason)
	}
	if len(result.Findings) != 1 || result.Findings[0].Text != "unit summary about X" {
		t.Errorf("findings = %v", result.Findings)
	}
	if result.Usage.InputTokens != 6 || result.Usage.OutputTokens != 6 {
		t.Errorf("usage = %+v, want all six calls accumulated", result.Usage)
	}
	if result.Duration <= 0 {
		t.Errorf("duration = %v", result.Duration)
	}
}

func TestRunStreamEmitsAndCloses(t *testing.T) {
	reg, _ := searchRegistry("hit")
	p := &mockProvider{responses: []ChatResponse{
		{Content: clarifyJSON(false, "", "ok")},
		{Content: briefJSON("brief")},
		{Content: "The report."}, // one-iteration budget goes straight to reporting
	}}
	e, err := New(p, reg, WithBudget(Budget{MaxResearcherIterations: 1, AllowClarification: true}))
	if err != nil {
		t.Fatal(err)
	}

	events := make(chan ProgressEvent, 64)
	collected := make(chan []ProgressEvent, 1)
	go func() {
		var out []ProgressEvent
		for ev := range events {
			out = append(out, ev)
		}
		collected <- out
	}()

	result, err := e.RunStream(context.Background(), Request{Question: "q"}, events)
	if err != nil {
		t.Fatal(err)
	}
	if result.Report != "The report." {
		t.Errorf("report = %q", result.Report)
	}

	var out []ProgressEvent
	select {
	case out = <-collected:
	case <-time.After(2 * time.Second):
		t.Fatal("event channel never closed")
	}
	if len(out) == 0 {
		t.Fatal("no progress events")
	}
	last := out[len(out)-1]
	if last.Stage != StageCompleted || last.Percent != 100 {
		t.Errorf("last event = %+v, want completed/100", last)
	}
	for i := 1; i < len(out); i++ {
		if out[i].Percent < out[i-1].Percent {
			t.Errorf("percent regressed: %v", out)
		}
	}
}

func TestRunArchivesReport(t *testing.T) {
	reg, _ := searchRegistry("hit")
	p := &mockProvider{responses: []ChatResponse{
		{Content: clarifyJSON(false, "", "ok")},
		{Content: briefJSON("brief")},
		{Content: "The report."},
	}}
	arch := &memArchive{}
	e, err := New(p, reg,
		WithBudget(Budget{MaxResearcherIterations: 1, AllowClarification: true}),
		WithArchive(arch))
	if err != nil {
		t.Fatal(err)
	}

	result, err := e.Run(context.Background(), Request{Question: "the question"})
	if err != nil {
		t.Fatal(err)
	}
	if len(arch.saved) != 1 {
		t.Fatalf("archived %d reports, want 1", len(arch.saved))
	}
	saved := arch.saved[0]
	if saved.SessionID != result.SessionID || saved.Question != "the question" || saved.Report != "The report." {
		t.Errorf("archived = %+v", saved)
	}
	if saved.CreatedAt == 0 {
		t.Error("CreatedAt not set")
	}
}

// memArchive is an in-memory Archive for engine tests.
type memArchive struct {
	saved []ArchivedReport
}

func (a *memArchive) SaveReport(_ context.Context, r ArchivedReport) error {
	a.saved = append(a.saved, r)
	return nil
}

func (a *memArchive) GetReport(_ context.Context, id string) (ArchivedReport, error) {
	for _, r := range a.saved {
		if r.SessionID == id {
			return r, nil
		}
	}
	return ArchivedReport{}, nil
}

func (a *memArchive) ListReports(_ context.Context, limit int) ([]ArchivedReport, error) {
	return a.saved, nil
}
