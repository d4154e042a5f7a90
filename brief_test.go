package depth

import (
	"context"
	"strings"
	"testing"
)

func TestRunBrief(t *testing.T) {
	p := &mockProvider{responses: []ChatResponse{
		{Content: briefJSON("the compiled brief")},
	}}
	brief, _, err := runBrief(context.Background(), p, nopLogger, "q",
		[]ChatMessage{UserMessage("q")})
	if err != nil {
		t.Fatal(err)
	}
	if brief != "the compiled brief" {
		t.Errorf("brief = %q", brief)
	}
}

func TestRunBriefFallsBackToQuestion(t *testing.T) {
	p := &mockProvider{responses: []ChatResponse{
		{Content: "garbage"}, {Content: "garbage"}, {Content: "garbage"},
	}}
	brief, _, err := runBrief(context.Background(), p, nopLogger, "the raw question",
		[]ChatMessage{UserMessage("the raw question")})
	if err != nil {
		t.Fatal(err)
	}
	if brief != "the raw question" {
		t.Errorf("brief = %q, want raw question fallback", brief)
	}
}

func TestRunBriefPropagatesModelError(t *testing.T) {
	p := &mockProvider{
		responses: []ChatResponse{{}},
		errs:      []error{&ErrHTTP{Status: 500, Body: "down"}},
	}
	_, _, err := runBrief(context.Background(), p, nopLogger, "q", []ChatMessage{UserMessage("q")})
	if err == nil {
		t.Fatal("want error")
	}
}

func TestSupervisorSeedStages(t *testing.T) {
	msg := supervisorSeed("the brief", Budget{MaxResearcherIterations: 9}.normalize())
	if msg.Role != "system" {
		t.Errorf("role = %q", msg.Role)
	}
	for _, want := range []string{"9 rounds", "round 3", "round 6", "round 7", "the brief"} {
		if !strings.Contains(msg.Content, want) {
			t.Errorf("seed missing %q:\n%s", want, msg.Content)
		}
	}
}
