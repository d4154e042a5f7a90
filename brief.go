package depth

import (
	"context"
	"fmt"
	"log/slog"
)

const briefPrompt = `Compile the conversation below into a single self-contained research brief. The brief must capture the question, all constraints the user stated, and any scope decisions, so a researcher who has not seen the conversation can act on it alone.

Respond with JSON: {"research_brief": "<the brief>"}`

// runBrief compiles the conversation into a research brief seeding the
// supervisor. If the model never produces a parseable brief, the raw question
// stands in — the session proceeds either way.
func runBrief(ctx context.Context, p Provider, logger *slog.Logger, question string, messages []ChatMessage) (string, Usage, error) {
	req := append([]ChatMessage{SystemMessage(briefPrompt)}, messages...)
	out, usage, parsed, err := structuredCall(ctx, p, briefStrategy, req)
	if err != nil {
		return "", usage, err
	}
	if !parsed || out.ResearchBrief == "" {
		logger.Warn("brief output unparseable, using raw question")
		return question, usage, nil
	}
	return out.ResearchBrief, usage, nil
}

// supervisorSeed builds the system context for the supervisor conversation:
// the brief plus phase guidance derived from the iteration boundaries.
func supervisorSeed(brief string, b Budget) ChatMessage {
	st := b.stages()
	return SystemMessage(fmt.Sprintf(
		`You supervise a team of researchers investigating the brief below. Each round you either delegate new, non-overlapping research topics or conclude the session.

Pace the research across %d rounds: explore broadly through round %d, consolidate and fill gaps through round %d, and from round %d only verify and close out.

Research brief:
%s`,
		b.MaxResearcherIterations, st.earlyEnd, st.middleEnd, st.finalStart, brief))
}
