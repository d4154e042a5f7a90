package depth

import (
	"context"
	"log/slog"
)

// clarifyOutcome is the clarification-stage verdict for one session.
type clarifyOutcome struct {
	needsClarification bool
	question           string // terminal question for the user, when needed
	verification       string // acknowledgement woven into the conversation otherwise
	usage              Usage
}

const clarifyPrompt = `You are starting a deep research session. Review the conversation and decide whether the request is specific enough to research, or whether one clarifying question is needed first.

Respond with JSON: {"need_clarification": bool, "question": "<the single clarifying question, if needed>", "verification": "<a one-sentence confirmation of what will be researched, if not>"}`

// runClarification decides whether the question needs clarification before
// any research begins. When clarification is disabled by budget, it returns
// Proceed without a model call. On any model or parse failure it fails open
// and proceeds — an LLM quirk must never block the pipeline.
func runClarification(ctx context.Context, p Provider, logger *slog.Logger, messages []ChatMessage, allow bool) clarifyOutcome {
	if !allow {
		return clarifyOutcome{}
	}

	req := append([]ChatMessage{SystemMessage(clarifyPrompt)}, messages...)
	decision, usage, parsed, err := structuredCall(ctx, p, clarifyStrategy, req)
	if err != nil {
		logger.Warn("clarification call failed, proceeding without", "err", err)
		return clarifyOutcome{usage: usage}
	}
	if !parsed {
		logger.Warn("clarification output unparseable, proceeding without")
		return clarifyOutcome{usage: usage}
	}

	return clarifyOutcome{
		needsClarification: decision.NeedClarification,
		question:           decision.Question,
		verification:       decision.Verification,
		usage:              usage,
	}
}
