package depth

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Per-call and per-batch tool execution timeouts. A timed-out call becomes an
// observation for the model; it never cancels sibling calls.
const (
	perToolTimeout = 30 * time.Second
	batchTimeout   = 60 * time.Second
)

// maxParallelToolCalls caps concurrent tool goroutines within one unit to
// avoid overwhelming external services.
const maxParallelToolCalls = 10

// maxObservationRunes caps the rune length of a tool observation stored in
// the unit's message history. Oversized results are truncated with a marker
// so the model knows content was trimmed.
const maxObservationRunes = 100_000

// researchCompleteName is the built-in signal tool a researcher calls when
// its topic is exhausted.
const researchCompleteName = "research_complete"

var researchCompleteDef = ToolDefinition{
	Name:        researchCompleteName,
	Description: "Call this when the topic is fully researched and no further tool calls would add information.",
	Parameters:  json.RawMessage(`{"type":"object","properties":{},"required":[]}`),
}

// compressionFailureSummary is the sentinel a unit returns when compression
// cannot complete. A unit always produces a result string, never an error.
const compressionFailureSummary = "Error compressing research findings: maximum retries exceeded. Raw notes are preserved in the session record."

const researcherPrompt = `You are a researcher investigating one topic. Use the available tools to gather evidence, then stop. Prefer few, well-chosen tool calls over many speculative ones. Call research_complete when the topic is covered.`

const compressPrompt = `Summarize the research transcript below into a compact findings report for this topic. Preserve concrete facts, figures, names, and source attributions. Omit process narration and dead ends.`

// researchUnit runs one bounded tool-calling loop for a single topic.
// State flow: researching → tool execution → (researching | compressing) →
// done. The unit operates on a private message list and is side-effect-free
// until the supervisor merges its result.
type researchUnit struct {
	id       string
	topic    string
	provider Provider
	tools    ToolProvider
	budget   Budget
	logger   *slog.Logger
	tracer   Tracer
	progress *progressTracker
}

func (u *researchUnit) run(ctx context.Context) ResearchUnitResult {
	unitCtx := ctx
	var span Span
	if u.tracer != nil {
		unitCtx, span = u.tracer.Start(ctx, "research.unit",
			StringAttr("unit", u.id),
			StringAttr("topic", truncateStr(u.topic, 50)))
		defer span.End()
	}

	result := ResearchUnitResult{Topic: u.topic}

	defs, err := u.tools.ListTools(unitCtx, RoleResearcher)
	if err != nil {
		result.Err = "listing researcher tools: " + err.Error()
		return result
	}
	if len(defs) == 0 {
		// Validated at engine construction; reaching this means the tool set
		// changed mid-session.
		result.Err = "no tools available for researcher role"
		return result
	}
	defs = append(defs, researchCompleteDef)

	messages := []ChatMessage{
		SystemMessage(researcherPrompt),
		UserMessage(u.topic),
	}

	totalSearches := 0

researching:
	for i := 0; i < u.budget.MaxReactToolCalls; i++ {
		u.progress.modelStarted(u.id)

		resp, err := u.provider.Chat(unitCtx, ChatRequest{Messages: messages, Tools: defs})
		result.Usage.Add(resp.Usage)
		if err != nil {
			u.logger.Warn("researcher model call failed", "unit", u.id, "iteration", i, "err", err)
			messages = append(messages, UserMessage("The previous model call failed: "+err.Error()))
			break researching
		}

		// No tool calls — the model is done researching.
		if len(resp.ToolCalls) == 0 {
			if resp.Content != "" {
				messages = append(messages, AssistantMessage(resp.Content))
				result.RawNotes = append(result.RawNotes, resp.Content)
			}
			break researching
		}

		messages = append(messages, ChatMessage{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		// Completion signal ends the loop; any sibling calls in the same
		// step are acknowledged but not executed.
		if call, ok := findCall(resp.ToolCalls, researchCompleteName); ok {
			for _, tc := range resp.ToolCalls {
				if tc.ID == call.ID {
					messages = append(messages, ToolResultMessage(tc.ID, "acknowledged"))
				} else {
					messages = append(messages, ToolResultMessage(tc.ID, "skipped: research marked complete"))
				}
			}
			break researching
		}

		// Cap parallel search-type calls for this step; excess calls are
		// dropped with a warning, not executed.
		toRun, dropped := capSearchCalls(resp.ToolCalls, u.budget.MaxSearchesPerIteration)
		if len(dropped) > 0 {
			u.logger.Warn("dropping excess search calls",
				"unit", u.id, "dropped", len(dropped), "cap", u.budget.MaxSearchesPerIteration)
			for _, tc := range dropped {
				messages = append(messages, ToolResultMessage(tc.ID,
					"search skipped: per-step search limit reached"))
			}
		}

		// The lifetime search budget forces compression once it would be
		// exceeded, regardless of what the model intended.
		stepSearches := countSearchCalls(toRun)
		if totalSearches+stepSearches > u.budget.MaxTotalSearchesPerResearcher {
			u.logger.Info("search budget exhausted, compressing",
				"unit", u.id, "total", totalSearches, "requested", stepSearches)
			for _, tc := range toRun {
				messages = append(messages, ToolResultMessage(tc.ID,
					"search limit reached for this research unit; summarize what you have found"))
			}
			break researching
		}
		totalSearches += stepSearches

		// Execute the surviving calls in parallel under the batch deadline.
		observations := u.executeBatch(unitCtx, toRun)
		for j, tc := range toRun {
			obs := observations[j]
			if len([]rune(obs)) > maxObservationRunes {
				obs = truncateStr(obs, maxObservationRunes) + "\n\n[output truncated — original was longer]"
			}
			messages = append(messages, ToolResultMessage(tc.ID, obs))
			result.RawNotes = append(result.RawNotes, obs)
			u.progress.toolFinished(tc.Name)
		}
	}

	summary, usage := u.compress(unitCtx, messages)
	result.Usage.Add(usage)
	result.Summary = summary
	if span != nil {
		span.SetAttr(IntAttr("searches", totalSearches), IntAttr("raw_notes", len(result.RawNotes)))
	}
	return result
}

// executeBatch runs tool calls in parallel with per-call timeouts under a
// shared batch deadline. Failures and timeouts come back as textual
// observations in call order — never as errors.
func (u *researchUnit) executeBatch(ctx context.Context, calls []ToolCall) []string {
	batchCtx, cancel := context.WithTimeout(ctx, batchTimeout)
	defer cancel()

	observations := make([]string, len(calls))

	invoke := func(i int, tc ToolCall) {
		start := time.Now()
		content, err := u.tools.Invoke(batchCtx, tc.Name, tc.Args, perToolTimeout)
		if err != nil {
			u.logger.Warn("tool call failed",
				"unit", u.id, "tool", tc.Name, "duration", time.Since(start), "err", err)
			observations[i] = "error: " + err.Error()
			return
		}
		observations[i] = content
	}

	if len(calls) == 1 {
		invoke(0, calls[0])
		return observations
	}

	type workItem struct {
		idx int
		tc  ToolCall
	}
	workCh := make(chan workItem, len(calls))
	for i, tc := range calls {
		workCh <- workItem{i, tc}
	}
	close(workCh)

	numWorkers := min(len(calls), maxParallelToolCalls)
	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for range numWorkers {
		go func() {
			defer wg.Done()
			for w := range workCh {
				if batchCtx.Err() != nil {
					observations[w.idx] = "error: " + batchCtx.Err().Error()
					continue
				}
				invoke(w.idx, w.tc)
			}
		}()
	}
	wg.Wait()
	return observations
}

// compress synthesizes the unit transcript into a compact findings summary.
// On token-limit failures it retries up to three times, each time trimming
// the transcript back to before its last assistant message. If every attempt
// fails it returns the sentinel summary — a unit never raises.
func (u *researchUnit) compress(ctx context.Context, messages []ChatMessage) (string, Usage) {
	var usage Usage

	const maxCompressRetries = 3
	for attempt := 0; attempt < maxCompressRetries; attempt++ {
		req := ChatRequest{Messages: append(
			[]ChatMessage{SystemMessage(compressPrompt)},
			append(append([]ChatMessage{}, messages...),
				UserMessage("Compress the research above into the findings report now."))...,
		)}
		resp, err := u.provider.Chat(ctx, req)
		usage.Add(resp.Usage)
		if err == nil {
			if resp.Content == "" {
				return compressionFailureSummary, usage
			}
			return resp.Content, usage
		}
		if !IsTokenLimit(err) {
			u.logger.Warn("compression failed", "unit", u.id, "err", err)
			return compressionFailureSummary, usage
		}
		trimmed := trimToLastAssistant(messages)
		u.logger.Warn("compression hit token limit, trimming transcript",
			"unit", u.id, "attempt", attempt+1,
			"before", len(messages), "after", len(trimmed))
		messages = trimmed
	}
	return compressionFailureSummary, usage
}

// trimToLastAssistant drops the last assistant message and everything after
// it, shrinking the transcript from the tail for a compression retry.
func trimToLastAssistant(msgs []ChatMessage) []ChatMessage {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "assistant" {
			return msgs[:i]
		}
	}
	return msgs
}

// capSearchCalls splits a step's tool calls into those to execute and the
// search-type calls dropped by the per-step cap. Non-search calls always run.
func capSearchCalls(calls []ToolCall, maxSearches int) (toRun, dropped []ToolCall) {
	searches := 0
	for _, tc := range calls {
		if IsSearchTool(tc.Name) {
			searches++
			if searches > maxSearches {
				dropped = append(dropped, tc)
				continue
			}
		}
		toRun = append(toRun, tc)
	}
	return toRun, dropped
}

func countSearchCalls(calls []ToolCall) int {
	n := 0
	for _, tc := range calls {
		if IsSearchTool(tc.Name) {
			n++
		}
	}
	return n
}

func findCall(calls []ToolCall, name string) (ToolCall, bool) {
	for _, tc := range calls {
		if tc.Name == name {
			return tc, true
		}
	}
	return ToolCall{}, false
}
