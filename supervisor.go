package depth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// SupervisorAction is the tagged decision produced once per planning round.
type SupervisorAction struct {
	Type    ActionType
	Topics  []string // ActionResearch: ordered, self-contained topic texts
	Reason  string   // ActionComplete: why the session is concluding
	Quality float64  // ActionComplete: final completion score
}

// ActionType discriminates SupervisorAction variants.
type ActionType int

const (
	ActionResearch ActionType = iota
	ActionComplete
)

// Decision thresholds for the supervisor's state analysis. Empirically tuned
// alongside the quality constants — change only against a regression
// baseline.
const (
	// completionCutoff: a completion score above this ends the session
	// regardless of the progressive threshold.
	completionCutoff = 0.75
	// progressCutoff: spending above this fraction of the iteration budget
	// ends the session.
	progressCutoff = 0.8
)

// completionThreshold is the progressive quality bar: strict early, relaxed
// as the iteration budget is spent, floored at 0.50.
func completionThreshold(iter, maxIter int) float64 {
	r := float64(iter) / float64(maxIter)
	switch {
	case r <= 1.0/3:
		return 0.85
	case r <= 2.0/3:
		return 0.70
	default:
		return max(0.50, 0.85-r*0.35)
	}
}

// supervisor drives the planning loop for one session. The loop is strictly
// sequential: one round at a time, state written only after a dispatcher join.
type supervisor struct {
	provider   Provider
	dispatcher *dispatcher
	budget     Budget
	logger     *slog.Logger
	tracer     Tracer
	progress   *progressTracker
}

// run executes planning rounds until a Complete decision, filling sess as it
// goes. Cancellation is checked between rounds; in-flight rounds finish.
func (s *supervisor) run(ctx context.Context, sess *session) error {
	sess.Status = StatusResearching
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		round := sess.ResearchIterations + 1
		roundCtx := ctx
		var span Span
		if s.tracer != nil {
			roundCtx, span = s.tracer.Start(ctx, "supervisor.round",
				IntAttr("round", round),
				IntAttr("notes", len(sess.Notes)))
		}

		act := s.decide(roundCtx, sess)
		if act.Type == ActionComplete {
			sess.CompletionReason = act.Reason
			sess.FinalQuality = act.Quality
			s.logger.Info("research complete",
				"session", sess.ID,
				"reason", act.Reason,
				"quality", act.Quality,
				"rounds", sess.ResearchIterations,
				"units", sess.UsedResearchUnits)
			if span != nil {
				span.SetAttr(StringAttr("decision", "complete"), StringAttr("reason", act.Reason))
				span.End()
			}
			return nil
		}

		s.progress.roundStarted(round, len(act.Topics))
		s.logger.Info("dispatching research round",
			"session", sess.ID, "round", round, "topics", len(act.Topics))

		results := s.dispatcher.dispatch(roundCtx, act.Topics)
		sess.merge(results, len(results))
		sess.QualityHistory = append(sess.QualityHistory, roundQuality(sess.Notes))
		sess.Messages = append(sess.Messages, UserMessage(formatRoundNotes(sess.ResearchIterations, results)))

		if span != nil {
			span.SetAttr(StringAttr("decision", "research"), IntAttr("units", len(results)))
			span.End()
		}
	}
}

// decide runs one planning round. Check order is load-bearing: forced exits
// first (no model call), then the quality-regression gate, then state
// analysis against the progressive threshold, and only then topic generation.
func (s *supervisor) decide(ctx context.Context, sess *session) SupervisorAction {
	iter := sess.ResearchIterations
	maxIter := s.budget.MaxResearcherIterations

	// Forced exits.
	if iter >= maxIter-1 {
		return s.complete(sess, "approaching iteration limit")
	}
	if iter > 2 && len(sess.Notes) < iter {
		return s.complete(sess, "findings growing slower than iterations")
	}
	if sess.UsedResearchUnits > 0 &&
		float64(len(sess.Notes))/float64(sess.UsedResearchUnits) < 0.5 {
		return s.complete(sess, "low yield per research unit")
	}

	// Quality-regression gate, once there is a prior round to compare with.
	if len(sess.PreviousNotes) > 0 {
		if gain := informationGain(sess.Notes, sess.PreviousNotes); gain < minInformationGain {
			return s.complete(sess, fmt.Sprintf("information gain %.3f below minimum", gain))
		}
		if trend := qualityTrend(sess.QualityHistory); trend < 0 && iter > 2 {
			return s.complete(sess, "quality trend declining")
		}
		if sat := saturation(sess.Notes); sat > maxSaturation {
			return s.complete(sess, fmt.Sprintf("findings saturated (%.2f)", sat))
		}
		if eff := efficiency(sess.Notes); eff < minEfficiency && iter > 1 {
			return s.complete(sess, "research efficiency below minimum")
		}
	}

	// State analysis against the progressive threshold.
	completion := s.completionScore(sess)
	progressRatio := float64(iter) / float64(maxIter)
	if completion > completionCutoff {
		return s.complete(sess, fmt.Sprintf("completion score %.2f above cutoff", completion))
	}
	if progressRatio > progressCutoff {
		return s.complete(sess, "iteration budget nearly spent")
	}
	if threshold := completionThreshold(iter, maxIter); completion >= threshold {
		return s.complete(sess, fmt.Sprintf("completion score %.2f met threshold %.2f", completion, threshold))
	}

	// Ask the model for the next round's topics.
	topics := s.generateTopics(ctx, sess)
	if len(topics) == 0 {
		return s.complete(sess, "no research topics generated")
	}
	return SupervisorAction{Type: ActionResearch, Topics: topics}
}

func (s *supervisor) complete(sess *session, reason string) SupervisorAction {
	return SupervisorAction{
		Type:    ActionComplete,
		Reason:  reason,
		Quality: s.completionScore(sess),
	}
}

// completionScore averages the quality score (breadth + depth) with brief
// coverage.
func (s *supervisor) completionScore(sess *session) float64 {
	quality := roundQuality(sess.Notes)
	coverage := coverageScore(sess.Brief, sess.Notes)
	return (quality + coverage) / 2
}

// generateTopics asks the model for up to MaxConcurrentResearchUnits new,
// mutually non-overlapping topics, informed of everything found so far.
// Failures and empty output both mean no topics — the caller completes.
func (s *supervisor) generateTopics(ctx context.Context, sess *session) []string {
	limit := s.budget.MaxConcurrentResearchUnits
	prompt := fmt.Sprintf(
		"Propose up to %d new research topics for the next round. Each topic must be self-contained (a researcher sees only its text) and must not repeat an angle already covered by the findings above.", limit)

	msgs := append(append([]ChatMessage{}, sess.Messages...), UserMessage(prompt))
	out, usage, parsed, err := structuredCall(ctx, s.provider, topicsStrategy, msgs)
	sess.Usage.Add(usage)
	if err != nil {
		s.logger.Warn("topic generation failed", "session", sess.ID, "err", err)
		return nil
	}
	if !parsed {
		s.logger.Warn("topic generation unparseable", "session", sess.ID)
		return nil
	}
	return out.ResearchTopics
}

// formatRoundNotes renders one round's unit results into the supervisor
// conversation so later planning sees what was found.
func formatRoundNotes(round int, results []ResearchUnitResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Round %d findings:\n", round)
	for i, r := range results {
		topic := truncateStr(r.Topic, 50)
		if len(r.Topic) > 50 {
			topic += "..."
		}
		fmt.Fprintf(&b, "\n### Research %d: %s\n\n", i+1, topic)
		if r.Err != "" {
			fmt.Fprintf(&b, "(unit failed: %s)\n", r.Err)
			continue
		}
		b.WriteString(r.Summary)
		b.WriteString("\n")
	}
	return b.String()
}

// truncateStr truncates a string to n runes.
func truncateStr(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
