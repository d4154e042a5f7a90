package depth

// SessionStatus is the lifecycle state of a research session.
type SessionStatus string

const (
	StatusClarifying  SessionStatus = "clarifying"
	StatusBriefing    SessionStatus = "briefing"
	StatusResearching SessionStatus = "researching"
	StatusReporting   SessionStatus = "reporting"
	StatusCompleted   SessionStatus = "completed"
	StatusFailed      SessionStatus = "failed"
)

// session is the mutable state of one research session. It is owned
// exclusively by the supervisor control flow for its lifetime: created at
// request start, written only between dispatcher joins, and discarded after
// the final report or a terminal clarification. No locking — there is never
// more than one writer.
type session struct {
	ID       string
	Question string
	Brief    string
	Status   SessionStatus

	// ResearchIterations counts completed supervisor rounds. Increases by
	// exactly one per round, never decremented.
	ResearchIterations int
	// UsedResearchUnits counts research units actually dispatched across all
	// rounds. Bounded by rounds × MaxConcurrentResearchUnits.
	UsedResearchUnits int

	// Notes are the accumulated compressed findings, in merge order.
	Notes []string
	// PreviousNotes is the Notes snapshot from before the most recent round,
	// passed to the quality panel for gain/saturation comparison.
	PreviousNotes []string
	// RawNotes are the raw per-unit observations, kept for the archive.
	RawNotes []string
	// QualityHistory records the per-round quality score for trend analysis.
	QualityHistory []float64

	// Messages is the supervisor's conversation context.
	Messages []ChatMessage

	// Set when the supervisor decides Complete.
	CompletionReason string
	FinalQuality     float64

	Usage Usage
}

func newSession(question string, messages []ChatMessage) *session {
	return &session{
		ID:       NewID(),
		Question: question,
		Status:   StatusClarifying,
		Messages: messages,
	}
}

// merge folds one round of dispatcher results into the session. Called only
// by the supervisor after a join completes.
func (s *session) merge(results []ResearchUnitResult, dispatched int) {
	s.PreviousNotes = s.Notes
	notes := make([]string, 0, len(s.Notes)+len(results))
	notes = append(notes, s.Notes...)
	for _, r := range results {
		if r.Summary != "" {
			notes = append(notes, r.Summary)
		}
		s.RawNotes = append(s.RawNotes, r.RawNotes...)
		s.Usage.Add(r.Usage)
	}
	s.Notes = notes
	s.UsedResearchUnits += dispatched
	s.ResearchIterations++
}
