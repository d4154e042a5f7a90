package depth

// Budget is the immutable set of limits governing one research session.
// The zero value of a numeric field means "use the default"; construct with
// DefaultBudget and override fields, or pass a fully specified value.
type Budget struct {
	// MaxResearcherIterations caps supervisor planning rounds.
	MaxResearcherIterations int
	// MaxConcurrentResearchUnits caps research units dispatched per round.
	MaxConcurrentResearchUnits int
	// MaxReactToolCalls caps tool-calling iterations within one research unit.
	MaxReactToolCalls int
	// MaxTotalSearchesPerResearcher caps search-type tool calls across the
	// lifetime of one research unit.
	MaxTotalSearchesPerResearcher int
	// MaxSearchesPerIteration caps parallel search-type calls in a single
	// tool-execution step; excess calls in the same step are dropped.
	MaxSearchesPerIteration int
	// AllowClarification enables the pre-research clarification stage.
	AllowClarification bool
}

// DefaultBudget returns the stock limits.
func DefaultBudget() Budget {
	return Budget{
		MaxResearcherIterations:       2,
		MaxConcurrentResearchUnits:    2,
		MaxReactToolCalls:             3,
		MaxTotalSearchesPerResearcher: 5,
		MaxSearchesPerIteration:       1,
		AllowClarification:            true,
	}
}

// normalize fills zero numeric fields with defaults. AllowClarification is
// left as set: callers who construct a Budget by hand have chosen explicitly.
func (b Budget) normalize() Budget {
	d := DefaultBudget()
	if b.MaxResearcherIterations <= 0 {
		b.MaxResearcherIterations = d.MaxResearcherIterations
	}
	if b.MaxConcurrentResearchUnits <= 0 {
		b.MaxConcurrentResearchUnits = d.MaxConcurrentResearchUnits
	}
	if b.MaxReactToolCalls <= 0 {
		b.MaxReactToolCalls = d.MaxReactToolCalls
	}
	if b.MaxTotalSearchesPerResearcher <= 0 {
		b.MaxTotalSearchesPerResearcher = d.MaxTotalSearchesPerResearcher
	}
	if b.MaxSearchesPerIteration <= 0 {
		b.MaxSearchesPerIteration = d.MaxSearchesPerIteration
	}
	return b
}

// stageBounds are the iteration-count boundaries used to phrase supervisor
// guidance across the early, middle, and final phases of a session. Pure
// arithmetic on MaxResearcherIterations.
type stageBounds struct {
	earlyEnd   int // end of the exploratory phase
	middleEnd  int // end of the consolidation phase
	finalStart int // first iteration of the wrap-up phase
}

func (b Budget) stages() stageBounds {
	early := b.MaxResearcherIterations / 3
	middle := 2 * b.MaxResearcherIterations / 3
	return stageBounds{earlyEnd: early, middleEnd: middle, finalStart: middle + 1}
}
