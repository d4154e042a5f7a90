package depth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// dispatcher fans one round's topics out to concurrent research units and
// joins all of them. Units are isolated: a panic or failure in one becomes an
// error-tagged result and never aborts its siblings.
type dispatcher struct {
	budget  Budget
	logger  *slog.Logger
	tracer  Tracer
	newUnit func(topic string) *researchUnit
}

// dispatch truncates topics to the concurrency budget, runs one research
// unit per topic in parallel, and returns results in topic order. It always
// waits for every unit; cancellation surfaces inside each unit as degraded
// results rather than an early return here.
func (d *dispatcher) dispatch(ctx context.Context, topics []string) []ResearchUnitResult {
	limit := d.budget.MaxConcurrentResearchUnits
	if len(topics) > limit {
		d.logger.Warn("truncating research topics to concurrency budget",
			"requested", len(topics),
			"dispatched", limit,
			"dropped", len(topics)-limit)
		topics = topics[:limit]
	}
	if len(topics) == 0 {
		return nil
	}

	dispatchCtx := ctx
	var span Span
	if d.tracer != nil {
		dispatchCtx, span = d.tracer.Start(ctx, "research.dispatch",
			IntAttr("units", len(topics)))
		defer span.End()
	}

	results := make([]ResearchUnitResult, len(topics))

	// Fast path: single unit, no goroutine needed.
	if len(topics) == 1 {
		results[0] = d.runSafe(dispatchCtx, topics[0])
		return results
	}

	var wg sync.WaitGroup
	wg.Add(len(topics))
	for i, topic := range topics {
		go func() {
			defer wg.Done()
			results[i] = d.runSafe(dispatchCtx, topic)
		}()
	}
	wg.Wait()
	return results
}

// runSafe executes one research unit with panic recovery. A panicking unit
// yields an error-tagged result; the round completes with its siblings'
// contributions intact.
func (d *dispatcher) runSafe(ctx context.Context, topic string) (res ResearchUnitResult) {
	defer func() {
		if p := recover(); p != nil {
			d.logger.Error("research unit panicked", "topic", truncateStr(topic, 50), "panic", p)
			res = ResearchUnitResult{
				Topic: topic,
				Err:   fmt.Sprintf("research unit panic: %v", p),
			}
		}
	}()
	return d.newUnit(topic).run(ctx)
}
