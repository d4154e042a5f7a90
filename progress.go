package depth

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Stage identifies where in the pipeline a progress event originated.
type Stage string

const (
	StageClarifying  Stage = "clarifying"
	StageBriefing    Stage = "briefing"
	StageResearching Stage = "researching"
	StageReporting   Stage = "writing_report"
	StageCompleted   Stage = "completed"
	StageFailed      Stage = "failed"
)

// ProgressEvent is one observation of pipeline progress. Percent is
// monotonically non-decreasing within a session.
type ProgressEvent struct {
	Stage    Stage          `json:"stage"`
	Percent  int            `json:"percent"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Progress anchors. Rounds sub-divide the supervising band; model and tool
// events nudge within the researching band without crossing into the report
// band.
const (
	progressBrief         = 5
	progressBriefDone     = 15
	progressRoundBase     = 15
	progressRoundStep     = 10
	progressRoundCap      = 70
	progressModelCap      = 90
	progressToolCap       = 95
	progressReport        = 75
	progressReportDrafted = 95
)

// modelStartedCooldown deduplicates "model started" events so concurrent
// research units don't flood a subscriber.
const modelStartedCooldown = 2 * time.Second

// progressTracker serializes ProgressEvents onto one bounded channel. The
// channel is closed exactly once, on completion or error; consumers drain
// until closed. A nil channel disables emission but keeps the percent
// bookkeeping so invariants hold either way.
type progressTracker struct {
	ch  chan<- ProgressEvent
	ctx context.Context

	mu             sync.Mutex
	percent        int
	lastModelStart time.Time
	closeOnce      sync.Once
	now            func() time.Time // test seam
}

func newProgressTracker(ctx context.Context, ch chan<- ProgressEvent) *progressTracker {
	return &progressTracker{ch: ch, ctx: ctx, now: time.Now}
}

// emit clamps percent to be non-decreasing and sends the event. Sends respect
// context cancellation so a stalled consumer cannot wedge the engine forever.
func (t *progressTracker) emit(stage Stage, percent int, msg string, meta map[string]any) {
	t.mu.Lock()
	if percent < t.percent {
		percent = t.percent
	}
	t.percent = percent
	t.mu.Unlock()

	if t.ch == nil {
		return
	}
	ev := ProgressEvent{Stage: stage, Percent: percent, Message: msg, Metadata: meta}
	select {
	case t.ch <- ev:
	case <-t.ctx.Done():
	}
}

// bump raises percent by one within a cap, returning the clamped value.
func (t *progressTracker) bump(limit int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.percent < limit {
		t.percent++
	}
	return t.percent
}

func (t *progressTracker) clarifying() {
	t.emit(StageClarifying, 0, "reviewing the question", nil)
}

func (t *progressTracker) briefStarted() {
	t.emit(StageBriefing, progressBrief, "compiling research brief", nil)
}

func (t *progressTracker) briefDone() {
	t.emit(StageBriefing, progressBriefDone, "research brief ready", nil)
}

// roundStarted anchors a supervisor round within the 15–70 band.
func (t *progressTracker) roundStarted(round, topics int) {
	pct := min(progressRoundBase+(round-1)*progressRoundStep, progressRoundCap)
	t.emit(StageResearching, pct,
		fmt.Sprintf("research round %d: %d topics", round, topics),
		map[string]any{"round": round, "topics": topics})
}

// modelStarted emits a throttled "model thinking" event for one unit.
func (t *progressTracker) modelStarted(unit string) {
	t.mu.Lock()
	now := t.now()
	if now.Sub(t.lastModelStart) < modelStartedCooldown {
		t.mu.Unlock()
		return
	}
	t.lastModelStart = now
	t.mu.Unlock()

	pct := t.bump(progressModelCap)
	t.emit(StageResearching, pct, "model analyzing findings",
		map[string]any{"unit": unit})
}

func (t *progressTracker) toolFinished(name string) {
	pct := t.bump(progressToolCap)
	t.emit(StageResearching, pct, "tool finished: "+name,
		map[string]any{"tool": name})
}

func (t *progressTracker) reportStarted(findings int) {
	t.emit(StageReporting, progressReport, "writing final report",
		map[string]any{"findings": findings})
}

func (t *progressTracker) reportDrafted() {
	t.emit(StageReporting, progressReportDrafted, "report drafted", nil)
}

func (t *progressTracker) completed() {
	t.emit(StageCompleted, 100, "research completed", nil)
}

func (t *progressTracker) failed(err error) {
	t.mu.Lock()
	pct := t.percent
	t.mu.Unlock()
	t.emit(StageFailed, pct, "research failed: "+err.Error(), nil)
}

// close closes the event channel exactly once. Safe to call from any exit
// path.
func (t *progressTracker) close() {
	if t.ch == nil {
		return
	}
	t.closeOnce.Do(func() {
		defer func() { recover() }()
		close(t.ch)
	})
}
