package depth

import (
	"context"
	"testing"
	"time"
)

func collectEvents(ch chan ProgressEvent) []ProgressEvent {
	var out []ProgressEvent
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func TestProgressMonotonicPercent(t *testing.T) {
	ch := make(chan ProgressEvent, 16)
	tr := newProgressTracker(context.Background(), ch)

	tr.emit(StageResearching, 40, "forty", nil)
	tr.emit(StageResearching, 20, "late low event", nil)
	tr.emit(StageResearching, 60, "sixty", nil)
	tr.close()

	events := collectEvents(ch)
	if len(events) != 3 {
		t.Fatalf("got %d events", len(events))
	}
	last := -1
	for _, ev := range events {
		if ev.Percent < last {
			t.Errorf("percent regressed: %v", events)
		}
		last = ev.Percent
	}
	if events[1].Percent != 40 {
		t.Errorf("low event not clamped up: %d", events[1].Percent)
	}
}

func TestProgressModelStartedCooldown(t *testing.T) {
	ch := make(chan ProgressEvent, 16)
	tr := newProgressTracker(context.Background(), ch)

	base := time.Now()
	tr.now = func() time.Time { return base }
	tr.modelStarted("u1")
	tr.now = func() time.Time { return base.Add(500 * time.Millisecond) }
	tr.modelStarted("u2") // inside the cooldown, suppressed
	tr.now = func() time.Time { return base.Add(3 * time.Second) }
	tr.modelStarted("u3")
	tr.close()

	events := collectEvents(ch)
	if len(events) != 2 {
		t.Fatalf("got %d model events, want 2: %v", len(events), events)
	}
}

func TestProgressRoundAnchors(t *testing.T) {
	ch := make(chan ProgressEvent, 16)
	tr := newProgressTracker(context.Background(), ch)

	tr.roundStarted(1, 2)
	tr.roundStarted(3, 1)
	tr.roundStarted(9, 1) // capped
	tr.close()

	events := collectEvents(ch)
	if events[0].Percent != 15 || events[1].Percent != 35 || events[2].Percent != 70 {
		t.Errorf("round anchors = %d %d %d, want 15 35 70",
			events[0].Percent, events[1].Percent, events[2].Percent)
	}
}

func TestProgressCloseIdempotent(t *testing.T) {
	ch := make(chan ProgressEvent, 1)
	tr := newProgressTracker(context.Background(), ch)
	tr.close()
	tr.close() // second close must not panic
	if _, open := <-ch; open {
		t.Error("channel still open after close")
	}
}

func TestProgressNilChannelIsSafe(t *testing.T) {
	tr := newProgressTracker(context.Background(), nil)
	tr.briefStarted()
	tr.roundStarted(1, 1)
	tr.completed()
	tr.close()
	// Percent bookkeeping still holds without a consumer.
	if tr.percent != 100 {
		t.Errorf("percent = %d, want 100", tr.percent)
	}
}

func TestProgressEmitRespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ch := make(chan ProgressEvent) // unbuffered, nobody reads
	tr := newProgressTracker(ctx, ch)

	done := make(chan struct{})
	go func() {
		tr.emit(StageResearching, 10, "stalled consumer", nil)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("emit blocked on a dead consumer")
	}
}
