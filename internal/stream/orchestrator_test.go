package stream

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/inkwell-labs/inkwell-backend/internal/jobstate"
	"github.com/inkwell-labs/inkwell-backend/internal/provider"
	"github.com/inkwell-labs/inkwell-backend/pkg/enums"
)

type scriptedClient struct {
	events []provider.Event
	err    error
}

func (c scriptedClient) Stream(ctx context.Context, req provider.Request) (<-chan provider.Event, error) {
	if c.err != nil {
		return nil, c.err
	}
	ch := make(chan provider.Event, len(c.events))
	for _, e := range c.events {
		ch <- e
	}
	close(ch)
	return ch, nil
}

type recordedUpdate struct {
	jobID string
	stage string
	upd   jobstate.ProgressUpdate
}

type recordingWriter struct {
	updates []recordedUpdate
}

func (w *recordingWriter) SafeUpdateProgress(ctx context.Context, jobID, stage string, upd jobstate.ProgressUpdate) {
	w.updates = append(w.updates, recordedUpdate{jobID: jobID, stage: stage, upd: upd})
}

func newTestOrchestrator(t *testing.T, writer ProgressWriter) *Orchestrator {
	t.Helper()
	orch, err := NewOrchestrator(writer, nil, nil)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	// A clock that jumps past the throttle makes every boundary flush fire.
	tick := time.Unix(0, 0)
	orch.now = func() time.Time {
		tick = tick.Add(minFlushInterval)
		return tick
	}
	return orch
}

func TestRunAccumulatesThinkingAndContent(t *testing.T) {
	writer := &recordingWriter{}
	orch := newTestOrchestrator(t, writer)

	client := scriptedClient{events: []provider.Event{
		provider.MessageStart{Model: "gpt-5", Usage: provider.Usage{InputTokens: 120}},
		provider.ThinkingDelta{Text: "outline first "},
		provider.ThinkingDelta{Text: "then sections"},
		provider.ContentDelta{Text: "The quick "},
		provider.ContentDelta{Text: "brown fox "},
		provider.ContentDelta{Text: "jumps"},
		provider.MessageStop{Model: "gpt-5", Usage: provider.Usage{InputTokens: 120, OutputTokens: 80, ReasoningTokens: 40}},
	}}

	result, err := orch.Run(context.Background(), "job-1", jobstate.DefaultStage, client, provider.Request{Model: "gpt-5"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.Content != "The quick brown fox jumps" {
		t.Fatalf("content %q", result.Content)
	}
	if result.Thinking != "outline first then sections" {
		t.Fatalf("thinking %q", result.Thinking)
	}
	if result.Model != "gpt-5" {
		t.Fatalf("model %q", result.Model)
	}
	if result.WordCount != 5 {
		t.Fatalf("word count %d", result.WordCount)
	}
	want := provider.Usage{InputTokens: 120, OutputTokens: 80, ReasoningTokens: 40}
	if result.Usage != want {
		t.Fatalf("usage %+v", result.Usage)
	}
}

func TestRunProgressNeverRegressesOrHitsHundred(t *testing.T) {
	writer := &recordingWriter{}
	orch := newTestOrchestrator(t, writer)

	events := []provider.Event{provider.MessageStart{Model: "gpt-5"}}
	for i := 0; i < 10; i++ {
		events = append(events, provider.ThinkingDelta{Text: "think word "})
	}
	for i := 0; i < 30; i++ {
		events = append(events, provider.ContentDelta{Text: "content word "})
	}
	events = append(events, provider.MessageStop{Model: "gpt-5"})

	if _, err := orch.Run(context.Background(), "job-2", jobstate.DefaultStage, scriptedClient{events: events}, provider.Request{Model: "gpt-5"}); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(writer.updates) == 0 {
		t.Fatal("expected progress updates")
	}
	prev := 0
	sawThinking, sawContent := false, false
	for _, u := range writer.updates {
		if u.upd.Progress < prev {
			t.Fatalf("progress regressed %d -> %d", prev, u.upd.Progress)
		}
		if u.upd.Progress >= 100 {
			t.Fatalf("orchestrator wrote %d; 100 is reserved for completion", u.upd.Progress)
		}
		switch u.upd.Phase {
		case enums.StreamPhaseThinking:
			if sawContent {
				t.Fatal("thinking update after the content phase started")
			}
			sawThinking = true
			if u.upd.Progress > thinkingMaxProgress {
				t.Fatalf("thinking progress %d above cap", u.upd.Progress)
			}
		case enums.StreamPhaseContent:
			sawContent = true
			if u.upd.Progress < contentBaseProgress {
				t.Fatalf("content progress %d below range", u.upd.Progress)
			}
		}
		prev = u.upd.Progress
	}
	if !sawThinking || !sawContent {
		t.Fatalf("phases missing: thinking=%v content=%v", sawThinking, sawContent)
	}
}

func TestRunSkipsThinkingPhase(t *testing.T) {
	writer := &recordingWriter{}
	orch := newTestOrchestrator(t, writer)

	client := scriptedClient{events: []provider.Event{
		provider.MessageStart{Model: "claude-haiku-4-5-20251001", Usage: provider.Usage{InputTokens: 50}},
		provider.ContentDelta{Text: "Straight to content. "},
		provider.MessageStop{Model: "claude-haiku-4-5-20251001", Usage: provider.Usage{InputTokens: 50, OutputTokens: 10}},
	}}

	result, err := orch.Run(context.Background(), "job-3", jobstate.DefaultStage, client, provider.Request{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Thinking != "" {
		t.Fatalf("unexpected thinking %q", result.Thinking)
	}
	if result.Content != "Straight to content. " {
		t.Fatalf("content %q", result.Content)
	}
	for _, u := range writer.updates {
		if u.upd.Phase == enums.StreamPhaseThinking {
			t.Fatal("thinking update on a stream with no reasoning phase")
		}
	}
}

func TestRunErrorEventSurfacesTypedFailure(t *testing.T) {
	writer := &recordingWriter{}
	orch := newTestOrchestrator(t, writer)

	client := scriptedClient{events: []provider.Event{
		provider.MessageStart{Model: "gpt-5"},
		provider.ContentDelta{Text: "partial text here "},
		provider.ErrorEvent{Reason: "provider overloaded"},
	}}

	result, err := orch.Run(context.Background(), "job-4", jobstate.DefaultStage, client, provider.Request{Model: "gpt-5"})
	if result != nil {
		t.Fatalf("expected nil result, got %+v", result)
	}
	var failure *Failure
	if !errors.As(err, &failure) {
		t.Fatalf("expected *Failure, got %T: %v", err, err)
	}
	if !strings.Contains(failure.Reason, "provider overloaded") {
		t.Fatalf("reason %q", failure.Reason)
	}
}

func TestRunStreamSetupErrorIsFailure(t *testing.T) {
	writer := &recordingWriter{}
	orch := newTestOrchestrator(t, writer)

	client := scriptedClient{err: errors.New("connection refused")}
	_, err := orch.Run(context.Background(), "job-5", jobstate.DefaultStage, client, provider.Request{})
	var failure *Failure
	if !errors.As(err, &failure) {
		t.Fatalf("expected *Failure, got %T", err)
	}
}

func TestRunClosedWithoutTerminalIsFailure(t *testing.T) {
	writer := &recordingWriter{}
	orch := newTestOrchestrator(t, writer)

	client := scriptedClient{events: []provider.Event{
		provider.MessageStart{Model: "gpt-5"},
		provider.ContentDelta{Text: "dangling"},
	}}
	_, err := orch.Run(context.Background(), "job-6", jobstate.DefaultStage, client, provider.Request{})
	var failure *Failure
	if !errors.As(err, &failure) {
		t.Fatalf("expected *Failure, got %T: %v", err, err)
	}
}

func TestRunMergesAnthropicUsage(t *testing.T) {
	writer := &recordingWriter{}
	orch := newTestOrchestrator(t, writer)

	// Terminal event missing input tokens; the opening count is kept.
	client := scriptedClient{events: []provider.Event{
		provider.MessageStart{Model: "claude-haiku-4-5-20251001", Usage: provider.Usage{InputTokens: 77}},
		provider.ContentDelta{Text: "body text here. "},
		provider.MessageStop{Model: "claude-haiku-4-5-20251001", Usage: provider.Usage{OutputTokens: 33}},
	}}
	result, err := orch.Run(context.Background(), "job-7", jobstate.DefaultStage, client, provider.Request{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Usage.InputTokens != 77 || result.Usage.OutputTokens != 33 {
		t.Fatalf("usage %+v", result.Usage)
	}
}
