package stream

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/inkwell-labs/inkwell-backend/internal/jobstate"
	"github.com/inkwell-labs/inkwell-backend/internal/provider"
	"github.com/inkwell-labs/inkwell-backend/pkg/enums"
	"github.com/inkwell-labs/inkwell-backend/pkg/logger"
	"github.com/inkwell-labs/inkwell-backend/pkg/metrics"
)

// Progress sub-ranges per phase. The boundaries are policy; the ordering
// (thinking < content < 100) is a hard contract so progress never appears
// to regress across a phase transition. Only job completion writes 100.
const (
	thinkingBaseProgress = 5
	thinkingMaxProgress  = 30
	thinkingPerWord      = 0.05

	contentBaseProgress = 30
	contentMaxProgress  = 95
	contentPerWord      = 0.5
)

// Failure is the typed error surfaced when a stream dies before its
// terminal success event. The orchestrator never writes a completed job
// state itself; the caller decides how a stream failure maps to the job.
type Failure struct {
	Reason string
}

func (f *Failure) Error() string {
	return "stream failed: " + f.Reason
}

// Result is the accumulated output of one successful stream.
type Result struct {
	Content   string
	Thinking  string
	Model     string
	WordCount int
	Usage     provider.Usage
}

// ProgressWriter is the single seam through which streaming progress
// reaches the job state. Satisfied by *jobstate.Tracker.
type ProgressWriter interface {
	SafeUpdateProgress(ctx context.Context, jobID, stage string, upd jobstate.ProgressUpdate)
}

// Orchestrator consumes a normalized provider event stream, forwards
// throttled progress to the job state, and accumulates the final text and
// usage summary.
type Orchestrator struct {
	progress ProgressWriter
	metrics  *metrics.GenerationMetrics
	logg     *logger.Logger
	now      func() time.Time
}

// NewOrchestrator builds an orchestrator. Metrics and logger may be nil.
func NewOrchestrator(progress ProgressWriter, m *metrics.GenerationMetrics, logg *logger.Logger) (*Orchestrator, error) {
	if progress == nil {
		return nil, fmt.Errorf("progress writer required")
	}
	return &Orchestrator{progress: progress, metrics: m, logg: logg, now: time.Now}, nil
}

// Run drives one generation stream to its terminal event.
func (o *Orchestrator) Run(ctx context.Context, jobID, stage string, client provider.Client, req provider.Request) (*Result, error) {
	events, err := client.Stream(ctx, req)
	if err != nil {
		return nil, &Failure{Reason: err.Error()}
	}

	var (
		content  strings.Builder
		thinking strings.Builder
		model    = req.Model
		usage    provider.Usage
		buffer   = newFlushBuffer(o.now)
		done     bool
		failure  *Failure
	)

	for evt := range events {
		if failure != nil || done {
			// Drain remaining events so the provider goroutine can exit.
			continue
		}
		switch e := evt.(type) {
		case provider.MessageStart:
			if e.Model != "" {
				model = e.Model
			}
			usage = e.Usage

		case provider.ThinkingDelta:
			thinking.WriteString(e.Text)
			words := len(strings.Fields(thinking.String()))
			o.progress.SafeUpdateProgress(ctx, jobID, stage, jobstate.ProgressUpdate{
				Progress:  thinkingProgress(words),
				Phase:     enums.StreamPhaseThinking,
				Text:      thinking.String(),
				WordCount: words,
				Extra:     map[string]any{"thinking_active": true},
			})
			o.metrics.IncChunksFlushed(enums.StreamPhaseThinking.String())

		case provider.ContentDelta:
			chunk, flush := buffer.Append(e.Text)
			if !flush {
				continue
			}
			content.WriteString(chunk)
			words := len(strings.Fields(content.String()))
			o.progress.SafeUpdateProgress(ctx, jobID, stage, jobstate.ProgressUpdate{
				Progress:  contentProgress(words),
				Phase:     enums.StreamPhaseContent,
				Text:      content.String(),
				WordCount: words,
				Extra:     map[string]any{"content_active": true},
			})
			o.metrics.IncChunksFlushed(enums.StreamPhaseContent.String())

		case provider.MessageStop:
			if e.Model != "" {
				model = e.Model
			}
			usage = mergeUsage(usage, e.Usage)
			done = true

		case provider.ErrorEvent:
			failure = &Failure{Reason: e.Reason}
		}
	}

	if failure != nil {
		return nil, failure
	}
	if !done {
		if ctx.Err() != nil {
			return nil, &Failure{Reason: "stream canceled: " + ctx.Err().Error()}
		}
		return nil, &Failure{Reason: "stream closed without a terminal event"}
	}

	// Final buffer drain so trailing text shorter than a flush unit is kept.
	if chunk, ok := buffer.Drain(); ok {
		content.WriteString(chunk)
	}
	words := len(strings.Fields(content.String()))
	if words > 0 {
		o.progress.SafeUpdateProgress(ctx, jobID, stage, jobstate.ProgressUpdate{
			Progress:  contentProgress(words),
			Phase:     enums.StreamPhaseContent,
			Text:      content.String(),
			WordCount: words,
		})
	}

	return &Result{
		Content:   content.String(),
		Thinking:  thinking.String(),
		Model:     model,
		WordCount: words,
		Usage:     usage,
	}, nil
}

// mergeUsage prefers the terminal summary but keeps the opening input
// count when the terminal event omits it (Anthropic reports input tokens
// only on message_start).
func mergeUsage(start, stop provider.Usage) provider.Usage {
	out := stop
	if out.InputTokens == 0 {
		out.InputTokens = start.InputTokens
	}
	if out.OutputTokens == 0 {
		out.OutputTokens = start.OutputTokens
	}
	return out
}

func thinkingProgress(words int) int {
	p := thinkingBaseProgress + int(float64(words)*thinkingPerWord)
	if p > thinkingMaxProgress {
		return thinkingMaxProgress
	}
	return p
}

func contentProgress(words int) int {
	p := contentBaseProgress + int(float64(words)*contentPerWord)
	if p > contentMaxProgress {
		return contentMaxProgress
	}
	return p
}
