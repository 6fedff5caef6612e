package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/inkwell-labs/inkwell-backend/internal/analytics"
	"github.com/inkwell-labs/inkwell-backend/internal/artifacts"
	"github.com/inkwell-labs/inkwell-backend/internal/jobstate"
	"github.com/inkwell-labs/inkwell-backend/internal/pricing"
	"github.com/inkwell-labs/inkwell-backend/internal/provider"
	"github.com/inkwell-labs/inkwell-backend/internal/stream"
	"github.com/inkwell-labs/inkwell-backend/internal/wallet"
	"github.com/inkwell-labs/inkwell-backend/pkg/logger"
	"github.com/inkwell-labs/inkwell-backend/pkg/metrics"
)

const processingProgress = 5

// Tracker is the slice of the job state tracker the task drives.
// Satisfied by *jobstate.Tracker.
type Tracker interface {
	MarkProcessing(ctx context.Context, jobID, stage string) error
	SafeUpdateProgress(ctx context.Context, jobID, stage string, upd jobstate.ProgressUpdate)
	MarkCompleted(ctx context.Context, jobID, stage string) error
	MarkFailed(ctx context.Context, jobID, stage, reason string) error
}

// Orchestrator drives one provider stream. Satisfied by *stream.Orchestrator.
type Orchestrator interface {
	Run(ctx context.Context, jobID, stage string, client provider.Client, req provider.Request) (*stream.Result, error)
}

// ImageResult reports one featured-image call for billing purposes.
type ImageResult struct {
	Model string
	Usage provider.Usage
}

// ImageGenerator produces the optional featured image for a blog job. The
// image backend has no streaming surface; it is just a second priced call.
type ImageGenerator interface {
	Generate(ctx context.Context, job Job) (*ImageResult, error)
}

// UsageEmitter forwards billed usage to the analytics pipeline.
// Satisfied by *analytics.Emitter.
type UsageEmitter interface {
	Emit(ctx context.Context, event analytics.UsageEvent) error
}

// TaskParams packages the dependencies of a generation task.
type TaskParams struct {
	Tracker      Tracker
	Orchestrator Orchestrator
	Artifacts    artifacts.Store
	Wallet       wallet.Service
	Clients      map[string]provider.Client
	Images       ImageGenerator
	Analytics    UsageEmitter
	Metrics      *metrics.GenerationMetrics
	Logger       *logger.Logger
}

// Task runs one generation job end to end: stream, persist, bill, finalize.
type Task struct {
	tracker   Tracker
	orch      Orchestrator
	artifacts artifacts.Store
	wallet    wallet.Service
	clients   map[string]provider.Client
	images    ImageGenerator
	analytics UsageEmitter
	metrics   *metrics.GenerationMetrics
	logg      *logger.Logger
}

// NewTask wires a generation task.
func NewTask(params TaskParams) (*Task, error) {
	if params.Tracker == nil {
		return nil, fmt.Errorf("tracker required")
	}
	if params.Orchestrator == nil {
		return nil, fmt.Errorf("orchestrator required")
	}
	if params.Artifacts == nil {
		return nil, fmt.Errorf("artifact store required")
	}
	if params.Wallet == nil {
		return nil, fmt.Errorf("wallet service required")
	}
	if len(params.Clients) == 0 {
		return nil, fmt.Errorf("at least one provider client required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Task{
		tracker:   params.Tracker,
		orch:      params.Orchestrator,
		artifacts: params.Artifacts,
		wallet:    params.Wallet,
		clients:   params.Clients,
		images:    params.Images,
		analytics: params.Analytics,
		metrics:   params.Metrics,
		logg:      params.Logger,
	}, nil
}

// Run executes one job. The terminal job state transition happens in a
// deferred block so the job can never stay in processing forever, even when
// persistence or billing blows up mid-flight.
func (t *Task) Run(ctx context.Context, job Job) error {
	if err := job.Validate(); err != nil {
		return err
	}

	jobID := job.JobID.String()
	stage := jobstate.DefaultStage
	logCtx := t.logg.WithFields(ctx, map[string]any{
		"job_id":  jobID,
		"user_id": job.UserID.String(),
	})

	handle := provider.SelectProvider(provider.PolicyInput{Formality: job.Formality})
	client, ok := t.clients[handle.Provider.String()]
	if !ok {
		reason := fmt.Sprintf("no client configured for provider %s", handle.Provider)
		_ = t.tracker.MarkFailed(ctx, jobID, stage, reason)
		return fmt.Errorf("%s", reason)
	}

	start := time.Now()
	t.metrics.IncStarted(handle.Provider.String())

	completed := false
	failReason := "generation did not finish"
	defer func() {
		// Terminal writes survive a canceled job context.
		finalCtx := context.WithoutCancel(logCtx)
		if completed {
			if err := t.tracker.MarkCompleted(finalCtx, jobID, stage); err != nil {
				t.logg.Error(finalCtx, "failed to mark job completed", err)
			}
			t.metrics.IncFinished(handle.Provider.String(), "completed")
		} else {
			if err := t.tracker.MarkFailed(finalCtx, jobID, stage, failReason); err != nil {
				t.logg.Error(finalCtx, "failed to mark job failed", err)
			}
			t.metrics.IncFinished(handle.Provider.String(), "failed")
		}
		t.metrics.ObserveDuration(handle.Provider.String(), time.Since(start))
	}()

	if err := t.tracker.MarkProcessing(logCtx, jobID, stage); err != nil {
		t.logg.Warn(logCtx, fmt.Sprintf("mark processing failed: %v", err))
	}
	t.tracker.SafeUpdateProgress(logCtx, jobID, stage, jobstate.ProgressUpdate{
		Progress: processingProgress,
	})

	result, err := t.orch.Run(logCtx, jobID, stage, client, provider.Request{
		Model:        handle.Model,
		SystemPrompt: job.SystemPrompt,
		UserPrompt:   job.UserPrompt,
		MaxTokens:    job.MaxTokens,
		Temperature:  job.Temperature,
	})
	if err != nil {
		failReason = err.Error()
		t.logg.Error(logCtx, "generation stream failed", err)
		return err
	}

	imageResult := t.generateFeaturedImage(logCtx, jobID, stage, job)

	artifact := artifacts.Artifact{
		UserID:    job.UserID,
		Title:     artifactTitle(job, result),
		Content:   result.Content,
		Thinking:  result.Thinking,
		WordCount: result.WordCount,
		Keywords:  job.Keywords,
		Provider:  handle.Provider,
		ModelName: result.Model,
	}
	if err := t.artifacts.Save(logCtx, job.JobID, artifact); err != nil {
		// Generation succeeded, but an un-persisted result is unusable.
		failReason = "artifact persistence failed: " + err.Error()
		t.logg.Error(logCtx, "failed to persist artifact", err)
		return err
	}

	// The job is delivered from here on. Billing failures are logged and
	// never claw the content back.
	completed = true

	t.bill(logCtx, job, handle, result, imageResult)
	return nil
}

// generateFeaturedImage runs the optional image stage. Its failure costs
// the image, not the blog.
func (t *Task) generateFeaturedImage(ctx context.Context, jobID, stage string, job Job) *ImageResult {
	if !job.WithFeaturedImage || t.images == nil {
		return nil
	}

	t.tracker.SafeUpdateProgress(ctx, jobID, stage, jobstate.ProgressUpdate{
		Extra:         map[string]any{"image_generation_started": true},
		ForceMetadata: true,
	})

	imageResult, err := t.images.Generate(ctx, job)
	if err != nil {
		t.logg.Warn(ctx, fmt.Sprintf("featured image generation failed: %v", err))
		return nil
	}
	return imageResult
}

// bill prices every provider call the job made, sums them, and records
// exactly one charge. An unknown model aborts billing instead of charging
// an undefined amount; an insufficient balance after generation is logged
// and the delivered content stands.
func (t *Task) bill(ctx context.Context, job Job, handle provider.Handle, result *stream.Result, imageResult *ImageResult) {
	mainCall, err := pricing.ComputeCost(BlogServiceName, result.Model,
		result.Usage.InputTokens, result.Usage.OutputTokens, result.Usage.ReasoningTokens)
	if err != nil {
		t.logg.Error(ctx, "billing aborted: cannot price generation call", err)
		return
	}
	breakdowns := []pricing.CostBreakdown{mainCall}

	if imageResult != nil {
		imageCall, err := pricing.ComputeCost(FeaturedImageServiceName, imageResult.Model,
			imageResult.Usage.InputTokens, imageResult.Usage.OutputTokens, imageResult.Usage.ReasoningTokens)
		if err != nil {
			t.logg.Error(ctx, "skipping unpriceable image call", err)
		} else {
			breakdowns = append(breakdowns, imageCall)
		}
	}

	total := pricing.Sum(breakdowns)
	usageData, err := json.Marshal(breakdowns)
	if err != nil {
		usageData = nil
	}

	// A single-call job keeps the table's base/multiplier split for audit.
	// A multi-call job collapses to the summed charge with multiplier 1;
	// the per-call split lives in usage data.
	baseCost := mainCall.BaseCost
	multiplier := mainCall.Multiplier
	if len(breakdowns) > 1 {
		baseCost = total.ActualCharge
		multiplier = decimal.NewFromInt(1)
	}

	chargeResult, err := t.wallet.RecordUsageAndCharge(ctx, wallet.RecordUsageInput{
		UserID:          job.UserID,
		ServiceName:     BlogServiceName,
		ServiceCategory: mainCall.ServiceCategory,
		Description:     "Blog generation: " + artifactTitleOrJob(job),
		Provider:        handle.Provider,
		ModelName:       result.Model,
		InputTokens:     total.InputTokens,
		OutputTokens:    total.OutputTokens,
		ReasoningTokens: total.ReasoningTokens,
		BaseCost:        baseCost,
		Multiplier:      multiplier,
		UsageData:       usageData,
		JobID:           &job.JobID,
	})

	charged := err == nil
	if err != nil {
		var insufficient *wallet.InsufficientBalanceError
		if errors.As(err, &insufficient) {
			t.logg.Warn(ctx, fmt.Sprintf(
				"insufficient balance after generation: required %s, available %s, shortfall %s; content kept",
				insufficient.Required, insufficient.Available, insufficient.Shortfall()))
		} else {
			t.logg.Error(ctx, "billing failed after generation", err)
		}
	} else {
		t.logg.Info(t.logg.WithFields(ctx, map[string]any{
			"actual_charge": chargeResult.ActualCharge.String(),
			"new_balance":   chargeResult.NewBalance.String(),
		}), "job billed")
	}

	t.emitUsage(ctx, job, total, charged)
}

func (t *Task) emitUsage(ctx context.Context, job Job, total pricing.CostBreakdown, charged bool) {
	if t.analytics == nil {
		return
	}
	event := analytics.UsageEvent{
		JobID:           &job.JobID,
		UserID:          job.UserID,
		ServiceName:     BlogServiceName,
		ServiceCategory: total.ServiceCategory,
		Provider:        total.Provider,
		ModelName:       total.ModelName,
		InputTokens:     total.InputTokens,
		OutputTokens:    total.OutputTokens,
		ReasoningTokens: total.ReasoningTokens,
		BaseCost:        total.BaseCost,
		ActualCharge:    total.ActualCharge,
		Charged:         charged,
	}
	if err := t.analytics.Emit(ctx, event); err != nil {
		t.logg.Warn(ctx, fmt.Sprintf("usage event emission failed: %v", err))
	}
}

func artifactTitle(job Job, result *stream.Result) string {
	if strings.TrimSpace(job.Title) != "" {
		return job.Title
	}
	// First line of the content is the best available fallback.
	line := strings.TrimSpace(strings.SplitN(result.Content, "\n", 2)[0])
	return strings.TrimSpace(strings.TrimLeft(line, "# "))
}

func artifactTitleOrJob(job Job) string {
	if strings.TrimSpace(job.Title) != "" {
		return job.Title
	}
	return job.JobID.String()
}
