package jobstate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/inkwell-labs/inkwell-backend/pkg/logger"
	"github.com/inkwell-labs/inkwell-backend/pkg/metrics"
)

const reaperJob = "stale_job_reaper"

// DefaultStaleThreshold marks how long a non-terminal job may go without a
// progress write before the reaper fails it.
const DefaultStaleThreshold = 15 * time.Minute

type jobLister interface {
	ScanJobStateIDs(ctx context.Context) ([]string, error)
}

type reaperTracker interface {
	Get(ctx context.Context, jobID string) (*State, error)
	MarkFailed(ctx context.Context, jobID, stage, reason string) error
}

// ReaperParams packages the dependencies of the stale-job reaper.
type ReaperParams struct {
	Lister    jobLister
	Tracker   reaperTracker
	Threshold time.Duration
	Metrics   *metrics.CronJobMetrics
	Logger    *logger.Logger
}

// Reaper fails jobs whose state stopped moving. A worker crash between
// MarkProcessing and the terminal transition leaves the job reporting
// in_progress until its TTL; the reaper closes that window so clients see a
// failure instead of a stream that never ends.
type Reaper struct {
	lister    jobLister
	tracker   reaperTracker
	threshold time.Duration
	metrics   *metrics.CronJobMetrics
	logg      *logger.Logger
	now       func() time.Time
}

// NewReaper wires a stale-job reaper.
func NewReaper(params ReaperParams) (*Reaper, error) {
	if params.Lister == nil {
		return nil, fmt.Errorf("job lister required")
	}
	if params.Tracker == nil {
		return nil, fmt.Errorf("tracker required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	threshold := params.Threshold
	if threshold <= 0 {
		threshold = DefaultStaleThreshold
	}
	return &Reaper{
		lister:    params.Lister,
		tracker:   params.Tracker,
		threshold: threshold,
		metrics:   params.Metrics,
		logg:      params.Logger,
		now:       time.Now,
	}, nil
}

// Sweep scans the job state keyspace once and fails every non-terminal job
// whose last update is older than the threshold. It returns the number of
// jobs reaped.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	start := r.now()

	ids, err := r.lister.ScanJobStateIDs(ctx)
	if err != nil {
		r.metrics.IncFailure(reaperJob)
		return 0, fmt.Errorf("list job states: %w", err)
	}

	reaped := 0
	var errs []error
	for _, jobID := range ids {
		state, err := r.tracker.Get(ctx, jobID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				// Expired between the scan and the read.
				continue
			}
			errs = append(errs, fmt.Errorf("read job %s: %w", jobID, err))
			continue
		}
		if state.Status.IsTerminal() {
			continue
		}
		if r.now().Sub(r.lastActivity(state)) < r.threshold {
			continue
		}

		reason := fmt.Sprintf("no progress for %s", r.threshold)
		if err := r.tracker.MarkFailed(ctx, jobID, DefaultStage, reason); err != nil {
			errs = append(errs, fmt.Errorf("fail job %s: %w", jobID, err))
			continue
		}
		reaped++
		r.logg.Info(r.logg.WithFields(ctx, map[string]any{
			"job_id": jobID,
			"status": state.Status.String(),
		}), "reaped stale job")
	}

	r.metrics.ObserveDuration(reaperJob, r.now().Sub(start))
	if len(errs) > 0 {
		r.metrics.IncFailure(reaperJob)
		return reaped, multierr.Combine(errs...)
	}
	r.metrics.IncSuccess(reaperJob)
	return reaped, nil
}

// Run sweeps on the given interval until the context is canceled.
func (r *Reaper) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil {
				r.logg.Error(ctx, "stale job sweep failed", err)
			}
		}
	}
}

// lastActivity prefers the newest stage write over the state-level timestamp
// so a job streaming steadily is never reaped mid-flight.
func (r *Reaper) lastActivity(state *State) time.Time {
	last := state.UpdatedAt
	for _, stage := range state.Stages {
		if stage.Streaming.LastUpdated.After(last) {
			last = stage.Streaming.LastUpdated
		}
	}
	return last
}
