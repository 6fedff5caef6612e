package jobstate

import (
	"context"
	"fmt"
	"time"

	"github.com/inkwell-labs/inkwell-backend/pkg/enums"
	"github.com/inkwell-labs/inkwell-backend/pkg/logger"
	"github.com/inkwell-labs/inkwell-backend/pkg/metrics"
)

// DefaultTTL is the retention window for job state records.
const DefaultTTL = 24 * time.Hour

// Tracker owns all writes to job state. Progress updates are best-effort:
// storage errors are logged and swallowed so a hiccup never aborts a
// running generation job.
type Tracker struct {
	store      Store
	ttl        time.Duration
	logg       *logger.Logger
	genMetrics *metrics.GenerationMetrics
}

// ProgressUpdate carries one high-frequency streaming tick.
type ProgressUpdate struct {
	Progress  int
	Phase     enums.StreamPhase
	Text      string
	WordCount int
	Extra     map[string]any
	// ForceMetadata writes the streaming fields even when progress does not
	// advance and no extra fields are present.
	ForceMetadata bool
}

// NewTracker builds a tracker over the provided store.
func NewTracker(store Store, ttl time.Duration, logg *logger.Logger) (*Tracker, error) {
	if store == nil {
		return nil, fmt.Errorf("job state store required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tracker{store: store, ttl: ttl, logg: logg}, nil
}

// WithMetrics attaches generation metrics so dropped progress writes are
// counted, not just logged.
func (t *Tracker) WithMetrics(gen *metrics.GenerationMetrics) *Tracker {
	t.genMetrics = gen
	return t
}

// InitJob registers a freshly enqueued job in the pending state.
func (t *Tracker) InitJob(ctx context.Context, jobID, stage string) error {
	now := time.Now().UTC()
	return t.store.Update(ctx, jobID, t.ttl, func(current *State) (*State, error) {
		if current != nil {
			return nil, nil
		}
		state := &State{
			JobID:     jobID,
			Status:    enums.JobStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		state.Stage(stage)
		return state, nil
	})
}

// MarkProcessing transitions the job out of pending when a worker picks it up.
func (t *Tracker) MarkProcessing(ctx context.Context, jobID, stage string) error {
	return t.store.Update(ctx, jobID, t.ttl, func(current *State) (*State, error) {
		state := ensureState(current, jobID)
		if state.Status.IsTerminal() {
			return nil, nil
		}
		state.Status = enums.JobStatusProcessing
		st := state.Stage(stage)
		st.Status = enums.JobStatusProcessing
		state.UpdatedAt = time.Now().UTC()
		return state, nil
	})
}

// SafeUpdateProgress applies one streaming tick under the anti-regression
// rule: a lower progress than the stored value is a silent no-op, and an
// equal progress with nothing else to write is skipped to keep the
// high-frequency path cheap. Failures are logged, never returned.
func (t *Tracker) SafeUpdateProgress(ctx context.Context, jobID, stage string, upd ProgressUpdate) {
	err := t.store.Update(ctx, jobID, t.ttl, func(current *State) (*State, error) {
		state := ensureState(current, jobID)
		if state.Status.IsTerminal() {
			return nil, nil
		}

		st := state.Stage(stage)
		if upd.Progress < st.Progress {
			return nil, nil
		}
		hasExtra := upd.Text != "" || upd.WordCount > 0 || len(upd.Extra) > 0
		if upd.Progress == st.Progress && !hasExtra && !upd.ForceMetadata {
			return nil, nil
		}

		if upd.Progress > st.Progress {
			st.Progress = upd.Progress
		}
		if upd.Phase != "" {
			st.Streaming.Phase = upd.Phase
		}
		if upd.Text != "" {
			st.Streaming.Text = upd.Text
		}
		if upd.WordCount > 0 {
			st.Streaming.WordCount = upd.WordCount
		}
		if len(upd.Extra) > 0 {
			if st.Streaming.Extra == nil {
				st.Streaming.Extra = map[string]any{}
			}
			for k, v := range upd.Extra {
				st.Streaming.Extra[k] = v
			}
		}
		now := time.Now().UTC()
		st.Streaming.LastUpdated = now
		st.Status = enums.JobStatusProcessing
		state.Status = enums.JobStatusProcessing
		state.UpdatedAt = now
		return state, nil
	})
	if err != nil {
		t.genMetrics.IncProgressDropped()
		if t.logg != nil {
			t.logg.Warn(t.logg.WithJobID(ctx, jobID), fmt.Sprintf("progress update dropped: %v", err))
		}
	}
}

// MarkCompleted sets the terminal success state exactly once. Completion is
// the only path allowed to report 100.
func (t *Tracker) MarkCompleted(ctx context.Context, jobID, stage string) error {
	return t.store.Update(ctx, jobID, t.ttl, func(current *State) (*State, error) {
		state := ensureState(current, jobID)
		if state.Status.IsTerminal() {
			return nil, nil
		}
		st := state.Stage(stage)
		st.Status = enums.JobStatusCompleted
		st.Progress = 100
		st.Streaming.Phase = enums.StreamPhaseCompleted
		now := time.Now().UTC()
		st.Streaming.LastUpdated = now
		state.Status = enums.JobStatusCompleted
		state.UpdatedAt = now
		return state, nil
	})
}

// MarkFailed sets the terminal failure state exactly once.
func (t *Tracker) MarkFailed(ctx context.Context, jobID, stage, reason string) error {
	return t.store.Update(ctx, jobID, t.ttl, func(current *State) (*State, error) {
		state := ensureState(current, jobID)
		if state.Status.IsTerminal() {
			return nil, nil
		}
		st := state.Stage(stage)
		st.Status = enums.JobStatusFailed
		st.Streaming.Phase = enums.StreamPhaseFailed
		now := time.Now().UTC()
		st.Streaming.LastUpdated = now
		state.Status = enums.JobStatusFailed
		state.Error = reason
		state.UpdatedAt = now
		return state, nil
	})
}

// Get returns the current state for the job.
func (t *Tracker) Get(ctx context.Context, jobID string) (*State, error) {
	return t.store.Get(ctx, jobID)
}

func ensureState(current *State, jobID string) *State {
	if current != nil {
		return current
	}
	now := time.Now().UTC()
	return &State{
		JobID:     jobID,
		Status:    enums.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
