package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/inkwell-labs/inkwell-backend/api/responses"
	"github.com/inkwell-labs/inkwell-backend/internal/artifacts"
	"github.com/inkwell-labs/inkwell-backend/internal/jobstate"
	"github.com/inkwell-labs/inkwell-backend/internal/provider"
	"github.com/inkwell-labs/inkwell-backend/pkg/enums"
	pkgerrors "github.com/inkwell-labs/inkwell-backend/pkg/errors"
	"github.com/inkwell-labs/inkwell-backend/pkg/logger"
)

const streamPollInterval = 500 * time.Millisecond

type stateReader interface {
	Get(ctx context.Context, jobID string) (*jobstate.State, error)
}

type artifactReader interface {
	Get(ctx context.Context, jobID uuid.UUID) (*artifacts.Artifact, error)
}

type jobStatusResponse struct {
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Phase    string `json:"phase"`
	Content  string `json:"content,omitempty"`
	Error    string `json:"error,omitempty"`
}

// JobStatus serves the polling read model. It only reads the status store
// and the artifact store; polling never mutates job state.
func JobStatus(states stateReader, store artifactReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		jobID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "job id must be a uuid"))
			return
		}

		view, err := buildJobView(ctx, states, store, jobID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func buildJobView(ctx context.Context, states stateReader, store artifactReader, jobID uuid.UUID) (*jobStatusResponse, error) {
	state, err := states.Get(ctx, jobID.String())
	if err != nil {
		if errors.Is(err, jobstate.ErrNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "job not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read job state")
	}

	stage := state.Stage(jobstate.DefaultStage)
	view := &jobStatusResponse{
		JobID:    state.JobID,
		Status:   externalStatus(state.Status),
		Progress: state.OverallProgress(),
		Phase:    stage.Streaming.Phase.String(),
		Error:    state.Error,
	}

	switch state.Status {
	case enums.JobStatusCompleted:
		if store != nil {
			if artifact, err := store.Get(ctx, jobID); err == nil {
				view.Content = artifact.Content
			} else if !errors.Is(err, artifacts.ErrNotFound) {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load artifact")
			}
		}
	default:
		if stage.Streaming.Phase == enums.StreamPhaseContent {
			view.Content = stage.Streaming.Text
		}
	}
	return view, nil
}

// externalStatus collapses the internal pending/processing split; callers
// only see in_progress until the job is terminal.
func externalStatus(status enums.JobStatus) string {
	switch status {
	case enums.JobStatusCompleted, enums.JobStatusFailed:
		return status.String()
	default:
		return "in_progress"
	}
}

// JobStream pushes job progress as server-sent events: connected, then
// status/thinking/content/image_started as the state advances, then exactly
// one of final or error. A stream that outlives the generation timeout gets
// a timeout event before the connection closes.
func JobStream(states stateReader, store artifactReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		jobID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "job id must be a uuid"))
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "streaming unsupported"))
			return
		}

		if _, err := states.Get(ctx, jobID.String()); err != nil {
			if errors.Is(err, jobstate.ErrNotFound) {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "job not found"))
				return
			}
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read job state"))
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		writeSSE(w, flusher, "connected", map[string]string{"job_id": jobID.String()})

		deadline := time.NewTimer(provider.StreamTimeout)
		defer deadline.Stop()
		ticker := time.NewTicker(streamPollInterval)
		defer ticker.Stop()

		var (
			lastProgress  = -1
			lastPhase     enums.StreamPhase
			thinkingSent  int
			contentSent   int
			imageAnnounce bool
		)

		for {
			select {
			case <-ctx.Done():
				return
			case <-deadline.C:
				writeSSE(w, flusher, "timeout", map[string]string{"job_id": jobID.String()})
				writeSSE(w, flusher, "error", map[string]string{"reason": "stream timeout"})
				return
			case <-ticker.C:
			}

			state, err := states.Get(ctx, jobID.String())
			if err != nil {
				if errors.Is(err, jobstate.ErrNotFound) {
					writeSSE(w, flusher, "error", map[string]string{"reason": "job state expired"})
					return
				}
				if logg != nil {
					logg.Warn(logg.WithJobID(ctx, jobID.String()), "job state read failed during stream")
				}
				continue
			}

			stage := state.Stage(jobstate.DefaultStage)
			progress := state.OverallProgress()
			phase := stage.Streaming.Phase

			if progress != lastProgress || phase != lastPhase {
				lastProgress = progress
				lastPhase = phase
				writeSSE(w, flusher, "status", map[string]any{
					"status":   externalStatus(state.Status),
					"progress": progress,
					"phase":    phase.String(),
				})
			}

			switch phase {
			case enums.StreamPhaseThinking:
				if delta := textDelta(stage.Streaming.Text, &thinkingSent); delta != "" {
					writeSSE(w, flusher, "thinking", map[string]string{"text": delta})
				}
			case enums.StreamPhaseContent:
				if delta := textDelta(stage.Streaming.Text, &contentSent); delta != "" {
					writeSSE(w, flusher, "content", map[string]string{"text": delta})
				}
			}

			if !imageAnnounce {
				if started, _ := stage.Streaming.Extra["image_generation_started"].(bool); started {
					imageAnnounce = true
					writeSSE(w, flusher, "image_started", map[string]string{"job_id": jobID.String()})
				}
			}

			if state.Status.IsTerminal() {
				if state.Status == enums.JobStatusFailed {
					reason := state.Error
					if reason == "" {
						reason = "generation failed"
					}
					writeSSE(w, flusher, "error", map[string]string{"reason": reason})
					return
				}

				final := map[string]any{
					"job_id":   jobID.String(),
					"status":   state.Status.String(),
					"progress": progress,
				}
				if store != nil {
					if artifact, err := store.Get(ctx, jobID); err == nil {
						final["content"] = artifact.Content
						final["word_count"] = artifact.WordCount
						final["model"] = artifact.ModelName
					}
				}
				writeSSE(w, flusher, "final", final)
				return
			}
		}
	}
}

// textDelta returns the unseen suffix of the accumulated text. A shorter
// text than already sent means the stage switched payloads; skip rather
// than re-emit.
func textDelta(text string, sent *int) string {
	if len(text) <= *sent {
		return ""
	}
	delta := text[*sent:]
	*sent = len(text)
	return delta
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}
