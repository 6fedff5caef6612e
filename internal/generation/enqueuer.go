package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/inkwell-labs/inkwell-backend/internal/jobstate"
	pkgerrors "github.com/inkwell-labs/inkwell-backend/pkg/errors"
	"github.com/inkwell-labs/inkwell-backend/pkg/logger"
)

const enqueuePublishTimeout = 10 * time.Second

type publishResult interface {
	Get(ctx context.Context) (string, error)
}

type publisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) publishResult
}

type gcpPublisher struct {
	*pubsub.Publisher
}

func (p gcpPublisher) Publish(ctx context.Context, msg *pubsub.Message) publishResult {
	return p.Publisher.Publish(ctx, msg)
}

// jobSeeder registers the pending job state. Satisfied by *jobstate.Tracker.
type jobSeeder interface {
	InitJob(ctx context.Context, jobID, stage string) error
}

// Enqueuer hands generation jobs to the queue and seeds their pending
// state so a poll between enqueue and pickup sees the job.
type Enqueuer struct {
	pub     publisher
	tracker jobSeeder
	logg    *logger.Logger
}

// NewEnqueuer wires an enqueuer over the generation topic.
func NewEnqueuer(pub *pubsub.Publisher, tracker jobSeeder, logg *logger.Logger) (*Enqueuer, error) {
	if pub == nil {
		return nil, fmt.Errorf("generation publisher required")
	}
	if tracker == nil {
		return nil, fmt.Errorf("job state tracker required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Enqueuer{pub: gcpPublisher{pub}, tracker: tracker, logg: logg}, nil
}

// Enqueue publishes one job and waits for the broker acknowledgment.
func (e *Enqueuer) Enqueue(ctx context.Context, job Job) error {
	if err := job.Validate(); err != nil {
		return err
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal generation job")
	}

	publishCtx, cancel := context.WithTimeout(ctx, enqueuePublishTimeout)
	defer cancel()

	result := e.pub.Publish(publishCtx, &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"job_id":  job.JobID.String(),
			"user_id": job.UserID.String(),
		},
	})
	if _, err := result.Get(publishCtx); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "publish generation job")
	}

	if err := e.tracker.InitJob(ctx, job.JobID.String(), jobstate.DefaultStage); err != nil {
		// The job is queued; the worker re-seeds state on pickup.
		e.logg.Warn(e.logg.WithJobID(ctx, job.JobID.String()),
			fmt.Sprintf("failed to seed pending job state: %v", err))
	}

	e.logg.Info(e.logg.WithJobID(ctx, job.JobID.String()), "generation job enqueued")
	return nil
}
