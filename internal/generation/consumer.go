package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/inkwell-labs/inkwell-backend/pkg/logger"
)

type taskRunner interface {
	Run(ctx context.Context, job Job) error
}

// Consumer pulls generation jobs from the queue and drives the task.
type Consumer struct {
	subscription *pubsub.Subscriber
	task         taskRunner
	logg         *logger.Logger
}

// NewConsumer constructs a consumer over the generation subscription.
func NewConsumer(subscription *pubsub.Subscriber, task taskRunner, logg *logger.Logger) (*Consumer, error) {
	if subscription == nil {
		return nil, errors.New("generation subscription required")
	}
	if task == nil {
		return nil, errors.New("generation task required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	return &Consumer{subscription: subscription, task: task, logg: logg}, nil
}

// Run processes messages until the context is canceled or the subscription errors.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// process returns true when the message should be acked. The task owns the
// terminal job state, so every outcome it reports is acked; a redelivery
// would re-run a job that already ended. Only undecodable payloads and
// worker-level panics fall outside that rule.
func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) bool {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"job_id":     msg.Attributes["job_id"],
	})

	var job Job
	if err := json.Unmarshal(msg.Data, &job); err != nil {
		c.logg.Error(logCtx, "failed to decode generation job", err)
		return true
	}
	if err := job.Validate(); err != nil {
		c.logg.Error(logCtx, "invalid generation job", err)
		return true
	}

	if err := c.task.Run(logCtx, job); err != nil {
		// The task already marked the job failed; retry is a new enqueue.
		c.logg.Error(logCtx, "generation job failed", err)
		return true
	}

	c.logg.Info(logCtx, fmt.Sprintf("generation job %s processed", job.JobID))
	return true
}
