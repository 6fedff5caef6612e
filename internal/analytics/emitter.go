package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/inkwell-labs/inkwell-backend/pkg/logger"
)

const publishTimeout = 10 * time.Second

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

// Emitter publishes usage events onto the analytics topic. Emission is
// best-effort from the caller's point of view; a lost event loses a
// warehouse row, never a ledger row.
type Emitter struct {
	pub  publisher
	logg *logger.Logger
}

// NewEmitter wraps the analytics topic publisher.
func NewEmitter(pub *pubsub.Publisher, logg *logger.Logger) (*Emitter, error) {
	if pub == nil {
		return nil, fmt.Errorf("analytics publisher required")
	}
	return &Emitter{pub: gcpPublisher{pub}, logg: logg}, nil
}

// Emit publishes one usage event and waits for the broker acknowledgment.
func (e *Emitter) Emit(ctx context.Context, event UsageEvent) error {
	if event.EventID == uuid.Nil {
		event.EventID = uuid.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal usage event: %w", err)
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	result := e.pub.Publish(publishCtx, &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"event_id":   event.EventID.String(),
			"event_type": "usage_recorded",
		},
	})
	if _, err := result.Get(publishCtx); err != nil {
		return fmt.Errorf("publish usage event: %w", err)
	}
	return nil
}
