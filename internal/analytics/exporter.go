package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/inkwell-labs/inkwell-backend/pkg/logger"
)

const (
	exporterName   = "usage-exporter"
	idempotencyTTL = 24 * time.Hour
)

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

type dedupeStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Exporter drains the analytics subscription into the BigQuery usage table.
// Pub/Sub is at-least-once, so rows are deduplicated by event id in Redis
// before insert.
type Exporter struct {
	subscription *pubsub.Subscriber
	inserter     tableInserter
	table        string
	dedupe       dedupeStore
	logg         *logger.Logger
}

// NewExporter builds the usage-event exporter.
func NewExporter(subscription *pubsub.Subscriber, inserter tableInserter, table string, dedupe dedupeStore, logg *logger.Logger) (*Exporter, error) {
	if subscription == nil {
		return nil, errors.New("analytics subscription required")
	}
	if inserter == nil {
		return nil, errors.New("bigquery inserter required")
	}
	if strings.TrimSpace(table) == "" {
		return nil, errors.New("bigquery table name required")
	}
	if dedupe == nil {
		return nil, errors.New("dedupe store required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	return &Exporter{
		subscription: subscription,
		inserter:     inserter,
		table:        strings.TrimSpace(table),
		dedupe:       dedupe,
		logg:         logg,
	}, nil
}

// Run processes messages until the context is canceled or the subscription errors.
func (e *Exporter) Run(ctx context.Context) error {
	return e.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if e.process(ctx, msg) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// process returns true when the message should be acked. Malformed payloads
// are acked after logging; redelivery cannot fix them.
func (e *Exporter) process(ctx context.Context, msg *pubsub.Message) bool {
	logCtx := e.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_id":   msg.Attributes["event_id"],
	})

	var event UsageEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		e.logg.Error(logCtx, "failed to decode usage event", err)
		return true
	}
	if event.EventID == uuid.Nil {
		e.logg.Error(logCtx, "usage event missing event id", errors.New("empty event_id"))
		return true
	}

	key := e.dedupe.IdempotencyKey(exporterName, event.EventID.String())
	fresh, err := e.dedupe.SetNX(ctx, key, "1", idempotencyTTL)
	if err != nil {
		e.logg.Error(logCtx, "idempotency check failed", err)
		return false
	}
	if !fresh {
		e.logg.Info(logCtx, "usage event already exported")
		return true
	}

	row := buildUsageRow(event)
	if err := e.inserter.InsertRows(ctx, e.table, []any{row}); err != nil {
		e.logg.Error(logCtx, "failed to insert usage row", err)
		// Release the claim so a redelivery retries the insert.
		_ = e.dedupe.Del(ctx, key)
		return false
	}

	e.logg.Info(logCtx, "usage event exported")
	return true
}

type usageEventRow struct {
	EventID         string    `bigquery:"event_id"`
	JobID           *string   `bigquery:"job_id"`
	UserID          string    `bigquery:"user_id"`
	ServiceName     string    `bigquery:"service_name"`
	ServiceCategory string    `bigquery:"service_category"`
	Provider        string    `bigquery:"provider"`
	ModelName       string    `bigquery:"model_name"`
	InputTokens     int64     `bigquery:"input_tokens"`
	OutputTokens    int64     `bigquery:"output_tokens"`
	ReasoningTokens int64     `bigquery:"reasoning_tokens"`
	BaseCost        float64   `bigquery:"base_cost"`
	ActualCharge    float64   `bigquery:"actual_charge"`
	Charged         bool      `bigquery:"charged"`
	OccurredAt      time.Time `bigquery:"occurred_at"`
}

func buildUsageRow(event UsageEvent) usageEventRow {
	row := usageEventRow{
		EventID:         event.EventID.String(),
		UserID:          event.UserID.String(),
		ServiceName:     event.ServiceName,
		ServiceCategory: event.ServiceCategory,
		Provider:        event.Provider.String(),
		ModelName:       event.ModelName,
		InputTokens:     event.InputTokens,
		OutputTokens:    event.OutputTokens,
		ReasoningTokens: event.ReasoningTokens,
		Charged:         event.Charged,
		OccurredAt:      event.OccurredAt,
	}
	row.BaseCost, _ = event.BaseCost.Float64()
	row.ActualCharge, _ = event.ActualCharge.Float64()
	if event.JobID != nil {
		jobID := event.JobID.String()
		row.JobID = &jobID
	}
	return row
}
