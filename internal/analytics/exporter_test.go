package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/inkwell-labs/inkwell-backend/pkg/enums"
	"github.com/inkwell-labs/inkwell-backend/pkg/logger"
)

type fakeInserter struct {
	rows      []any
	insertErr error
}

func (f *fakeInserter) InsertRows(ctx context.Context, table string, rows []any) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.rows = append(f.rows, rows...)
	return nil
}

type fakeDedupe struct {
	claimed map[string]bool
}

func newFakeDedupe() *fakeDedupe {
	return &fakeDedupe{claimed: map[string]bool{}}
}

func (f *fakeDedupe) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if f.claimed[key] {
		return false, nil
	}
	f.claimed[key] = true
	return true, nil
}

func (f *fakeDedupe) Del(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.claimed, k)
	}
	return nil
}

func (f *fakeDedupe) IdempotencyKey(scope, id string) string {
	return "iw:idempotency:" + scope + ":" + id
}

func testExporter(t *testing.T, inserter tableInserter, dedupe dedupeStore) *Exporter {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	return &Exporter{
		inserter: inserter,
		table:    "usage_events",
		dedupe:   dedupe,
		logg:     logg,
	}
}

func usageMessage(t *testing.T, event UsageEvent) *pubsub.Message {
	t.Helper()
	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"event_id": event.EventID.String()},
	}
}

func TestProcessInsertsRow(t *testing.T) {
	inserter := &fakeInserter{}
	exporter := testExporter(t, inserter, newFakeDedupe())

	jobID := uuid.New()
	event := UsageEvent{
		EventID:      uuid.New(),
		JobID:        &jobID,
		UserID:       uuid.New(),
		ServiceName:  "blog_generation",
		Provider:     enums.ProviderOpenAI,
		ModelName:    "gpt-5",
		InputTokens:  100,
		OutputTokens: 50,
		BaseCost:     decimal.RequireFromString("0.00105"),
		ActualCharge: decimal.RequireFromString("0.00525"),
		Charged:      true,
		OccurredAt:   time.Now().UTC(),
	}

	if ack := exporter.process(context.Background(), usageMessage(t, event)); !ack {
		t.Fatal("expected ack")
	}
	if len(inserter.rows) != 1 {
		t.Fatalf("%d rows inserted", len(inserter.rows))
	}
	row, ok := inserter.rows[0].(usageEventRow)
	if !ok {
		t.Fatalf("row type %T", inserter.rows[0])
	}
	if row.EventID != event.EventID.String() || row.ModelName != "gpt-5" || !row.Charged {
		t.Fatalf("row %+v", row)
	}
	if row.JobID == nil || *row.JobID != jobID.String() {
		t.Fatalf("job id %v", row.JobID)
	}
}

func TestProcessDeduplicatesRedelivery(t *testing.T) {
	inserter := &fakeInserter{}
	exporter := testExporter(t, inserter, newFakeDedupe())

	event := UsageEvent{EventID: uuid.New(), UserID: uuid.New(), ServiceName: "blog_generation"}
	msg := usageMessage(t, event)

	if ack := exporter.process(context.Background(), msg); !ack {
		t.Fatal("first delivery should ack")
	}
	if ack := exporter.process(context.Background(), msg); !ack {
		t.Fatal("redelivery should ack without inserting")
	}
	if len(inserter.rows) != 1 {
		t.Fatalf("%d rows inserted, want 1", len(inserter.rows))
	}
}

func TestProcessNacksOnInsertFailureAndRetries(t *testing.T) {
	inserter := &fakeInserter{insertErr: errors.New("stream buffer full")}
	dedupe := newFakeDedupe()
	exporter := testExporter(t, inserter, dedupe)

	event := UsageEvent{EventID: uuid.New(), UserID: uuid.New()}
	msg := usageMessage(t, event)

	if ack := exporter.process(context.Background(), msg); ack {
		t.Fatal("insert failure should nack")
	}

	// The dedupe claim is released, so the redelivery inserts.
	inserter.insertErr = nil
	if ack := exporter.process(context.Background(), msg); !ack {
		t.Fatal("redelivery after failure should ack")
	}
	if len(inserter.rows) != 1 {
		t.Fatalf("%d rows inserted, want 1", len(inserter.rows))
	}
}

func TestProcessAcksMalformedPayload(t *testing.T) {
	inserter := &fakeInserter{}
	exporter := testExporter(t, inserter, newFakeDedupe())

	msg := &pubsub.Message{Data: []byte("not json")}
	if ack := exporter.process(context.Background(), msg); !ack {
		t.Fatal("malformed payload should ack, redelivery cannot fix it")
	}
	if len(inserter.rows) != 0 {
		t.Fatal("no rows expected")
	}
}
