package generation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/inkwell-labs/inkwell-backend/internal/jobstate"
	"github.com/inkwell-labs/inkwell-backend/pkg/logger"
)

type fakeTask struct {
	jobs   []Job
	runErr error
}

func (f *fakeTask) Run(ctx context.Context, job Job) error {
	f.jobs = append(f.jobs, job)
	return f.runErr
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func jobMessage(t *testing.T, job Job) *pubsub.Message {
	t.Helper()
	data, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("marshal job: %v", err)
	}
	return &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"job_id": job.JobID.String()},
	}
}

func TestConsumerProcessRunsTask(t *testing.T) {
	task := &fakeTask{}
	consumer := &Consumer{task: task, logg: testLogger()}

	job := Job{JobID: uuid.New(), UserID: uuid.New(), UserPrompt: "write"}
	if ack := consumer.process(context.Background(), jobMessage(t, job)); !ack {
		t.Fatal("expected ack")
	}
	if len(task.jobs) != 1 || task.jobs[0].JobID != job.JobID {
		t.Fatalf("task runs %+v", task.jobs)
	}
}

func TestConsumerAcksFailedJob(t *testing.T) {
	// The task owns the terminal state; redelivering a failed job would
	// re-run a job that already ended.
	task := &fakeTask{runErr: errors.New("stream died")}
	consumer := &Consumer{task: task, logg: testLogger()}

	job := Job{JobID: uuid.New(), UserID: uuid.New(), UserPrompt: "write"}
	if ack := consumer.process(context.Background(), jobMessage(t, job)); !ack {
		t.Fatal("failed jobs must still ack")
	}
}

func TestConsumerAcksUndecodableMessage(t *testing.T) {
	task := &fakeTask{}
	consumer := &Consumer{task: task, logg: testLogger()}

	msg := &pubsub.Message{Data: []byte("garbage")}
	if ack := consumer.process(context.Background(), msg); !ack {
		t.Fatal("undecodable payloads must ack")
	}
	if len(task.jobs) != 0 {
		t.Fatal("task should not run for garbage payloads")
	}
}

func TestConsumerAcksInvalidJob(t *testing.T) {
	task := &fakeTask{}
	consumer := &Consumer{task: task, logg: testLogger()}

	if ack := consumer.process(context.Background(), jobMessage(t, Job{})); !ack {
		t.Fatal("invalid jobs must ack")
	}
	if len(task.jobs) != 0 {
		t.Fatal("task should not run for invalid jobs")
	}
}

type fakePublishResult struct {
	id  string
	err error
}

func (r fakePublishResult) Get(ctx context.Context) (string, error) {
	return r.id, r.err
}

type fakePublisher struct {
	messages []*pubsub.Message
	err      error
}

func (p *fakePublisher) Publish(ctx context.Context, msg *pubsub.Message) publishResult {
	p.messages = append(p.messages, msg)
	return fakePublishResult{id: "m1", err: p.err}
}

type fakeSeeder struct {
	jobIDs []string
}

func (s *fakeSeeder) InitJob(ctx context.Context, jobID, stage string) error {
	s.jobIDs = append(s.jobIDs, jobID)
	return nil
}

func TestEnqueuePublishesAndSeedsState(t *testing.T) {
	pub := &fakePublisher{}
	seeder := &fakeSeeder{}
	enq := &Enqueuer{pub: pub, tracker: seeder, logg: testLogger()}

	job := Job{JobID: uuid.New(), UserID: uuid.New(), UserPrompt: "write", Formality: "Formal"}
	if err := enq.Enqueue(context.Background(), job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if len(pub.messages) != 1 {
		t.Fatalf("%d messages published", len(pub.messages))
	}
	var decoded Job
	if err := json.Unmarshal(pub.messages[0].Data, &decoded); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if decoded.JobID != job.JobID || decoded.Formality != "Formal" {
		t.Fatalf("payload %+v", decoded)
	}
	if pub.messages[0].Attributes["job_id"] != job.JobID.String() {
		t.Fatalf("attributes %v", pub.messages[0].Attributes)
	}
	if len(seeder.jobIDs) != 1 || seeder.jobIDs[0] != job.JobID.String() {
		t.Fatalf("seeded jobs %v", seeder.jobIDs)
	}
}

func TestEnqueueRejectsInvalidJob(t *testing.T) {
	enq := &Enqueuer{pub: &fakePublisher{}, tracker: &fakeSeeder{}, logg: testLogger()}
	if err := enq.Enqueue(context.Background(), Job{}); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestEnqueuePublishFailure(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker unavailable")}
	seeder := &fakeSeeder{}
	enq := &Enqueuer{pub: pub, tracker: seeder, logg: testLogger()}

	job := Job{JobID: uuid.New(), UserID: uuid.New(), UserPrompt: "write"}
	if err := enq.Enqueue(context.Background(), job); err == nil {
		t.Fatal("expected publish error")
	}
	if len(seeder.jobIDs) != 0 {
		t.Fatal("state must not be seeded when publish fails")
	}
}

func TestEnqueueSeedsPendingVisibleToPoll(t *testing.T) {
	pub := &fakePublisher{}
	tracker, err := jobstate.NewTracker(jobstate.NewMemoryStore(), time.Hour, testLogger())
	if err != nil {
		t.Fatalf("new tracker: %v", err)
	}
	enq := &Enqueuer{pub: pub, tracker: tracker, logg: testLogger()}

	job := Job{JobID: uuid.New(), UserID: uuid.New(), UserPrompt: "write"}
	if err := enq.Enqueue(context.Background(), job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	state, err := tracker.Get(context.Background(), job.JobID.String())
	if err != nil {
		t.Fatalf("poll after enqueue: %v", err)
	}
	if state.Status.String() != "pending" {
		t.Fatalf("status %s, want pending", state.Status)
	}
}
