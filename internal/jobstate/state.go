package jobstate

import (
	"time"

	"github.com/inkwell-labs/inkwell-backend/pkg/enums"
)

// DefaultStage is the stage name used by single-stage generation jobs.
const DefaultStage = "generation"

// StreamingData is the live view of one stage's stream: current phase,
// partial text and word counts plus stage-specific flags.
type StreamingData struct {
	Phase       enums.StreamPhase `json:"phase"`
	Text        string            `json:"text,omitempty"`
	WordCount   int               `json:"word_count,omitempty"`
	Extra       map[string]any    `json:"extra,omitempty"`
	LastUpdated time.Time         `json:"last_updated"`
}

// StageState tracks one stage of a job. Progress is monotonic for the
// lifetime of the job; writes proposing a lower value are dropped.
type StageState struct {
	Status    enums.JobStatus `json:"status"`
	Progress  int             `json:"progress"`
	Streaming StreamingData   `json:"streaming_data"`
}

// State is the full per-job progress record held in the job state store.
// It is a status surface with a TTL, not the durable record.
type State struct {
	JobID     string                 `json:"job_id"`
	Status    enums.JobStatus        `json:"status"`
	Stages    map[string]*StageState `json:"stages"`
	Error     string                 `json:"error,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// Stage returns the named stage, creating it in the starting phase when absent.
func (s *State) Stage(name string) *StageState {
	if s.Stages == nil {
		s.Stages = map[string]*StageState{}
	}
	stage, ok := s.Stages[name]
	if !ok {
		stage = &StageState{
			Status: enums.JobStatusPending,
			Streaming: StreamingData{
				Phase: enums.StreamPhaseStarting,
			},
		}
		s.Stages[name] = stage
	}
	return stage
}

// OverallProgress returns the highest progress across stages, used by the
// single-stage read model.
func (s *State) OverallProgress() int {
	max := 0
	for _, stage := range s.Stages {
		if stage.Progress > max {
			max = stage.Progress
		}
	}
	return max
}
