package enums

import "fmt"

// StreamPhase is the sub-stage of an in-flight job's content production,
// distinct from the job's overall status.
type StreamPhase string

const (
	StreamPhaseStarting  StreamPhase = "starting"
	StreamPhaseThinking  StreamPhase = "thinking"
	StreamPhaseContent   StreamPhase = "content"
	StreamPhaseCompleted StreamPhase = "completed"
	StreamPhaseFailed    StreamPhase = "failed"
)

var validStreamPhases = []StreamPhase{
	StreamPhaseStarting,
	StreamPhaseThinking,
	StreamPhaseContent,
	StreamPhaseCompleted,
	StreamPhaseFailed,
}

// String implements fmt.Stringer.
func (p StreamPhase) String() string {
	return string(p)
}

// IsValid reports whether the value is known.
func (p StreamPhase) IsValid() bool {
	for _, candidate := range validStreamPhases {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseStreamPhase converts raw input into a StreamPhase.
func ParseStreamPhase(value string) (StreamPhase, error) {
	for _, candidate := range validStreamPhases {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stream phase %q", value)
}
