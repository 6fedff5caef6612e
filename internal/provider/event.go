package provider

// Usage is the token accounting reported by a provider for one call.
type Usage struct {
	InputTokens     int64 `json:"input_tokens"`
	OutputTokens    int64 `json:"output_tokens"`
	ReasoningTokens int64 `json:"reasoning_tokens"`
}

// Add merges another usage summary into this one.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.ReasoningTokens += other.ReasoningTokens
}

// Event is one normalized item from a provider stream. Every wire protocol
// is mapped onto this closed set before it reaches the orchestrator.
type Event interface {
	isEvent()
}

// MessageStart opens a stream and may carry preliminary usage.
type MessageStart struct {
	Model string
	Usage Usage
}

// ThinkingDelta carries a chunk of reasoning text.
type ThinkingDelta struct {
	Text string
}

// ContentDelta carries a chunk of generated output text.
type ContentDelta struct {
	Text string
}

// MessageStop terminates a successful stream with the final usage summary.
type MessageStop struct {
	Model string
	Usage Usage
}

// ErrorEvent terminates a failed stream.
type ErrorEvent struct {
	Reason string
}

func (MessageStart) isEvent()  {}
func (ThinkingDelta) isEvent() {}
func (ContentDelta) isEvent()  {}
func (MessageStop) isEvent()   {}
func (ErrorEvent) isEvent()    {}
