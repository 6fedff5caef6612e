package provider

import (
	"context"
	"time"

	"github.com/inkwell-labs/inkwell-backend/pkg/enums"
)

// StreamTimeout bounds one provider stream end to end. A stream that has
// not reached a terminal event by then is treated as failed.
const StreamTimeout = 600 * time.Second

// Request is the provider-agnostic input for one streamed generation call.
type Request struct {
	Model        string
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float64
}

// Client streams one generation call as normalized events. The returned
// channel is closed after the terminal event (MessageStop or ErrorEvent);
// the error return covers failures before the stream is established.
type Client interface {
	Stream(ctx context.Context, req Request) (<-chan Event, error)
}

// Handle names the provider and model a job should be driven with.
type Handle struct {
	Provider enums.Provider
	Model    string
}

// PolicyInput carries the routing-relevant slice of a brand tone profile.
// Tone itself stays inside prompt construction; only formality routes.
type PolicyInput struct {
	Formality string
}

// SelectProvider maps a tone policy onto a provider handle. Formal registers
// go to the OpenAI reasoning model, everything else to Anthropic.
func SelectProvider(policy PolicyInput) Handle {
	switch policy.Formality {
	case "Ceremonial", "Formal":
		return Handle{Provider: enums.ProviderOpenAI, Model: "gpt-5"}
	default:
		return Handle{Provider: enums.ProviderAnthropic, Model: "claude-haiku-4-5-20251001"}
	}
}
