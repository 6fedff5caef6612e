package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/inkwell-labs/inkwell-backend/pkg/errors"
)

const (
	openAIDefaultBaseURL           = "https://api.openai.com/v1"
	openAIErrorBodyLimit     int64 = 2048
	defaultEventChannelDepth       = 32
)

// OpenAIClient streams generations from the OpenAI Responses API. The API
// interleaves reasoning-summary deltas with output deltas, which map onto
// the thinking and content phases respectively.
type OpenAIClient struct {
	httpClient    *http.Client
	baseURL       string
	apiKey        string
	streamTimeout time.Duration
}

// OpenAIOption configures optional client behavior.
type OpenAIOption func(*OpenAIClient)

// WithOpenAIHTTPClient overrides the default HTTP client.
func WithOpenAIHTTPClient(client *http.Client) OpenAIOption {
	return func(c *OpenAIClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithOpenAIBaseURL overrides the API base URL.
func WithOpenAIBaseURL(baseURL string) OpenAIOption {
	return func(c *OpenAIClient) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithOpenAIStreamTimeout overrides the wall-clock stream timeout.
func WithOpenAIStreamTimeout(timeout time.Duration) OpenAIOption {
	return func(c *OpenAIClient) {
		if timeout > 0 {
			c.streamTimeout = timeout
		}
	}
}

// NewOpenAIClient builds an OpenAI streaming client.
func NewOpenAIClient(apiKey string, opts ...OpenAIOption) (*OpenAIClient, error) {
	trimmedKey := strings.TrimSpace(apiKey)
	if trimmedKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "openai api key is required")
	}

	client := &OpenAIClient{
		apiKey:        trimmedKey,
		baseURL:       openAIDefaultBaseURL,
		httpClient:    &http.Client{},
		streamTimeout: StreamTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

type openAIContentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type openAIInputItem struct {
	Role    string              `json:"role"`
	Content []openAIContentPart `json:"content"`
}

type openAIStreamRequest struct {
	Model string            `json:"model"`
	Input []openAIInputItem `json:"input"`
	Text  struct {
		Format struct {
			Type string `json:"type"`
		} `json:"format"`
		Verbosity string `json:"verbosity"`
	} `json:"text"`
	Reasoning struct {
		Effort  string `json:"effort"`
		Summary string `json:"summary"`
	} `json:"reasoning"`
	MaxOutputTokens int  `json:"max_output_tokens,omitempty"`
	Store           bool `json:"store"`
	Stream          bool `json:"stream"`
}

type openAIUsage struct {
	InputTokens         int64 `json:"input_tokens"`
	OutputTokens        int64 `json:"output_tokens"`
	ReasoningTokens     int64 `json:"reasoning_tokens"`
	OutputTokensDetails struct {
		ReasoningTokens int64 `json:"reasoning_tokens"`
	} `json:"output_tokens_details"`
}

func (u openAIUsage) normalize() Usage {
	reasoning := u.OutputTokensDetails.ReasoningTokens
	if reasoning == 0 {
		reasoning = u.ReasoningTokens
	}
	return Usage{
		InputTokens:     u.InputTokens,
		OutputTokens:    u.OutputTokens,
		ReasoningTokens: reasoning,
	}
}

type openAIStreamEvent struct {
	Type     string `json:"type"`
	Delta    string `json:"delta"`
	Message  string `json:"message"`
	Response struct {
		Model string      `json:"model"`
		Usage openAIUsage `json:"usage"`
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	} `json:"response"`
}

// Stream drives one Responses API call and normalizes its events. The
// returned channel is closed after the terminal event; the caller must
// drain it.
func (c *OpenAIClient) Stream(ctx context.Context, req Request) (<-chan Event, error) {
	payload := openAIStreamRequest{
		Model:           req.Model,
		MaxOutputTokens: req.MaxTokens,
		Store:           true,
		Stream:          true,
		Input: []openAIInputItem{
			{Role: "developer", Content: []openAIContentPart{{Type: "input_text", Text: req.SystemPrompt}}},
			{Role: "user", Content: []openAIContentPart{{Type: "input_text", Text: req.UserPrompt}}},
		},
	}
	payload.Text.Format.Type = "text"
	payload.Text.Verbosity = "high"
	payload.Reasoning.Effort = "low"
	payload.Reasoning.Summary = "auto"

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal openai request")
	}

	streamCtx, cancel := context.WithTimeout(ctx, c.streamTimeout)

	httpReq, err := http.NewRequestWithContext(streamCtx, http.MethodPost, c.baseURL+"/responses", bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build openai request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		cancel()
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute openai request")
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, openAIErrorBodyLimit))
		_ = resp.Body.Close()
		cancel()
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "openai stream rejected")
	}

	events := make(chan Event, defaultEventChannelDepth)
	go func() {
		defer cancel()
		defer close(events)
		defer func() { _ = resp.Body.Close() }()

		sawTerminal := false
		scanErr := scanSSE(resp.Body, func(data string) bool {
			var evt openAIStreamEvent
			if err := json.Unmarshal([]byte(data), &evt); err != nil {
				return true
			}
			switch evt.Type {
			case "response.created":
				events <- MessageStart{Model: evt.Response.Model, Usage: evt.Response.Usage.normalize()}
			case "response.reasoning_summary_text.delta":
				if evt.Delta != "" {
					events <- ThinkingDelta{Text: evt.Delta}
				}
			case "response.output_text.delta":
				if evt.Delta != "" {
					events <- ContentDelta{Text: evt.Delta}
				}
			case "response.completed":
				events <- MessageStop{Model: evt.Response.Model, Usage: evt.Response.Usage.normalize()}
				sawTerminal = true
				return false
			case "response.failed":
				events <- ErrorEvent{Reason: "openai response failed: " + evt.Response.Error.Message}
				sawTerminal = true
				return false
			case "error":
				events <- ErrorEvent{Reason: "openai stream error: " + evt.Message}
				sawTerminal = true
				return false
			}
			return true
		})
		if sawTerminal {
			return
		}
		switch {
		case streamCtx.Err() != nil:
			events <- ErrorEvent{Reason: "openai stream timed out or canceled: " + streamCtx.Err().Error()}
		case scanErr != nil:
			events <- ErrorEvent{Reason: "openai stream transport error: " + scanErr.Error()}
		default:
			events <- ErrorEvent{Reason: "openai stream ended without a terminal event"}
		}
	}()

	return events, nil
}
