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
	anthropicDefaultBaseURL       = "https://api.anthropic.com/v1"
	anthropicAPIVersion           = "2023-06-01"
	anthropicErrorBodyLimit int64 = 2048
)

// AnthropicClient streams generations from the Anthropic Messages API.
// Input tokens arrive on message_start and output tokens on message_delta,
// so the final usage summary is assembled across the stream.
type AnthropicClient struct {
	httpClient    *http.Client
	baseURL       string
	apiKey        string
	streamTimeout time.Duration
}

// AnthropicOption configures optional client behavior.
type AnthropicOption func(*AnthropicClient)

// WithAnthropicHTTPClient overrides the default HTTP client.
func WithAnthropicHTTPClient(client *http.Client) AnthropicOption {
	return func(c *AnthropicClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithAnthropicBaseURL overrides the API base URL.
func WithAnthropicBaseURL(baseURL string) AnthropicOption {
	return func(c *AnthropicClient) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithAnthropicStreamTimeout overrides the wall-clock stream timeout.
func WithAnthropicStreamTimeout(timeout time.Duration) AnthropicOption {
	return func(c *AnthropicClient) {
		if timeout > 0 {
			c.streamTimeout = timeout
		}
	}
}

// NewAnthropicClient builds an Anthropic streaming client.
func NewAnthropicClient(apiKey string, opts ...AnthropicOption) (*AnthropicClient, error) {
	trimmedKey := strings.TrimSpace(apiKey)
	if trimmedKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "anthropic api key is required")
	}

	client := &AnthropicClient{
		apiKey:        trimmedKey,
		baseURL:       anthropicDefaultBaseURL,
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

type anthropicContentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicMessage struct {
	Role    string                 `json:"role"`
	Content []anthropicContentPart `json:"content"`
}

type anthropicStreamRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	Stream      bool               `json:"stream"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicStreamEvent struct {
	Type    string `json:"type"`
	Message struct {
		Model string `json:"model"`
		Usage struct {
			InputTokens  int64 `json:"input_tokens"`
			OutputTokens int64 `json:"output_tokens"`
		} `json:"usage"`
	} `json:"message"`
	Delta struct {
		Type     string `json:"type"`
		Text     string `json:"text"`
		Thinking string `json:"thinking"`
	} `json:"delta"`
	Usage struct {
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Stream drives one Messages API call and normalizes its events. The
// returned channel is closed after the terminal event; the caller must
// drain it.
func (c *AnthropicClient) Stream(ctx context.Context, req Request) (<-chan Event, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	payload := anthropicStreamRequest{
		Model:       req.Model,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		Stream:      true,
		System:      req.SystemPrompt,
		Messages: []anthropicMessage{
			{Role: "user", Content: []anthropicContentPart{{Type: "text", Text: req.UserPrompt}}},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal anthropic request")
	}

	streamCtx, cancel := context.WithTimeout(ctx, c.streamTimeout)

	httpReq, err := http.NewRequestWithContext(streamCtx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build anthropic request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		cancel()
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute anthropic request")
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, anthropicErrorBodyLimit))
		_ = resp.Body.Close()
		cancel()
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "anthropic stream rejected")
	}

	events := make(chan Event, defaultEventChannelDepth)
	go func() {
		defer cancel()
		defer close(events)
		defer func() { _ = resp.Body.Close() }()

		var (
			total       Usage
			model       string
			sawTerminal bool
		)
		scanErr := scanSSE(resp.Body, func(data string) bool {
			var evt anthropicStreamEvent
			if err := json.Unmarshal([]byte(data), &evt); err != nil {
				return true
			}
			switch evt.Type {
			case "message_start":
				model = evt.Message.Model
				total.InputTokens = evt.Message.Usage.InputTokens
				total.OutputTokens = evt.Message.Usage.OutputTokens
				events <- MessageStart{Model: model, Usage: total}
			case "content_block_delta":
				switch evt.Delta.Type {
				case "thinking_delta":
					if evt.Delta.Thinking != "" {
						events <- ThinkingDelta{Text: evt.Delta.Thinking}
					}
				case "text_delta":
					if evt.Delta.Text != "" {
						events <- ContentDelta{Text: evt.Delta.Text}
					}
				}
			case "message_delta":
				if evt.Usage.OutputTokens > 0 {
					total.OutputTokens = evt.Usage.OutputTokens
				}
			case "message_stop":
				events <- MessageStop{Model: model, Usage: total}
				sawTerminal = true
				return false
			case "error":
				events <- ErrorEvent{Reason: "anthropic stream error: " + evt.Error.Message}
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
			events <- ErrorEvent{Reason: "anthropic stream timed out or canceled: " + streamCtx.Err().Error()}
		case scanErr != nil:
			events <- ErrorEvent{Reason: "anthropic stream transport error: " + scanErr.Error()}
		default:
			events <- ErrorEvent{Reason: "anthropic stream ended without a terminal event"}
		}
	}()

	return events, nil
}
