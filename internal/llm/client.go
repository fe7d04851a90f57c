package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const completionsPath = "/v1/chat/completions"

// Config holds everything the client needs. APIKey is a secret; the client
// must never leave server-side code.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client calls an OpenAI-style chat-completions gateway and returns
// schema-validated typed output. One outbound call per Complete invocation,
// no internal retries.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	logger     *slog.Logger
}

// Request describes one structured completion. Schema is the JSON schema the
// model output must satisfy; it is sent upstream as the response_format and
// the decoded content is checked against the caller's typed target.
type Request struct {
	Prompt       string
	SystemPrompt string
	Schema       json.RawMessage
	MaxTokens    int
	Temperature  float64
}

// Usage is the upstream token accounting for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireRequest struct {
	Model          string             `json:"model"`
	Messages       []wireMessage      `json:"messages"`
	Temperature    float64            `json:"temperature"`
	MaxTokens      int                `json:"max_tokens"`
	ResponseFormat wireResponseFormat `json:"response_format"`
}

type wireResponseFormat struct {
	Type   string          `json:"type"`
	Schema json.RawMessage `json:"schema"`
}

type wireResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Model string `json:"model"`
	Usage *Usage `json:"usage"`
}

func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, &ConfigError{Reason: "missing API key"}
	}
	if cfg.BaseURL == "" {
		return nil, &ConfigError{Reason: "missing base URL"}
	}
	if cfg.Model == "" {
		return nil, &ConfigError{Reason: "missing model name"}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		logger:     logger.With("component", "llm"),
	}, nil
}

// Complete sends one structured completion request and strict-decodes the
// model's content into out. The returned error is one of the typed failures
// in errors.go.
func (c *Client) Complete(ctx context.Context, req Request, out any) (*Usage, error) {
	if req.Prompt == "" {
		return nil, &BadRequestError{Body: "empty prompt"}
	}

	messages := make([]wireMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, wireMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, wireMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(wireRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		ResponseFormat: wireResponseFormat{
			Type:   "json_schema",
			Schema: req.Schema,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+completionsPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	if err := classifyStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}

	var wire wireResponse
	if err := json.Unmarshal(respBody, &wire); err != nil {
		return nil, &ParseError{Reason: "response body is not valid JSON", Err: err}
	}
	if len(wire.Choices) == 0 || wire.Choices[0].Message.Content == "" {
		return nil, &ParseError{Reason: "response has no message content"}
	}
	if wire.Usage == nil {
		return nil, &ParseError{Reason: "response has no usage metadata"}
	}

	dec := json.NewDecoder(strings.NewReader(wire.Choices[0].Message.Content))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return nil, &ParseError{Reason: "content does not satisfy output schema", Err: err}
	}

	c.logger.Debug("completion succeeded",
		"model", wire.Model,
		"total_tokens", wire.Usage.TotalTokens,
		"elapsed", time.Since(start))

	return wire.Usage, nil
}

func classifyStatus(status int, body []byte) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &AuthError{Status: status}
	case status == http.StatusTooManyRequests:
		return &RateLimitError{Status: status}
	case status >= 400 && status < 500:
		return &BadRequestError{Status: status, Body: truncate(body, 200)}
	default:
		return &ServerError{Status: status, Body: truncate(body, 200)}
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
