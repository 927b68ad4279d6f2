package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"pioneer-chat/internal/domain"
)

const (
	defaultModel       = "gpt-4.1"
	defaultTemperature = 0.7
	defaultMaxTokens   = 1000
)

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("openai: unexpected status %d: %s", e.StatusCode, e.Message)
}

func (e *HTTPStatusError) Unwrap() error {
	return e.Err
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client is a focused chat-completion client with fixed sampling settings.
type Client struct {
	api         *goopenai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
}

type settings struct {
	baseURL    string
	httpClient *http.Client
	model      string
	timeout    time.Duration
}

type Option func(*settings)

func WithBaseURL(baseURL string) Option {
	return func(s *settings) {
		s.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(s *settings) {
		s.httpClient = httpClient
	}
}

func WithModel(model string) Option {
	return func(s *settings) {
		s.model = strings.TrimSpace(model)
	}
}

func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		s.timeout = d
	}
}

func NewClient(apiKey string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("openai: api key must not be empty")
	}
	s := settings{model: defaultModel, timeout: 60 * time.Second}
	for _, opt := range opts {
		opt(&s)
	}
	if s.model == "" {
		return nil, errors.New("openai: model must not be empty")
	}

	cfg := goopenai.DefaultConfig(apiKey)
	if s.baseURL != "" {
		cfg.BaseURL = apiBaseURL(s.baseURL)
	}
	if s.httpClient != nil {
		cfg.HTTPClient = s.httpClient
	}
	return &Client{
		api:         goopenai.NewClientWithConfig(cfg),
		model:       s.model,
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
		timeout:     s.timeout,
	}, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// apiBaseURL normalizes a base URL so it ends in /v1.
func apiBaseURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if strings.HasSuffix(base, "/v1") {
		return base
	}
	return base + "/v1"
}

// Complete requests a single completion. There are no retries.
func (c *Client) Complete(ctx context.Context, in domain.CompletionRequest) (domain.Completion, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req := goopenai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    toAPIMessages(in.Messages),
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	for _, t := range in.Tools {
		req.Tools = append(req.Tools, goopenai.Tool{
			Type: goopenai.ToolTypeFunction,
			Function: &goopenai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return domain.Completion{}, fmt.Errorf("openai: request failed: %w", classify(err))
	}
	if len(resp.Choices) == 0 {
		return domain.Completion{}, errors.New("openai: no choices in response")
	}

	msg := resp.Choices[0].Message
	out := domain.Completion{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, domain.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	if strings.TrimSpace(out.Content) == "" && len(out.ToolCalls) == 0 {
		return domain.Completion{}, errors.New("openai: empty completion")
	}
	return out, nil
}

func toAPIMessages(msgs []domain.ChatMessage) []goopenai.ChatCompletionMessage {
	out := make([]goopenai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		am := goopenai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			am.ToolCalls = append(am.ToolCalls, goopenai.ToolCall{
				ID:   tc.ID,
				Type: goopenai.ToolTypeFunction,
				Function: goopenai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out = append(out, am)
	}
	return out
}

// classify lifts go-openai's status-bearing errors into HTTPStatusError.
func classify(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &HTTPStatusError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message, Err: err}
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &HTTPStatusError{StatusCode: reqErr.HTTPStatusCode, Message: reqErr.Error(), Err: err}
	}
	return err
}
