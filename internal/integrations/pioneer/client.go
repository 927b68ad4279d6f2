package pioneer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"pioneer-chat/internal/domain"
)

const (
	defaultBaseURL = "https://api.fastino.ai"

	// SimilarityThreshold is the fixed minimum similarity for retrieved chunks.
	SimilarityThreshold = 0.25

	registerPurpose = "A personalized AI chat assistant that learns from conversations and adapts to user preferences"
	ingestSource    = "chat_app"
)

// HTTPStatusError captures non-2xx responses from the personalization service.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("pioneer: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

func (e *HTTPStatusError) ResponseBody() string {
	return e.Body
}

// Timeouts bounds each endpoint call.
type Timeouts struct {
	Read     time.Duration // summary, chunks
	Ingest   time.Duration
	Register time.Duration
	Query    time.Duration
}

// DefaultTimeouts mirrors the service's documented expectations.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Read:     10 * time.Second,
		Ingest:   30 * time.Second,
		Register: 30 * time.Second,
		Query:    180 * time.Second,
	}
}

type registerResponse struct {
	UserID string `json:"user_id"`
}

type registerRequest struct {
	Email   string            `json:"email"`
	Purpose string            `json:"purpose"`
	Traits  map[string]string `json:"traits"`
}

type summaryResponse struct {
	Summary *string `json:"summary"`
}

type chunksRequest struct {
	UserID              string               `json:"user_id"`
	History             []domain.ChatMessage `json:"history"`
	K                   int                  `json:"k"`
	SimilarityThreshold float64              `json:"similarity_threshold"`
}

type chunksResponse struct {
	Chunks []domain.ContextChunk `json:"chunks"`
}

type ingestRequest struct {
	UserID         string           `json:"user_id"`
	Source         string           `json:"source"`
	MessageHistory []domain.Message `json:"message_history"`
	Options        ingestOptions    `json:"options"`
}

type ingestOptions struct {
	Dedupe bool `json:"dedupe"`
}

type queryRequest struct {
	UserID   string `json:"user_id"`
	Question string `json:"question"`
	UseCache bool   `json:"use_cache"`
}

type queryResponse struct {
	Answer *string `json:"answer"`
}

// ErrNoSummary is returned when the service answers successfully but holds no
// summary for the user.
var ErrNoSummary = domain.ErrNoSummary

// ErrNoUserID is returned when registration succeeds without a user id.
var ErrNoUserID = errors.New("pioneer: register response missing user_id")

// ErrNoAnswer is returned when a knowledge query succeeds without an answer.
var ErrNoAnswer = errors.New("pioneer: no answer available")

// Client talks to the personalization service. All calls carry the API key
// header and run under their own timeout.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	timeouts   Timeouts
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithTimeouts(t Timeouts) Option {
	return func(c *Client) {
		c.timeouts = t
	}
}

func NewClient(apiKey string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("pioneer: api key must not be empty")
	}
	c := &Client{
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{},
		timeouts:   DefaultTimeouts(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	return c, nil
}

// Register creates a user and returns its opaque id.
func (c *Client) Register(ctx context.Context, in domain.Registration) (string, error) {
	traits := map[string]string{}
	if name := strings.TrimSpace(in.Name); name != "" {
		traits["name"] = name
	}
	if tz := strings.TrimSpace(in.Timezone); tz != "" {
		traits["timezone"] = tz
	}

	raw, err := c.postJSON(ctx, c.timeouts.Register, "/register", registerRequest{
		Email:   in.Email,
		Purpose: registerPurpose,
		Traits:  traits,
	})
	if err != nil {
		return "", fmt.Errorf("pioneer: register: %w", err)
	}

	var out registerResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("pioneer: decode register response: %w", err)
	}
	if strings.TrimSpace(out.UserID) == "" {
		return "", ErrNoUserID
	}
	return out.UserID, nil
}

// Summary fetches the user's profile summary bounded to maxChars.
func (c *Client) Summary(ctx context.Context, userID string, maxChars int) (string, error) {
	q := url.Values{}
	q.Set("user_id", userID)
	q.Set("max_chars", strconv.Itoa(maxChars))

	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Read)
	defer cancel()

	endpoint := c.baseURL + "/summary?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("pioneer: create summary request: %w", err)
	}
	c.setHeaders(req)

	raw, err := c.do(req, endpoint)
	if err != nil {
		return "", fmt.Errorf("pioneer: summary: %w", err)
	}
	var payload summaryResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("pioneer: decode summary response: %w", err)
	}
	if payload.Summary == nil || strings.TrimSpace(*payload.Summary) == "" {
		return "", ErrNoSummary
	}
	return *payload.Summary, nil
}

// Chunks retrieves the top-k snippets relevant to history, in service order.
func (c *Client) Chunks(ctx context.Context, userID string, history []domain.ChatMessage, k int) ([]domain.ContextChunk, error) {
	if history == nil {
		history = []domain.ChatMessage{}
	}
	raw, err := c.postJSON(ctx, c.timeouts.Read, "/chunks", chunksRequest{
		UserID:              userID,
		History:             history,
		K:                   k,
		SimilarityThreshold: SimilarityThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("pioneer: chunks: %w", err)
	}
	var payload chunksResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("pioneer: decode chunks response: %w", err)
	}
	return payload.Chunks, nil
}

// Ingest submits the full conversation for learning with deduplication on.
func (c *Client) Ingest(ctx context.Context, userID string, messages []domain.Message) error {
	if _, err := c.postJSON(ctx, c.timeouts.Ingest, "/ingest", ingestRequest{
		UserID:         userID,
		Source:         ingestSource,
		MessageHistory: messages,
		Options:        ingestOptions{Dedupe: true},
	}); err != nil {
		return fmt.Errorf("pioneer: ingest: %w", err)
	}
	return nil
}

// Query asks a free-form question about the user's knowledge base.
func (c *Client) Query(ctx context.Context, userID, question string) (string, error) {
	raw, err := c.postJSON(ctx, c.timeouts.Query, "/query", queryRequest{
		UserID:   userID,
		Question: question,
		UseCache: true,
	})
	if err != nil {
		return "", fmt.Errorf("pioneer: query: %w", err)
	}
	var payload queryResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("pioneer: decode query response: %w", err)
	}
	if payload.Answer == nil {
		return "", ErrNoAnswer
	}
	return *payload.Answer, nil
}

func (c *Client) postJSON(ctx context.Context, timeout time.Duration, path string, body any) ([]byte, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	endpoint := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)
	return c.do(req, endpoint)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
}

func (c *Client) do(req *http.Request, endpoint string) ([]byte, error) {
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        stripQuery(endpoint),
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}

func stripQuery(endpoint string) string {
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		return endpoint[:i]
	}
	return endpoint
}
