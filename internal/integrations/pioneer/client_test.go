package pioneer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pioneer-chat/internal/domain"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient("pk-test", WithBaseURL(srv.URL+"/"))
	require.NoError(t, err)
	return c
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient("  ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "api key")
}

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient("pk")
	require.NoError(t, err)
	require.Equal(t, "https://api.fastino.ai", c.baseURL)
	require.Equal(t, DefaultTimeouts(), c.timeouts)
}

func TestRegister_SendsPurposeAndTraits(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/register", r.URL.Path)
		require.Equal(t, "pk-test", r.Header.Get("x-api-key"))
		body := decodeBody(t, r)
		require.Equal(t, "ada@example.com", body["email"])
		require.Equal(t, registerPurpose, body["purpose"])
		require.Equal(t, map[string]any{"name": "Ada"}, body["traits"])
		_, _ = w.Write([]byte(`{"user_id":"u-1","status":"created"}`))
	})

	userID, err := c.Register(context.Background(), domain.Registration{Email: "ada@example.com", Name: "Ada"})
	require.NoError(t, err)
	require.Equal(t, "u-1", userID)
}

func TestRegister_EmptyTraitsObject(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		require.Equal(t, map[string]any{}, body["traits"])
		_, _ = w.Write([]byte(`{"user_id":"u-2"}`))
	})
	_, err := c.Register(context.Background(), domain.Registration{Email: "x@example.com"})
	require.NoError(t, err)
}

func TestRegister_UpstreamStatusError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"detail":"email already registered"}`))
	})
	_, err := c.Register(context.Background(), domain.Registration{Email: "dup@example.com"})
	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusConflict, statusErr.HTTPStatusCode())
	require.Equal(t, `{"detail":"email already registered"}`, statusErr.ResponseBody())
}

func TestRegister_MissingUserID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	_, err := c.Register(context.Background(), domain.Registration{Email: "x@example.com"})
	require.ErrorIs(t, err, ErrNoUserID)
}

func TestSummary_HappyPath(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/summary", r.URL.Path)
		require.Equal(t, "u-1", r.URL.Query().Get("user_id"))
		require.Equal(t, "1000", r.URL.Query().Get("max_chars"))
		_, _ = w.Write([]byte(`{"summary":"Enjoys hiking."}`))
	})
	s, err := c.Summary(context.Background(), "u-1", 1000)
	require.NoError(t, err)
	require.Equal(t, "Enjoys hiking.", s)
}

func TestSummary_NullSummary(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"summary":null}`))
	})
	_, err := c.Summary(context.Background(), "u-1", 1000)
	require.ErrorIs(t, err, ErrNoSummary)
}

func TestSummary_Non200(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	_, err := c.Summary(context.Background(), "u-1", 1000)
	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	require.NotContains(t, statusErr.URL, "user_id")
}

func TestSummary_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	timeouts := DefaultTimeouts()
	timeouts.Read = 50 * time.Millisecond
	c, err := NewClient("pk", WithBaseURL(srv.URL), WithTimeouts(timeouts))
	require.NoError(t, err)

	_, err = c.Summary(context.Background(), "u-1", 1000)
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestChunks_HappyPathPreservesOrderAndFields(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chunks", r.URL.Path)
		body := decodeBody(t, r)
		require.Equal(t, "u-1", body["user_id"])
		require.Equal(t, float64(5), body["k"])
		require.Equal(t, 0.25, body["similarity_threshold"])
		require.Equal(t, []any{
			map[string]any{"role": "user", "content": "Hi"},
		}, body["history"])
		_, _ = w.Write([]byte(`{"chunks":[{"text":"b","score":0.9},{"text":"a","score":0.4}]}`))
	})

	chunks, err := c.Chunks(context.Background(), "u-1", []domain.ChatMessage{{Role: "user", Content: "Hi"}}, 5)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	require.Equal(t, "b", chunks[0].Text())
	require.Equal(t, "a", chunks[1].Text())
	require.Equal(t, 0.9, chunks[0]["score"])
}

func TestChunks_MalformedResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not-json`))
	})
	_, err := c.Chunks(context.Background(), "u-1", nil, 5)
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode chunks response")
}

func TestIngest_SendsDedupeAndSource(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/ingest", r.URL.Path)
		body := decodeBody(t, r)
		require.Equal(t, "chat_app", body["source"])
		require.Equal(t, map[string]any{"dedupe": true}, body["options"])
		msgs := body["message_history"].([]any)
		require.Len(t, msgs, 2)
		require.Equal(t, "2026-01-01T00:00:00Z", msgs[1].(map[string]any)["timestamp"])
		w.WriteHeader(http.StatusOK)
	})
	err := c.Ingest(context.Background(), "u-1", []domain.Message{
		{Role: "user", Content: "Hi", Timestamp: "2026-01-01T00:00:00Z"},
		{Role: "assistant", Content: "Hello", Timestamp: "2026-01-01T00:00:00Z"},
	})
	require.NoError(t, err)
}

func TestIngest_Non200(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	})
	err := c.Ingest(context.Background(), "u-1", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "500")
}

func TestQuery_HappyPath(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/query", r.URL.Path)
		body := decodeBody(t, r)
		require.Equal(t, "Who are their friends?", body["question"])
		require.Equal(t, true, body["use_cache"])
		_, _ = w.Write([]byte(`{"answer":"Mostly colleagues."}`))
	})
	answer, err := c.Query(context.Background(), "u-1", "Who are their friends?")
	require.NoError(t, err)
	require.Equal(t, "Mostly colleagues.", answer)
}

func TestQuery_MissingAnswer(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	_, err := c.Query(context.Background(), "u-1", "q")
	require.True(t, errors.Is(err, ErrNoAnswer))
}

func TestTransportFailure(t *testing.T) {
	c, err := NewClient("pk", WithBaseURL("http://127.0.0.1:1"), WithHTTPClient(&http.Client{Timeout: 100 * time.Millisecond}))
	require.NoError(t, err)
	_, err = c.Summary(context.Background(), "u-1", 10)
	require.Error(t, err)
	require.Contains(t, err.Error(), "request failed")
}
