package openai

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"slide-master/internal/domain"
)

// fakeGetter is a minimal paramstore.Getter stub for use within this package.
type fakeGetter struct {
	val   string
	err   error
	calls int
}

func (f *fakeGetter) GetParameter(_ context.Context, _ string) (string, error) {
	f.calls++
	return f.val, f.err
}

var testPrompt = domain.Prompt{System: "You design slide decks.", User: "Topic: Black holes"}

const completionBody = `{
	"id": "chatcmpl-123",
	"object": "chat.completion",
	"created": 1670000000,
	"model": "llama-mock",
	"choices": [{
		"index": 0,
		"finish_reason": "stop",
		"message": { "role": "assistant", "content": "{\"slides\":[]}" }
	}]
}`

func newTestClient(t *testing.T, srv *httptest.Server, g *fakeGetter) *Client {
	t.Helper()
	if g == nil {
		g = &fakeGetter{val: `{"token":"sk-test"}`}
	}
	c, err := NewClient(g, "/slide-master/groq-token",
		WithBaseURL(srv.URL),
		WithHTTPClient(&http.Client{Timeout: 2 * time.Second}),
		WithModel("llama-mock"),
	)
	require.NoError(t, err)
	return c
}

func TestNewClient_NilGetter(t *testing.T) {
	_, err := NewClient(nil, "x")
	require.Error(t, err)
	require.Contains(t, err.Error(), "nil")
}

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient(&fakeGetter{}, "")
	require.NoError(t, err)
	require.Equal(t, DefaultBaseURL, c.baseURL)
	require.Equal(t, DefaultModel, c.Model())
	require.Equal(t, DefaultTokenParameter, c.secret.Name())
	require.NotNil(t, c.httpClient)
}

func TestClient_Complete_HappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		reqBody, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.Contains(t, string(reqBody), `"response_format":{"type":"json_object"}`)
		require.Contains(t, string(reqBody), `"model":"llama-mock"`)
		require.Contains(t, string(reqBody), `"role":"system"`)
		require.Contains(t, string(reqBody), "Topic: Black holes")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	resp, err := c.Complete(context.Background(), testPrompt)
	require.NoError(t, err)
	require.Equal(t, `{"slides":[]}`, resp)
}

func TestClient_Complete_KeyFetchedOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody))
	}))
	defer srv.Close()

	g := &fakeGetter{val: `{"token":"sk-test"}`}
	c := newTestClient(t, srv, g)
	for i := 0; i < 3; i++ {
		_, err := c.Complete(context.Background(), testPrompt)
		require.NoError(t, err)
	}
	require.Equal(t, 1, g.calls, "SSM must only be called once per process lifetime")
}

func TestClient_Complete_KeyError(t *testing.T) {
	c, err := NewClient(&fakeGetter{err: errors.New("ssm unavailable")}, "groq-token")
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), testPrompt)
	require.ErrorContains(t, err, "ssm unavailable")
}

func TestClient_Complete_RateLimitedNoRetry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	_, err := c.Complete(context.Background(), testPrompt)
	require.Error(t, err)

	var se *HTTPStatusError
	require.True(t, errors.As(err, &se))
	require.Equal(t, http.StatusTooManyRequests, se.HTTPStatusCode())
	require.Contains(t, err.Error(), "429")
	require.Equal(t, int32(1), hits.Load())
}

func TestClient_Complete_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, nil).Complete(context.Background(), testPrompt)
	require.ErrorContains(t, err, "no choices")
}

func TestClient_Complete_ContextTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Complete(ctx, testPrompt)
	require.Error(t, err)
	require.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
}

func TestStatusError_PassesThroughPlainErrors(t *testing.T) {
	base := errors.New("dial tcp: refused")
	require.Same(t, base, statusError(base))
}
