package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmproxy/capture-proxy/internal/vendor"
)

func newTestForwarder() *Forwarder {
	return &Forwarder{
		DynamicClient:    http.DefaultClient,
		FixedEntryClient: http.DefaultClient,
	}
}

func TestForward_NonStreamingOpenAI_WritesBodyVerbatimAndParses(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id":"resp-1","choices":[{"message":{"role":"assistant","content":"hello there"}}]}`))
	}))
	defer upstream.Close()

	f := newTestForwarder()
	target := Target{URL: upstream.URL, AuthType: vendor.AuthOpenAI}
	inbound := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	result, err := f.Forward(inbound.Context(), rec, inbound, target, []byte(`{"model":"gpt-4"}`), kindFixedEntry)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, result.Streamed)
	assert.Contains(t, rec.Body.String(), "hello there")
	assert.Equal(t, "hello there", result.Accumulator.VisibleText)
}

func TestForward_StreamingOpenAI_TeesChunksAndParsesIncrementally(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		flusher.Flush()
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n")
		flusher.Flush()
		io.WriteString(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
	defer upstream.Close()

	f := newTestForwarder()
	target := Target{URL: upstream.URL, AuthType: vendor.AuthOpenAI}
	inbound := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{"stream":true}`))
	rec := httptest.NewRecorder()

	result, err := f.Forward(inbound.Context(), rec, inbound, target, []byte(`{"model":"gpt-4","stream":true}`), kindFixedEntry)
	require.NoError(t, err)
	assert.True(t, result.Streamed)
	assert.Equal(t, "Hello", result.Accumulator.VisibleText)
	assert.Contains(t, rec.Body.String(), "data: [DONE]")
}

func TestForward_UpstreamErrorStatus_ForwardedVerbatimNotRetried(t *testing.T) {
	calls := 0
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer upstream.Close()

	f := newTestForwarder()
	target := Target{URL: upstream.URL, AuthType: vendor.AuthOpenAI}
	inbound := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	result, err := f.Forward(inbound.Context(), rec, inbound, target, []byte(`{}`), kindFixedEntry)
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, result.StatusCode)
	assert.Equal(t, 1, calls)
	assert.Contains(t, rec.Body.String(), "rate limited")
}

func TestForward_ForwardsAuthorizationAndXHeaders(t *testing.T) {
	var gotAuth, gotCustom, gotUnrelated string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotCustom = r.Header.Get("X-Request-Id")
		gotUnrelated = r.Header.Get("Cookie")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	}))
	defer upstream.Close()

	f := newTestForwarder()
	target := Target{URL: upstream.URL, AuthType: vendor.AuthOpenAI}
	inbound := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{}`))
	inbound.Header.Set("Authorization", "Bearer secret-token")
	inbound.Header.Set("X-Request-Id", "req-123")
	inbound.Header.Set("Cookie", "session=abc")
	rec := httptest.NewRecorder()

	_, err := f.Forward(inbound.Context(), rec, inbound, target, []byte(`{}`), kindFixedEntry)
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, "req-123", gotCustom)
	assert.Empty(t, gotUnrelated)
}
