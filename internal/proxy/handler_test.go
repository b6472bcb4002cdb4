package proxy

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmproxy/capture-proxy/internal/config"
	"github.com/llmproxy/capture-proxy/internal/queue"
)

func newTestHandler(t *testing.T, cfg config.Config) (*Handler, *queue.Queue) {
	t.Helper()
	d := NewDispatcher(func() config.Config { return cfg })
	f := &Forwarder{DynamicClient: http.DefaultClient, FixedEntryClient: http.DefaultClient}
	q := queue.New(nil)
	return NewHandler(d, f, q, nil), q
}

func TestServeHealth_ReturnsHealthyStatus(t *testing.T) {
	h, _ := newTestHandler(t, config.Config{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)

	h.ServeHealth(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
	assert.Contains(t, rec.Body.String(), `"service":"dynamic-proxy"`)
}

func TestServeDynamic_UnknownDomainReturns403(t *testing.T) {
	cfg := config.Config{AllowedDomains: map[string]config.AllowedDomain{}}
	h, _ := newTestHandler(t, cfg)

	router := chi.NewRouter()
	h.Routes(router)

	req := httptest.NewRequest(http.MethodPost, "/evil.example.com/x", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "domain not allowed")
}

func TestServeDynamic_AllowedDomain_ForwardsAndEnqueues(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id":"resp-42","choices":[{"message":{"role":"assistant","content":"hi"}}]}`))
	}))
	defer upstream.Close()

	host := strings.TrimPrefix(upstream.URL, "http://")
	cfg := config.Config{
		AllowedDomains: map[string]config.AllowedDomain{
			host: {AuthType: "openai", HTTPS: false},
		},
	}
	h, q := newTestHandler(t, cfg)

	router := chi.NewRouter()
	h.Routes(router)

	req := httptest.NewRequest(http.MethodPost, "/"+host+"/v1/chat/completions", strings.NewReader(`{"model":"gpt-4","messages":[{"role":"user","content":"hey"}]}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "resp-42")

	rec2, ok := q.TryDequeue()
	require.True(t, ok, "expected an interaction to be enqueued")
	assert.Equal(t, "resp-42", rec2.ID)
}

func TestServeFixedEntry_MissingBearerToken_Returns401(t *testing.T) {
	h, _ := newTestHandler(t, config.Config{})
	router := chi.NewRouter()
	h.Routes(router)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServeFixedEntry_RewritesToGeminiForGoogleUpstream(t *testing.T) {
	var gotPath, gotBody string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body := make([]byte, r.ContentLength)
		r.Body.Read(body)
		gotBody = string(body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"hi from gemini"}]}}]}`))
	}))
	defer upstream.Close()

	host := strings.TrimPrefix(upstream.URL, "http://")
	cfg := config.Config{
		AllowedDomains: map[string]config.AllowedDomain{
			host: {AuthType: "google", HTTPS: false},
		},
		FixedEntryUpstream: host,
	}
	h, _ := newTestHandler(t, cfg)
	router := chi.NewRouter()
	h.Routes(router)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{"model":"gemini-1.5-flash","messages":[{"role":"user","content":"hey"}]}`))
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, gotPath, ":generateContent")
	assert.Contains(t, gotBody, `"contents"`)
}
