package proxy

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/llmproxy/capture-proxy/internal/apierror"
	"github.com/llmproxy/capture-proxy/internal/asynclog"
	"github.com/llmproxy/capture-proxy/internal/normalizer"
	"github.com/llmproxy/capture-proxy/internal/queue"
	"github.com/llmproxy/capture-proxy/internal/store"
	"github.com/llmproxy/capture-proxy/internal/vendor"
	"github.com/llmproxy/capture-proxy/internal/vendor/google"
)

// Handler wires the dispatcher, forwarder, normalizer and persistence
// queue into the HTTP surface described in §4.1/§4.2: the health
// check, the dynamic `/{domain}/{path...}` route, and the fixed
// OpenAI-style entry points.
type Handler struct {
	Dispatcher *Dispatcher
	Forwarder  *Forwarder
	Queue      *queue.Queue
	Log        *asynclog.Logger
}

// NewHandler builds a Handler from its collaborators.
func NewHandler(d *Dispatcher, f *Forwarder, q *queue.Queue, log *asynclog.Logger) *Handler {
	return &Handler{Dispatcher: d, Forwarder: f, Queue: q, Log: log}
}

// Routes mounts the health check, dynamic proxy and fixed entry points
// on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/health", h.ServeHealth)
	r.Handle("/{domain}/*", http.HandlerFunc(h.ServeDynamic))
	r.Post("/v1/chat/completions", h.ServeFixedEntry)
	r.Post("/v1/completions", h.ServeFixedEntry)
	r.Post("/v1/embeddings", h.ServeFixedEntry)
}

// ServeHealth answers `GET /health` (§4.2 "Health check").
func (h *Handler) ServeHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"status":    "healthy",
		"service":   "dynamic-proxy",
		"timestamp": time.Now().Unix(),
	})
}

// ServeDynamic handles `/{domain}/{path...}`: the domain must be
// allow-listed, the body size must be within budget, and the request
// is then forwarded and the response captured (§4.1).
func (h *Handler) ServeDynamic(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")
	path := "/" + chi.URLParam(r, "*")

	target, err := h.Dispatcher.ResolveDynamic(domain, path, r.URL.RawQuery)
	if err != nil {
		if errors.Is(err, ErrDomainNotAllowed) {
			apierror.Write(w, http.StatusForbidden, "domain not allowed")
			return
		}
		apierror.Write(w, http.StatusBadGateway, "dispatch failed")
		return
	}

	body, err := readBody(r)
	if err != nil {
		apierror.Write(w, http.StatusBadRequest, "reading request body")
		return
	}

	if err := CheckBodySize(target.AuthType, body); err != nil {
		apierror.Write(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}

	h.forwardAndCapture(w, r, target, body, body, target.AuthType, kindDynamic)
}

// ServeFixedEntry handles the fixed OpenAI-style entry points. A
// bearer token is required (§4.1 "Fixed entry requires Authorization");
// its absence is a client error, not silently forwarded. The body the
// client sends is always OpenAI-shaped; when the configured
// fixed-entry upstream speaks Google, the outgoing body is rewritten
// to Gemini's generateContent shape while the original OpenAI-shaped
// body is what gets archived (§4.1, Open Question decision 1).
func (h *Handler) ServeFixedEntry(w http.ResponseWriter, r *http.Request) {
	if !hasBearerToken(r) {
		apierror.Write(w, http.StatusUnauthorized, "missing bearer token")
		return
	}

	originalBody, err := readBody(r)
	if err != nil {
		apierror.Write(w, http.StatusBadRequest, "reading request body")
		return
	}

	if err := CheckBodySize(vendor.AuthOpenAI, originalBody); err != nil {
		apierror.Write(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}

	model := gjson.GetBytes(originalBody, "model").String()

	target, err := h.Dispatcher.ResolveFixedEntry(r.URL.Path, model)
	if err != nil {
		apierror.Write(w, http.StatusBadGateway, "resolving fixed entry upstream")
		return
	}

	upstreamBody := originalBody
	if target.AuthType == vendor.AuthGoogle {
		rewritten, err := google.RewriteOpenAIToGemini(originalBody)
		if err != nil {
			apierror.Write(w, http.StatusBadRequest, "rewriting request for upstream")
			return
		}
		upstreamBody = rewritten
	}

	h.forwardAndCapture(w, r, target, upstreamBody, originalBody, vendor.AuthOpenAI, kindFixedEntry)
}

// forwardAndCapture forwards upstreamBody, then — off the hot path's
// response-writing concern — normalizes archiveBody (the request as
// the client actually sent it, which may differ from upstreamBody
// after a fixed-entry rewrite) against the captured response text and
// enqueues the result for persistence (§4.3, §4.6). Persistence
// failures never change the client-visible response: the client has
// already received its bytes by the time normalization runs.
func (h *Handler) forwardAndCapture(w http.ResponseWriter, r *http.Request, target Target, upstreamBody, archiveBody []byte, archiveAuthType vendor.AuthType, kind clientKind) {
	result, err := h.Forwarder.Forward(r.Context(), w, r, target, upstreamBody, kind)
	if err != nil {
		if h.Log != nil {
			h.Log.Warn("forwarding request failed", logrus.Fields{"error": err.Error()})
		}
		// Headers/status may already be partially written by Forward;
		// nothing more can be safely sent to the client at this point.
		return
	}

	if result.StatusCode >= 400 {
		return
	}

	conv, err := normalizer.Normalize(archiveAuthType, archiveBody, result.Accumulator.VisibleText)
	if err != nil {
		if h.Log != nil {
			h.Log.Warn("normalizing conversation", logrus.Fields{"error": err.Error()})
		}
		return
	}

	encoded, err := json.Marshal(conv)
	if err != nil {
		if h.Log != nil {
			h.Log.Warn("encoding conversation", logrus.Fields{"error": err.Error()})
		}
		return
	}

	id := result.Accumulator.ResponseID
	if id == "" {
		id = uuid.NewString()
	}

	rec := store.Interaction{
		ID:           id,
		Model:        gjson.GetBytes(archiveBody, "model").String(),
		Conversation: string(encoded),
	}

	if !h.Queue.Enqueue(rec) && h.Log != nil {
		h.Log.Warn("persistence queue full, dropping interaction", logrus.Fields{"id": id})
	}
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}

func hasBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return len(auth) > len("Bearer ") && auth[:len("Bearer ")] == "Bearer "
}
