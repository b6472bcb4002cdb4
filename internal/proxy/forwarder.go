package proxy

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/llmproxy/capture-proxy/internal/asynclog"
	"github.com/llmproxy/capture-proxy/internal/vendor"
)

// hopByHopHeaders are stripped before forwarding either direction, per
// RFC 7230 §6.1, before re-issuing a request or writing a response
// back to the client.
var hopByHopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"Te", "Trailer", "Transfer-Encoding", "Upgrade",
}

// Forwarder owns the shared upstream HTTP clients and implements the
// request/response proxying: header forwarding, retry-with-backoff on
// transport errors, and the tee-streaming pass-through that writes
// upstream bytes to the client verbatim while a duplicate copy feeds
// the vendor incremental parser (§4.1 "Forwarding", §4.4).
type Forwarder struct {
	DynamicClient    *http.Client
	FixedEntryClient *http.Client
	Log              *asynclog.Logger
}

// NewForwarder builds a Forwarder with the standard dynamic and
// fixed-entry clients (§5).
func NewForwarder(log *asynclog.Logger) *Forwarder {
	return &Forwarder{
		DynamicClient:    NewDynamicClient(),
		FixedEntryClient: NewFixedEntryClient(),
		Log:              log,
	}
}

// Result is what a completed Forward hands back to the caller so it
// can be normalized and queued for persistence. The raw response bytes
// are not kept; the Accumulator carries the assembled text for both
// streaming and non-streaming responses.
type Result struct {
	Accumulator *vendor.Accumulator
	StatusCode  int
	Streamed    bool
}

// clientKind distinguishes which client/timeout budget a request uses.
type clientKind int

const (
	kindDynamic clientKind = iota
	kindFixedEntry
)

func (f *Forwarder) clientFor(kind clientKind) *http.Client {
	if kind == kindFixedEntry {
		return f.FixedEntryClient
	}
	return f.DynamicClient
}

// Forward issues the upstream request described by target, streams or
// buffers the response back to w exactly as received, and returns an
// Accumulator holding the assembled conversation text for persistence.
func (f *Forwarder) Forward(ctx context.Context, w http.ResponseWriter, inbound *http.Request, target Target, requestBody []byte, kind clientKind) (*Result, error) {
	client := f.clientFor(kind)

	newRequest := func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, inbound.Method, target.URL, bytes.NewReader(requestBody))
		if err != nil {
			return nil, err
		}
		copyForwardHeaders(inbound.Header, req.Header)
		if req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", "application/json")
		}
		return req, nil
	}

	resp, err := doWithRetry(ctx, client, newRequest)
	if err != nil {
		return nil, fmt.Errorf("forwarding to %s: %w", target.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && f.Log != nil {
		f.Log.Warn("upstream returned error status", logrus.Fields{
			"status": resp.StatusCode,
			"target": target.URL,
		})
	}

	streaming := wantsStream(requestBody, target) || strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream")

	copyResponseHeaders(resp.Header, w.Header())
	w.WriteHeader(resp.StatusCode)

	acc := &vendor.Accumulator{}

	if !streaming {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, fmt.Errorf("reading upstream body: %w", readErr)
		}
		if _, writeErr := w.Write(body); writeErr != nil && !isClientDisconnect(writeErr) {
			return nil, fmt.Errorf("writing response to client: %w", writeErr)
		}
		if resp.StatusCode < 400 {
			if err := parseFinal(target.AuthType, body, acc); err != nil && f.Log != nil {
				f.Log.Warn("parsing final response body", logrus.Fields{"error": err.Error()})
			}
		}
		return &Result{Accumulator: acc, StatusCode: resp.StatusCode, Streamed: false}, nil
	}

	f.teeStream(resp.Body, w, target.AuthType, acc)

	if resp.StatusCode < 400 {
		if err := finalizeStream(target.AuthType, acc); err != nil && f.Log != nil {
			f.Log.Warn("finalizing stream", logrus.Fields{"error": err.Error()})
		}
	}

	return &Result{Accumulator: acc, StatusCode: resp.StatusCode, Streamed: true}, nil
}

// teeStream copies raw upstream bytes to the client as they arrive,
// flushing after every chunk, while a second copy is scanned line by
// line and fed to the vendor's incremental parser. A write failure to
// the client (broken pipe, closed connection, context cancellation)
// stops further writes but never stops the parse side — the upstream
// body is drained to completion so the conversation is still captured
// even after the client walks away (§4.1/§5/§7 "Client disconnect").
func (f *Forwarder) teeStream(body io.Reader, w http.ResponseWriter, authType vendor.AuthType, acc *vendor.Accumulator) {
	flusher, _ := w.(http.Flusher)

	pr, pw := io.Pipe()
	parseDone := make(chan struct{})
	go func() {
		defer close(parseDone)
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 64*1024), 1<<20)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			if err := parseIncremental(authType, line, acc); err != nil && f.Log != nil {
				f.Log.Debug("parsing incremental stream line", logrus.Fields{"error": err.Error()})
			}
		}
		// Drain unconditionally; the scanner error (if any) just means
		// the last partial line is dropped, which never carries a full
		// event anyway.
		io.Copy(io.Discard, pr)
	}()

	clientOK := true
	buf := make([]byte, 32*1024)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if clientOK {
				if _, writeErr := w.Write(chunk); writeErr != nil || isClientDisconnect(writeErr) {
					clientOK = false
					if f.Log != nil {
						f.Log.Debug("client disconnected mid-stream, continuing to parse", nil)
					}
				} else if flusher != nil {
					flusher.Flush()
				}
			}
			pw.Write(chunk) //nolint:errcheck // io.Pipe write error only occurs after pr.Close, which we control
		}
		if readErr != nil {
			break
		}
	}
	pw.Close()
	<-parseDone
}

// wantsStream reports whether the request itself signals a streaming
// response: an OpenAI/Anthropic-style `"stream": true` body field, or
// a Google `streamGenerateContent` path (§4.1 "Stream decision").
func wantsStream(requestBody []byte, target Target) bool {
	if gjson.GetBytes(requestBody, "stream").Bool() {
		return true
	}
	return strings.Contains(target.URL, "streamGenerateContent")
}

// copyForwardHeaders carries the client's Authorization and any x-*
// headers through verbatim, dropping hop-by-hop headers (§4.1 "Header
// forwarding").
func copyForwardHeaders(src http.Header, dst http.Header) {
	for key, values := range src {
		if isHopByHop(key) {
			continue
		}
		if !strings.EqualFold(key, "Authorization") && !strings.HasPrefix(strings.ToLower(key), "x-") && !strings.EqualFold(key, "Content-Type") {
			continue
		}
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}

// copyResponseHeaders mirrors upstream response headers onto the
// client response, dropping hop-by-hop headers.
func copyResponseHeaders(src http.Header, dst http.Header) {
	for key, values := range src {
		if isHopByHop(key) {
			continue
		}
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}

func isHopByHop(key string) bool {
	for _, h := range hopByHopHeaders {
		if strings.EqualFold(key, h) {
			return true
		}
	}
	return false
}

// isClientDisconnect reports whether err represents the client going
// away mid-response rather than a real forwarding failure.
func isClientDisconnect(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.EPIPE) || errors.Is(err, net.ErrClosed) || errors.Is(err, context.Canceled) {
		return true
	}
	return strings.Contains(err.Error(), "broken pipe") || strings.Contains(err.Error(), "connection reset by peer")
}
