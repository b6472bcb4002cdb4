// Package proxy implements the dynamic/fixed-entry dispatch, retrying
// upstream client, and tee-streaming SSE pass-through (§4.1).
package proxy

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/llmproxy/capture-proxy/internal/config"
	"github.com/llmproxy/capture-proxy/internal/vendor"
)

// ErrDomainNotAllowed is returned when the requested domain is not a
// key in the allow-list map (§6 "403 domain not allow-listed").
var ErrDomainNotAllowed = errors.New("domain not allow-listed")

// Target is the resolved upstream of one request: where to send it and
// which dialect it speaks.
type Target struct {
	URL      string
	AuthType vendor.AuthType
	Domain   string
}

// Dispatcher resolves a request's domain/path into a Target (§4.1
// "Dispatch", "Auth-type selection").
type Dispatcher struct {
	cfg func() config.Config
}

// NewDispatcher builds a Dispatcher that always consults the latest
// config snapshot via cfg (typically config.Watcher.Get).
func NewDispatcher(cfg func() config.Config) *Dispatcher {
	return &Dispatcher{cfg: cfg}
}

// ResolveDynamic handles `/{domain}/{path...}`: domain must be
// allow-listed; the target is `scheme://{domain}{path}?{query}` with
// scheme chosen per the domain's configured https flag.
func (d *Dispatcher) ResolveDynamic(domain, path, rawQuery string) (Target, error) {
	c := d.cfg()
	entry, ok := c.AllowedDomains[domain]
	if !ok {
		return Target{}, fmt.Errorf("%w: %s", ErrDomainNotAllowed, domain)
	}

	scheme := "http"
	if entry.HTTPS {
		scheme = "https"
	}

	u := url.URL{Scheme: scheme, Host: domain, Path: path, RawQuery: rawQuery}
	authType := vendor.ResolveAuthType(entry.AuthType, path)

	return Target{URL: u.String(), AuthType: authType, Domain: domain}, nil
}

// ResolveFixedEntry handles the fixed OpenAI-style entry points
// (`/v1/chat/completions`, `/v1/completions`, `/v1/embeddings`), which
// default to the configured `fixed_entry_upstream` domain (§4.1, Open
// Question decision 1). model is the request body's `model` field,
// used to build Gemini's `:generateContent` path when the resolved
// upstream speaks Google.
func (d *Dispatcher) ResolveFixedEntry(path, model string) (Target, error) {
	c := d.cfg()
	domain := c.FixedEntryUpstream
	resolvedDomain := domainForUpstream(domain)
	entry, ok := c.AllowedDomains[resolvedDomain]
	if !ok {
		return Target{}, fmt.Errorf("%w: fixed_entry_upstream %q not in allowed_domains", ErrDomainNotAllowed, domain)
	}

	scheme := "http"
	if entry.HTTPS {
		scheme = "https"
	}

	authType := vendor.ResolveAuthType(entry.AuthType, path)

	u := url.URL{Scheme: scheme, Host: resolvedDomain, Path: geminiGenerateContentPath(authType, path, model)}
	return Target{URL: u.String(), AuthType: authType, Domain: resolvedDomain}, nil
}

// domainForUpstream maps the short upstream names used by
// fixed_entry_upstream ("google", "openai") to their allow-list keys;
// an already-qualified hostname passes through unchanged.
func domainForUpstream(name string) string {
	switch name {
	case "google":
		return "generativelanguage.googleapis.com"
	case "openai":
		return "api.openai.com"
	default:
		return name
	}
}

// geminiGenerateContentPath rewrites the OpenAI-shaped fixed-entry path
// to Gemini's generateContent path when the resolved upstream is
// Google; other dialects keep the original OpenAI-style path verbatim.
func geminiGenerateContentPath(authType vendor.AuthType, originalPath, model string) string {
	if authType != vendor.AuthGoogle {
		return originalPath
	}
	if model == "" {
		model = "gemini-pro"
	}
	return fmt.Sprintf("/v1beta/models/%s:generateContent", model)
}
