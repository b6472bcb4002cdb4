package proxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmproxy/capture-proxy/internal/config"
	"github.com/llmproxy/capture-proxy/internal/vendor"
)

func testConfig() config.Config {
	return config.Config{
		AllowedDomains: map[string]config.AllowedDomain{
			"api.openai.com":                     {AuthType: "openai", HTTPS: true},
			"generativelanguage.googleapis.com": {AuthType: "google", HTTPS: true},
			"internal.example.com":               {HTTPS: false},
		},
		FixedEntryUpstream: "google",
	}
}

func TestResolveDynamic_AllowedDomain(t *testing.T) {
	d := NewDispatcher(func() config.Config { return testConfig() })

	target, err := d.ResolveDynamic("api.openai.com", "/v1/chat/completions", "foo=bar")
	require.NoError(t, err)
	assert.Equal(t, "https://api.openai.com/v1/chat/completions?foo=bar", target.URL)
	assert.Equal(t, vendor.AuthOpenAI, target.AuthType)
}

func TestResolveDynamic_UnknownDomainRejected(t *testing.T) {
	d := NewDispatcher(func() config.Config { return testConfig() })
	_, err := d.ResolveDynamic("evil.example.com", "/x", "")
	require.ErrorIs(t, err, ErrDomainNotAllowed)
}

func TestResolveDynamic_HTTPWhenNotHTTPS(t *testing.T) {
	d := NewDispatcher(func() config.Config { return testConfig() })
	target, err := d.ResolveDynamic("internal.example.com", "/x", "")
	require.NoError(t, err)
	assert.Equal(t, "http://internal.example.com/x", target.URL)
}

func TestResolveFixedEntry_DefaultsToGoogleWithModelPath(t *testing.T) {
	d := NewDispatcher(func() config.Config { return testConfig() })
	target, err := d.ResolveFixedEntry("/v1/chat/completions", "gemini-1.5-flash")
	require.NoError(t, err)
	assert.Equal(t, vendor.AuthGoogle, target.AuthType)
	assert.Equal(t, "https://generativelanguage.googleapis.com/v1beta/models/gemini-1.5-flash:generateContent", target.URL)
}

func TestResolveFixedEntry_OpenAIUpstreamKeepsOriginalPath(t *testing.T) {
	cfg := testConfig()
	cfg.FixedEntryUpstream = "openai"
	d := NewDispatcher(func() config.Config { return cfg })

	target, err := d.ResolveFixedEntry("/v1/chat/completions", "gpt-4")
	require.NoError(t, err)
	assert.Equal(t, vendor.AuthOpenAI, target.AuthType)
	assert.Equal(t, "https://api.openai.com/v1/chat/completions", target.URL)
}
