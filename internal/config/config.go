// Package config handles loading and hot-reloading the proxy's JSON
// configuration file, layered with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	log "github.com/sirupsen/logrus"
)

// AllowedDomain describes one entry in the domain allow-list.
type AllowedDomain struct {
	AuthType string `koanf:"auth_type"`
	HTTPS    bool   `koanf:"https"`
}

// SecurityConfig holds the host/method/rate/body-size policy knobs
// consumed by the middleware chain.
type SecurityConfig struct {
	AllowedHosts       []string `koanf:"allowed_hosts"`
	EnforceHost        bool     `koanf:"enforce_host"`
	AllowedMethods     []string `koanf:"allowed_methods"`
	EnforceJSON        bool     `koanf:"enforce_json"`
	MaxBodySize        int64    `koanf:"max_body_size"`
	Rate               float64  `koanf:"rate"`
	Burst              int      `koanf:"burst"`
	SuspiciousPatterns []string `koanf:"suspicious_patterns"`
}

// ProbeRequestConfig is the block-list consulted by the probe-filter
// middleware (silent 404s, §4.2 step 5).
type ProbeRequestConfig struct {
	PathBlocklist       []string `koanf:"path_blocklist"`
	PathPrefixBlocklist []string `koanf:"path_prefix_blocklist"`
	UserAgentSubstrings []string `koanf:"user_agent_substrings"`
	AllowedMethods      []string `koanf:"allowed_methods"`
	IPBlocklist         []string `koanf:"ip_blocklist"`
}

// ProbeFilterConfig controls which log lines the async logger suppresses.
type ProbeFilterConfig struct {
	Patterns                 []string `koanf:"patterns"`
	IPPatterns               []string `koanf:"ip_patterns"`
	CustomPatterns           []string `koanf:"custom_patterns"`
	CustomIPPatterns         []string `koanf:"custom_ip_patterns"`
	DisableDefaultPatterns   bool     `koanf:"disable_default_patterns"`
	DisableDefaultIPPatterns bool     `koanf:"disable_default_ip_patterns"`
}

// Config is the top-level configuration for the capture-proxy.
type Config struct {
	AllowedDomains     map[string]AllowedDomain `koanf:"allowed_domains"`
	Security           SecurityConfig           `koanf:"security"`
	ProbeRequest       ProbeRequestConfig       `koanf:"probe_request"`
	ProbeFilter        ProbeFilterConfig        `koanf:"probe_filter"`
	FixedEntryUpstream string                   `koanf:"fixed_entry_upstream"`
	StorePath          string                   `koanf:"store_path"`
}

// defaultConfig returns the minimal default allow-list and security
// policy applied when no config file overrides it.
func defaultConfig() Config {
	return Config{
		AllowedDomains: map[string]AllowedDomain{
			"generativelanguage.googleapis.com": {AuthType: "google", HTTPS: true},
			"api.openai.com":                     {AuthType: "openai", HTTPS: true},
		},
		Security: SecurityConfig{
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			EnforceHost:    false,
			EnforceJSON:    true,
			MaxBodySize:    1 << 20, // 1 MiB
			Rate:           5,
			Burst:          20,
		},
		FixedEntryUpstream: "google",
		StorePath:          "interactions.db",
	}
}

// defaultProbePatterns are the scanner/bot message signatures
// original_source's ProbeRequestFilter matched against formatted log
// lines, carried forward unless disabled via
// probe_filter.disable_default_patterns (§6).
var defaultProbePatterns = []string{
	`GET / HTTP`,
	`GET /favicon\.ico`,
	`GET /\.well-known/`,
	`GET /locales/`,
	`UNKNOWN / HTTP`,
	`CensysInspect`,
	`Go-http-client`,
	`BadHttpMessage`,
	`BadStatusLine`,
	`Invalid method encountered`,
}

// defaultProbePathBlocklist/defaultProbePathPrefixBlocklist mirror
// original_source/proxy_dynamic.py's probe_request_middleware exact-
// and prefix-match path checks; always active, unlike the log-level
// probe patterns above which can be disabled.
var defaultProbePathBlocklist = []string{"/", "/favicon.ico"}

var defaultProbePathPrefixBlocklist = []string{"/.well-known/", "/locales/"}

var defaultProbeIPPatterns = []string{
	`193\.34\.212\.110`,
	`185\.191\.127\.222`,
	`162\.142\.125\.124`,
	`194\.62\.248\.69`,
	`209\.38\.219\.203`,
}

// CompiledPatterns holds the pre-compiled regex lists so the hot path
// (every request, every log line) never calls regexp.Compile.
type CompiledPatterns struct {
	Suspicious []*regexp.Regexp
	Probe      []*regexp.Regexp
	ProbeIP    []*regexp.Regexp
}

// Watcher owns a live, hot-reloadable Config. Handlers and middleware
// read the current snapshot via Get(); the background watch loop
// atomically swaps in a freshly parsed Config on every file write.
type Watcher struct {
	path string

	mu      sync.RWMutex
	cfg     Config
	pat     CompiledPatterns
	loaded  atomic.Bool
	watcher *fsnotify.Watcher
}

// Load reads path (JSON), layers LLMPROXY_-prefixed env var overrides
// on top, and starts a file watcher that hot-swaps the config on every
// write. A missing path is not an error: defaults apply.
func Load(path string) (*Watcher, error) {
	_ = godotenv.Load()

	w := &Watcher{path: path}
	if err := w.reload(); err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		// A missing watcher is not fatal: the process still runs with
		// the config loaded at startup, it simply never hot-reloads.
		log.Warnf("config: fsnotify unavailable, hot-reload disabled: %v", err)
		return w, nil
	}
	if err := fw.Add(path); err != nil {
		log.Warnf("config: watching %s failed, hot-reload disabled: %v", path, err)
		return w, nil
	}
	w.watcher = fw
	go w.watchLoop()

	return w, nil
}

func (w *Watcher) watchLoop() {
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := w.reload(); err != nil {
				log.Errorf("config: reload of %s failed, keeping previous config: %v", w.path, err)
			} else {
				log.Infof("config: reloaded %s", w.path)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warnf("config: watcher error: %v", err)
		}
	}
}

func (w *Watcher) reload() error {
	cfg := defaultConfig()

	if _, err := os.Stat(w.path); err == nil {
		k := koanf.New(".")
		if err := k.Load(file.Provider(w.path), json.Parser()); err != nil {
			return fmt.Errorf("loading config file: %w", err)
		}
		if err := k.Load(env.Provider("LLMPROXY_", ".", func(s string) string {
			return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "LLMPROXY_")), "_", ".")
		}), nil); err != nil {
			return fmt.Errorf("loading env vars: %w", err)
		}
		if err := k.Unmarshal("", &cfg); err != nil {
			return fmt.Errorf("unmarshaling config: %w", err)
		}
	}

	cfg.ProbeRequest.PathBlocklist = append(append([]string{}, defaultProbePathBlocklist...), cfg.ProbeRequest.PathBlocklist...)
	cfg.ProbeRequest.PathPrefixBlocklist = append(append([]string{}, defaultProbePathPrefixBlocklist...), cfg.ProbeRequest.PathPrefixBlocklist...)
	cfg.ProbeRequest.IPBlocklist = append(append([]string{}, defaultProbeIPPatterns...), cfg.ProbeRequest.IPBlocklist...)

	probePatterns := append([]string{}, cfg.ProbeFilter.CustomPatterns...)
	if !cfg.ProbeFilter.DisableDefaultPatterns {
		probePatterns = append(probePatterns, defaultProbePatterns...)
	}
	probePatterns = append(probePatterns, cfg.ProbeFilter.Patterns...)

	probeIPPatterns := append([]string{}, cfg.ProbeFilter.CustomIPPatterns...)
	if !cfg.ProbeFilter.DisableDefaultIPPatterns {
		probeIPPatterns = append(probeIPPatterns, defaultProbeIPPatterns...)
	}
	probeIPPatterns = append(probeIPPatterns, cfg.ProbeFilter.IPPatterns...)

	pat := CompiledPatterns{
		Suspicious: compileAll(cfg.Security.SuspiciousPatterns),
		Probe:      compileAll(probePatterns),
		ProbeIP:    compileAll(probeIPPatterns),
	}

	w.mu.Lock()
	w.cfg = cfg
	w.pat = pat
	w.mu.Unlock()
	w.loaded.Store(true)
	return nil
}

func compileAll(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			log.Warnf("config: skipping invalid pattern %q: %v", p, err)
			continue
		}
		out = append(out, re)
	}
	return out
}

// Get returns the current configuration snapshot. Safe for concurrent
// use; callers must not mutate the returned value.
func (w *Watcher) Get() Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cfg
}

// Patterns returns the current compiled regex snapshot.
func (w *Watcher) Patterns() CompiledPatterns {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.pat
}

// Close stops the underlying file watcher, if any.
func (w *Watcher) Close() error {
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}
