package middleware

import (
	"net/http"
	"strings"

	"github.com/llmproxy/capture-proxy/internal/config"
)

var defaultProbeAllowedMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"}

// ProbeFilter is step 5 of §4.2, grounded on
// original_source/proxy_dynamic.py's probe_request_middleware: any one
// of a path/UA/method/IP match silently returns 404 with no log line,
// rather than a descriptive error — scanners get nothing to fingerprint
// the proxy with.
func ProbeFilter(cfg func() config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isProbe(r, cfg().ProbeRequest) {
				http.NotFound(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isProbe(r *http.Request, cfg config.ProbeRequestConfig) bool {
	path := r.URL.Path
	for _, blocked := range cfg.PathBlocklist {
		if path == blocked {
			return true
		}
	}
	for _, prefix := range cfg.PathPrefixBlocklist {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}

	ua := r.Header.Get("User-Agent")
	for _, sub := range cfg.UserAgentSubstrings {
		if sub != "" && strings.Contains(ua, sub) {
			return true
		}
	}

	methods := cfg.AllowedMethods
	if len(methods) == 0 {
		methods = defaultProbeAllowedMethods
	}
	if !methodAllowed(r.Method, methods) {
		return true
	}

	ip := clientIP(r)
	for _, blocked := range cfg.IPBlocklist {
		// The default entries are regex-escaped ("193\.34..."); compare
		// against their literal form as well.
		if ip == blocked || ip == strings.ReplaceAll(blocked, `\.`, ".") {
			return true
		}
	}

	return false
}
