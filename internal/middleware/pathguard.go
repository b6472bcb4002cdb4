package middleware

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/llmproxy/capture-proxy/internal/apierror"
	"github.com/llmproxy/capture-proxy/internal/config"
)

// hostPortTail catches a path ending in a `host:port`-like fragment,
// e.g. a scanner probing `/proxy/10.0.0.1:8080` (§4.2 step 2).
var hostPortTail = regexp.MustCompile(`:\d{2,5}$`)

// defaultBlockedPathPrefixes are scanner/admin paths blocked even with
// no suspicious_patterns configured.
var defaultBlockedPathPrefixes = []string{
	"/admin", "/login", "/.git", "/.env", "/wp-admin", "/wp-login",
}

// PathGuard is step 2 of §4.2: a regex block-list for scanner paths,
// a multiple-slash check (400 with a hint), and a host:port-tail /
// admin-login block-list (404).
func PathGuard(patterns func() config.CompiledPatterns) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path

			if strings.Contains(path, "//") {
				apierror.Write(w, http.StatusBadRequest, "path contains a repeated slash; check for a malformed or double-encoded URL")
				return
			}

			if hostPortTail.MatchString(path) {
				http.NotFound(w, r)
				return
			}

			for _, prefix := range defaultBlockedPathPrefixes {
				if strings.HasPrefix(strings.ToLower(path), prefix) {
					http.NotFound(w, r)
					return
				}
			}

			for _, re := range patterns().Suspicious {
				if re.MatchString(path) {
					http.NotFound(w, r)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}
