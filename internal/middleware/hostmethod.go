package middleware

import (
	"net/http"
	"strings"

	"github.com/llmproxy/capture-proxy/internal/apierror"
	"github.com/llmproxy/capture-proxy/internal/config"
)

var defaultAllowedMethods = []string{"GET", "POST", "OPTIONS"}

// HostMethodGuard is step 1 of §4.2: an optional Host allow-list, a
// method allow-list defaulting to GET/POST/OPTIONS, and — on POST —
// an optional Content-Type: application/json requirement.
func HostMethodGuard(cfg func() config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sec := cfg().Security

			if sec.EnforceHost && len(sec.AllowedHosts) > 0 && !hostAllowed(r.Host, sec.AllowedHosts) {
				apierror.Write(w, http.StatusForbidden, "host not allowed")
				return
			}

			methods := sec.AllowedMethods
			if len(methods) == 0 {
				methods = defaultAllowedMethods
			}
			if !methodAllowed(r.Method, methods) {
				apierror.Write(w, http.StatusMethodNotAllowed, "method not allowed")
				return
			}

			if sec.EnforceJSON && r.Method == http.MethodPost {
				ct := r.Header.Get("Content-Type")
				if !strings.HasPrefix(ct, "application/json") {
					apierror.Write(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func hostAllowed(host string, allowed []string) bool {
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	for _, a := range allowed {
		if strings.EqualFold(a, host) {
			return true
		}
	}
	return false
}

func methodAllowed(method string, allowed []string) bool {
	for _, a := range allowed {
		if strings.EqualFold(a, method) {
			return true
		}
	}
	return false
}
