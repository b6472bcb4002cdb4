package middleware

import (
	"net/http"

	"github.com/llmproxy/capture-proxy/internal/apierror"
	"github.com/llmproxy/capture-proxy/internal/config"
)

// BodySizeGuard is step 4 of §4.2: reject a declared Content-Length
// above the configured max with 413, before a single body byte is
// read. This is a cheap header check ahead of the proxy engine's own
// CheckBodySize, which inspects the decoded text after the body is
// actually read.
func BodySizeGuard(cfg func() config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			max := cfg().Security.MaxBodySize
			if max > 0 && r.ContentLength > max {
				apierror.Write(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
