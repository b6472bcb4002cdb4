// Package apierror writes the single-field JSON error envelope used
// across the proxy's HTTP surface (§6 "Error bodies are application/json
// with a single error field").
package apierror

import (
	"encoding/json"
	"net/http"
)

// Response is the wire shape of every error body.
type Response struct {
	Error string `json:"error"`
}

// Write sets Content-Type, the status code, and encodes message as the
// error body — the same two-step "set header, then encode" used in
// every handler error branch, pulled into one helper so the shape
// can't drift between call sites.
func Write(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{Error: message})
}
