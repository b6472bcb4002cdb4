package proxy

import (
	"context"
	"net/http"
	"time"
)

const (
	maxAttempts     = 3
	initialBackoff  = 1 * time.Second
	backoffMultiple = 2
)

// doWithRetry retries req up to maxAttempts total on transient
// transport-level failures only (connect/time-out/reset), with
// exponential back-off starting at one second (§4.1 "Retry"). Non-nil
// HTTP responses — including 4xx/5xx status codes — are returned
// immediately without retrying: those are forwarded verbatim by the
// caller (Open Question decision 4).
func doWithRetry(ctx context.Context, client *http.Client, newRequest func() (*http.Request, error)) (*http.Response, error) {
	var lastErr error
	backoff := initialBackoff

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := newRequest()
		if err != nil {
			return nil, err
		}

		resp, err := client.Do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= backoffMultiple
	}

	return nil, lastErr
}
