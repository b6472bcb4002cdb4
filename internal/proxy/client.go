package proxy

import (
	"net"
	"net/http"
	"time"
)

// Timeout and pool settings from §5 "Concurrency & resource model".
const (
	dynamicTotalTimeout = 900 * time.Second
	dynamicDialTimeout  = 60 * time.Second
	fixedEntryTimeout   = 120 * time.Second
	keepAlive           = 30 * time.Second
	maxIdleConns        = 100
	maxIdleConnsPerHost = 30
	dnsCacheTTL         = 300 * time.Second
)

// NewDynamicClient builds the single shared upstream HTTP client used
// for `/{domain}/{path...}` requests: 900s total, 60s connect, 30s
// keep-alive, a 100/30-per-host connection pool (§5). One client is
// constructed once at startup and reused for every request — the
// "resource pools" contract in §5.
func NewDynamicClient() *http.Client {
	return &http.Client{
		Timeout:   dynamicTotalTimeout,
		Transport: newTransport(dynamicDialTimeout),
	}
}

// NewFixedEntryClient builds the tighter-timeout client used for the
// fixed OpenAI-style entry points (§5 "The fixed OpenAI-style entry
// uses a tighter 120 s total").
func NewFixedEntryClient() *http.Client {
	return &http.Client{
		Timeout:   fixedEntryTimeout,
		Transport: newTransport(dynamicDialTimeout),
	}
}

func newTransport(dialTimeout time.Duration) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   dialTimeout,
		KeepAlive: keepAlive,
		Resolver:  net.DefaultResolver,
	}
	return &http.Transport{
		DialContext:         dialer.DialContext,
		MaxIdleConns:        maxIdleConns,
		MaxIdleConnsPerHost: maxIdleConnsPerHost,
		// net/http has no direct DNS TTL knob; bounding idle connection
		// lifetime to the same duration keeps a pooled connection from
		// outliving how long we'd trust its resolved address (§5 "DNS
		// cache 300s").
		IdleConnTimeout: dnsCacheTTL,
	}
}
