// Package app wires the capture-proxy's components together: config,
// store, persistence queue, async logger, dispatcher, forwarder and
// the chi router with its middleware chain, and owns the startup and
// graceful-shutdown sequence (§5 "Concurrency & resource model").
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/llmproxy/capture-proxy/internal/asynclog"
	"github.com/llmproxy/capture-proxy/internal/config"
	"github.com/llmproxy/capture-proxy/internal/middleware"
	"github.com/llmproxy/capture-proxy/internal/proxy"
	"github.com/llmproxy/capture-proxy/internal/queue"
	"github.com/llmproxy/capture-proxy/internal/store"
)

// rateLimiterSweepInterval is how often IPRateLimiter reclaims idle
// per-IP buckets.
const rateLimiterSweepInterval = 2 * time.Minute

// logQueueDepth bounds how many pending log lines the async logger
// will buffer before Info/Warn/Error starts blocking the caller.
const logQueueDepth = 4096

// App owns every long-lived collaborator the proxy needs and exposes
// Run/Shutdown around a single *http.Server, keeping startup and
// shutdown out of func main.
type App struct {
	cfg     *config.Watcher
	st      *store.Store
	q       *queue.Queue
	writer  *queue.BatchWriter
	log     *asynclog.Logger
	limiter *middleware.IPRateLimiter
	server  *http.Server

	sweepStop chan struct{}
}

// Options configures New.
type Options struct {
	ConfigPath string
	Port       int
	LogLevel   string
}

// New loads configuration, opens the store, starts the batch writer
// and async logger, and builds the HTTP server — but does not start
// listening; call Run for that.
func New(opts Options) (*App, error) {
	cfgWatcher, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	cfg := cfgWatcher.Get()

	out := logrus.New()
	if level, err := logrus.ParseLevel(opts.LogLevel); err == nil {
		out.SetLevel(level)
	}
	out.SetFormatter(&asynclog.ProbeFilterFormatter{
		Delegate: &logrus.JSONFormatter{},
		Patterns: cfgWatcher.Patterns,
	})
	asyncLog := asynclog.New(out, logQueueDepth)

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		asyncLog.Close()
		return nil, fmt.Errorf("opening store: %w", err)
	}

	q := queue.New(func(rec store.Interaction) {
		asyncLog.Warn("persistence queue full, dropping interaction", logrus.Fields{"id": rec.ID})
	})
	writer := queue.NewBatchWriter(q, st, func(rec store.Interaction, err error) {
		asyncLog.Error("inserting interaction failed", logrus.Fields{"id": rec.ID, "error": err.Error()})
	})

	dispatcher := proxy.NewDispatcher(cfgWatcher.Get)
	forwarder := proxy.NewForwarder(asyncLog)
	handler := proxy.NewHandler(dispatcher, forwarder, q, asyncLog)
	limiter := middleware.NewIPRateLimiter(cfgWatcher.Get)

	router := chi.NewRouter()
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.HostMethodGuard(cfgWatcher.Get))
	router.Use(middleware.PathGuard(cfgWatcher.Patterns))
	router.Use(limiter.Middleware)
	router.Use(middleware.BodySizeGuard(cfgWatcher.Get))
	router.Use(middleware.ProbeFilter(cfgWatcher.Get))
	router.Use(middleware.SecurityHeaders)
	handler.Routes(router)

	port := opts.Port
	if port == 0 {
		port = 8080
	}

	return &App{
		cfg:     cfgWatcher,
		st:      st,
		q:       q,
		writer:  writer,
		log:     asyncLog,
		limiter: limiter,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: router,
		},
		sweepStop: make(chan struct{}),
	}, nil
}

// Run starts the sweeper and the HTTP server, blocking until the
// server stops (ListenAndServe's usual contract — returns
// http.ErrServerClosed on a clean Shutdown).
func (a *App) Run() error {
	a.limiter.StartSweeper(rateLimiterSweepInterval, a.sweepStop)

	a.log.Info("capture-proxy listening", logrus.Fields{"addr": a.server.Addr})
	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serving: %w", err)
	}
	return nil
}

// Shutdown stops accepting new connections, drains in-flight requests
// (bounded by ctx), drains the persistence queue's batch writer, flushes
// the async logger, and closes the store and config watcher — in that
// order, so nothing downstream is closed while something upstream might
// still write to it (§5 "Graceful shutdown cancels the batch-writer
// task; it must observe the cancellation and exit only after
// draining").
func (a *App) Shutdown(ctx context.Context) error {
	close(a.sweepStop)

	if err := a.server.Shutdown(ctx); err != nil {
		a.log.Warn("HTTP server shutdown did not complete cleanly", logrus.Fields{"error": err.Error()})
	}

	if err := a.writer.Shutdown(ctx); err != nil {
		a.log.Warn("batch writer shutdown did not complete cleanly", logrus.Fields{"error": err.Error()})
	}

	a.log.Close()

	if err := a.st.Close(); err != nil {
		return fmt.Errorf("closing store: %w", err)
	}
	return a.cfg.Close()
}
