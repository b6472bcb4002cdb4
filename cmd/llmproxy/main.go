// Package main is the entry point for the capture-proxy gateway.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/llmproxy/capture-proxy/internal/app"
)

// shutdownGrace bounds how long Shutdown waits for in-flight requests
// and the batch writer to drain before giving up.
const shutdownGrace = 30 * time.Second

func main() {
	configPath := flag.String("config", "config.json", "path to the JSON configuration file")
	port := flag.Int("port", 8080, "HTTP listen port")
	logLevel := flag.String("log-level", "info", "logrus level: debug, info, warn, error")
	flag.Parse()

	a, err := app.New(app.Options{
		ConfigPath: *configPath,
		Port:       *port,
		LogLevel:   *logLevel,
	})
	if err != nil {
		log.Fatalf("failed to initialize capture-proxy: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- a.Run()
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			log.Fatalf("capture-proxy exited: %v", err)
		}
	case <-ctx.Done():
		stop()
		log.Println("shutting down, draining in-flight requests and pending writes")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()

		if err := a.Shutdown(shutdownCtx); err != nil {
			log.Fatalf("shutdown did not complete cleanly: %v", err)
		}
	}
}
