package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"loadsentry/pkg/config"
	"loadsentry/pkg/detector"
	"loadsentry/pkg/events"
	"loadsentry/pkg/logger"
	"loadsentry/pkg/notification"
	"loadsentry/pkg/store/state"

	"github.com/tidwall/pretty"
)

func main() {
	mode := flag.String("mode", "serve", "serve, detect, status or detected")
	load := flag.Int("load", 0, "current offered load (detect mode)")
	metricFile := flag.String("metrics", "", "metric history CSV (detect mode)")
	resultFile := flag.String("result", "", "load-test result artifact (detect mode, optional)")
	flag.Parse()

	switch *mode {
	case "serve":
		runServe()
	case "detect":
		os.Exit(runDetect(*load, *metricFile, *resultFile))
	case "status":
		os.Exit(runStatus(false))
	case "detected":
		os.Exit(runStatus(true))
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", *mode)
		os.Exit(2)
	}
}

func runServe() {
	// Create application instance
	app := NewApplication()

	// Initialize all components
	if err := app.Initialize(); err != nil {
		logger.FatalCtx(nil, "Application initialization failed: %v", err)
	}

	// Start all components
	if err := app.Start(); err != nil {
		logger.FatalCtx(app.ctx, "Application startup failed: %v", err)
	}

	// Wait for exit signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.InfoCtx(app.ctx, "Received exit signal: %v", sig)

	// Graceful shutdown (30 seconds timeout)
	if err := app.Shutdown(30 * time.Second); err != nil {
		logger.ErrorCtx(app.ctx, "Application shutdown failed: %v", err)
		os.Exit(1)
	}

	logger.InfoCtx(app.ctx, "Application safely exited")
}

// runDetect executes a single detection tick. The ramp controller invokes
// this once per load step, so the exit code is the interface: 0 means a
// bottleneck is confirmed and the ramp should stop, anything else means
// keep going.
func runDetect(load int, metricFile, resultFile string) int {
	if metricFile == "" {
		fmt.Fprintln(os.Stderr, "-metrics is required in detect mode")
		return 2
	}

	engine, err := buildEngine()
	if err != nil {
		logger.Fatalf("initialization failed: %v", err)
	}

	verdict := engine.Detect(context.Background(), detector.DetectRequest{
		CurrentLoad: load,
		MetricFile:  metricFile,
		ResultFile:  resultFile,
	})

	printVerdict(verdict)
	if verdict.Detected {
		return 0
	}
	return 1
}

func runStatus(flagOnly bool) int {
	engine, err := buildEngine()
	if err != nil {
		logger.Fatalf("initialization failed: %v", err)
	}

	verdict := engine.Status()
	if flagOnly {
		fmt.Println(verdict.Detected)
	} else {
		printVerdict(verdict)
	}
	if verdict.Detected {
		return 0
	}
	return 1
}

// buildEngine wires the minimal one-shot engine: no HTTP surface, no
// background loop, log-only notifications unless an event endpoint is
// configured.
func buildEngine() (*detector.Engine, error) {
	if err := config.Init(); err != nil {
		return nil, err
	}
	if err := logger.Init(); err != nil {
		return nil, err
	}
	cfg := config.GlobalConfig

	store, err := state.New(cfg.State.Dir)
	if err != nil {
		return nil, err
	}

	var notifier events.Notifier = events.NewLogNotifier()
	if cfg.Events.Endpoint != "" {
		notifier = events.NewHTTPNotifier(cfg.Events.Endpoint)
	}

	publisher := detector.NewPublisher(store, notifier, cfg.Events.Source, nil, nil)
	health := detector.NewFlagFileSource(cfg.Watch.NodeHealthFile)
	webhook := notification.NewWebhookNotifier()

	return detector.NewEngine(cfg, store, health, publisher, webhook, nil), nil
}

func printVerdict(v *detector.Verdict) {
	data, err := json.Marshal(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to render verdict: %v\n", err)
		return
	}
	os.Stdout.Write(pretty.Pretty(data))
}
