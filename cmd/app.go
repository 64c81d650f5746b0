package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"loadsentry/app/handler"
	"loadsentry/app/router"
	"loadsentry/pkg/config"
	"loadsentry/pkg/detector"
	"loadsentry/pkg/events"
	"loadsentry/pkg/logger"
	"loadsentry/pkg/monitoring"
	"loadsentry/pkg/notification"
	redisstore "loadsentry/pkg/store/redis"
	"loadsentry/pkg/store/state"

	"github.com/gin-gonic/gin"
)

// Application manages the lifecycle of the entire agent
type Application struct {
	// Infrastructure components
	config      *config.Config
	stateStore  *state.Store
	redisClient *redisstore.RedisClient

	// Engine
	publisher *detector.Publisher
	engine    *detector.Engine
	manager   *detector.Manager

	// Handler layer
	detectorHandler *handler.DetectorHandler
	healthHandler   *handler.HealthHandler

	// Monitoring
	metrics *monitoring.Metrics

	// HTTP server
	httpServer *http.Server
	ginEngine  *gin.Engine

	// Context management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	cleanupFuncs []func()
}

// NewApplication creates a new Application instance
func NewApplication() *Application {
	ctx, cancel := context.WithCancel(context.Background())
	return &Application{
		ctx:          ctx,
		cancel:       cancel,
		cleanupFuncs: make([]func(), 0),
	}
}

// Initialize initializes all application components
func (app *Application) Initialize() error {
	var err error

	steps := []struct {
		name string
		fn   func() error
	}{
		{"Configuration", app.initConfig},
		{"Logging", app.initLogger},
		{"State Store", app.initStateStore},
		{"Redis", app.initRedis},
		{"Engine", app.initEngine},
		{"Handler Layer", app.initHandlers},
		{"HTTP Server", app.initHTTPServer},
	}

	for _, step := range steps {
		logger.InfoCtx(app.ctx, "Initializing %s...", step.name)
		if err = step.fn(); err != nil {
			return fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
	}

	logger.InfoCtx(app.ctx, "Application initialization completed")
	return nil
}

func (app *Application) initConfig() error {
	if err := config.Init(); err != nil {
		return err
	}
	app.config = config.GlobalConfig
	return nil
}

func (app *Application) initLogger() error {
	return logger.Init()
}

func (app *Application) initStateStore() error {
	store, err := state.New(app.config.State.Dir)
	if err != nil {
		return err
	}
	app.stateStore = store
	return nil
}

func (app *Application) initRedis() error {
	if !app.config.Redis.Enabled {
		return nil
	}
	client, err := redisstore.NewRedisClient(app.config.Redis)
	if err != nil {
		return err
	}
	app.redisClient = client
	app.registerCleanup(func() {
		if err := client.Close(); err != nil {
			logger.Errorf("failed to close redis client: %v", err)
		}
	})
	return nil
}

func (app *Application) initEngine() error {
	app.metrics = monitoring.NewMetrics()

	var notifier events.Notifier = events.NewLogNotifier()
	if app.config.Events.Endpoint != "" {
		notifier = events.NewHTTPNotifier(app.config.Events.Endpoint)
	}

	var mirror *redisstore.VerdictMirror
	if app.redisClient != nil {
		mirror = redisstore.NewVerdictMirror(app.redisClient.GetClient(), app.config.Redis.VerdictKey, app.config.Redis.Channel)
	}

	app.publisher = detector.NewPublisher(app.stateStore, notifier, app.config.Events.Source, mirror, app.metrics)

	health := detector.NewFlagFileSource(app.config.Watch.NodeHealthFile)
	webhook := notification.NewWebhookNotifier()

	app.engine = detector.NewEngine(app.config, app.stateStore, health, app.publisher, webhook, app.metrics)
	app.manager = detector.NewManager(app.config, app.engine)
	return nil
}

func (app *Application) initHandlers() error {
	app.detectorHandler = handler.NewDetectorHandler(app.engine, app.manager, app.publisher)
	app.healthHandler = handler.NewHealthHandler()
	return nil
}

func (app *Application) initHTTPServer() error {
	if app.config.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	app.ginEngine = gin.New()
	r := router.NewRouter(app.detectorHandler, app.healthHandler, app.metrics)
	r.Setup(app.ginEngine)

	app.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", app.config.Server.Port),
		Handler: app.ginEngine,
	}
	return nil
}

// Start starts all application components
func (app *Application) Start() error {
	logger.InfoCtx(app.ctx, "Starting application components...")

	if err := app.manager.Start(app.ctx); err != nil {
		return fmt.Errorf("failed to start detector loop: %w", err)
	}

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		addr := fmt.Sprintf(":%d", app.config.Server.Port)
		logger.InfoCtx(app.ctx, "HTTP server listening on: %s", addr)
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.FatalCtx(app.ctx, "HTTP server error: %v", err)
		}
	}()

	logger.InfoCtx(app.ctx, "All components started successfully")
	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown(timeout time.Duration) error {
	logger.InfoCtx(app.ctx, "Starting graceful shutdown (timeout: %v)...", timeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	app.cancel()

	if err := app.manager.Stop(); err != nil {
		logger.WarnCtx(app.ctx, "detector loop stop: %v", err)
	}

	logger.InfoCtx(app.ctx, "Shutting down HTTP server...")
	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.ErrorCtx(app.ctx, "HTTP server shutdown error: %v", err)
	}

	done := make(chan struct{})
	go func() {
		app.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.InfoCtx(app.ctx, "All background tasks completed")
	case <-shutdownCtx.Done():
		logger.WarnCtx(app.ctx, "Shutdown timeout, some tasks may not have completed")
	}

	for i := len(app.cleanupFuncs) - 1; i >= 0; i-- {
		app.cleanupFuncs[i]()
	}

	logger.Sync()

	logger.InfoCtx(app.ctx, "Graceful shutdown completed")
	return nil
}

// registerCleanup registers cleanup function
func (app *Application) registerCleanup(cleanup func()) {
	app.cleanupFuncs = append(app.cleanupFuncs, cleanup)
}
