package detector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"loadsentry/pkg/config"
	"loadsentry/pkg/logger"

	"github.com/fsnotify/fsnotify"
)

// Manager runs the engine as a long-lived sampling loop. Each tick is one
// Detect call; the persistence contract makes the loop equivalent to the
// process-per-tick execution model. A filesystem watcher on the result
// directory triggers an immediate tick when the load generator drops a new
// artifact, so verdicts do not lag a full interval behind a ramp step.
type Manager struct {
	cfg     *config.Config
	engine  *Engine
	running bool
	mu      sync.RWMutex
	stopCh  chan struct{}

	triggerCh chan struct{}
	watcher   *fsnotify.Watcher

	currentLoad int
	lastRunTime time.Time
}

// NewManager creates the manager.
func NewManager(cfg *config.Config, engine *Engine) *Manager {
	return &Manager{
		cfg:    cfg,
		engine: engine,
		stopCh: make(chan struct{}),
	}
}

// Start launches the sampling loop.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("detector is already running")
	}
	m.running = true
	m.triggerCh = make(chan struct{}, 1)
	m.mu.Unlock()

	logger.InfoCtx(ctx, "starting detector loop, interval: %d seconds", m.cfg.Watch.IntervalSeconds)

	m.startResultWatcher(ctx)
	go m.controlLoop(ctx)

	return nil
}

// Stop stops the sampling loop.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return fmt.Errorf("detector is not running")
	}

	close(m.stopCh)
	if m.watcher != nil {
		m.watcher.Close()
		m.watcher = nil
	}
	m.running = false

	logger.Info("detector stopped")
	return nil
}

// SetLoad records the load controller's current offered load and triggers an
// immediate tick; the value is reused on periodic ticks until the next update.
func (m *Manager) SetLoad(load int) {
	m.RecordLoad(load)
	m.trigger()
}

// RecordLoad stores the offered load without waking the control loop. Callers
// that run the tick themselves use this, otherwise the same sample would be
// evaluated twice and every counter would advance by two.
func (m *Manager) RecordLoad(load int) {
	m.mu.Lock()
	m.currentLoad = load
	m.mu.Unlock()
}

// CurrentLoad returns the last load reported by the load controller.
func (m *Manager) CurrentLoad() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentLoad
}

// LastRunTime returns when the loop last completed a tick.
func (m *Manager) LastRunTime() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastRunTime
}

// RunOnce executes a single tick with the manager's current load.
func (m *Manager) RunOnce(ctx context.Context) *Verdict {
	req := DetectRequest{
		CurrentLoad: m.CurrentLoad(),
		MetricFile:  m.cfg.Watch.MetricFile,
		ResultFile:  m.latestResultFile(),
	}
	verdict := m.engine.Detect(ctx, req)

	m.mu.Lock()
	m.lastRunTime = time.Now()
	m.mu.Unlock()
	return verdict
}

func (m *Manager) controlLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(m.cfg.Watch.IntervalSeconds) * time.Second)
	defer ticker.Stop()

	triggerCh := m.triggerCh

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.RunOnce(ctx)
		case <-triggerCh:
			m.RunOnce(ctx)
		}
	}
}

func (m *Manager) trigger() {
	m.mu.RLock()
	triggerCh := m.triggerCh
	running := m.running
	m.mu.RUnlock()
	if !running || triggerCh == nil {
		return
	}
	select {
	case triggerCh <- struct{}{}:
	default:
	}
}

// startResultWatcher watches the result directory and converts artifact
// writes into trigger events.
func (m *Manager) startResultWatcher(ctx context.Context) {
	dir := m.cfg.Watch.ResultDir
	if dir == "" {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.WarnCtx(ctx, "failed to create result watcher: %v", err)
		return
	}
	if err := watcher.Add(dir); err != nil {
		logger.WarnCtx(ctx, "failed to watch result dir %s: %v", dir, err)
		watcher.Close()
		return
	}
	m.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
					m.trigger()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warnf("result watcher error: %v", err)
			}
		}
	}()
}

// latestResultFile picks the newest result artifact, or empty when none
// exists yet.
func (m *Manager) latestResultFile() string {
	dir := m.cfg.Watch.ResultDir
	if dir == "" {
		return ""
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}

	var newest string
	var newestMod time.Time
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest = filepath.Join(dir, entry.Name())
			newestMod = info.ModTime()
		}
	}
	return newest
}
