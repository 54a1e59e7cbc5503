package orchestrator

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// HealthMonitor periodically logs engine health: in-flight runs and the
// registered worker surface.
type HealthMonitor struct {
	engine   *Engine
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// HealthStatus is a point-in-time view of the engine.
type HealthStatus struct {
	ActiveRuns   int       `json:"active_runs"`
	Workers      int       `json:"workers"`
	Capabilities int       `json:"capabilities"`
	Healthy      bool      `json:"healthy"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewHealthMonitor creates a health monitor for an engine.
func NewHealthMonitor(engine *Engine, interval time.Duration, logger *zap.Logger) *HealthMonitor {
	return &HealthMonitor{
		engine:   engine,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start starts the monitor loop.
func (h *HealthMonitor) Start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	go h.run()
}

// Stop stops the monitor loop.
func (h *HealthMonitor) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.mu.Unlock()

	close(h.stopCh)
}

func (h *HealthMonitor) run() {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			status := h.GetStatus()
			h.logger.Info("engine health check",
				zap.Int("active_runs", status.ActiveRuns),
				zap.Int("workers", status.Workers),
				zap.Int("capabilities", status.Capabilities),
				zap.Bool("healthy", status.Healthy))
		}
	}
}

// GetStatus returns the current health status. The engine is healthy when
// at least one worker is registered.
func (h *HealthMonitor) GetStatus() *HealthStatus {
	snapshot := h.engine.Registry().Snapshot()
	return &HealthStatus{
		ActiveRuns:   h.engine.ActiveRuns(),
		Workers:      len(snapshot.Workers),
		Capabilities: len(snapshot.Capabilities),
		Healthy:      len(snapshot.Workers) > 0,
		Timestamp:    time.Now(),
	}
}

// IsHealthy reports whether the engine can serve requests.
func (h *HealthMonitor) IsHealthy() bool {
	return h.GetStatus().Healthy
}
