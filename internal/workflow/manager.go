package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"sieve/internal/config"
	"sieve/internal/queue"
)

const defaultHeartbeatInterval = 15 * time.Second

// Manager coordinates queue processing using registered stage handlers.
type Manager struct {
	cfg           *config.Config
	store         *queue.Store
	logger        *slog.Logger
	pollInterval  time.Duration
	retryInterval time.Duration

	heartbeat *HeartbeatMonitor

	lanes     map[laneKind]*laneState
	laneOrder []laneKind

	mu       sync.RWMutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	lastErr  error
	lastItem *queue.Item
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithPollInterval overrides the idle poll interval (used in tests).
func WithPollInterval(interval time.Duration) ManagerOption {
	return func(m *Manager) {
		if interval > 0 {
			m.pollInterval = interval
		}
	}
}

// WithHeartbeatInterval overrides how often in-flight items record liveness.
func WithHeartbeatInterval(interval time.Duration) ManagerOption {
	return func(m *Manager) {
		if interval > 0 {
			m.heartbeat.heartbeatInterval = interval
		}
	}
}

// NewManager constructs a new workflow manager.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		cfg:           cfg,
		store:         store,
		logger:        logger,
		pollInterval:  time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		retryInterval: time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		heartbeat:     NewHeartbeatMonitor(store, logger, defaultHeartbeatInterval),
		lanes:         make(map[laneKind]*laneState),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.pollInterval <= 0 {
		m.pollInterval = time.Second
	}
	if m.retryInterval <= 0 {
		m.retryInterval = time.Second
	}
	return m
}
