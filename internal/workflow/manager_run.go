package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"sieve/internal/logging"
	"sieve/internal/queue"
)

// Start resets items left in processing statuses, runs preflight checks and
// launches the lane workers.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	lanes := m.activeLanesLocked()
	if len(lanes) == 0 {
		m.mu.Unlock()
		return errors.New("workflow stages not configured")
	}
	m.mu.Unlock()

	logger := m.baseLogger()
	if reset, err := m.store.ResetStuckProcessing(ctx); err != nil {
		return fmt.Errorf("reset stuck items: %w", err)
	} else if reset > 0 {
		logger.Info("reset items left in processing",
			logging.Int64("count", reset),
			logging.String(logging.FieldEventType, "queue_reset"),
		)
	}
	if err := m.runPreflightChecks(ctx, logger); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("workflow already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	for _, lane := range lanes {
		lane.logger = m.laneLogger(lane)
		lane.logger.Info("lane started",
			logging.Int("workers", lane.workers),
			logging.String(logging.FieldEventType, "lane_start"),
		)
		m.wg.Add(lane.workers)
		for worker := 1; worker <= lane.workers; worker++ {
			go m.runLane(runCtx, lane, worker)
		}
	}
	return nil
}

// Stop stops claiming new items and waits for in-flight stages to return.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

func (m *Manager) activeLanesLocked() []*laneState {
	lanes := make([]*laneState, 0, len(m.laneOrder))
	for _, kind := range m.laneOrder {
		lane := m.lanes[kind]
		if lane == nil || len(lane.stages) == 0 {
			continue
		}
		lanes = append(lanes, lane)
	}
	return lanes
}

func (m *Manager) runLane(ctx context.Context, lane *laneState, worker int) {
	defer m.wg.Done()
	logger := lane.logger
	if logger == nil {
		logger = m.baseLogger()
	}
	logger = logger.With(logging.Int("worker", worker))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		item, stg, err := m.nextItemForLane(ctx, lane)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.handleNextItemError(ctx, logger, err)
			continue
		}
		if item == nil {
			m.waitForItemOrShutdown(ctx, lane)
			continue
		}

		if err := m.processItem(ctx, lane, logger, stg, item); err != nil {
			if ctx.Err() != nil {
				return
			}
		}
	}
}

// nextItemForLane claims the oldest item waiting at one of the lane's stages.
func (m *Manager) nextItemForLane(ctx context.Context, lane *laneState) (*queue.Item, pipelineStage, error) {
	for _, stg := range lane.claimOrder {
		item, err := m.store.Claim(ctx, stg.startStatus, stg.processingStatus, deriveStageLabel(stg.processingStatus))
		if err != nil {
			return nil, pipelineStage{}, err
		}
		if item != nil {
			return item, stg, nil
		}
	}
	return nil, pipelineStage{}, nil
}

func (m *Manager) handleNextItemError(ctx context.Context, logger *slog.Logger, err error) {
	m.setLastError(err)
	logger.Error("failed to claim next queue item",
		logging.Error(err),
		logging.String(logging.FieldEventType, "queue_fetch_failed"),
		logging.String(logging.FieldErrorHint, "check queue database access"),
	)
	select {
	case <-ctx.Done():
	case <-time.After(m.retryInterval):
	}
}

func (m *Manager) waitForItemOrShutdown(ctx context.Context, lane *laneState) {
	select {
	case <-ctx.Done():
	case <-lane.wake:
	case <-time.After(m.pollInterval):
	}
}

// wakeLanes nudges idle workers after an item changed status.
func (m *Manager) wakeLanes() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, lane := range m.lanes {
		lane.signal()
	}
}
