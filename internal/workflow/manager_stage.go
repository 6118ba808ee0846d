package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"sieve/internal/logging"
	"sieve/internal/queue"
	"sieve/internal/stage"
)

func (m *Manager) processItem(ctx context.Context, lane *laneState, laneLogger *slog.Logger, stg pipelineStage, item *queue.Item) error {
	requestID := uuid.NewString()
	stageCtx := withStageContext(ctx, lane, stg.name, item, requestID)
	stageLogger := logging.WithContext(stageCtx, laneLogger)
	m.setLastItem(item)
	return m.executeStage(stageCtx, stageLogger, stg, item)
}

func (m *Manager) executeStage(ctx context.Context, stageLogger *slog.Logger, stg pipelineStage, item *queue.Item) error {
	stageStart := time.Now()
	stageLogger.Info(
		"stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("processing_status", string(stg.processingStatus)),
		logging.String("source", strings.TrimSpace(item.SourcePath)),
	)

	progressCtx := stage.WithProgress(ctx, func(label, message string, percent float64) {
		if err := m.store.UpdateProgress(ctx, item.ID, label, message, percent); err != nil && ctx.Err() == nil {
			stageLogger.Warn("failed to persist progress", logging.Error(err))
		}
	})
	updated, execErr := m.executeWithHeartbeat(progressCtx, stg.handler, *item)
	if ctx.Err() != nil {
		m.rollbackInterrupted(ctx, stageLogger, stg, item)
		return ctx.Err()
	}
	if updated.ID == 0 {
		updated = *item
	}
	if execErr != nil {
		m.handleStageFailure(ctx, stageLogger, stg.name, updated, execErr)
		m.setLastError(execErr)
		return execErr
	}

	if updated.Status == stg.processingStatus || updated.Status == "" {
		updated.Status = stg.doneStatus
	}
	updated.LastHeartbeat = nil
	updated.ErrorKind = ""
	updated.ErrorMessage = ""
	updated.FailedMembers = nil
	label := deriveStageLabel(updated.Status)
	updated.ProgressStage = label
	updated.ProgressPercent = 100
	if strings.TrimSpace(updated.ProgressMessage) == "" {
		updated.ProgressMessage = label
	}
	if err := m.store.Update(ctx, &updated); err != nil {
		wrapped := fmt.Errorf("persist stage result: %w", err)
		stageLogger.Error("failed to persist stage result", logging.Error(wrapped))
		m.setLastError(wrapped)
		return wrapped
	}
	stageLogger.Info(
		"stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("next_status", string(updated.Status)),
		logging.String("progress_message", strings.TrimSpace(updated.ProgressMessage)),
		logging.Duration("stage_duration", time.Since(stageStart)),
	)
	m.setLastItem(&updated)
	m.wakeLanes()
	return nil
}

func (m *Manager) executeWithHeartbeat(ctx context.Context, handler stage.Handler, item queue.Item) (queue.Item, error) {
	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, item.ID)

	updated, execErr := handler.Execute(ctx, item)
	hbCancel()
	hbWG.Wait()
	return updated, execErr
}

// rollbackInterrupted returns an item whose stage was cancelled to the start
// status of that stage. The shutdown context is already cancelled, so the
// write detaches from it.
func (m *Manager) rollbackInterrupted(ctx context.Context, logger *slog.Logger, stg pipelineStage, item *queue.Item) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	rolled, err := m.store.Rollback(writeCtx, item.ID, stg.processingStatus, stg.startStatus)
	if err != nil {
		logger.Error("failed to roll back interrupted item",
			logging.Error(err),
			logging.String(logging.FieldEventType, "rollback_failed"),
			logging.String(logging.FieldErrorHint, "the item is reset on next start"),
		)
		return
	}
	if rolled {
		logger.Info("stage interrupted; item rolled back",
			logging.String(logging.FieldEventType, "stage_interrupted"),
			logging.String("status", string(stg.startStatus)),
		)
	}
}
