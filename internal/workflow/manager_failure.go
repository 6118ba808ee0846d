package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"sieve/internal/logging"
	"sieve/internal/queue"
	"sieve/internal/services"
)

func (m *Manager) handleStageFailure(ctx context.Context, stageLogger *slog.Logger, stageName string, item queue.Item, stageErr error) {
	logger := stageLogger.With(logging.String("component", "workflow-manager"))

	details := services.Details(stageErr)
	message := m.classifyStageFailure(stageName, stageErr)
	item.SetFailed(string(details.Kind), message, details.Members)

	attrs := []logging.Attr{
		logging.String("resolved_status", string(queue.StatusFailed)),
		logging.String("error_message", strings.TrimSpace(message)),
		logging.Alert("stage_failure"),
		logging.String(logging.FieldErrorKind, string(details.Kind)),
	}
	if len(details.Members) > 0 {
		attrs = append(attrs, logging.Strings("failed_members", details.Members))
	}
	if details.Cause != nil {
		attrs = append(attrs, logging.Error(details.Cause))
	} else {
		attrs = append(attrs, logging.Error(stageErr))
	}
	attrs = append(attrs, logging.String(logging.FieldEventType, "stage_failure"))
	logger.Error("stage failed", logging.Args(attrs...)...)

	if err := m.store.Update(ctx, &item); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("shutting down, could not update stage failure")
		} else {
			logger.Error("failed to persist stage failure", logging.Error(err))
		}
	}

	m.setLastItem(&item)
	m.wakeLanes()
}

func (m *Manager) classifyStageFailure(stageName string, stageErr error) string {
	if stageErr == nil {
		return m.getStageFailureMessage(stageName, "failed without error detail")
	}

	details := services.Details(stageErr)
	message := strings.TrimSpace(details.Message)
	if message == "" {
		message = strings.TrimSpace(stageErr.Error())
	}
	if message == "" {
		message = m.getStageFailureMessage(stageName, "failed")
	}
	return message
}

func (m *Manager) getStageFailureMessage(stageName, defaultMsg string) string {
	if stageName != "" {
		return fmt.Sprintf("%s %s", stageName, defaultMsg)
	}
	return fmt.Sprintf("workflow %s", defaultMsg)
}
