package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"sieve/internal/logging"
	"sieve/internal/queue"
	"sieve/internal/services"
)

func (m *Manager) baseLogger() *slog.Logger {
	if m.logger == nil {
		return logging.NewNop()
	}
	return m.logger
}

func (m *Manager) laneLogger(lane *laneState) *slog.Logger {
	name := lane.name
	if name == "" {
		name = string(lane.kind)
	}
	return m.baseLogger().With(
		logging.String(logging.FieldComponent, fmt.Sprintf("workflow-%s-runner", name)),
		logging.String(logging.FieldLane, name),
	)
}

func withStageContext(ctx context.Context, lane *laneState, stageName string, item *queue.Item, requestID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if item != nil {
		ctx = services.WithItemID(ctx, item.ID)
		if item.RunID != "" {
			ctx = services.WithRunID(ctx, item.RunID)
		}
	}
	if stageName != "" {
		ctx = services.WithStage(ctx, stageName)
	}
	if lane != nil {
		laneLabel := strings.TrimSpace(lane.name)
		if laneLabel == "" {
			laneLabel = string(lane.kind)
		}
		ctx = services.WithLane(ctx, laneLabel)
	}
	if requestID != "" {
		ctx = services.WithRequestID(ctx, requestID)
	}
	return ctx
}

var titleCaser = cases.Title(language.English)

func deriveStageLabel(status queue.Status) string {
	if status == "" {
		return ""
	}
	return titleCaser.String(strings.ReplaceAll(string(status), "_", " "))
}
