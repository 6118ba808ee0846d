package workflow

import (
	"log/slog"

	"sieve/internal/queue"
	"sieve/internal/stage"
)

// StageSet bundles the concrete workflow handlers the manager orchestrates.
// A nil Handoff leaves validated items at rest.
type StageSet struct {
	Inspector stage.Handler
	Validator stage.Handler
	Handoff   stage.Handler
}

type pipelineStage struct {
	name             string
	handler          stage.Handler
	startStatus      queue.Status
	processingStatus queue.Status
	doneStatus       queue.Status
}

type laneKind string

const (
	laneValidation laneKind = "validation"
	laneTool       laneKind = "tool"
)

type laneState struct {
	kind    laneKind
	name    string
	workers int
	stages  []pipelineStage
	// claimOrder lists stages latest first so an item already inside the lane
	// finishes before a new one is started.
	claimOrder         []pipelineStage
	stageByStart       map[queue.Status]pipelineStage
	startStatuses      []queue.Status
	processingStatuses []queue.Status
	logger             *slog.Logger
	wake               chan struct{}
}

func (l *laneState) finalize() {
	if l == nil {
		return
	}
	if l.workers < 1 {
		l.workers = 1
	}
	l.wake = make(chan struct{}, l.workers)
	l.stageByStart = make(map[queue.Status]pipelineStage, len(l.stages))
	l.claimOrder = make([]pipelineStage, 0, len(l.stages))
	for i := len(l.stages) - 1; i >= 0; i-- {
		l.claimOrder = append(l.claimOrder, l.stages[i])
	}
	seenProcessing := make(map[queue.Status]struct{})
	for _, stg := range l.stages {
		l.stageByStart[stg.startStatus] = stg
		l.startStatuses = append(l.startStatuses, stg.startStatus)
		if stg.processingStatus != "" {
			if _, ok := seenProcessing[stg.processingStatus]; !ok {
				l.processingStatuses = append(l.processingStatuses, stg.processingStatus)
				seenProcessing[stg.processingStatus] = struct{}{}
			}
		}
	}
}

func (l *laneState) stageForStatus(status queue.Status) (pipelineStage, bool) {
	if l == nil {
		return pipelineStage{}, false
	}
	stg, ok := l.stageByStart[status]
	return stg, ok
}

func (l *laneState) signal() {
	if l == nil || l.wake == nil {
		return
	}
	select {
	case l.wake <- struct{}{}:
	default:
	}
}
