package workflow

import "sieve/internal/queue"

// ConfigureStages registers the concrete stage handlers the workflow will run.
func (m *Manager) ConfigureStages(set StageSet) {
	validation := &laneState{kind: laneValidation, name: "validation", workers: m.cfg.Workflow.ValidationWorkers}
	tool := &laneState{kind: laneTool, name: "tool", workers: m.cfg.Workflow.ToolWorkers}

	if set.Inspector != nil {
		validation.stages = append(validation.stages, pipelineStage{
			name:             "inspector",
			handler:          set.Inspector,
			startStatus:      queue.StatusPending,
			processingStatus: queue.StatusInspecting,
			doneStatus:       queue.StatusInspected,
		})
	}
	if set.Validator != nil {
		validation.stages = append(validation.stages, pipelineStage{
			name:             "validator",
			handler:          set.Validator,
			startStatus:      queue.StatusInspected,
			processingStatus: queue.StatusValidating,
			doneStatus:       queue.StatusValidated,
		})
	}
	if set.Handoff != nil {
		tool.stages = append(tool.stages, pipelineStage{
			name:             "handoff",
			handler:          set.Handoff,
			startStatus:      queue.StatusValidated,
			processingStatus: queue.StatusRunning,
			doneStatus:       queue.StatusCompleted,
		})
	}

	lanes := make(map[laneKind]*laneState)
	order := make([]laneKind, 0, 2)
	for _, lane := range []*laneState{validation, tool} {
		if len(lane.stages) == 0 {
			continue
		}
		lane.finalize()
		lanes[lane.kind] = lane
		order = append(order, lane.kind)
	}

	m.mu.Lock()
	m.lanes = lanes
	m.laneOrder = order
	m.mu.Unlock()
}
