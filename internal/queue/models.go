package queue

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Status represents the lifecycle of a run item.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInspecting Status = "inspecting"
	StatusInspected  Status = "inspected"
	StatusValidating Status = "validating"
	StatusValidated  Status = "validated"
	StatusRunning    Status = "running"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ToolStatus tracks the external tool hand-off separately from the item status.
type ToolStatus string

const (
	ToolNone      ToolStatus = ""
	ToolQueued    ToolStatus = "queued"
	ToolRunning   ToolStatus = "running"
	ToolSucceeded ToolStatus = "succeeded"
	ToolFailed    ToolStatus = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusInspecting,
	StatusInspected,
	StatusValidating,
	StatusValidated,
	StatusRunning,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

type statusTransition struct {
	from Status
	to   Status
}

// stageRollbackTransitions maps each processing status to the start status of
// its stage.
var stageRollbackTransitions = []statusTransition{
	{from: StatusInspecting, to: StatusPending},
	{from: StatusValidating, to: StatusInspected},
	{from: StatusRunning, to: StatusValidated},
}

// Item is one archive moving through the pipeline.
type Item struct {
	ID            int64
	RunID         string
	SourcePath    string
	AssayID       string
	Status        Status
	ToolStatus    ToolStatus
	ErrorKind     string
	ErrorMessage  string
	FailedMembers []string
	// ArchiveJSON is the serialized archive handle recorded by inspection.
	ArchiveJSON string
	// HandoffJSON is the serialized Handoff recorded by validation.
	HandoffJSON     string
	ProgressStage   string
	ProgressMessage string
	ProgressPercent float64
	CreatedAt       time.Time
	UpdatedAt       time.Time
	LastHeartbeat   *time.Time
}

// Handoff is the triple passed to the external tool once an item validates.
type Handoff struct {
	RunID       string   `json:"run_id"`
	AssayID     string   `json:"assay_id"`
	Archive     string   `json:"archive"`
	BulkMembers []string `json:"bulk_members"`
	MetadataDir string   `json:"metadata_dir"`
}

// ErrNoHandoff reports an item that has not been validated yet.
var ErrNoHandoff = errors.New("item has no hand-off")

// Handoff decodes the hand-off recorded on the item.
func (i Item) Handoff() (Handoff, error) {
	if strings.TrimSpace(i.HandoffJSON) == "" {
		return Handoff{}, ErrNoHandoff
	}
	var h Handoff
	if err := json.Unmarshal([]byte(i.HandoffJSON), &h); err != nil {
		return Handoff{}, err
	}
	return h, nil
}

// WithHandoff returns a copy of the item carrying h.
func (i Item) WithHandoff(h Handoff) (Item, error) {
	data, err := json.Marshal(h)
	if err != nil {
		return i, err
	}
	i.HandoffJSON = string(data)
	return i, nil
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsProcessingStatus reports whether a status reflects an in-flight stage.
func IsProcessingStatus(status Status) bool {
	for _, transition := range stageRollbackTransitions {
		if transition.from == status {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further stage will pick the item up.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// SetProgress updates all three progress fields together.
func (i *Item) SetProgress(stage, message string, percent float64) {
	i.ProgressStage = stage
	i.ProgressMessage = message
	i.ProgressPercent = percent
}

// SetFailed marks the item failed with its classification and offending members.
func (i *Item) SetFailed(kind, message string, members []string) {
	i.Status = StatusFailed
	i.ErrorKind = kind
	i.ErrorMessage = message
	i.FailedMembers = append([]string(nil), members...)
	i.ProgressPercent = 0
	i.ProgressMessage = message
	i.ProgressStage = "Failed"
	i.LastHeartbeat = nil
	if i.ToolStatus == ToolRunning || i.ToolStatus == ToolQueued {
		i.ToolStatus = ToolFailed
	}
}

// HealthSummary aggregates queue counts for status output.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Validated  int
	Completed  int
	Failed     int
}
