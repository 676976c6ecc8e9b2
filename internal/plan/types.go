// Package plan derives live task status from a project's plan artifacts:
// queue.md (declarative task queue with dependencies) and execution.log
// (append-only JSONL of attempt outcomes).
package plan

import "time"

// Event statuses as written by the external agent to execution.log.
const (
	EventDone       = "DONE"
	EventFailed     = "FAILED"
	EventBlocked    = "BLOCKED"
	EventInProgress = "IN_PROGRESS"
)

// Derived task statuses. DONE/FAILED/BLOCKED/IN_PROGRESS mirror the latest
// event; READY means no event yet and all dependencies DONE.
const (
	StatusReady      = "READY"
	StatusInProgress = "IN_PROGRESS"
	StatusBlocked    = "BLOCKED"
	StatusDone       = "DONE"
	StatusFailed     = "FAILED"
)

// Task is one entry from the queue file. IDs are stable across runs.
type Task struct {
	ID                 string   `json:"id"`
	Description        string   `json:"description"`
	Area               string   `json:"area,omitempty"`
	Slice              string   `json:"slice,omitempty"`
	AcceptanceCriteria string   `json:"acceptanceCriteria,omitempty"`
	DependsOn          []string `json:"dependsOn"`
}

// ExecutionStep is one entry of an event's optional step trace.
type ExecutionStep struct {
	Type    string `json:"type"` // thought, tool_call, observation, error
	Content string `json:"content,omitempty"`
}

// EventMeta is the open key/value bag attached to a log event.
type EventMeta struct {
	DurationSec   float64         `json:"durationSec,omitempty"`
	Steps         int             `json:"steps,omitempty"`
	CommitHash    string          `json:"commitHash,omitempty"`
	CommitMessage string          `json:"commitMessage,omitempty"`
	Trace         []ExecutionStep `json:"trace,omitempty"`
}

// Event is one attempt outcome from the execution log. Timestamps are
// non-decreasing within one file but not globally sorted; LogIndex records
// append order and breaks timestamp ties (later-appended wins).
type Event struct {
	TaskID    string     `json:"task"`
	Status    string     `json:"status"`
	Timestamp time.Time  `json:"ts"`
	Agent     string     `json:"agent,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	Meta      *EventMeta `json:"meta,omitempty"`
	LogIndex  int        `json:"-"`
}

// ComputedTask is a Task joined with its latest event and derived status.
// Values are produced fresh on every derivation pass and never mutated.
type ComputedTask struct {
	Task
	Status       string `json:"status"`
	LastEvent    *Event `json:"lastEvent,omitempty"`
	StatusReason string `json:"statusReason,omitempty"`
}

// Summary is the whole-plan rollup.
type Summary struct {
	Total       int     `json:"total"`
	Done        int     `json:"done"`
	Failed      int     `json:"failed"`
	Blocked     int     `json:"blocked"`
	Ready       int     `json:"ready"`
	InProgress  int     `json:"inProgress"`
	SuccessRate float64 `json:"successRate"`
}

// SliceStat is the per-slice rollup.
type SliceStat struct {
	Name     string  `json:"name"`
	Total    int     `json:"total"`
	Done     int     `json:"done"`
	Failed   int     `json:"failed"`
	Blocked  int     `json:"blocked"`
	Progress float64 `json:"progress"` // done/total*100
}

// Snapshot is one fully-derived, immutable view of the plan. It is superseded
// wholly by the next derivation, never patched.
type Snapshot struct {
	Tasks        []ComputedTask       `json:"tasks"`
	Summary      Summary              `json:"summary"`
	Slices       map[string]SliceStat `json:"slices"`
	EventsByTask map[string][]Event   `json:"-"` // includes events for unknown task ids (audit)
}
