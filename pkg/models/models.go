// Package models holds the API wire types shared by the server and the Go
// client.
package models

import "time"

// Derived plan task statuses.
const (
	StatusReady      = "READY"
	StatusInProgress = "IN_PROGRESS"
	StatusBlocked    = "BLOCKED"
	StatusDone       = "DONE"
	StatusFailed     = "FAILED"
)

// Health is the /health response.
type Health struct {
	OK             bool `json:"ok"`
	PlanConfigured bool `json:"planConfigured"`
	HooksInstalled bool `json:"hooksInstalled"`
	AutoCommit     bool `json:"autoCommit"`
}

// PlanEvent is one execution-log event as served by the API.
type PlanEvent struct {
	TaskID    string    `json:"task"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"ts"`
	Agent     string    `json:"agent,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// PlanTask is one queue entry joined with its derived status.
type PlanTask struct {
	ID                 string     `json:"id"`
	Description        string     `json:"description"`
	Area               string     `json:"area,omitempty"`
	Slice              string     `json:"slice,omitempty"`
	AcceptanceCriteria string     `json:"acceptanceCriteria,omitempty"`
	DependsOn          []string   `json:"dependsOn"`
	Status             string     `json:"status"`
	LastEvent          *PlanEvent `json:"lastEvent,omitempty"`
	StatusReason       string     `json:"statusReason,omitempty"`
}

// PlanSummary is the whole-plan rollup.
type PlanSummary struct {
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
	Progress float64 `json:"progress"`
}

// State is the /state response.
type State struct {
	Configured bool                 `json:"configured"`
	Tasks      []PlanTask           `json:"tasks"`
	Summary    PlanSummary          `json:"summary"`
	Slices     map[string]SliceStat `json:"slices"`
	Errors     []string             `json:"errors"`
}

// SessionTask is one item of a live session's task list.
type SessionTask struct {
	ID          string   `json:"id"`
	Subject     string   `json:"subject"`
	Description string   `json:"description,omitempty"`
	ActiveForm  string   `json:"activeForm,omitempty"`
	Status      string   `json:"status"`
	Blocks      []string `json:"blocks,omitempty"`
	BlockedBy   []string `json:"blockedBy,omitempty"`
	Stale       bool     `json:"isStale,omitempty"`
}

// TokenUsage is optional per-session token accounting.
type TokenUsage struct {
	InputTokens         int64 `json:"inputTokens"`
	OutputTokens        int64 `json:"outputTokens"`
	CacheCreationTokens int64 `json:"cacheCreationTokens"`
	CacheReadTokens     int64 `json:"cacheReadTokens"`
}

// Session is one live agent session.
type Session struct {
	ID              string         `json:"id"`
	Tasks           []SessionTask  `json:"tasks"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
	Model           string         `json:"model,omitempty"`
	LinesAdded      int            `json:"linesAdded,omitempty"`
	GitCommits      int            `json:"gitCommits,omitempty"`
	Languages       map[string]int `json:"languages,omitempty"`
	DurationMinutes int            `json:"durationMinutes,omitempty"`
	TokenUsage      *TokenUsage    `json:"tokenUsage,omitempty"`
}

// SessionList is the /sessions response.
type SessionList struct {
	Sessions []Session `json:"sessions"`
	Total    int       `json:"total"`
	Filtered int       `json:"filtered"`
}

// HookEvent is one buffered lifecycle signal from /hook/events. Extra
// payload fields are not modeled; decode the raw stream if you need them.
type HookEvent struct {
	ID         string    `json:"id"`
	Event      string    `json:"event"`
	Tool       string    `json:"tool,omitempty"`
	Session    string    `json:"session,omitempty"`
	Cwd        string    `json:"cwd,omitempty"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// StepResult is one pre/post-compaction side-effect outcome.
type StepResult struct {
	Step    string `json:"step"`
	OK      bool   `json:"ok"`
	Skipped bool   `json:"skipped,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// HookAck is the POST /hook response.
type HookAck struct {
	OK         bool         `json:"ok"`
	ID         string       `json:"id"`
	ReceivedAt time.Time    `json:"receivedAt"`
	Steps      []StepResult `json:"steps,omitempty"`
}
