// Package hooks ingests lifecycle signals from the external agent and runs
// the pre/post-compaction side-effect pipeline.
package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/plandash/plandash/internal/git"
	"github.com/plandash/plandash/internal/plan"
)

// Signal names that trigger the side-effect pipeline.
const (
	SignalPreCompact  = "PreCompact"
	SignalPostCompact = "PostCompact"
)

// ringSize caps the in-memory hook event buffer; oldest entries evict first.
const ringSize = 100

// defaultGitTimeout bounds the auto-commit step so a hung git process cannot
// stall the signal's handling indefinitely.
const defaultGitTimeout = 30 * time.Second

// Event is one normalized lifecycle signal. Unknown fields from the raw
// payload are preserved in Extra and marshaled back inline.
type Event struct {
	ID         string         `json:"id"`
	Event      string         `json:"event"`
	Tool       string         `json:"tool,omitempty"`
	Session    string         `json:"session,omitempty"`
	Cwd        string         `json:"cwd,omitempty"`
	ReceivedAt time.Time      `json:"receivedAt"`
	Extra      map[string]any `json:"-"`
}

// MarshalJSON inlines Extra next to the typed fields, tagging the object as
// type "hook" for stream consumers.
func (e Event) MarshalJSON() ([]byte, error) {
	out := map[string]any{}
	for k, v := range e.Extra {
		out[k] = v
	}
	out["type"] = "hook"
	out["id"] = e.ID
	out["event"] = e.Event
	out["receivedAt"] = e.ReceivedAt.UTC().Format(time.RFC3339Nano)
	if e.Tool != "" {
		out["tool"] = e.Tool
	}
	if e.Session != "" {
		out["session"] = e.Session
	}
	if e.Cwd != "" {
		out["cwd"] = e.Cwd
	}
	return json.Marshal(out)
}

// StepResult reports one side-effect step. Failures are visible here and in
// the log but never propagate to the ingestion caller.
type StepResult struct {
	Step    string `json:"step"`
	OK      bool   `json:"ok"`
	Skipped bool   `json:"skipped,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// CompactState is the point-in-time projection written on PreCompact and
// consumed by the matching PostCompact. Overwritten, never appended.
type CompactState struct {
	CompactedAt time.Time    `json:"compactedAt"`
	SessionID   string       `json:"sessionId,omitempty"`
	Summary     plan.Summary `json:"summary"`
	ReadyTasks  []string     `json:"readyTasks"`
}

// Service owns the hook event ring buffer and the compaction side effects.
type Service struct {
	agentDir string
	plans    *plan.Service

	gitTimeout time.Duration

	mu   sync.Mutex
	ring []Event
}

// NewService returns a hook service. plans carries the plan directory; a
// service with an unconfigured plan still ingests events and runs the
// plan-independent steps.
func NewService(agentDir string, plans *plan.Service) *Service {
	return &Service{agentDir: agentDir, plans: plans, gitTimeout: defaultGitTimeout}
}

// Push normalizes a raw signal payload into an Event and appends it to the
// ring buffer. Ingestion never fails: missing event names become "unknown",
// empty strings normalize to absent, and the server-received time is stamped
// here.
func (s *Service) Push(body map[string]any) Event {
	ev := Event{
		ID:         uuid.NewString(),
		Event:      "unknown",
		ReceivedAt: time.Now().UTC(),
		Extra:      map[string]any{},
	}
	for k, v := range body {
		switch k {
		case "event":
			if str, ok := v.(string); ok && str != "" {
				ev.Event = str
			}
		case "tool":
			if str, ok := v.(string); ok {
				ev.Tool = str
			}
		case "session":
			if str, ok := v.(string); ok {
				ev.Session = str
			}
		case "cwd":
			if str, ok := v.(string); ok {
				ev.Cwd = str
			}
		case "type", "id", "receivedAt":
			// Reserved; server-assigned.
		default:
			ev.Extra[k] = v
		}
	}

	s.mu.Lock()
	s.ring = append(s.ring, ev)
	if len(s.ring) > ringSize {
		s.ring = s.ring[len(s.ring)-ringSize:]
	}
	s.mu.Unlock()
	return ev
}

// Events returns the ring buffer newest-first.
func (s *Service) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.ring))
	for i, ev := range s.ring {
		out[len(s.ring)-1-i] = ev
	}
	return out
}

// AutoCommit reads the persisted auto-commit flag from the plan config file.
// Default off; absence and malformed content both read as false.
func (s *Service) AutoCommit() bool {
	if s.plans.Dir() == "" {
		return false
	}
	b, err := os.ReadFile(plan.ConfigPath(s.plans.Dir()))
	if err != nil {
		return false
	}
	var cfg struct {
		AutoCommit bool `json:"autoCommit"`
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return false
	}
	return cfg.AutoCommit
}

// HooksInstalled checks the agent's settings.json for hook wiring that
// points back at this server.
func (s *Service) HooksInstalled() bool {
	b, err := os.ReadFile(filepath.Join(s.agentDir, "settings.json"))
	if err != nil {
		return false
	}
	var settings struct {
		Hooks map[string][]json.RawMessage `json:"hooks"`
	}
	if err := json.Unmarshal(b, &settings); err != nil {
		return false
	}
	for _, key := range []string{"PostToolUse", "Stop"} {
		for _, raw := range settings.Hooks[key] {
			text := string(raw)
			if strings.Contains(text, "plandash") || strings.Contains(text, "/hook") {
				return true
			}
		}
	}
	return false
}

// Dispatch runs the side-effect pipeline for the two compaction signals and
// returns the per-step results; all other signals are ring-buffer only.
func (s *Service) Dispatch(ctx context.Context, ev Event) []StepResult {
	switch ev.Event {
	case SignalPreCompact:
		return s.handlePreCompact(ctx, ev)
	case SignalPostCompact:
		return []StepResult{s.handlePostCompact(ev)}
	}
	return nil
}

// handlePreCompact runs the three pre-compaction steps. Each is independently
// best-effort: a failed commit never blocks the snapshot, a failed snapshot
// never blocks the compact-state write.
func (s *Service) handlePreCompact(ctx context.Context, ev Event) []StepResult {
	workDir := ev.Cwd
	if workDir == "" {
		if s.plans.Dir() != "" {
			workDir = filepath.Dir(s.plans.Dir())
		} else if wd, err := os.Getwd(); err == nil {
			workDir = wd
		}
	}

	var results []StepResult

	// 1. Optional auto-commit, gated by the persisted flag and time-bounded.
	commitMade := false
	commit := StepResult{Step: "auto-commit", Skipped: true, OK: true}
	if s.AutoCommit() {
		commit.Skipped = false
		gitCtx, cancel := context.WithTimeout(ctx, s.gitTimeout)
		err := git.CommitAll(gitCtx, workDir, git.AutoCommitMessage)
		cancel()
		if err != nil {
			// Nothing to commit and not-a-repo both land here; swallowed.
			commit.OK = false
			commit.Detail = err.Error()
		} else {
			commitMade = true
		}
	}
	results = append(results, commit)

	// 2. Context snapshot, commit-tied when a commit was just made.
	results = append(results, s.captureContext(ctx, workDir, commitMade))

	// 3. Compact-state projection of the current snapshot.
	results = append(results, s.writeCompactState(ev))

	for _, r := range results {
		if !r.OK {
			slog.Warn("pre-compact step failed", "step", r.Step, "detail", r.Detail)
		}
	}
	return results
}

func (s *Service) writeCompactState(ev Event) StepResult {
	res := StepResult{Step: "compact-state", OK: true}
	if !s.plans.Configured() {
		res.Skipped = true
		return res
	}
	snap, _ := s.plans.Snapshot()
	state := CompactState{
		CompactedAt: ev.ReceivedAt,
		SessionID:   ev.Session,
		Summary:     snap.Summary,
		ReadyTasks:  []string{},
	}
	for _, t := range snap.Tasks {
		if t.Status == plan.StatusReady {
			state.ReadyTasks = append(state.ReadyTasks, t.ID)
		}
	}
	b, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		res.OK = false
		res.Detail = err.Error()
		return res
	}
	if err := os.WriteFile(plan.CompactStatePath(s.plans.Dir()), b, 0o644); err != nil {
		res.OK = false
		res.Detail = err.Error()
	}
	return res
}

// handlePostCompact appends a restore note to the instructions file. Missing
// compact-state is a silent no-op: the pre-compaction pairing may never have
// fired.
func (s *Service) handlePostCompact(ev Event) StepResult {
	res := StepResult{Step: "restore-note", OK: true}
	if s.plans.Dir() == "" {
		res.Skipped = true
		return res
	}
	b, err := os.ReadFile(plan.CompactStatePath(s.plans.Dir()))
	if err != nil {
		res.Skipped = true
		return res
	}
	var state CompactState
	if err := json.Unmarshal(b, &state); err != nil {
		res.OK = false
		res.Detail = err.Error()
		return res
	}

	note := fmt.Sprintf(
		"\n\n> **[compact-restore %s]** Context was compacted. State: %d DONE, %d READY. Read `%s` for the full task list.\n",
		ev.ReceivedAt.UTC().Format(time.RFC3339),
		state.Summary.Done, state.Summary.Ready,
		plan.CompactStateFile,
	)
	f, err := os.OpenFile(plan.InstructionsPath(s.plans.Dir()), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		res.OK = false
		res.Detail = err.Error()
		return res
	}
	defer func() { _ = f.Close() }()
	if _, err := f.WriteString(note); err != nil {
		res.OK = false
		res.Detail = err.Error()
	}
	return res
}
