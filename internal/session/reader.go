// Package session reads and serves the external agent's live session data:
// per-session task files written under the agent's data directory, with no
// plan model involved. A parallel, simpler ingestion path next to the plan
// derivation in internal/plan.
package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Task statuses as written by the agent.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// Task is one item of a session's task list.
type Task struct {
	ID          string   `json:"id"`
	Subject     string   `json:"subject"`
	Description string   `json:"description,omitempty"`
	ActiveForm  string   `json:"activeForm,omitempty"`
	Status      string   `json:"status"`
	Blocks      []string `json:"blocks,omitempty"`
	BlockedBy   []string `json:"blockedBy,omitempty"`
	Stale       bool     `json:"isStale,omitempty"`
}

// TokenUsage is optional per-session token accounting from the meta file.
type TokenUsage struct {
	InputTokens         int64 `json:"inputTokens"`
	OutputTokens        int64 `json:"outputTokens"`
	CacheCreationTokens int64 `json:"cacheCreationTokens"`
	CacheReadTokens     int64 `json:"cacheReadTokens"`
}

// Session is one agent session with its task list and activity timestamps.
type Session struct {
	ID        string    `json:"id"`
	Tasks     []Task    `json:"tasks"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Enrichment from usage-data/session-meta, when present.
	Model           string         `json:"model,omitempty"`
	LinesAdded      int            `json:"linesAdded,omitempty"`
	GitCommits      int            `json:"gitCommits,omitempty"`
	Languages       map[string]int `json:"languages,omitempty"`
	DurationMinutes int            `json:"durationMinutes,omitempty"`
	TokenUsage      *TokenUsage    `json:"tokenUsage,omitempty"`
}

var skipFiles = map[string]bool{".lock": true, ".highwatermark": true}

// todosFileRe extracts the session id from the current-format file name,
// e.g. "abc123-agent-abc123.json" -> "abc123".
var todosFileRe = regexp.MustCompile(`^([a-f0-9-]+)-agent-`)

// ReadSessions reads every session from <agentDir>/tasks (legacy layout:
// one subdirectory per session with individual JSON task files) and
// <agentDir>/todos (current layout: one JSON array file per session).
// The todos layout wins on duplicate session ids. Missing directories read
// as empty. Result is sorted by most recent activity.
func ReadSessions(agentDir string) []Session {
	byID := map[string]Session{}

	tasksDir := filepath.Join(agentDir, "tasks")
	if entries, err := os.ReadDir(tasksDir); err == nil {
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			if s := ReadSession(tasksDir, e.Name()); s != nil && len(s.Tasks) > 0 {
				byID[s.ID] = *s
			}
		}
	}

	todosDir := filepath.Join(agentDir, "todos")
	if entries, err := os.ReadDir(todosDir); err == nil {
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
				continue
			}
			if s := readTodosFile(todosDir, e.Name()); s != nil && len(s.Tasks) > 0 {
				byID[s.ID] = *s
			}
		}
	}

	sessions := make([]Session, 0, len(byID))
	for _, s := range byID {
		sessions = append(sessions, s)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	return sessions
}

// ReadSession reads one legacy-layout session directory. Returns nil when the
// directory is missing or holds no valid tasks.
func ReadSession(tasksDir, sessionID string) *Session {
	dir := filepath.Join(tasksDir, sessionID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var tasks []Task
	created := time.Time{}
	updated := time.Time{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") || skipFiles[name] {
			continue
		}
		info, err := e.Info()
		if err == nil {
			mod := info.ModTime()
			if created.IsZero() || mod.Before(created) {
				created = mod
			}
			if mod.After(updated) {
				updated = mod
			}
		}
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		if t, ok := decodeTask(b); ok {
			tasks = append(tasks, t)
		}
	}
	if len(tasks) == 0 {
		return nil
	}

	// Numeric ids sort numerically, everything else lexically after them.
	sort.Slice(tasks, func(i, j int) bool {
		a, aerr := strconv.Atoi(tasks[i].ID)
		b, berr := strconv.Atoi(tasks[j].ID)
		if aerr == nil && berr == nil {
			return a < b
		}
		if aerr == nil != (berr == nil) {
			return aerr == nil
		}
		return tasks[i].ID < tasks[j].ID
	})

	now := time.Now()
	if created.IsZero() {
		created = now
	}
	if updated.IsZero() {
		updated = now
	}
	return &Session{ID: sessionID, Tasks: tasks, CreatedAt: created, UpdatedAt: updated}
}

// readTodosFile reads one current-layout file: a single JSON array of items
// that carry "content" instead of "subject" and may lack ids.
func readTodosFile(todosDir, filename string) *Session {
	m := todosFileRe.FindStringSubmatch(filename)
	if m == nil {
		return nil
	}
	path := filepath.Join(todosDir, filename)
	b, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(b, &items); err != nil {
		return nil
	}

	var tasks []Task
	for i, item := range items {
		if t, ok := decodeTodoItem(item, i); ok {
			tasks = append(tasks, t)
		}
	}
	if len(tasks) == 0 {
		return nil
	}

	info, err := os.Stat(path)
	mod := time.Now()
	if err == nil {
		mod = info.ModTime()
	}
	return &Session{ID: m[1], Tasks: tasks, CreatedAt: mod, UpdatedAt: mod}
}

func decodeTask(b []byte) (Task, bool) {
	var t Task
	if err := json.Unmarshal(b, &t); err != nil {
		return Task{}, false
	}
	if t.ID == "" || !validStatus(t.Status) {
		return Task{}, false
	}
	return t, true
}

func decodeTodoItem(raw map[string]json.RawMessage, index int) (Task, bool) {
	var t Task
	str := func(key string) string {
		var s string
		if v, ok := raw[key]; ok {
			_ = json.Unmarshal(v, &s)
		}
		return s
	}
	t.Status = str("status")
	if !validStatus(t.Status) {
		return Task{}, false
	}
	// todos layout uses "content" where the legacy layout says "subject".
	t.Subject = str("content")
	if t.Subject == "" {
		t.Subject = str("subject")
	}
	t.Description = str("description")
	t.ActiveForm = str("activeForm")
	t.ID = str("id")
	if t.ID == "" {
		t.ID = strconv.Itoa(index + 1)
	}
	if v, ok := raw["blocks"]; ok {
		_ = json.Unmarshal(v, &t.Blocks)
	}
	if v, ok := raw["blockedBy"]; ok {
		_ = json.Unmarshal(v, &t.BlockedBy)
	}
	return t, true
}

func validStatus(s string) bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}
