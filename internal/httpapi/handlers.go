package httpapi

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/plandash/plandash/internal/otel"
	"github.com/plandash/plandash/internal/plan"
	"github.com/plandash/plandash/internal/session"
)

// handleState serves the full derived plan snapshot plus queue errors.
func (a *App) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	snap, errs := a.Plans.Snapshot()
	if errs == nil {
		errs = []string{}
	}
	writeJSON(w, map[string]any{
		"configured": a.Plans.Configured(),
		"tasks":      snap.Tasks,
		"summary":    snap.Summary,
		"slices":     snap.Slices,
		"errors":     errs,
	})
}

// handleOverride marks a task DONE or BLOCKED from the dashboard by appending
// a synthetic event to the execution log.
func (a *App) handleOverride(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body struct {
		TaskID string `json:"taskId"`
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if body.TaskID == "" {
		writeJSONError(w, http.StatusBadRequest, "taskId required")
		return
	}
	if err := a.Plans.OverrideStatus(body.TaskID, body.Status, body.Reason); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	a.Hub.PublishUpdate("plan")
	writeJSON(w, map[string]any{"ok": true})
}

func (a *App) handlePlanInsights(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	snap, _ := a.Plans.Snapshot()
	writeJSON(w, plan.ComputeInsights(snap, a.Plans.Events()))
}

func (a *App) handleLiveInsights(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	list := a.Sessions.Sessions(time.Time{})
	writeJSON(w, session.ComputeInsights(list.Sessions))
}

// defaultSessionDays is the recency window applied when /sessions is called
// without an explicit ?days=N.
const defaultSessionDays = 7

// handleSessions lists live sessions filtered by recency (?days=N, default
// 7, 0 disables) and model substring (?model=).
func (a *App) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	days := defaultSessionDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSONError(w, http.StatusBadRequest, "days must be a non-negative integer")
			return
		}
		days = n
	}
	cutoff := time.Time{}
	if days > 0 {
		cutoff = time.Now().AddDate(0, 0, -days)
	}
	list := a.Sessions.Sessions(cutoff)
	if model := r.URL.Query().Get("model"); model != "" {
		kept := make([]session.Session, 0, len(list.Sessions))
		for _, s := range list.Sessions {
			if strings.Contains(strings.ToLower(s.Model), strings.ToLower(model)) {
				kept = append(kept, s)
			}
		}
		list.Sessions = kept
		list.Filtered = len(kept)
	}
	writeJSON(w, list)
}

// handleSessionSubtree routes /sessions/{id}, /sessions/{id}/resume-cmd,
// /sessions/{id}/context, and /sessions/{sessionId}/tasks/{taskId}.
func (a *App) handleSessionSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/sessions/")
	parts := strings.Split(rest, "/")
	if len(parts) == 0 || parts[0] == "" {
		writeJSONError(w, http.StatusNotFound, "not found")
		return
	}
	id := parts[0]

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		sess := a.Sessions.ByID(id)
		if sess == nil {
			writeJSONError(w, http.StatusNotFound, "unknown session")
			return
		}
		writeJSON(w, sess)

	case len(parts) == 2 && parts[1] == "resume-cmd":
		if r.Method != http.MethodPost {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if a.Sessions.ByID(id) == nil {
			writeJSONError(w, http.StatusNotFound, "unknown session")
			return
		}
		writeJSON(w, map[string]any{"command": "agent --resume " + id})

	case len(parts) == 2 && parts[1] == "context":
		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		summary := a.transcriptSummary(id)
		if summary == nil {
			writeJSONError(w, http.StatusNotFound, "no transcript for session")
			return
		}
		writeJSON(w, summary)

	case len(parts) == 3 && parts[1] == "tasks":
		if r.Method != http.MethodDelete {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		taskID := parts[2]
		if taskID == "" {
			writeJSONError(w, http.StatusBadRequest, "task id required")
			return
		}
		a.Sessions.Dismiss(id, taskID)
		a.Hub.PublishUpdate("sessions")
		writeJSON(w, map[string]any{"ok": true})

	default:
		writeJSONError(w, http.StatusNotFound, "not found")
	}
}

// handleHookIngest accepts one lifecycle signal, buffers it, broadcasts it,
// and runs any side effects. Always 202: ingestion cannot fail and side
// effects are best-effort.
func (a *App) handleHookIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	body := map[string]any{}
	_ = json.NewDecoder(r.Body).Decode(&body)

	ev := a.Hooks.Push(body)
	otel.RecordHookEvent(r.Context(), ev.Event)
	a.Hub.PublishJSON(ev)
	steps := a.Hooks.Dispatch(r.Context(), ev)

	w.WriteHeader(http.StatusAccepted)
	resp := map[string]any{"ok": true, "id": ev.ID, "receivedAt": ev.ReceivedAt}
	if steps != nil {
		resp["steps"] = steps
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (a *App) handleHookEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, map[string]any{
		"events":         a.Hooks.Events(),
		"autoCommit":     a.Hooks.AutoCommit(),
		"hooksInstalled": a.Hooks.HooksInstalled(),
	})
}

// maxTranscriptLines caps how much of a transcript the summary reads.
// Long-lived sessions grow unbounded; only the tail is relevant.
const maxTranscriptLines = 500

// transcriptContext is the tail summary of a session's JSONL transcript.
type transcriptContext struct {
	SessionID  string         `json:"sessionId"`
	Lines      int            `json:"lines"`
	LastPrompt string         `json:"lastPrompt,omitempty"`
	LastReply  string         `json:"lastReply,omitempty"`
	ToolCalls  map[string]int `json:"toolCalls"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// transcriptSummary finds <agentDir>/projects/**/<id>.jsonl (one directory
// level deep) and summarizes it: last user prompt, last assistant text, tool
// call counts. Returns nil when no transcript exists.
func (a *App) transcriptSummary(id string) *transcriptContext {
	root := filepath.Join(a.Sessions.AgentDir(), "projects")
	path := filepath.Join(root, id+".jsonl")
	if _, err := os.Stat(path); err != nil {
		path = ""
		entries, _ := os.ReadDir(root)
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			candidate := filepath.Join(root, e.Name(), id+".jsonl")
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}
	if path == "" {
		return nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	info, _ := os.Stat(path)

	out := &transcriptContext{SessionID: id, ToolCalls: map[string]int{}}
	if info != nil {
		out.UpdatedAt = info.ModTime()
	}
	lines := strings.Split(string(b), "\n")
	if len(lines) > maxTranscriptLines {
		lines = lines[len(lines)-maxTranscriptLines:]
	}
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out.Lines++
		var entry struct {
			Role    string          `json:"role"`
			Name    string          `json:"name"`
			Content json.RawMessage `json:"content"`
		}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		text := contentText(entry.Content)
		switch entry.Role {
		case "user":
			if text != "" {
				out.LastPrompt = text
			}
		case "assistant":
			if text != "" {
				out.LastReply = text
			}
			for _, name := range toolNames(entry.Content) {
				out.ToolCalls[name]++
			}
		case "tool":
			if entry.Name != "" {
				out.ToolCalls[entry.Name]++
			}
		}
	}
	return out
}

// contentText extracts plain text from a transcript content field, which is
// either a string or an array of typed blocks.
func contentText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return ""
	}
	var parts []string
	for _, blk := range blocks {
		if blk.Type == "text" && blk.Text != "" {
			parts = append(parts, blk.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// toolNames extracts tool_use block names from an assistant content array.
func toolNames(raw json.RawMessage) []string {
	var blocks []struct {
		Type string `json:"type"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return nil
	}
	var names []string
	for _, blk := range blocks {
		if blk.Type == "tool_use" && blk.Name != "" {
			names = append(names, blk.Name)
		}
	}
	return names
}
