package session

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// defaultStaleAfter marks in-progress tasks in sessions with no activity
// beyond this window. Presentation metadata only; the stored status never
// changes.
const defaultStaleAfter = 24 * time.Hour

const dismissedFile = "plandash-dismissed.json"

// Service owns the memoized session list and the persisted dismissed-task
// set. Recomputes lazily after Invalidate, like the plan cache.
type Service struct {
	agentDir   string
	staleAfter time.Duration

	mu        sync.Mutex
	memo      []Session
	dismissed map[string]bool // "<sessionID>/<taskID>"
}

// NewService returns a Service for the agent data directory, loading any
// previously dismissed tasks from disk.
func NewService(agentDir string) *Service {
	s := &Service{agentDir: agentDir, staleAfter: defaultStaleAfter}
	s.dismissed = s.loadDismissed()
	return s
}

// SetStaleAfter overrides the staleness window. Ignores non-positive values.
func (s *Service) SetStaleAfter(d time.Duration) {
	if d > 0 {
		s.staleAfter = d
	}
}

// AgentDir returns the agent data directory this service reads from.
func (s *Service) AgentDir() string { return s.agentDir }

// Invalidate clears the memo; the next read re-scans the session files.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.memo = nil
	s.mu.Unlock()
}

// Dismiss hides one task from session listings. The exclusion set is
// persisted wholesale and survives restarts.
func (s *Service) Dismiss(sessionID, taskID string) {
	s.mu.Lock()
	s.dismissed[sessionID+"/"+taskID] = true
	s.saveDismissedLocked()
	s.memo = nil
	s.mu.Unlock()
}

// ListResult is the Sessions response: filtered sessions plus totals so the
// UI can say "showing N of M".
type ListResult struct {
	Sessions []Session `json:"sessions"`
	Total    int       `json:"total"`
	Filtered int       `json:"filtered"`
}

// Sessions returns the enriched session list. cutoff, when non-zero, drops
// sessions last updated before it. Filters apply after derivation so one
// cached scan serves every requested view.
func (s *Service) Sessions(cutoff time.Time) ListResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.cachedLocked()

	filtered := all
	if !cutoff.IsZero() {
		filtered = nil
		for _, sess := range all {
			if !sess.UpdatedAt.Before(cutoff) {
				filtered = append(filtered, sess)
			}
		}
	}

	now := time.Now()
	out := make([]Session, 0, len(filtered))
	for _, sess := range filtered {
		out = append(out, s.buildLocked(sess, now))
	}
	return ListResult{Sessions: out, Total: len(all), Filtered: len(filtered)}
}

// ByID returns one enriched session, or nil when the id is unknown.
func (s *Service) ByID(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.cachedLocked() {
		if sess.ID == id {
			built := s.buildLocked(sess, time.Now())
			return &built
		}
	}
	return nil
}

func (s *Service) cachedLocked() []Session {
	if s.memo == nil {
		s.memo = ReadSessions(s.agentDir)
	}
	return s.memo
}

// buildLocked applies the dismissed filter, stale annotation, and meta
// enrichment to a copy of the cached session.
func (s *Service) buildLocked(sess Session, now time.Time) Session {
	sessionStale := now.Sub(sess.UpdatedAt) > s.staleAfter
	tasks := make([]Task, 0, len(sess.Tasks))
	for _, t := range sess.Tasks {
		if s.dismissed[sess.ID+"/"+t.ID] {
			continue
		}
		t.Stale = sessionStale && t.Status == StatusInProgress
		tasks = append(tasks, t)
	}
	sess.Tasks = tasks
	s.applyMeta(&sess)
	return sess
}

// applyMeta folds in <agentDir>/usage-data/session-meta/<id>.json when it
// exists. Absence or malformed content leaves the session untouched.
func (s *Service) applyMeta(sess *Session) {
	path := filepath.Join(s.agentDir, "usage-data", "session-meta", sess.ID+".json")
	b, err := os.ReadFile(path)
	if err != nil {
		return
	}
	var meta struct {
		Model           string         `json:"model"`
		LinesAdded      int            `json:"lines_added"`
		GitCommits      int            `json:"git_commits"`
		Languages       map[string]int `json:"languages"`
		DurationMinutes int            `json:"duration_minutes"`
		TokenUsage      *struct {
			Input         int64 `json:"input_tokens"`
			Output        int64 `json:"output_tokens"`
			CacheCreation int64 `json:"cache_creation_tokens"`
			CacheRead     int64 `json:"cache_read_tokens"`
		} `json:"token_usage"`
	}
	if err := json.Unmarshal(b, &meta); err != nil {
		return
	}
	sess.Model = meta.Model
	sess.LinesAdded = meta.LinesAdded
	sess.GitCommits = meta.GitCommits
	sess.Languages = meta.Languages
	sess.DurationMinutes = meta.DurationMinutes
	if meta.TokenUsage != nil {
		sess.TokenUsage = &TokenUsage{
			InputTokens:         meta.TokenUsage.Input,
			OutputTokens:        meta.TokenUsage.Output,
			CacheCreationTokens: meta.TokenUsage.CacheCreation,
			CacheReadTokens:     meta.TokenUsage.CacheRead,
		}
	}
}

func (s *Service) dismissedPath() string {
	return filepath.Join(s.agentDir, dismissedFile)
}

func (s *Service) loadDismissed() map[string]bool {
	set := map[string]bool{}
	b, err := os.ReadFile(s.dismissedPath())
	if err != nil {
		return set
	}
	var keys []string
	if err := json.Unmarshal(b, &keys); err != nil {
		return set
	}
	for _, k := range keys {
		set[k] = true
	}
	return set
}

func (s *Service) saveDismissedLocked() {
	keys := make([]string, 0, len(s.dismissed))
	for k := range s.dismissed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b, err := json.MarshalIndent(keys, "", "  ")
	if err != nil {
		return
	}
	if err := os.WriteFile(s.dismissedPath(), b, 0o644); err != nil {
		slog.Warn("persist dismissed tasks failed", "err", err)
	}
}
